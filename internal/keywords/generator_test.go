package keywords

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAcmeFinancialCrimes(t *testing.T) {
	got, err := Generate(Default(), "Acme Corp", FinancialCrimes, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Acme Corp fraud", "Acme Corp scam"}, got)
}

func TestGenerateIsDeterministic(t *testing.T) {
	tax := Default()
	for _, cat := range []Category{FinancialCrimes, CorruptionBribery, All} {
		first, err := Generate(tax, "Globex", cat, 7)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := Generate(tax, "Globex", cat, 7)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestGenerateCapAndFirstElement(t *testing.T) {
	tax := Default()
	for _, cat := range []Category{FinancialCrimes, CorruptionBribery, All} {
		available := len(tax.Keywords(cat))
		for max := 1; max <= 25; max++ {
			got, err := Generate(tax, "  Initech Ltd  ", cat, max)
			require.NoError(t, err)

			assert.LessOrEqual(t, len(got), max)
			if available >= max-1 {
				assert.Len(t, got, max, "category %s max %d", cat, max)
			}
			assert.Equal(t, "Initech Ltd", got[0])
		}
	}
}

func TestGenerateMaxOneIsBareName(t *testing.T) {
	got, err := Generate(Default(), "Acme Corp", All, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp"}, got)
}

func TestGenerateProducesUniqueQueries(t *testing.T) {
	tax, err := Default().WithKeyword("fraud", CorruptionBribery)
	require.NoError(t, err)

	got, err := Generate(tax, "Acme", All, 30)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, q := range got {
		assert.False(t, seen[q], "duplicate query %q", q)
		seen[q] = true
	}
}

func TestGenerateAllUsesBucketOrder(t *testing.T) {
	got, err := Generate(Default(), "Acme", All, 13)
	require.NoError(t, err)

	assert.Equal(t, "Acme shell company", got[10])
	assert.Equal(t, "Acme bribery", got[11])
	assert.Equal(t, "Acme corruption", got[12])
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	_, err := Generate(Default(), "   ", All, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Generate(Default(), "Acme", All, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Generate(Default(), "Acme", Category("sanctions"), 3)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGenerateByCategory(t *testing.T) {
	got, err := GenerateByCategory(Default(), "Acme", 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"Acme", "Acme fraud"}, got[FinancialCrimes])
	assert.Equal(t, []string{"Acme", "Acme bribery"}, got[CorruptionBribery])
}

func TestHolderConcurrentUpdates(t *testing.T) {
	h := NewHolder(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Update(func(cur *Taxonomy) (*Taxonomy, error) {
				return cur.WithKeyword("custom "+string(rune('a'+i)), FinancialCrimes)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.Snapshot().Keywords(FinancialCrimes), 30)
}
