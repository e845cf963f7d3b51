package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(rdb, "test")
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestPutSearchSetsTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	rec := &models.SearchRecord{StorageKey: "k1", EntityName: "Acme", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, c.PutSearch(ctx, rec))

	assert.True(t, mr.Exists("test:search:k1"))
	ttl := mr.TTL("test:search:k1")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	got, err := c.GetSearch(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.EntityName)
}

func TestRecordExpires(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	a := &screening.RiskAssessment{OverallRiskScore: 0.5, RiskLevel: screening.RiskMedium}
	require.NoError(t, c.PutRisk(ctx, models.NewRiskRecord("k1", "Acme", a, now, time.Minute)))

	got, err := c.GetRisk(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "0.5", got.OverallRiskScore.String())

	mr.FastForward(2 * time.Minute)

	_, err = c.GetRisk(ctx, "k1")
	assert.ErrorIs(t, err, screening.ErrNotFound)
}

func TestPutRejectsExpiredRecord(t *testing.T) {
	c, _ := newTestClient(t)
	now := time.Now()

	rec := &models.SearchRecord{StorageKey: "k1", ExpiresAt: now.Add(-time.Second)}
	assert.Error(t, c.PutSearch(context.Background(), rec))
}

func TestListRiskNewestFirstAndPrunesExpired(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	put := func(key, entity string, level screening.RiskLevel, offset, ttl time.Duration) {
		a := &screening.RiskAssessment{RiskLevel: level, KeyFindings: []string{}}
		require.NoError(t, c.PutRisk(ctx, models.NewRiskRecord(key, entity, a, now.Add(offset), ttl)))
	}
	put("k1", "Acme Corp", screening.RiskHigh, 0, time.Hour)
	put("k2", "Globex", screening.RiskHigh, time.Second, time.Hour)
	put("k3", "ACME Holdings", screening.RiskHigh, 2*time.Second, time.Minute)
	put("k4", "Acme Corp", screening.RiskLow, 3*time.Second, time.Hour)

	recs, err := c.ListRisk(ctx, models.RiskFilter{RiskLevel: "HIGH", Entity: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k3", recs[0].StorageKey)
	assert.Equal(t, "k1", recs[1].StorageKey)

	mr.FastForward(2 * time.Minute)

	recs, err = c.ListRisk(ctx, models.RiskFilter{RiskLevel: "HIGH"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k2", recs[0].StorageKey)
	assert.Equal(t, "k1", recs[1].StorageKey)

	members, err := mr.ZMembers("test:risk:index")
	require.NoError(t, err)
	assert.NotContains(t, members, "k3")
}
