package keywords

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxKeywordLength = 100

var ErrInvalidKeyword = errors.New("invalid keyword")

// Taxonomy is an immutable set of ordered keyword buckets. Mutating
// operations return a new value and leave the receiver untouched.
type Taxonomy struct {
	buckets map[Category][]string
}

// Default returns the seed taxonomy.
func Default() *Taxonomy {
	return &Taxonomy{
		buckets: map[Category][]string{
			FinancialCrimes: {
				"fraud",
				"scam",
				"Ponzi",
				"embezzlement",
				"insider trading",
				"accounting irregularities",
				"money laundering",
				"misappropriation",
				"kickbacks",
				"shell company",
			},
			CorruptionBribery: {
				"bribery",
				"corruption",
				"graft",
				"undue influence",
				"facilitation payment",
				"procurement fraud",
				"nepotism",
				"political donation scandal",
			},
		},
	}
}

// Categories lists the concrete buckets in expansion order. All is never included.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(seedOrder))
	copy(out, seedOrder)
	return out
}

// Keywords returns a copy of the bucket's keywords in insertion order. For All the
// buckets are concatenated in category order with repeated phrases dropped.
func (t *Taxonomy) Keywords(cat Category) []string {
	if cat != All {
		src := t.buckets[cat]
		out := make([]string, len(src))
		copy(out, src)
		return out
	}

	seen := make(map[string]struct{})
	var out []string
	for _, c := range seedOrder {
		for _, kw := range t.buckets[c] {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// WithKeyword returns a taxonomy with phrase appended to cat. Adding a phrase
// that is already present returns the receiver.
func (t *Taxonomy) WithKeyword(phrase string, cat Category) (*Taxonomy, error) {
	phrase = strings.TrimSpace(phrase)
	if err := checkKeyword(phrase, cat); err != nil {
		return nil, err
	}
	for _, kw := range t.buckets[cat] {
		if kw == phrase {
			return t, nil
		}
	}

	next := t.clone()
	next.buckets[cat] = append(next.buckets[cat], phrase)
	return next, nil
}

// WithoutKeyword returns a taxonomy without phrase in cat. The boolean reports
// whether the phrase was present.
func (t *Taxonomy) WithoutKeyword(phrase string, cat Category) (*Taxonomy, bool, error) {
	if !isConcrete(cat) {
		return nil, false, fmt.Errorf("%w: cannot remove keywords from category %q", ErrInvalidKeyword, cat)
	}
	phrase = strings.TrimSpace(phrase)

	idx := -1
	for i, kw := range t.buckets[cat] {
		if kw == phrase {
			idx = i
			break
		}
	}
	if idx < 0 {
		return t, false, nil
	}

	next := t.clone()
	bucket := next.buckets[cat]
	next.buckets[cat] = append(bucket[:idx:idx], bucket[idx+1:]...)
	return next, true, nil
}

type Stats struct {
	Categories map[Category]int `json:"categories"`
	Total      int              `json:"total"`
	Unique     int              `json:"unique"`
}

func (t *Taxonomy) Stats() Stats {
	s := Stats{Categories: make(map[Category]int, len(seedOrder))}
	for _, c := range seedOrder {
		n := len(t.buckets[c])
		s.Categories[c] = n
		s.Total += n
	}
	s.Unique = len(t.Keywords(All))
	return s
}

// Export serializes the taxonomy keyed by category wire name.
func (t *Taxonomy) Export() map[string][]string {
	out := make(map[string][]string, len(seedOrder))
	for _, c := range seedOrder {
		out[string(c)] = t.Keywords(c)
	}
	return out
}

// Import builds a taxonomy from an Export result. Categories missing from data
// are left empty; unknown categories and invalid phrases are rejected.
func Import(data map[string][]string) (*Taxonomy, error) {
	t := &Taxonomy{buckets: make(map[Category][]string, len(seedOrder))}
	for name, phrases := range data {
		cat, err := ParseCategory(name)
		if err != nil || !isConcrete(cat) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidKeyword, name)
		}
		seen := make(map[string]struct{}, len(phrases))
		for _, p := range phrases {
			p = strings.TrimSpace(p)
			if err := checkKeyword(p, cat); err != nil {
				return nil, err
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			t.buckets[cat] = append(t.buckets[cat], p)
		}
	}
	return t, nil
}

func (t *Taxonomy) clone() *Taxonomy {
	next := &Taxonomy{buckets: make(map[Category][]string, len(t.buckets))}
	for c, kws := range t.buckets {
		cp := make([]string, len(kws))
		copy(cp, kws)
		next.buckets[c] = cp
	}
	return next
}

func isConcrete(cat Category) bool {
	for _, c := range seedOrder {
		if c == cat {
			return true
		}
	}
	return false
}

func checkKeyword(phrase string, cat Category) error {
	if !isConcrete(cat) {
		return fmt.Errorf("%w: cannot add keywords to category %q", ErrInvalidKeyword, cat)
	}
	if phrase == "" {
		return fmt.Errorf("%w: empty phrase", ErrInvalidKeyword)
	}
	if utf8.RuneCountInString(phrase) > MaxKeywordLength {
		return fmt.Errorf("%w: phrase exceeds %d characters", ErrInvalidKeyword, MaxKeywordLength)
	}
	for _, r := range phrase {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: phrase contains control characters", ErrInvalidKeyword)
		}
	}
	return nil
}
