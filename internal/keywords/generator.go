package keywords

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input")

// Generate builds the search queries for an entity: the bare name first, then
// "name keyword" for each keyword of cat in taxonomy order, capped at maxQueries.
func Generate(t *Taxonomy, entityName string, cat Category, maxQueries int) ([]string, error) {
	name := strings.TrimSpace(entityName)
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is empty", ErrInvalidInput)
	}
	if maxQueries < 1 {
		return nil, fmt.Errorf("%w: max queries must be at least 1, got %d", ErrInvalidInput, maxQueries)
	}
	if cat != All && !isConcrete(cat) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, cat)
	}

	queries := make([]string, 0, maxQueries)
	seen := map[string]struct{}{name: {}}
	queries = append(queries, name)

	for _, kw := range t.Keywords(cat) {
		if len(queries) >= maxQueries {
			break
		}
		q := strings.TrimSpace(name + " " + kw)
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}

	return queries, nil
}

// GenerateByCategory returns a query list per concrete category, each capped at perCategory.
func GenerateByCategory(t *Taxonomy, entityName string, perCategory int) (map[Category][]string, error) {
	out := make(map[Category][]string, len(seedOrder))
	for _, c := range t.Categories() {
		qs, err := Generate(t, entityName, c, perCategory)
		if err != nil {
			return nil, err
		}
		out[c] = qs
	}
	return out, nil
}
