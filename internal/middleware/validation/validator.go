package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/screening"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

const (
	MaxQueries         = 10
	MaxResultsPerQuery = 10
)

// Rules carries the configurable defaults applied during validation.
type Rules struct {
	DefaultMaxQueries int
	DefaultNumResults int
	MaxEntityLength   int
}

func DefaultRules() Rules {
	return Rules{
		DefaultMaxQueries: 5,
		DefaultNumResults: 3,
		MaxEntityLength:   200,
	}
}

// Validate checks a raw screening request body against the default rules.
func Validate(body []byte) (screening.Request, error) {
	return DefaultRules().Validate(body)
}

// Validate turns a raw request body into a screening.Request or returns a
// *screening.ValidationError naming the offending field. Unknown fields are ignored.
func (r Rules) Validate(body []byte) (screening.Request, error) {
	var req screening.Request

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return req, screening.NewValidationError("body", "must be a JSON object")
	}

	name, err := r.entityName(raw["entity_name"])
	if err != nil {
		return req, err
	}
	req.EntityName = name

	req.Category = keywords.All
	if v, ok := present(raw, "category"); ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return req, screening.NewValidationError("category", "must be a string")
		}
		cat, err := keywords.ParseCategory(s)
		if err != nil {
			return req, screening.NewValidationError("category",
				fmt.Sprintf("must be one of %s, %s or %s", keywords.FinancialCrimes, keywords.CorruptionBribery, keywords.All))
		}
		req.Category = cat
	}

	req.MaxQueries, err = boundedInt(raw, "max_queries", r.DefaultMaxQueries, MaxQueries)
	if err != nil {
		return req, err
	}

	req.NumResultsPerQuery, err = boundedInt(raw, "num_results_per_query", r.DefaultNumResults, MaxResultsPerQuery)
	if err != nil {
		return req, err
	}

	if v, ok := present(raw, "enable_scoring"); ok {
		b, err := parseBool(v)
		if err != nil {
			return req, screening.NewValidationError("enable_scoring", "must be a boolean")
		}
		req.EnableScoring = b
	}

	return req, nil
}

func (r Rules) entityName(v json.RawMessage) (string, error) {
	if isNull(v) {
		return "", screening.NewValidationError("entity_name", "is required")
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", screening.NewValidationError("entity_name", "must be a string")
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return "", screening.NewValidationError("entity_name", "is required")
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", screening.NewValidationError("entity_name", "must not contain control characters")
		}
	}

	limit := r.MaxEntityLength
	if limit <= 0 {
		limit = 200
	}
	if utf8.RuneCountInString(s) > limit {
		return "", screening.NewValidationError("entity_name", fmt.Sprintf("must be at most %d characters", limit))
	}
	if containsXSS(s) {
		return "", screening.NewValidationError("entity_name", "contains disallowed markup")
	}

	return s, nil
}

func boundedInt(raw map[string]json.RawMessage, field string, def, max int) (int, error) {
	v, ok := present(raw, field)
	if !ok {
		return def, nil
	}

	n, err := parseInt(v)
	if err != nil {
		return 0, screening.NewValidationError(field, "must be an integer")
	}
	if n < 1 || n > int64(max) {
		return 0, screening.NewValidationError(field, fmt.Sprintf("must be between 1 and %d", max))
	}
	return int(n), nil
}

// parseInt accepts a JSON integer or a string holding one.
func parseInt(v json.RawMessage) (int64, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, err
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}

	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, err
	}
	return n.Int64()
}

func parseBool(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

func present(raw map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	v, ok := raw[field]
	if !ok || isNull(v) {
		return nil, false
	}
	return v, true
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
