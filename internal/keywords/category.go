package keywords

import (
	"fmt"
	"strings"
)

type Category string

const (
	FinancialCrimes   Category = "financial_crimes"
	CorruptionBribery Category = "corruption_bribery"
	All               Category = "all"
)

// seedOrder is the bucket order used when expanding All.
var seedOrder = []Category{FinancialCrimes, CorruptionBribery}

func (c Category) String() string {
	return string(c)
}

// ParseCategory accepts the lowercase wire name or the upper-case enum name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case FinancialCrimes, CorruptionBribery, All:
		return c, nil
	case "":
		return All, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}
