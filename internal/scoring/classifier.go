package scoring

import (
	"math"

	"github.com/entity-screening/backend/internal/screening"
)

// Lower bounds of each level. The partition is total over [0,1]: every score
// maps to exactly one level and a higher score never maps to a lower level.
const (
	MediumThreshold   = 0.35
	HighThreshold     = 0.65
	CriticalThreshold = 0.85
)

// ClassifyLevel maps a score onto a risk level. Scores outside [0,1] are
// clamped first; NaN is treated as 0.
func ClassifyLevel(score float64) screening.RiskLevel {
	score = clamp01(score)
	switch {
	case score >= CriticalThreshold:
		return screening.RiskCritical
	case score >= HighThreshold:
		return screening.RiskHigh
	case score >= MediumThreshold:
		return screening.RiskMedium
	default:
		return screening.RiskLow
	}
}

// Composite weights for the per-dimension scores.
const (
	weightFinancial    = 0.35
	weightCorruption   = 0.25
	weightRegulatory   = 0.25
	weightReputational = 0.15
)

// CompositeScore is the weighted blend of the four dimension scores, rounded to
// three decimal places.
func CompositeScore(financial, corruption, regulatory, reputational float64) float64 {
	c := financial*weightFinancial +
		corruption*weightCorruption +
		regulatory*weightRegulatory +
		reputational*weightReputational
	return math.Round(clamp01(c)*1000) / 1000
}

// RequiresReview flags assessments that need an analyst before any action.
func RequiresReview(level screening.RiskLevel, score, confidence float64) bool {
	return level.IsHighRisk() || score >= 0.8 || confidence < 0.6
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
