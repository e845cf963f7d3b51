package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entity-screening/backend/internal/screening"
)

type RecordType string

const (
	RecordSearch RecordType = "search"
	RecordRisk   RecordType = "risk"
)

// ScorePlaces is the fixed precision risk scores are stored at.
const ScorePlaces = 4

// NewScore converts a model score to the fixed-point form written to storage.
func NewScore(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(ScorePlaces)
}

// RoundScore rounds f to the stored precision. Anything derived from a score
// (level, review flag) must be computed from the rounded value.
func RoundScore(f float64) float64 {
	return NewScore(f).InexactFloat64()
}

type SearchRecord struct {
	StorageKey         string                 `json:"storage_key"`
	EntityName         string                 `json:"entity_name"`
	Category           string                 `json:"category"`
	MaxQueries         int                    `json:"max_queries"`
	NumResultsPerQuery int                    `json:"num_results_per_query"`
	Queries            []string               `json:"queries"`
	Groups             []screening.QueryGroup `json:"groups"`
	TotalCount         int                    `json:"total_count"`
	FailedQueries      int                    `json:"failed_queries"`
	ScoringRequested   bool                   `json:"scoring_requested"`
	CreatedAt          time.Time              `json:"created_at"`
	ExpiresAt          time.Time              `json:"expires_at"`
}

func NewSearchRecord(resp *screening.Response, now time.Time, ttl time.Duration) *SearchRecord {
	return &SearchRecord{
		StorageKey:         resp.StorageKey,
		EntityName:         resp.EntityName,
		Category:           string(resp.Category),
		MaxQueries:         resp.MaxQueries,
		NumResultsPerQuery: resp.NumResultsPerQuery,
		Queries:            resp.Queries(),
		Groups:             resp.Groups,
		TotalCount:         resp.TotalCount,
		FailedQueries:      resp.FailedQueries,
		ScoringRequested:   resp.EnableScoring,
		CreatedAt:          now.UTC(),
		ExpiresAt:          now.Add(ttl).UTC(),
	}
}

type RiskRecord struct {
	StorageKey          string          `json:"storage_key"`
	EntityName          string          `json:"entity_name"`
	OverallRiskScore    decimal.Decimal `json:"overall_risk_score"`
	RiskLevel           string          `json:"risk_level"`
	FinancialCrimesRisk decimal.Decimal `json:"financial_crimes_risk"`
	CorruptionRisk      decimal.Decimal `json:"corruption_risk"`
	RegulatoryRisk      decimal.Decimal `json:"regulatory_risk"`
	ReputationalRisk    decimal.Decimal `json:"reputational_risk"`
	ConfidenceLevel     decimal.Decimal `json:"confidence_level"`
	CompositeRiskScore  decimal.Decimal `json:"composite_risk_score"`
	RequiresReview      bool            `json:"requires_review"`
	Summary             string          `json:"summary,omitempty"`
	KeyFindings         []string        `json:"key_findings"`
	RiskFactors         []string        `json:"risk_factors,omitempty"`
	ComplianceConcerns  []string        `json:"compliance_concerns,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

func NewRiskRecord(storageKey, entityName string, a *screening.RiskAssessment, now time.Time, ttl time.Duration) *RiskRecord {
	return &RiskRecord{
		StorageKey:          storageKey,
		EntityName:          entityName,
		OverallRiskScore:    NewScore(a.OverallRiskScore),
		RiskLevel:           string(a.RiskLevel),
		FinancialCrimesRisk: NewScore(a.FinancialCrimesRisk),
		CorruptionRisk:      NewScore(a.CorruptionRisk),
		RegulatoryRisk:      NewScore(a.RegulatoryRisk),
		ReputationalRisk:    NewScore(a.ReputationalRisk),
		ConfidenceLevel:     NewScore(a.ConfidenceLevel),
		CompositeRiskScore:  NewScore(a.CompositeRiskScore),
		RequiresReview:      a.RequiresReview,
		Summary:             a.Summary,
		KeyFindings:         a.KeyFindings,
		RiskFactors:         a.RiskFactors,
		ComplianceConcerns:  a.ComplianceConcerns,
		CreatedAt:           now.UTC(),
		ExpiresAt:           now.Add(ttl).UTC(),
	}
}

// Assessment converts the stored record back to its domain form.
func (r *RiskRecord) Assessment() screening.RiskAssessment {
	return screening.RiskAssessment{
		OverallRiskScore:    r.OverallRiskScore.InexactFloat64(),
		RiskLevel:           screening.RiskLevel(r.RiskLevel),
		FinancialCrimesRisk: r.FinancialCrimesRisk.InexactFloat64(),
		CorruptionRisk:      r.CorruptionRisk.InexactFloat64(),
		RegulatoryRisk:      r.RegulatoryRisk.InexactFloat64(),
		ReputationalRisk:    r.ReputationalRisk.InexactFloat64(),
		KeyFindings:         r.KeyFindings,
		ConfidenceLevel:     r.ConfidenceLevel.InexactFloat64(),
		Summary:             r.Summary,
		RiskFactors:         r.RiskFactors,
		ComplianceConcerns:  r.ComplianceConcerns,
		CompositeRiskScore:  r.CompositeRiskScore.InexactFloat64(),
		RequiresReview:      r.RequiresReview,
	}
}

// Ref identifies a stored record.
type Ref struct {
	StorageKey string     `json:"storage_key"`
	RecordType RecordType `json:"record_type"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// RiskFilter selects stored risk assessments. Empty fields match everything.
type RiskFilter struct {
	RiskLevel string
	// Entity is a case-insensitive substring of the entity name.
	Entity string
	Limit  int
}

func (f RiskFilter) Normalize() RiskFilter {
	f.RiskLevel = strings.ToUpper(strings.TrimSpace(f.RiskLevel))
	f.Entity = strings.TrimSpace(f.Entity)
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

func (f RiskFilter) Matches(rec *RiskRecord) bool {
	if f.RiskLevel != "" && rec.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Entity != "" && !strings.Contains(strings.ToLower(rec.EntityName), strings.ToLower(f.Entity)) {
		return false
	}
	return true
}

// SortNewestFirst orders records by creation time, newest first, breaking
// ties on storage key.
func SortNewestFirst(recs []*RiskRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].StorageKey < recs[j].StorageKey
	})
}
