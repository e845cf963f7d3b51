package screening

import (
	"time"

	"github.com/entity-screening/backend/internal/keywords"
)

// Request is a validated screening request. It is not modified after validation.
type Request struct {
	EntityName         string            `json:"entity_name"`
	Category           keywords.Category `json:"category"`
	MaxQueries         int               `json:"max_queries"`
	NumResultsPerQuery int               `json:"num_results_per_query"`
	EnableScoring      bool              `json:"enable_scoring"`
}

type ResultItem struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type GroupStatus string

const (
	GroupOK     GroupStatus = "ok"
	GroupFailed GroupStatus = "failed"
)

// QueryGroup holds the outcome of one generated query. A failed query carries
// no results.
type QueryGroup struct {
	Query   string       `json:"query"`
	Status  GroupStatus  `json:"status"`
	Results []ResultItem `json:"results"`
	Error   string       `json:"error,omitempty"`
}

type Response struct {
	Request
	TotalCount       int          `json:"total_count"`
	Groups           []QueryGroup `json:"groups"`
	FailedQueries    int          `json:"failed_queries"`
	StorageKey       string       `json:"storage_key"`
	Timestamp        time.Time    `json:"timestamp"`
	ScoringTriggered bool         `json:"scoring_triggered"`
	Stored           bool         `json:"stored"`
}

// Queries returns the generated queries in order.
func (r *Response) Queries() []string {
	out := make([]string, len(r.Groups))
	for i, g := range r.Groups {
		out[i] = g.Query
	}
	return out
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Valid reports whether l is one of the four defined levels.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

func (l RiskLevel) IsHighRisk() bool {
	return l == RiskHigh || l == RiskCritical
}

// Priority is the delivery priority attached to notifications for this level.
func (l RiskLevel) Priority() string {
	switch l {
	case RiskCritical, RiskHigh:
		return "HIGH"
	case RiskMedium:
		return "NORMAL"
	default:
		return "LOW"
	}
}

type RiskAssessment struct {
	OverallRiskScore    float64   `json:"overall_risk_score"`
	RiskLevel           RiskLevel `json:"risk_level"`
	FinancialCrimesRisk float64   `json:"financial_crimes_risk"`
	CorruptionRisk      float64   `json:"corruption_risk"`
	RegulatoryRisk      float64   `json:"regulatory_risk"`
	ReputationalRisk    float64   `json:"reputational_risk"`
	KeyFindings         []string  `json:"key_findings"`
	ConfidenceLevel     float64   `json:"confidence_level"`

	Summary            string   `json:"summary,omitempty"`
	RiskFactors        []string `json:"risk_factors,omitempty"`
	ComplianceConcerns []string `json:"compliance_concerns,omitempty"`
	CompositeRiskScore float64  `json:"composite_risk_score"`
	RequiresReview     bool     `json:"requires_review"`
}

// ScoringRequest is the message handed to the scoring worker.
type ScoringRequest struct {
	RequestID  string    `json:"request_id"`
	EntityName string    `json:"entity_name"`
	StorageKey string    `json:"storage_key"`
	Response   Response  `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
}

// RiskNotification is published once an assessment has been stored.
type RiskNotification struct {
	RequestID  string         `json:"request_id"`
	EntityName string         `json:"entity_name"`
	StorageKey string         `json:"storage_key"`
	Assessment RiskAssessment `json:"assessment"`
	CreatedAt  time.Time      `json:"created_at"`
}
