package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

// MalformedResponseError reports model output that cannot be turned into an
// assessment. It is never retried.
type MalformedResponseError struct {
	Field  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %s: %s", e.Field, e.Reason)
}

type rawScores struct {
	OverallRiskScore    *float64 `json:"overall_risk_score"`
	RiskLevel           string   `json:"risk_level"`
	FinancialCrimesRisk *float64 `json:"financial_crimes_risk"`
	CorruptionRisk      *float64 `json:"corruption_risk"`
	RegulatoryRisk      *float64 `json:"regulatory_risk"`
	ReputationalRisk    *float64 `json:"reputational_risk"`
}

// Models answer either with scores nested under risk_assessment or flat at the top level.
type rawAssessment struct {
	rawScores
	RiskAssessment     *rawScores `json:"risk_assessment"`
	Summary            string     `json:"summary"`
	KeyFindings        []string   `json:"key_findings"`
	RiskFactors        []string   `json:"risk_factors"`
	ComplianceConcerns []string   `json:"compliance_concerns"`
	ConfidenceLevel    *float64   `json:"confidence_level"`
}

// ParseAssessment extracts the JSON object from raw model output and validates
// it. Scores are rounded to the stored precision and the risk level is derived
// from the rounded overall score, so the stored pair always agrees.
func ParseAssessment(raw string) (*screening.RiskAssessment, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, &MalformedResponseError{Field: "body", Reason: "no JSON object found"}
	}

	var parsed rawAssessment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, &MalformedResponseError{Field: "body", Reason: err.Error()}
	}

	scores := parsed.rawScores
	if parsed.RiskAssessment != nil {
		scores = *parsed.RiskAssessment
	}

	fields := []struct {
		name  string
		value *float64
	}{
		{"overall_risk_score", scores.OverallRiskScore},
		{"financial_crimes_risk", scores.FinancialCrimesRisk},
		{"corruption_risk", scores.CorruptionRisk},
		{"regulatory_risk", scores.RegulatoryRisk},
		{"reputational_risk", scores.ReputationalRisk},
		{"confidence_level", parsed.ConfidenceLevel},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, &MalformedResponseError{Field: f.name, Reason: "missing"}
		}
		if *f.value < 0 || *f.value > 1 {
			return nil, &MalformedResponseError{Field: f.name, Reason: fmt.Sprintf("%v is outside [0,1]", *f.value)}
		}
	}

	a := &screening.RiskAssessment{
		OverallRiskScore:    models.RoundScore(*scores.OverallRiskScore),
		FinancialCrimesRisk: models.RoundScore(*scores.FinancialCrimesRisk),
		CorruptionRisk:      models.RoundScore(*scores.CorruptionRisk),
		RegulatoryRisk:      models.RoundScore(*scores.RegulatoryRisk),
		ReputationalRisk:    models.RoundScore(*scores.ReputationalRisk),
		ConfidenceLevel:     models.RoundScore(*parsed.ConfidenceLevel),
		Summary:             strings.TrimSpace(parsed.Summary),
		KeyFindings:         nonNil(parsed.KeyFindings),
		RiskFactors:         parsed.RiskFactors,
		ComplianceConcerns:  parsed.ComplianceConcerns,
	}
	a.RiskLevel = ClassifyLevel(a.OverallRiskScore)
	a.CompositeRiskScore = CompositeScore(a.FinancialCrimesRisk, a.CorruptionRisk, a.RegulatoryRisk, a.ReputationalRisk)
	a.RequiresReview = RequiresReview(a.RiskLevel, a.OverallRiskScore, a.ConfidenceLevel)

	if declared := screening.RiskLevel(strings.ToUpper(strings.TrimSpace(scores.RiskLevel))); declared != "" && declared != a.RiskLevel {
		logger.Debug("Model risk label disagrees with score",
			zap.String("declared", string(declared)),
			zap.String("derived", string(a.RiskLevel)),
			zap.Float64("score", a.OverallRiskScore),
		)
	}

	return a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
