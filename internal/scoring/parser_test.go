package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/screening"
)

const nestedResponse = `Here is the analysis:
{
  "summary": "Acme Corp was fined for accounting irregularities.",
  "risk_assessment": {
    "overall_risk_score": 0.72,
    "risk_level": "HIGH",
    "financial_crimes_risk": 0.8,
    "corruption_risk": 0.6,
    "regulatory_risk": 0.7,
    "reputational_risk": 0.9
  },
  "key_findings": ["SEC fine in 2021"],
  "risk_factors": ["Regulatory: repeated filings"],
  "compliance_concerns": ["Enhanced due diligence"],
  "confidence_level": 0.8
}
Let me know if you need more.`

func TestParseAssessmentNested(t *testing.T) {
	a, err := ParseAssessment(nestedResponse)
	require.NoError(t, err)

	assert.Equal(t, 0.72, a.OverallRiskScore)
	assert.Equal(t, screening.RiskHigh, a.RiskLevel)
	assert.Equal(t, 0.8, a.FinancialCrimesRisk)
	assert.Equal(t, 0.9, a.ReputationalRisk)
	assert.Equal(t, 0.8, a.ConfidenceLevel)
	assert.Equal(t, []string{"SEC fine in 2021"}, a.KeyFindings)
	assert.Equal(t, "Acme Corp was fined for accounting irregularities.", a.Summary)
	assert.Equal(t, 0.74, a.CompositeRiskScore)
	assert.True(t, a.RequiresReview)
}

func TestParseAssessmentFlat(t *testing.T) {
	raw := `{"overall_risk_score": 0.2, "risk_level": "LOW", "financial_crimes_risk": 0.1,
		"corruption_risk": 0.1, "regulatory_risk": 0.2, "reputational_risk": 0.3,
		"key_findings": [], "confidence_level": 0.9}`

	a, err := ParseAssessment(raw)
	require.NoError(t, err)
	assert.Equal(t, screening.RiskLow, a.RiskLevel)
	assert.False(t, a.RequiresReview)
	assert.Empty(t, a.KeyFindings)
	assert.NotNil(t, a.KeyFindings)
}

func TestParseAssessmentDerivesLevelFromScore(t *testing.T) {
	raw := `{"overall_risk_score": 0.9, "risk_level": "LOW", "financial_crimes_risk": 0.9,
		"corruption_risk": 0.9, "regulatory_risk": 0.9, "reputational_risk": 0.9,
		"confidence_level": 0.9}`

	a, err := ParseAssessment(raw)
	require.NoError(t, err)
	assert.Equal(t, screening.RiskCritical, a.RiskLevel)
}

func TestParseAssessmentClassifiesRoundedScore(t *testing.T) {
	cases := []struct {
		score float64
		want  screening.RiskLevel
	}{
		{0.34996, screening.RiskMedium},
		{0.64999, screening.RiskHigh},
		{0.84995, screening.RiskCritical},
		{0.84994, screening.RiskHigh},
	}

	for _, tc := range cases {
		raw := fmt.Sprintf(`{"overall_risk_score": %v, "financial_crimes_risk": 0.5,
			"corruption_risk": 0.5, "regulatory_risk": 0.5, "reputational_risk": 0.5,
			"confidence_level": 0.9}`, tc.score)

		a, err := ParseAssessment(raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, a.RiskLevel, "score %v", tc.score)
		assert.Equal(t, ClassifyLevel(a.OverallRiskScore), a.RiskLevel)
	}
}

func TestParseAssessmentMalformed(t *testing.T) {
	cases := map[string]struct {
		raw   string
		field string
	}{
		"no json":        {"I cannot help with that.", "body"},
		"broken json":    {`{"overall_risk_score": }`, "body"},
		"string score":   {`{"overall_risk_score": "high"}`, "body"},
		"missing field":  {`{"overall_risk_score": 0.5, "financial_crimes_risk": 0.5, "corruption_risk": 0.5, "regulatory_risk": 0.5, "confidence_level": 0.5}`, "reputational_risk"},
		"out of range":   {`{"overall_risk_score": 1.5, "financial_crimes_risk": 0.5, "corruption_risk": 0.5, "regulatory_risk": 0.5, "reputational_risk": 0.5, "confidence_level": 0.5}`, "overall_risk_score"},
		"negative":       {`{"overall_risk_score": 0.5, "financial_crimes_risk": -0.1, "corruption_risk": 0.5, "regulatory_risk": 0.5, "reputational_risk": 0.5, "confidence_level": 0.5}`, "financial_crimes_risk"},
		"no confidence":  {`{"overall_risk_score": 0.5, "financial_crimes_risk": 0.5, "corruption_risk": 0.5, "regulatory_risk": 0.5, "reputational_risk": 0.5}`, "confidence_level"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAssessment(tc.raw)
			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tc.field, malformed.Field)
		})
	}
}
