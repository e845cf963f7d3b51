package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/internal/screening"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQueriesCommand(t *testing.T) {
	out, err := run(t, "", "queries", "Acme Corp", "-c", "financial_crimes", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp\nAcme Corp fraud\nAcme Corp scam\n", out)

	_, err = run(t, "", "queries", "Acme Corp", "-c", "sanctions")
	assert.Error(t, err)
}

func TestKeywordsExportImport(t *testing.T) {
	out, err := run(t, "", "keywords", "export")
	require.NoError(t, err)

	var exported map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Len(t, exported["financial_crimes"], 10)

	path := filepath.Join(t.TempDir(), "taxonomy.json")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	_, err = run(t, "", "keywords", "add", "corruption_bribery", "kickback scheme", "-k", path)
	require.NoError(t, err)

	out, err = run(t, "", "keywords", "import", path)
	require.NoError(t, err)
	var stats struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 19, stats.Total)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "", "classify", "0.1", "0.5", "0.7", "0.9")
	require.NoError(t, err)
	assert.Equal(t, "0.1\tLOW\n0.5\tMEDIUM\n0.7\tHIGH\n0.9\tCRITICAL\n", out)

	_, err = run(t, "", "classify", "high")
	assert.Error(t, err)
}

func TestAssessCommand(t *testing.T) {
	raw := `{"overall_risk_score": 0.4, "financial_crimes_risk": 0.4, "corruption_risk": 0.2,
		"regulatory_risk": 0.3, "reputational_risk": 0.5, "confidence_level": 0.7}`

	out, err := run(t, raw, "assess", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"risk_level": "MEDIUM"`)

	_, err = run(t, "not json", "assess", "-")
	assert.Error(t, err)
}

func TestScreenRequestUsesValidationRules(t *testing.T) {
	rules := validation.DefaultRules()

	req, err := screenRequest(rules, "  Acme Corp ", "financial_crimes", 3, 2, true)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", req.EntityName)
	assert.Equal(t, keywords.FinancialCrimes, req.Category)
	assert.Equal(t, 3, req.MaxQueries)
	assert.True(t, req.EnableScoring)

	cases := map[string]struct {
		entity, category string
		max              int
		field            string
	}{
		"markup":        {"<script>alert(1)</script>", "all", 3, "entity_name"},
		"control chars": {"Acme\x07Corp", "all", 3, "entity_name"},
		"too long":      {strings.Repeat("a", 201), "all", 3, "entity_name"},
		"category":      {"Acme", "sanctions", 3, "category"},
		"max":           {"Acme", "all", 11, "max_queries"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := screenRequest(rules, tc.entity, tc.category, tc.max, 3, false)
			var verr *screening.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
