package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/secrets"
	"github.com/entity-screening/backend/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Screening: config.ScreeningConfig{DefaultMaxQueries: 5, DefaultNumResults: 3, MaxEntityLength: 200},
		Search: config.SearchConfig{
			Provider:     "serper",
			BaseURL:      "http://127.0.0.1:1",
			APIKeySecret: "serper-api-key",
			Concurrency:  2,
			TimeoutSec:   1,
		},
		LLM: config.LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			APIKeySecret: "llm-api-key",
			MaxTokens:    500,
		},
		Storage: config.StorageConfig{Backend: "sqlite", SearchTTLDays: 30, RiskTTLDays: 90},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "screening.db")},
		Messaging: config.MessagingConfig{
			Backend:           "memory",
			ScoringTopic:      "scoring",
			NotificationTopic: "notifications",
			GeneralTopic:      "general",
			AlertTopic:        "alert",
			ReviewTopic:       "review",
			MaxAttempts:       2,
			BufferSize:        16,
		},
		Notify:  config.NotifyConfig{PublishToBus: true},
		Secrets: config.SecretsConfig{Provider: "env", EnvPrefix: "SCREENING_SECRET"},
		AWS:     config.AWSConfig{Region: "us-east-1"},
	}
}

func TestNewWiresComponents(t *testing.T) {
	t.Setenv("SCREENING_SECRET_SERPER_API_KEY", "serper")
	t.Setenv("SCREENING_SECRET_LLM_API_KEY", "llm")

	a, err := New(context.Background(), testConfig(t), Components{Screening: true, Workers: true})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Scoring)
	assert.NotNil(t, a.Dispatcher)
	assert.Equal(t, 1, a.Dispatcher.Sinks("general"))
	assert.Equal(t, 1, a.Dispatcher.Sinks("review"))

	for name, check := range a.HealthChecks() {
		assert.NoError(t, check(context.Background()), name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.StartWorkers(ctx))
}

func TestNewFailsFastOnMissingSecret(t *testing.T) {
	t.Setenv("SCREENING_SECRET_SERPER_API_KEY", "serper")

	_, err := New(context.Background(), testConfig(t), Components{Screening: true, Workers: true})
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
}

func TestScreeningOnlySkipsWorkers(t *testing.T) {
	t.Setenv("SCREENING_SECRET_SERPER_API_KEY", "serper")

	a, err := New(context.Background(), testConfig(t), Components{Screening: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Scoring)
	assert.Error(t, a.StartWorkers(context.Background()))
}

func TestKeywordsFile(t *testing.T) {
	t.Setenv("SCREENING_SECRET_SERPER_API_KEY", "serper")

	path := filepath.Join(t.TempDir(), "keywords.json")
	raw, err := json.Marshal(map[string][]string{"financial_crimes": {"sanctions evasion"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg := testConfig(t)
	cfg.Screening.KeywordsFile = path

	a, err := New(context.Background(), cfg, Components{Screening: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"sanctions evasion"}, a.Holder.Snapshot().Keywords(keywords.FinancialCrimes))
	assert.Empty(t, a.Holder.Snapshot().Keywords(keywords.CorruptionBribery))
}
