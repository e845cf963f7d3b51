package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/scoring"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
)

type fakeStore struct {
	search map[string]*models.SearchRecord
	risk   map[string]*models.RiskRecord
	err    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{search: map[string]*models.SearchRecord{}, risk: map[string]*models.RiskRecord{}}
}

func (f *fakeStore) PutSearch(_ context.Context, rec *models.SearchRecord) error {
	if f.err != nil {
		return f.err
	}
	f.search[rec.StorageKey] = rec
	return nil
}

func (f *fakeStore) PutRisk(_ context.Context, rec *models.RiskRecord) error {
	if f.err != nil {
		return f.err
	}
	f.risk[rec.StorageKey] = rec
	return nil
}

func (f *fakeStore) GetSearch(_ context.Context, key string) (*models.SearchRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.search[key]
	if !ok {
		return nil, screening.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) GetRisk(_ context.Context, key string) (*models.RiskRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.risk[key]
	if !ok {
		return nil, screening.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListRisk(_ context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.RiskRecord
	for _, rec := range f.risk {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	models.SortNewestFirst(out)
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.err }
func (f *fakeStore) Close() error               { return nil }

func sampleResponse() *screening.Response {
	return &screening.Response{
		Request: screening.Request{
			EntityName:         "Acme Corp",
			Category:           keywords.FinancialCrimes,
			MaxQueries:         2,
			NumResultsPerQuery: 3,
		},
		Groups: []screening.QueryGroup{
			{Query: "Acme Corp", Status: screening.GroupOK, Results: []screening.ResultItem{{Title: "t", URL: "https://a", Position: 1}}},
			{Query: "Acme Corp fraud", Status: screening.GroupFailed, Error: "rate limited"},
		},
		TotalCount:    1,
		FailedQueries: 1,
		StorageKey:    "key-1",
	}
}

func TestStoreSearchAttachesExpiry(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store, Config{})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ref, err := p.StoreSearch(context.Background(), sampleResponse())
	require.NoError(t, err)

	assert.Equal(t, models.RecordSearch, ref.RecordType)
	assert.Equal(t, now.Add(30*24*time.Hour), ref.ExpiresAt)

	rec := store.search["key-1"]
	require.NotNil(t, rec)
	assert.Equal(t, []string{"Acme Corp", "Acme Corp fraud"}, rec.Queries)
	assert.Equal(t, 1, rec.FailedQueries)
}

func TestStoreRiskConvertsScoresToFixedPoint(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store, Config{RiskTTL: time.Hour})

	a := &screening.RiskAssessment{
		OverallRiskScore:    0.123456789,
		RiskLevel:           screening.RiskLow,
		FinancialCrimesRisk: 0.1,
		ConfidenceLevel:     0.9,
		KeyFindings:         []string{"none"},
	}
	_, err := p.StoreRisk(context.Background(), "key-1", "Acme Corp", a)
	require.NoError(t, err)

	rec := store.risk["key-1"]
	require.NotNil(t, rec)
	assert.Equal(t, "0.1235", rec.OverallRiskScore.String())
	assert.Equal(t, "0.1000", rec.FinancialCrimesRisk.StringFixed(models.ScorePlaces))
	assert.Equal(t, 0.1235, rec.Assessment().OverallRiskScore)
}

func TestPersisterWrapsBackendErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("throttled")
	p := NewPersister(store, Config{})

	_, err := p.StoreSearch(context.Background(), sampleResponse())
	assert.ErrorIs(t, err, screening.ErrStorageUnavailable)

	_, err = p.StoreRisk(context.Background(), "k", "Acme", &screening.RiskAssessment{})
	assert.ErrorIs(t, err, screening.ErrStorageUnavailable)

	_, err = p.FetchSearch(context.Background(), "k")
	assert.ErrorIs(t, err, screening.ErrStorageUnavailable)
}

func TestFetchPassesThroughNotFound(t *testing.T) {
	p := NewPersister(newFakeStore(), Config{})

	_, err := p.FetchRisk(context.Background(), "missing")
	assert.ErrorIs(t, err, screening.ErrNotFound)
	assert.NotErrorIs(t, err, screening.ErrStorageUnavailable)
}

func TestStoreSearchRequiresKey(t *testing.T) {
	p := NewPersister(newFakeStore(), Config{})
	resp := sampleResponse()
	resp.StorageKey = ""

	_, err := p.StoreSearch(context.Background(), resp)
	assert.Error(t, err)
}

func TestStoredLevelAgreesWithStoredScore(t *testing.T) {
	for _, score := range []float64{0.34996, 0.64999, 0.84995} {
		raw := fmt.Sprintf(`{"overall_risk_score": %v, "financial_crimes_risk": 0.5,
			"corruption_risk": 0.5, "regulatory_risk": 0.5, "reputational_risk": 0.5,
			"confidence_level": 0.9}`, score)
		a, err := scoring.ParseAssessment(raw)
		require.NoError(t, err)

		store := newFakeStore()
		p := NewPersister(store, Config{})
		_, err = p.StoreRisk(context.Background(), "key-1", "Acme Corp", a)
		require.NoError(t, err)

		rec := store.risk["key-1"]
		require.NotNil(t, rec)
		stored := rec.OverallRiskScore.InexactFloat64()
		assert.Equal(t, string(scoring.ClassifyLevel(stored)), rec.RiskLevel, "score %v stored as %s", score, rec.OverallRiskScore)
	}
}

func TestListRiskFiltersAndOrders(t *testing.T) {
	store := newFakeStore()
	p := NewPersister(store, Config{})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []struct {
		key, entity string
		level       screening.RiskLevel
	}{
		{"k1", "Acme Corp", screening.RiskHigh},
		{"k2", "Globex", screening.RiskLow},
		{"k3", "ACME Holdings", screening.RiskHigh},
		{"k4", "Acme Corp", screening.RiskLow},
	}
	for i, e := range entries {
		now := base.Add(time.Duration(i) * time.Hour)
		p.now = func() time.Time { return now }
		_, err := p.StoreRisk(context.Background(), e.key, e.entity, &screening.RiskAssessment{RiskLevel: e.level})
		require.NoError(t, err)
	}

	recs, err := p.ListRisk(context.Background(), models.RiskFilter{RiskLevel: "high", Entity: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k3", recs[0].StorageKey)
	assert.Equal(t, "k1", recs[1].StorageKey)

	recs, err = p.ListRisk(context.Background(), models.RiskFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "k4", recs[0].StorageKey)

	store.err = errors.New("throttled")
	_, err = p.ListRisk(context.Background(), models.RiskFilter{})
	assert.ErrorIs(t, err, screening.ErrStorageUnavailable)
}
