package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

// Store is a durable key/value backend. Get methods return screening.ErrNotFound
// for missing or expired records.
type Store interface {
	PutSearch(ctx context.Context, rec *models.SearchRecord) error
	PutRisk(ctx context.Context, rec *models.RiskRecord) error
	GetSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error)
	GetRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error)
	// ListRisk returns unexpired risk records matching filter, newest first.
	ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	SearchTTL time.Duration
	RiskTTL   time.Duration
}

// Persister maps screening results onto the store, attaching expiry and
// converting scores to fixed-point.
type Persister struct {
	store     Store
	searchTTL time.Duration
	riskTTL   time.Duration
	now       func() time.Time
}

func NewPersister(store Store, cfg Config) *Persister {
	if cfg.SearchTTL == 0 {
		cfg.SearchTTL = 30 * 24 * time.Hour
	}
	if cfg.RiskTTL == 0 {
		cfg.RiskTTL = 90 * 24 * time.Hour
	}
	return &Persister{
		store:     store,
		searchTTL: cfg.SearchTTL,
		riskTTL:   cfg.RiskTTL,
		now:       time.Now,
	}
}

func (p *Persister) StoreSearch(ctx context.Context, resp *screening.Response) (models.Ref, error) {
	if resp.StorageKey == "" {
		return models.Ref{}, errors.New("storage key is empty")
	}

	rec := models.NewSearchRecord(resp, p.now(), p.searchTTL)
	if err := p.store.PutSearch(ctx, rec); err != nil {
		return models.Ref{}, fmt.Errorf("%w: %v", screening.ErrStorageUnavailable, err)
	}

	logger.Debug("Search results stored",
		zap.String("storage_key", rec.StorageKey),
		zap.Int("total_count", rec.TotalCount),
	)

	return models.Ref{StorageKey: rec.StorageKey, RecordType: models.RecordSearch, ExpiresAt: rec.ExpiresAt}, nil
}

func (p *Persister) StoreRisk(ctx context.Context, storageKey, entityName string, a *screening.RiskAssessment) (models.Ref, error) {
	if storageKey == "" {
		return models.Ref{}, errors.New("storage key is empty")
	}

	rec := models.NewRiskRecord(storageKey, entityName, a, p.now(), p.riskTTL)
	if err := p.store.PutRisk(ctx, rec); err != nil {
		return models.Ref{}, fmt.Errorf("%w: %v", screening.ErrStorageUnavailable, err)
	}

	logger.Debug("Risk assessment stored",
		zap.String("storage_key", storageKey),
		zap.String("risk_level", rec.RiskLevel),
		zap.String("score", rec.OverallRiskScore.String()),
	)

	return models.Ref{StorageKey: storageKey, RecordType: models.RecordRisk, ExpiresAt: rec.ExpiresAt}, nil
}

func (p *Persister) FetchSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error) {
	rec, err := p.store.GetSearch(ctx, storageKey)
	return rec, wrapFetch(err)
}

func (p *Persister) FetchRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error) {
	rec, err := p.store.GetRisk(ctx, storageKey)
	return rec, wrapFetch(err)
}

// ListRisk lists stored assessments. The filter limit is clamped to
// [1, models.MaxListLimit].
func (p *Persister) ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error) {
	recs, err := p.store.ListRisk(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", screening.ErrStorageUnavailable, err)
	}
	return recs, nil
}

func (p *Persister) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", screening.ErrStorageUnavailable, err)
	}
	return nil
}

func wrapFetch(err error) error {
	if err == nil || errors.Is(err, screening.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", screening.ErrStorageUnavailable, err)
}
