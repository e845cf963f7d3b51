package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/search"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
	"github.com/entity-screening/backend/pkg/utils"
)

type SearchStore interface {
	StoreSearch(ctx context.Context, resp *screening.Response) (models.Ref, error)
}

type Config struct {
	// Concurrency bounds the number of in-flight provider calls per screening.
	Concurrency    int
	ScoringTopic   string
	PublishTimeout time.Duration
}

// GroupFunc receives query groups in generation order. Returning an error
// aborts the screening.
type GroupFunc func(index int, group screening.QueryGroup) error

type Orchestrator struct {
	taxonomy  *keywords.Holder
	provider  search.Provider
	store     SearchStore
	publisher messaging.Publisher
	cfg       Config
	now       func() time.Time
}

// New builds an orchestrator. store and publisher may be nil to disable
// persistence and scoring dispatch.
func New(taxonomy *keywords.Holder, provider search.Provider, store SearchStore, publisher messaging.Publisher, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &Orchestrator{
		taxonomy:  taxonomy,
		provider:  provider,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run screens one entity: generate queries, search them concurrently, persist
// the results and hand the screening to the scoring pipeline.
func (o *Orchestrator) Run(ctx context.Context, req screening.Request) (*screening.Response, error) {
	return o.run(ctx, req, nil)
}

// Stream is Run with each query group passed to onGroup as soon as it and every
// earlier group have completed.
func (o *Orchestrator) Stream(ctx context.Context, req screening.Request, onGroup GroupFunc) (*screening.Response, error) {
	return o.run(ctx, req, onGroup)
}

// Queries returns the queries a request would run without searching them.
func (o *Orchestrator) Queries(req screening.Request) ([]string, error) {
	return keywords.Generate(o.taxonomy.Snapshot(), req.EntityName, req.Category, req.MaxQueries)
}

func (o *Orchestrator) run(ctx context.Context, req screening.Request, onGroup GroupFunc) (*screening.Response, error) {
	start := o.now()
	category := string(req.Category)

	queries, err := o.Queries(req)
	if err != nil {
		return nil, screening.NewValidationError("request", err.Error())
	}

	logger.Info("Screening entity",
		logger.Entity(req.EntityName),
		zap.String("category", category),
		zap.Int("queries", len(queries)),
	)

	groups, err := o.fanOut(ctx, req, queries, onGroup)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		metrics.ScreeningTotal.WithLabelValues("cancelled").Inc()
		logger.Warn("Screening aborted", logger.Entity(req.EntityName), zap.Error(err))
		return nil, err
	}

	resp := &screening.Response{
		Request:    req,
		Groups:     groups,
		StorageKey: utils.HashQuerySet(queries),
		Timestamp:  start.UTC(),
	}
	for _, g := range groups {
		if g.Status == screening.GroupFailed {
			resp.FailedQueries++
			continue
		}
		resp.TotalCount += len(g.Results)
	}

	if resp.FailedQueries == len(groups) {
		metrics.ScreeningTotal.WithLabelValues("upstream_unavailable").Inc()
		logger.Error("All search queries failed",
			logger.Entity(req.EntityName),
			zap.Int("queries", len(groups)),
		)
		return nil, screening.ErrUpstreamUnavailable
	}

	o.persist(ctx, resp)

	if req.EnableScoring {
		resp.ScoringTriggered = o.dispatchScoring(ctx, resp)
	}

	metrics.ScreeningTotal.WithLabelValues("success").Inc()
	metrics.ScreeningDuration.WithLabelValues(category).Observe(o.now().Sub(start).Seconds())
	metrics.ResultsPerScreening.Observe(float64(resp.TotalCount))

	logger.Info("Screening completed",
		logger.Entity(req.EntityName),
		zap.String("storage_key", resp.StorageKey),
		zap.Int("total_count", resp.TotalCount),
		zap.Int("failed_queries", resp.FailedQueries),
		zap.Bool("stored", resp.Stored),
		zap.Bool("scoring_triggered", resp.ScoringTriggered),
	)

	return resp, nil
}

// fanOut searches every query with bounded concurrency. Each query owns one
// slot, so the output order is the generation order regardless of completion
// order.
func (o *Orchestrator) fanOut(ctx context.Context, req screening.Request, queries []string, onGroup GroupFunc) ([]screening.QueryGroup, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make([]screening.QueryGroup, len(queries))
	ready := make([]chan struct{}, len(queries))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	go func() {
		for i, q := range queries {
			i, q := i, q
			g.Go(func() error {
				defer close(ready[i])
				slots[i] = o.searchOne(ctx, q, req.NumResultsPerQuery)
				return nil
			})
		}
	}()

	var emitErr error
	for i := range queries {
		select {
		case <-ready[i]:
		case <-ctx.Done():
			emitErr = ctx.Err()
		}
		if emitErr != nil {
			break
		}
		if onGroup != nil {
			if err := onGroup(i, slots[i]); err != nil {
				emitErr = fmt.Errorf("group consumer failed: %w", err)
				break
			}
		}
	}

	if emitErr != nil {
		cancel()
	}
	// Every slot closes its channel, so waiting on the last one waits for the
	// submitting goroutine as well as all searches.
	for i := range ready {
		<-ready[i]
	}
	_ = g.Wait()

	return slots, emitErr
}

func (o *Orchestrator) searchOne(ctx context.Context, query string, numResults int) screening.QueryGroup {
	items, err := o.provider.Search(ctx, query, numResults)
	if err != nil {
		reason := failureReason(err)
		metrics.SearchQueries.WithLabelValues(o.provider.Name(), reason).Inc()
		logger.Warn("Search query failed",
			zap.String("provider", o.provider.Name()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return screening.QueryGroup{
			Query:   query,
			Status:  screening.GroupFailed,
			Results: []screening.ResultItem{},
			Error:   reason,
		}
	}

	metrics.SearchQueries.WithLabelValues(o.provider.Name(), "ok").Inc()
	if items == nil {
		items = []screening.ResultItem{}
	}
	return screening.QueryGroup{Query: query, Status: screening.GroupOK, Results: items}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, search.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, search.ErrTimeout):
		return "timeout"
	default:
		return "provider_error"
	}
}

func (o *Orchestrator) persist(ctx context.Context, resp *screening.Response) {
	if o.store == nil {
		return
	}
	if _, err := o.store.StoreSearch(ctx, resp); err != nil {
		metrics.StorageWrites.WithLabelValues(string(models.RecordSearch), "error").Inc()
		logger.Warn("Failed to store search results",
			zap.String("storage_key", resp.StorageKey),
			zap.Error(err),
		)
		return
	}
	metrics.StorageWrites.WithLabelValues(string(models.RecordSearch), "ok").Inc()
	resp.Stored = true
}

// dispatchScoring hands the screening to the messaging fabric. It reports
// whether the hand-off succeeded; it never waits for the score.
func (o *Orchestrator) dispatchScoring(ctx context.Context, resp *screening.Response) bool {
	if o.publisher == nil || o.cfg.ScoringTopic == "" {
		return false
	}
	if resp.TotalCount == 0 {
		metrics.ScoringDispatched.WithLabelValues("skipped").Inc()
		return false
	}

	msg, err := messaging.NewJSONMessage(o.cfg.ScoringTopic, resp.StorageKey, screening.ScoringRequest{
		RequestID:  uuid.NewString(),
		EntityName: resp.EntityName,
		StorageKey: resp.StorageKey,
		Response:   *resp,
		CreatedAt:  o.now().UTC(),
	})
	if err != nil {
		metrics.ScoringDispatched.WithLabelValues("error").Inc()
		logger.Error("Failed to encode scoring request", zap.Error(err))
		return false
	}

	pubCtx, cancel := context.WithTimeout(ctx, o.cfg.PublishTimeout)
	defer cancel()

	if err := o.publisher.Publish(pubCtx, msg); err != nil {
		metrics.ScoringDispatched.WithLabelValues("error").Inc()
		logger.Warn("Failed to dispatch scoring request",
			zap.String("storage_key", resp.StorageKey),
			zap.Error(err),
		)
		return false
	}

	metrics.ScoringDispatched.WithLabelValues("ok").Inc()
	return true
}
