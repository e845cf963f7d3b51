package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/messaging/memory"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/search"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/utils"
)

type fakeProvider struct {
	fail  map[string]error
	delay map[string]time.Duration
	mu    sync.Mutex
	calls []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Search(ctx context.Context, query string, numResults int) ([]screening.ResultItem, error) {
	p.mu.Lock()
	p.calls = append(p.calls, query)
	p.mu.Unlock()

	if d := p.delay[query]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := p.fail[query]; err != nil {
		return nil, err
	}

	items := make([]screening.ResultItem, numResults)
	for i := range items {
		items[i] = screening.ResultItem{
			Title:    fmt.Sprintf("%s #%d", query, i+1),
			URL:      fmt.Sprintf("https://news.example.com/%d", i),
			Snippet:  "snippet",
			Position: i + 1,
		}
	}
	return items, nil
}

type fakeStore struct {
	mu     sync.Mutex
	err    error
	stored []*screening.Response
}

func (s *fakeStore) StoreSearch(_ context.Context, resp *screening.Response) (models.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Ref{}, s.err
	}
	s.stored = append(s.stored, resp)
	return models.Ref{StorageKey: resp.StorageKey, RecordType: models.RecordSearch}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	err  error
	msgs []*messaging.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func acmeRequest() screening.Request {
	return screening.Request{
		EntityName:         "Acme Corp",
		Category:           keywords.FinancialCrimes,
		MaxQueries:         3,
		NumResultsPerQuery: 2,
		EnableScoring:      true,
	}
}

func newOrchestrator(p search.Provider, store SearchStore, pub messaging.Publisher) *Orchestrator {
	return New(keywords.NewHolder(nil), p, store, pub, Config{Concurrency: 3, ScoringTopic: "scoring"})
}

func TestRunAcmeCorp(t *testing.T) {
	store := &fakeStore{}
	pub := &recordingPublisher{}
	o := newOrchestrator(&fakeProvider{}, store, pub)

	resp, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)

	queries := []string{"Acme Corp", "Acme Corp fraud", "Acme Corp scam"}
	assert.Equal(t, queries, resp.Queries())
	assert.Equal(t, 6, resp.TotalCount)
	assert.Zero(t, resp.FailedQueries)
	assert.Equal(t, utils.HashQuerySet(queries), resp.StorageKey)
	assert.True(t, resp.Stored)
	assert.True(t, resp.ScoringTriggered)
	assert.Equal(t, "Acme Corp", resp.EntityName)

	require.Len(t, store.stored, 1)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "scoring", pub.msgs[0].Topic)

	var req screening.ScoringRequest
	require.NoError(t, pub.msgs[0].Decode(&req))
	assert.Equal(t, resp.StorageKey, req.StorageKey)
	assert.NotEmpty(t, req.RequestID)
	assert.Len(t, req.Response.Groups, 3)
}

func TestRunPartialFailure(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"Acme Corp fraud": &search.StatusError{Status: 502}}}
	o := newOrchestrator(p, &fakeStore{}, &recordingPublisher{})

	resp, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)

	require.Len(t, resp.Groups, 3)
	assert.Equal(t, screening.GroupOK, resp.Groups[0].Status)
	assert.Equal(t, screening.GroupFailed, resp.Groups[1].Status)
	assert.Equal(t, "provider_error", resp.Groups[1].Error)
	assert.Empty(t, resp.Groups[1].Results)
	assert.Equal(t, screening.GroupOK, resp.Groups[2].Status)
	assert.Equal(t, 4, resp.TotalCount)
	assert.Equal(t, 1, resp.FailedQueries)
}

func TestRunAllQueriesFailed(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{
		"Acme Corp":       search.ErrRateLimited,
		"Acme Corp fraud": search.ErrTimeout,
		"Acme Corp scam":  search.ErrProviderError,
	}}
	store := &fakeStore{}
	pub := &recordingPublisher{}
	o := newOrchestrator(p, store, pub)

	_, err := o.Run(context.Background(), acmeRequest())
	assert.ErrorIs(t, err, screening.ErrUpstreamUnavailable)
	assert.Empty(t, store.stored)
	assert.Empty(t, pub.msgs)
}

func TestRunPreservesGenerationOrder(t *testing.T) {
	p := &fakeProvider{delay: map[string]time.Duration{
		"Acme Corp":       60 * time.Millisecond,
		"Acme Corp fraud": 30 * time.Millisecond,
	}}
	o := newOrchestrator(p, nil, nil)

	resp, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Acme Corp fraud", "Acme Corp scam"}, resp.Queries())
	assert.Equal(t, "Acme Corp fraud #1", resp.Groups[1].Results[0].Title)
}

func TestRunCancelledPersistsNothing(t *testing.T) {
	p := &fakeProvider{delay: map[string]time.Duration{"Acme Corp scam": time.Second}}
	store := &fakeStore{}
	pub := &recordingPublisher{}
	o := newOrchestrator(p, store, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := o.Run(ctx, acmeRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.stored)
	assert.Empty(t, pub.msgs)
}

func TestRunStorageFailureIsNotFatal(t *testing.T) {
	o := newOrchestrator(&fakeProvider{}, &fakeStore{err: errors.New("disk full")}, &recordingPublisher{})

	resp, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)
	assert.False(t, resp.Stored)
	assert.True(t, resp.ScoringTriggered)
}

func TestRunScoringDisabledOrRejected(t *testing.T) {
	pub := &recordingPublisher{}
	o := newOrchestrator(&fakeProvider{}, &fakeStore{}, pub)

	req := acmeRequest()
	req.EnableScoring = false
	resp, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.ScoringTriggered)
	assert.Empty(t, pub.msgs)

	pub.err = messaging.ErrBufferFull
	resp, err = o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)
	assert.False(t, resp.ScoringTriggered)
}

func TestRunSameQuerySetSameKey(t *testing.T) {
	o := newOrchestrator(&fakeProvider{}, &fakeStore{}, nil)

	first, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)
	second, err := o.Run(context.Background(), acmeRequest())
	require.NoError(t, err)

	assert.Equal(t, first.StorageKey, second.StorageKey)
}

func TestStorageKeyIgnoresCategorySpelling(t *testing.T) {
	o := newOrchestrator(&fakeProvider{}, &fakeStore{}, nil)
	run := func(cat keywords.Category, max int) *screening.Response {
		req := acmeRequest()
		req.Category = cat
		req.MaxQueries = max
		req.EnableScoring = false
		resp, err := o.Run(context.Background(), req)
		require.NoError(t, err)
		return resp
	}

	financial := run(keywords.FinancialCrimes, 1)
	all := run(keywords.All, 1)
	assert.Equal(t, []string{"Acme Corp"}, all.Queries())
	assert.Equal(t, financial.StorageKey, all.StorageKey)

	corruption := run(keywords.CorruptionBribery, 2)
	financialTwo := run(keywords.FinancialCrimes, 2)
	assert.NotEqual(t, financialTwo.StorageKey, corruption.StorageKey)
}

func TestRunDoesNotWaitForScorer(t *testing.T) {
	bus := memory.New(memory.Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		_ = bus.Close()
	}()

	handled := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe("scoring", func(ctx context.Context, _ *messaging.Message) error {
		select {
		case handled <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, bus.Start(ctx))

	o := newOrchestrator(&fakeProvider{}, &fakeStore{}, bus)

	done := make(chan *screening.Response, 1)
	go func() {
		resp, err := o.Run(context.Background(), acmeRequest())
		assert.NoError(t, err)
		done <- resp
	}()

	select {
	case resp := <-done:
		require.NotNil(t, resp)
		assert.True(t, resp.ScoringTriggered)
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on the scoring consumer")
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("scoring request was never delivered")
	}
}

func TestStreamEmitsGroupsInOrder(t *testing.T) {
	p := &fakeProvider{delay: map[string]time.Duration{"Acme Corp": 40 * time.Millisecond}}
	o := newOrchestrator(p, &fakeStore{}, nil)

	var got []string
	var idx []int
	resp, err := o.Stream(context.Background(), acmeRequest(), func(i int, g screening.QueryGroup) error {
		idx = append(idx, i)
		got = append(got, g.Query)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, idx)
	assert.Equal(t, resp.Queries(), got)
}

func TestStreamConsumerErrorAborts(t *testing.T) {
	store := &fakeStore{}
	o := newOrchestrator(&fakeProvider{}, store, nil)

	_, err := o.Stream(context.Background(), acmeRequest(), func(int, screening.QueryGroup) error {
		return errors.New("client went away")
	})
	assert.Error(t, err)
	assert.Empty(t, store.stored)
}

func TestQueries(t *testing.T) {
	o := newOrchestrator(&fakeProvider{}, nil, nil)

	q, err := o.Queries(acmeRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Acme Corp fraud", "Acme Corp scam"}, q)

	req := acmeRequest()
	req.EntityName = " "
	_, err = o.Run(context.Background(), req)
	var verr *screening.ValidationError
	assert.ErrorAs(t, err, &verr)
}
