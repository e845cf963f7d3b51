package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/llm"
	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

// ErrNothingToScore is returned for screenings without a single search result.
var ErrNothingToScore = errors.New("screening has no results to score")

const (
	AttrRiskLevel = "risk_level"
	AttrPriority  = "priority"
)

type RiskStore interface {
	StoreRisk(ctx context.Context, storageKey, entityName string, a *screening.RiskAssessment) (models.Ref, error)
}

type Config struct {
	Temperature       float32
	MaxTokens         int
	JSONMode          bool
	NotificationTopic string
}

// Service turns scoring requests into stored risk assessments.
type Service struct {
	completer llm.Completer
	builder   *PromptBuilder
	store     RiskStore
	publisher messaging.Publisher
	cfg       Config
	now       func() time.Time
}

// NewService builds a scoring service. publisher may be nil, in which case no
// risk notifications are emitted.
func NewService(completer llm.Completer, builder *PromptBuilder, store RiskStore, publisher messaging.Publisher, cfg Config) *Service {
	if builder == nil {
		builder = NewPromptBuilder(DefaultMaxPromptResults, nil)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	return &Service{
		completer: completer,
		builder:   builder,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *Service) Score(ctx context.Context, req *screening.ScoringRequest) (*screening.RiskAssessment, error) {
	payload := s.builder.Build(&req.Response)
	if payload.ResultCount == 0 {
		return nil, ErrNothingToScore
	}

	storageKey := req.StorageKey
	if storageKey == "" {
		storageKey = payload.StorageKey
	}

	logger.Debug("Scoring screening",
		zap.String("request_id", req.RequestID),
		logger.Entity(req.EntityName),
		zap.Int("results", payload.ResultCount),
		zap.Bool("truncated", payload.Truncated),
	)

	completion, err := s.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: payload.SystemPrompt,
		UserPrompt:   payload.UserPrompt,
		Temperature:  llm.Float32(s.cfg.Temperature),
		MaxTokens:    s.cfg.MaxTokens,
		JSONMode:     s.cfg.JSONMode,
	})
	if err != nil {
		metrics.ScoringFailures.WithLabelValues("llm").Inc()
		return nil, fmt.Errorf("failed to score %s: %w", storageKey, err)
	}
	metrics.LLMTokensUsed.WithLabelValues(completion.Model, "prompt").Add(float64(completion.Usage.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(completion.Model, "completion").Add(float64(completion.Usage.CompletionTokens))

	assessment, err := ParseAssessment(completion.Content)
	if err != nil {
		metrics.ScoringFailures.WithLabelValues("malformed").Inc()
		return nil, err
	}

	if _, err := s.store.StoreRisk(ctx, storageKey, req.EntityName, assessment); err != nil {
		metrics.ScoringFailures.WithLabelValues("storage").Inc()
		metrics.StorageWrites.WithLabelValues(string(models.RecordRisk), "error").Inc()
		return nil, err
	}
	metrics.StorageWrites.WithLabelValues(string(models.RecordRisk), "ok").Inc()
	metrics.AssessmentsTotal.WithLabelValues(string(assessment.RiskLevel)).Inc()
	metrics.RiskScore.Observe(assessment.OverallRiskScore)

	logger.Info("Risk assessment stored",
		zap.String("request_id", req.RequestID),
		zap.String("storage_key", storageKey),
		zap.String("risk_level", string(assessment.RiskLevel)),
		zap.Float64("score", assessment.OverallRiskScore),
		zap.Bool("requires_review", assessment.RequiresReview),
	)

	s.notify(ctx, req, storageKey, assessment)
	return assessment, nil
}

// The assessment is already stored, so a failed hand-off is logged rather than
// returned; retrying the message would re-run the model.
func (s *Service) notify(ctx context.Context, req *screening.ScoringRequest, storageKey string, a *screening.RiskAssessment) {
	if s.publisher == nil || s.cfg.NotificationTopic == "" {
		return
	}

	msg, err := messaging.NewJSONMessage(s.cfg.NotificationTopic, storageKey, screening.RiskNotification{
		RequestID:  req.RequestID,
		EntityName: req.EntityName,
		StorageKey: storageKey,
		Assessment: *a,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to encode risk notification", zap.Error(err))
		return
	}
	msg.Attributes[AttrRiskLevel] = string(a.RiskLevel)
	msg.Attributes[AttrPriority] = a.RiskLevel.Priority()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		logger.Warn("Failed to publish risk notification",
			zap.String("storage_key", storageKey),
			zap.Error(err),
		)
	}
}

// HandleMessage is the messaging handler for scoring requests. Malformed model
// output is discarded; model and storage failures are returned so the fabric
// retries and eventually dead-letters the message.
func (s *Service) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var req screening.ScoringRequest
	if err := msg.Decode(&req); err != nil {
		metrics.ScoringFailures.WithLabelValues("decode").Inc()
		return err
	}

	_, err := s.Score(ctx, &req)

	var malformed *MalformedResponseError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNothingToScore):
		logger.Debug("Skipping scoring request without results", zap.String("request_id", req.RequestID))
		return nil
	case errors.As(err, &malformed):
		logger.Warn("Discarding malformed model response",
			zap.String("request_id", req.RequestID),
			zap.String("field", malformed.Field),
			zap.String("reason", malformed.Reason),
		)
		return nil
	default:
		logger.Error("Scoring failed",
			zap.String("request_id", req.RequestID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return err
	}
}
