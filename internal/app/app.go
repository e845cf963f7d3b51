package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/api/handlers"
	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/llm"
	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/messaging/kafka"
	"github.com/entity-screening/backend/internal/messaging/memory"
	"github.com/entity-screening/backend/internal/notify"
	"github.com/entity-screening/backend/internal/orchestrator"
	"github.com/entity-screening/backend/internal/scoring"
	"github.com/entity-screening/backend/internal/search/serper"
	"github.com/entity-screening/backend/internal/secrets"
	"github.com/entity-screening/backend/internal/storage"
	"github.com/entity-screening/backend/internal/storage/dynamodb"
	"github.com/entity-screening/backend/internal/storage/redis"
	"github.com/entity-screening/backend/internal/storage/sqlite"
	"github.com/entity-screening/backend/pkg/config"
	"github.com/entity-screening/backend/pkg/logger"
)

// Components selects which parts of the service a process runs.
type Components struct {
	// Screening wires the search provider and orchestrator.
	Screening bool
	// Workers wires the scoring service and notification dispatcher.
	Workers bool
}

type App struct {
	Config       *config.Config
	Holder       *keywords.Holder
	Secrets      secrets.Store
	Store        storage.Store
	Persister    *storage.Persister
	Publisher    messaging.Publisher
	Subscriber   messaging.Subscriber
	Orchestrator *orchestrator.Orchestrator
	Scoring      *scoring.Service
	Dispatcher   *notify.Dispatcher

	awsCfg  *aws.Config
	closers []func() error
}

// New builds the service graph. Secrets are resolved up front so a missing
// credential stops the process before it accepts work.
func New(ctx context.Context, cfg *config.Config, comp Components) (*App, error) {
	a := &App{Config: cfg}

	if err := a.initTaxonomy(); err != nil {
		return nil, err
	}
	if err := a.initSecrets(ctx); err != nil {
		return nil, err
	}

	names := []string{}
	if comp.Screening {
		names = append(names, cfg.Search.APIKeySecret)
	}
	if comp.Workers {
		names = append(names, cfg.LLM.APIKeySecret, cfg.Notify.SlackWebhookSecret)
	}
	resolved, err := secrets.Resolve(ctx, a.Secrets, names...)
	if err != nil {
		return nil, err
	}

	steps := []func(context.Context) error{a.initStorage, a.initMessaging}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if comp.Screening {
		a.initOrchestrator(resolved[cfg.Search.APIKeySecret])
	}
	if comp.Workers {
		if err := a.initWorkers(ctx, resolved); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) initTaxonomy() error {
	path := a.Config.Screening.KeywordsFile
	if path == "" {
		a.Holder = keywords.NewHolder(nil)
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read keywords file: %w", err)
	}
	var data map[string][]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse keywords file: %w", err)
	}
	tax, err := keywords.Import(data)
	if err != nil {
		return fmt.Errorf("invalid keywords file: %w", err)
	}

	logger.Info("Loaded keyword taxonomy", zap.String("path", path), zap.Int("keywords", tax.Stats().Total))
	a.Holder = keywords.NewHolder(tax)
	return nil
}

func (a *App) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Config.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

func (a *App) initSecrets(ctx context.Context) error {
	switch a.Config.Secrets.Provider {
	case "aws":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return err
		}
		a.Secrets = secrets.NewCached(secrets.NewAWSStore(awsCfg))
	default:
		a.Secrets = secrets.NewCached(secrets.NewEnvStore(a.Config.Secrets.EnvPrefix))
	}
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Storage.Backend {
	case "dynamodb":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return err
		}
		a.Store = dynamodb.NewClient(awsCfg, cfg.DynamoDB.TableName, cfg.DynamoDB.Endpoint)
	case "redis":
		client, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		if err != nil {
			return err
		}
		a.Store = client
	default:
		client, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.Store = client
	}
	a.closers = append(a.closers, a.Store.Close)

	a.Persister = storage.NewPersister(a.Store, storage.Config{
		SearchTTL: time.Duration(cfg.Storage.SearchTTLDays) * 24 * time.Hour,
		RiskTTL:   time.Duration(cfg.Storage.RiskTTLDays) * 24 * time.Hour,
	})

	logger.Info("Storage initialized", zap.String("backend", cfg.Storage.Backend))
	return nil
}

func (a *App) initMessaging(ctx context.Context) error {
	cfg := a.Config

	if cfg.Messaging.Backend == "kafka" {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			BatchTimeout: time.Duration(cfg.Kafka.BatchTimeout) * time.Millisecond,
			WriteTimeout: time.Duration(cfg.Kafka.WriteTimeout) * time.Second,
			Logger:       logger.GetLogger(),
		})
		if err != nil {
			return err
		}
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     cfg.Kafka.Brokers,
			GroupID:     cfg.Kafka.GroupID,
			MaxAttempts: cfg.Messaging.MaxAttempts,
			DeadLetter:  producer,
			Logger:      logger.GetLogger(),
		})
		if err != nil {
			_ = producer.Close()
			return err
		}
		a.Publisher = producer
		a.Subscriber = consumer
		a.closers = append(a.closers, consumer.Close, producer.Close)
	} else {
		bus := memory.New(memory.Config{
			BufferSize:  cfg.Messaging.BufferSize,
			MaxAttempts: cfg.Messaging.MaxAttempts,
			Backoff:     500 * time.Millisecond,
			Logger:      logger.GetLogger(),
		})
		a.Publisher = bus
		a.Subscriber = bus
		a.closers = append(a.closers, bus.Close)
	}

	logger.Info("Messaging initialized", zap.String("backend", cfg.Messaging.Backend))
	return nil
}

func (a *App) initOrchestrator(searchKey string) {
	cfg := a.Config

	provider := serper.NewClient(serper.Config{
		APIKey:     searchKey,
		BaseURL:    cfg.Search.BaseURL,
		Country:    cfg.Search.Country,
		Language:   cfg.Search.Language,
		Timeout:    time.Duration(cfg.Search.TimeoutSec) * time.Second,
		MaxRetries: cfg.Search.MaxRetries,
	})

	a.Orchestrator = orchestrator.New(a.Holder, provider, a.Persister, a.Publisher, orchestrator.Config{
		Concurrency:  cfg.Search.Concurrency,
		ScoringTopic: cfg.Messaging.ScoringTopic,
	})
}

func (a *App) initWorkers(ctx context.Context, resolved map[string]string) error {
	cfg := a.Config

	llmCfg := llm.Config{
		APIKey:      resolved[cfg.LLM.APIKeySecret],
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	}
	var completer llm.Completer
	jsonMode := false
	if cfg.LLM.Provider == "anthropic" {
		completer = llm.NewAnthropicClient(llmCfg)
	} else {
		completer = llm.NewClient(llmCfg)
		jsonMode = true
	}

	var mentions scoring.MentionExtractor
	if cfg.Scoring.ExtractMentions {
		mentions = scoring.ProseMentions{}
	}

	a.Scoring = scoring.NewService(
		completer,
		scoring.NewPromptBuilder(cfg.Scoring.MaxPromptResults, mentions),
		a.Persister,
		a.Publisher,
		scoring.Config{
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			JSONMode:          jsonMode,
			NotificationTopic: cfg.Messaging.NotificationTopic,
		},
	)

	a.Dispatcher = notify.NewDispatcher()
	if cfg.Notify.PublishToBus {
		sink := notify.NewBusSink(a.Publisher, map[notify.Channel]string{
			notify.ChannelGeneral: cfg.Messaging.GeneralTopic,
			notify.ChannelAlert:   cfg.Messaging.AlertTopic,
			notify.ChannelReview:  cfg.Messaging.ReviewTopic,
		})
		a.Dispatcher.Register(notify.ChannelGeneral, sink)
		a.Dispatcher.Register(notify.ChannelAlert, sink)
		a.Dispatcher.Register(notify.ChannelReview, sink)
	}

	arns := map[notify.Channel]string{}
	if cfg.Notify.GeneralSNSTopicARN != "" {
		arns[notify.ChannelGeneral] = cfg.Notify.GeneralSNSTopicARN
	}
	if cfg.Notify.AlertSNSTopicARN != "" {
		arns[notify.ChannelAlert] = cfg.Notify.AlertSNSTopicARN
	}
	if cfg.Notify.ReviewSNSTopicARN != "" {
		arns[notify.ChannelReview] = cfg.Notify.ReviewSNSTopicARN
	}
	if len(arns) > 0 {
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return err
		}
		sink := notify.NewSNSSink(sns.NewFromConfig(awsCfg), arns)
		for ch := range arns {
			a.Dispatcher.Register(ch, sink)
		}
	}

	if webhook := resolved[cfg.Notify.SlackWebhookSecret]; webhook != "" {
		a.Dispatcher.Register(notify.ChannelAlert, notify.NewSlackSink(webhook))
	}

	return nil
}

// StartWorkers subscribes the scoring and notification handlers and starts consuming.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.Scoring == nil || a.Dispatcher == nil {
		return errors.New("workers are not configured")
	}
	if err := a.Subscriber.Subscribe(a.Config.Messaging.ScoringTopic, a.Scoring.HandleMessage); err != nil {
		return err
	}
	if err := a.Subscriber.Subscribe(a.Config.Messaging.NotificationTopic, a.Dispatcher.HandleMessage); err != nil {
		return err
	}
	if err := a.Subscriber.Start(ctx); err != nil {
		return err
	}

	logger.Info("Workers started",
		zap.String("scoring_topic", a.Config.Messaging.ScoringTopic),
		zap.String("notification_topic", a.Config.Messaging.NotificationTopic),
	)
	return nil
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartJanitor periodically removes expired records on backends without native expiry.
func (a *App) StartJanitor(ctx context.Context, interval time.Duration) {
	p, ok := a.Store.(purger)
	if !ok {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := p.PurgeExpired(ctx)
				if err != nil {
					logger.Warn("Failed to purge expired records", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("Purged expired records", zap.Int64("count", n))
				}
			}
		}
	}()
}

// HealthChecks returns the dependency checks reported by the health endpoint.
func (a *App) HealthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"storage": a.Persister.Ping,
	}
	if name := a.Config.Search.APIKeySecret; name != "" {
		checks["secrets"] = func(ctx context.Context) error {
			_, err := a.Secrets.GetSecret(ctx, name)
			return err
		}
	}
	return checks
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
