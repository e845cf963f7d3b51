package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/messaging"
)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	MaxAttempts int
	Backoff     time.Duration
	// DeadLetter receives messages whose handler kept failing.
	DeadLetter messaging.Publisher
	Logger     *zap.Logger
}

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	cfg       ConsumerConfig
	newReader func(topics []string) ReaderInterface

	mu       sync.RWMutex
	handlers map[string]messaging.Handler
	reader   ReaderInterface
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka: group id required")
	}

	return newConsumer(cfg, func(topics []string) ReaderInterface {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			GroupTopics:    topics,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			MaxWait:        time.Second,
			CommitInterval: 0,
			StartOffset:    kafka.FirstOffset,
		})
	}), nil
}

func newConsumer(cfg ConsumerConfig, newReader func(topics []string) ReaderInterface) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Consumer{
		cfg:       cfg,
		newReader: newReader,
		handlers:  make(map[string]messaging.Handler),
		done:      make(chan struct{}),
	}
}

func (c *Consumer) Subscribe(topic string, handler messaging.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return errors.New("kafka: subscribe after start")
	}
	c.handlers[topic] = handler
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.reader != nil {
		c.mu.Unlock()
		return errors.New("kafka: consumer already started")
	}
	if len(c.handlers) == 0 {
		c.mu.Unlock()
		return errors.New("kafka: no subscriptions")
	}
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	c.reader = c.newReader(topics)
	reader := c.reader
	c.mu.Unlock()

	c.cfg.Logger.Info("Kafka consumer started",
		zap.Strings("topics", topics),
		zap.String("group_id", c.cfg.GroupID),
	)

	c.wg.Add(1)
	go c.consumeLoop(ctx, reader)
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, reader ReaderInterface) {
	defer c.wg.Done()

	policy := messaging.DeliveryPolicy{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     c.cfg.Backoff,
		DeadLetter:  c.cfg.DeadLetter,
		Logger:      c.cfg.Logger,
	}

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || c.stopping() {
				return
			}
			c.cfg.Logger.Error("FetchMessage error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if ok {
			// Failures are dead-lettered inside Deliver; the offset moves on either way.
			_ = messaging.Deliver(ctx, policy, fromKafkaMessage(m), handler)
		} else {
			c.cfg.Logger.Warn("No handler for topic", zap.String("topic", m.Topic))
		}

		if ctx.Err() != nil {
			return
		}
		if err := reader.CommitMessages(ctx, m); err != nil {
			c.cfg.Logger.Error("CommitMessages failed", zap.Error(err))
		}
	}
}

func (c *Consumer) stopping() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close stops the reader and waits for the consume loop to exit.
func (c *Consumer) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.RLock()
	reader := c.reader
	c.mu.RUnlock()

	if reader == nil {
		return nil
	}
	err := reader.Close()
	c.wg.Wait()
	return err
}
