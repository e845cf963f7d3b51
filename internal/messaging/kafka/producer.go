package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/messaging"
)

type ProducerConfig struct {
	Brokers      []string
	MaxAttempts  int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer WriterInterface
	logger *zap.Logger
	closed atomic.Bool
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: brokers required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.Logger), nil
}

func NewProducerWithWriter(w WriterInterface, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{writer: w, logger: logger}
}

func (p *Producer) Publish(ctx context.Context, msg *messaging.Message) error {
	if p.closed.Load() {
		return messaging.ErrClosed
	}
	if msg.Topic == "" {
		return errors.New("kafka: topic required")
	}

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		return fmt.Errorf("kafka: publish to %s failed: %w", msg.Topic, err)
	}

	p.logger.Debug("Message published",
		zap.String("topic", msg.Topic),
		zap.String("message_id", msg.ID),
	)
	return nil
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

func toKafkaMessage(msg *messaging.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Attributes)+1)
	headers = append(headers, kafka.Header{Key: messaging.AttrMessageID, Value: []byte(msg.ID)})
	for k, v := range msg.Attributes {
		if k == messaging.AttrMessageID {
			continue
		}
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

func fromKafkaMessage(m kafka.Message) *messaging.Message {
	msg := &messaging.Message{
		Topic:      m.Topic,
		Key:        m.Key,
		Value:      m.Value,
		Attributes: make(map[string]string, len(m.Headers)),
		Timestamp:  m.Time,
	}
	for _, h := range m.Headers {
		if h.Key == messaging.AttrMessageID {
			msg.ID = string(h.Value)
			continue
		}
		msg.Attributes[h.Key] = string(h.Value)
	}
	return msg
}
