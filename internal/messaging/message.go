package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("messaging: closed")
	ErrBufferFull = errors.New("messaging: buffer full")
)

const (
	AttrMessageID     = "message_id"
	AttrOriginalTopic = "original_topic"
	AttrError         = "error_message"
	AttrAttempts      = "attempts"
)

type Message struct {
	ID         string
	Topic      string
	Key        []byte
	Value      []byte
	Attributes map[string]string
	Timestamp  time.Time
}

// Publisher hands a message to the fabric. Implementations must not wait for
// the message to be consumed.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

type Handler func(ctx context.Context, msg *Message) error

type Subscriber interface {
	Subscribe(topic string, handler Handler) error
	Start(ctx context.Context) error
	Close() error
}

// NewJSONMessage encodes v as the message value.
func NewJSONMessage(topic, key string, v interface{}) (*Message, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}
	return &Message{
		ID:         uuid.NewString(),
		Topic:      topic,
		Key:        []byte(key),
		Value:      value,
		Attributes: map[string]string{},
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Decode unmarshals the message value into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return fmt.Errorf("failed to decode message %s from %s: %w", m.ID, m.Topic, err)
	}
	return nil
}

const deadLetterSuffix = ".dlq"

func DeadLetterTopic(topic string) string {
	return topic + deadLetterSuffix
}

func IsDeadLetterTopic(topic string) bool {
	return strings.HasSuffix(topic, deadLetterSuffix)
}

// DeliveryPolicy controls how a subscriber retries a failing handler before
// dead-lettering the message.
type DeliveryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	DeadLetter  Publisher
	Logger      *zap.Logger
}

// Deliver runs handler until it succeeds or the attempts are exhausted, then
// forwards the message to the topic's dead-letter queue. It returns the last
// handler error when the message was not delivered.
func Deliver(ctx context.Context, p DeliveryPolicy, msg *Message, handler Handler) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	var err error
	backoff := p.Backoff
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}

		p.Logger.Warn("Message handler failed",
			zap.String("topic", msg.Topic),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == p.MaxAttempts {
			break
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	if p.DeadLetter == nil {
		p.Logger.Error("Message dropped after retries",
			zap.String("topic", msg.Topic),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return err
	}

	dl := &Message{
		ID:         msg.ID,
		Topic:      DeadLetterTopic(msg.Topic),
		Key:        msg.Key,
		Value:      msg.Value,
		Attributes: make(map[string]string, len(msg.Attributes)+3),
		Timestamp:  time.Now().UTC(),
	}
	for k, v := range msg.Attributes {
		dl.Attributes[k] = v
	}
	dl.Attributes[AttrOriginalTopic] = msg.Topic
	dl.Attributes[AttrError] = err.Error()
	dl.Attributes[AttrAttempts] = fmt.Sprint(p.MaxAttempts)

	if dlErr := p.DeadLetter.Publish(ctx, dl); dlErr != nil {
		p.Logger.Error("Failed to publish to dead letter topic",
			zap.String("topic", dl.Topic),
			zap.Error(dlErr),
		)
	} else {
		p.Logger.Warn("Message dead-lettered", zap.String("topic", dl.Topic), zap.String("message_id", msg.ID))
	}

	return err
}
