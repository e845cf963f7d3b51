package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/messaging"
)

type Config struct {
	BufferSize  int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	Logger      *zap.Logger
	// DeadLetterLimit caps how many unconsumed dead letters are retained.
	DeadLetterLimit int
}

// Bus is an in-process messaging fabric. Publish never blocks: when the buffer
// is full it fails with ErrBufferFull. Dead letters with no subscriber are
// kept in memory and returned by DeadLetters; nothing survives the process.
type Bus struct {
	cfg      Config
	queue    chan *messaging.Message
	mu       sync.RWMutex
	handlers map[string]messaging.Handler
	closed   bool
	dead     []*messaging.Message
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func New(cfg Config) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.DeadLetterLimit <= 0 {
		cfg.DeadLetterLimit = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Bus{
		cfg:      cfg,
		queue:    make(chan *messaging.Message, cfg.BufferSize),
		handlers: make(map[string]messaging.Handler),
		done:     make(chan struct{}),
	}
}

func (b *Bus) Publish(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return messaging.ErrClosed
	}

	select {
	case b.queue <- msg:
		return nil
	default:
		return messaging.ErrBufferFull
	}
}

func (b *Bus) Subscribe(topic string, handler messaging.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return messaging.ErrClosed
	}
	b.handlers[topic] = handler
	return nil
}

// Start launches the delivery workers. They stop when ctx is cancelled or the bus is closed.
func (b *Bus) Start(ctx context.Context) error {
	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.work(ctx)
	}
	return nil
}

func (b *Bus) work(ctx context.Context) {
	defer b.wg.Done()

	policy := messaging.DeliveryPolicy{
		MaxAttempts: b.cfg.MaxAttempts,
		Backoff:     b.cfg.Backoff,
		DeadLetter:  b,
		Logger:      b.cfg.Logger,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case msg := <-b.queue:
			b.mu.RLock()
			handler, ok := b.handlers[msg.Topic]
			b.mu.RUnlock()

			if !ok {
				if messaging.IsDeadLetterTopic(msg.Topic) {
					b.keepDeadLetter(msg)
					continue
				}
				b.cfg.Logger.Debug("No handler for topic", zap.String("topic", msg.Topic))
				continue
			}
			_ = messaging.Deliver(ctx, policy, msg, handler)
		}
	}
}

func (b *Bus) keepDeadLetter(msg *messaging.Message) {
	b.cfg.Logger.Error("Message dead-lettered",
		zap.String("topic", msg.Topic),
		zap.String("message_id", msg.ID),
		zap.String("original_topic", msg.Attributes[messaging.AttrOriginalTopic]),
	)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dead) >= b.cfg.DeadLetterLimit {
		b.dead = b.dead[1:]
	}
	b.dead = append(b.dead, msg)
}

// DeadLetters returns the retained dead letters, oldest first.
func (b *Bus) DeadLetters() []*messaging.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*messaging.Message, len(b.dead))
	copy(out, b.dead)
	return out
}

// Pending reports how many messages are waiting for a worker.
func (b *Bus) Pending() int {
	return len(b.queue)
}

func (b *Bus) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.done)
	})
	b.wg.Wait()

	if n := len(b.queue); n > 0 {
		b.cfg.Logger.Warn("Bus closed with undelivered messages", zap.Int("count", n))
	}
	return nil
}
