package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/logger"
)

type Channel string

const (
	ChannelGeneral Channel = "general"
	ChannelAlert   Channel = "alert"
	// ChannelReview is the manual-review queue for assessments an analyst must confirm.
	ChannelReview Channel = "review"
)

// Route returns the channels an assessment of the given level is delivered to.
func Route(level screening.RiskLevel) []Channel {
	if level.IsHighRisk() {
		return []Channel{ChannelAlert, ChannelGeneral}
	}
	return []Channel{ChannelGeneral}
}

// RouteAssessment extends Route with the review channel when the assessment
// requires analyst review.
func RouteAssessment(a *screening.RiskAssessment) []Channel {
	channels := Route(a.RiskLevel)
	if a.RequiresReview {
		channels = append(channels, ChannelReview)
	}
	return channels
}

// Sink delivers a notification to one external system.
type Sink interface {
	Name() string
	Send(ctx context.Context, ch Channel, n *screening.RiskNotification) error
}

type Delivery struct {
	Channel Channel `json:"channel"`
	Sink    string  `json:"sink"`
	Error   string  `json:"error,omitempty"`
}

type DispatchResult struct {
	Channels  []Channel  `json:"channels"`
	Delivered int        `json:"delivered"`
	Failed    int        `json:"failed"`
	Details   []Delivery `json:"details"`
}

type Dispatcher struct {
	sinks map[Channel][]Sink
	now   func() time.Time
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		sinks: make(map[Channel][]Sink),
		now:   time.Now,
	}
}

// Register adds a sink to a channel. It is not safe to call once dispatching has started.
func (d *Dispatcher) Register(ch Channel, sink Sink) {
	d.sinks[ch] = append(d.sinks[ch], sink)
}

func (d *Dispatcher) Sinks(ch Channel) int {
	return len(d.sinks[ch])
}

// Dispatch delivers an assessment to every sink on its routed channels.
func (d *Dispatcher) Dispatch(ctx context.Context, a *screening.RiskAssessment, entityName string) DispatchResult {
	return d.deliver(ctx, &screening.RiskNotification{
		EntityName: entityName,
		Assessment: *a,
		CreatedAt:  d.now().UTC(),
	})
}

func (d *Dispatcher) deliver(ctx context.Context, n *screening.RiskNotification) DispatchResult {
	result := DispatchResult{Channels: RouteAssessment(&n.Assessment)}

	for _, ch := range result.Channels {
		for _, sink := range d.sinks[ch] {
			delivery := Delivery{Channel: ch, Sink: sink.Name()}
			if err := sink.Send(ctx, ch, n); err != nil {
				delivery.Error = err.Error()
				result.Failed++
				metrics.NotificationsSent.WithLabelValues(string(ch), sink.Name(), "error").Inc()
				logger.Warn("Notification delivery failed",
					zap.String("channel", string(ch)),
					zap.String("sink", sink.Name()),
					zap.String("storage_key", n.StorageKey),
					zap.Error(err),
				)
			} else {
				result.Delivered++
				metrics.NotificationsSent.WithLabelValues(string(ch), sink.Name(), "ok").Inc()
			}
			result.Details = append(result.Details, delivery)
		}
	}

	logger.Info("Risk notification dispatched",
		logger.Entity(n.EntityName),
		zap.String("risk_level", string(n.Assessment.RiskLevel)),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
	)

	return result
}

// HandleMessage consumes risk notifications from the messaging fabric. Sink
// failures are not returned: each sink owns its own retries, and redelivering
// the message would duplicate notifications on the sinks that succeeded.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var n screening.RiskNotification
	if err := msg.Decode(&n); err != nil {
		return err
	}
	d.deliver(ctx, &n)
	return nil
}
