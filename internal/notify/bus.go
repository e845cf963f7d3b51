package notify

import (
	"context"
	"fmt"

	"github.com/entity-screening/backend/internal/messaging"
	"github.com/entity-screening/backend/internal/screening"
)

// BusSink republishes notifications onto per-channel topics of the messaging fabric.
type BusSink struct {
	publisher messaging.Publisher
	topics    map[Channel]string
}

func NewBusSink(publisher messaging.Publisher, topics map[Channel]string) *BusSink {
	return &BusSink{publisher: publisher, topics: topics}
}

func (s *BusSink) Name() string {
	return "bus"
}

func (s *BusSink) Send(ctx context.Context, ch Channel, n *screening.RiskNotification) error {
	topic, ok := s.topics[ch]
	if !ok || topic == "" {
		return fmt.Errorf("no topic configured for channel %s", ch)
	}

	msg, err := messaging.NewJSONMessage(topic, n.StorageKey, n)
	if err != nil {
		return err
	}
	msg.Attributes["risk_level"] = string(n.Assessment.RiskLevel)
	msg.Attributes["priority"] = n.Assessment.RiskLevel.Priority()
	msg.Attributes["channel"] = string(ch)

	return s.publisher.Publish(ctx, msg)
}
