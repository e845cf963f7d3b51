package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/utils"
)

// SNSAPI is the subset of the SNS client used by SNSSink.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes notifications to one SNS topic per channel.
type SNSSink struct {
	api    SNSAPI
	topics map[Channel]string
}

func NewSNSSink(api SNSAPI, topics map[Channel]string) *SNSSink {
	return &SNSSink{api: api, topics: topics}
}

func (s *SNSSink) Name() string {
	return "sns"
}

func (s *SNSSink) Send(ctx context.Context, ch Channel, n *screening.RiskNotification) error {
	arn, ok := s.topics[ch]
	if !ok || arn == "" {
		return fmt.Errorf("no SNS topic configured for channel %s", ch)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	level := n.Assessment.RiskLevel
	_, err = s.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(arn),
		Message:  aws.String(string(body)),
		Subject:  aws.String(subject(n)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"risk_level":      stringAttr(string(level)),
			"priority":        stringAttr(level.Priority()),
			"requires_review": stringAttr(strconv.FormatBool(n.Assessment.RequiresReview)),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// subject stays below the 100 character SNS limit.
func subject(n *screening.RiskNotification) string {
	return fmt.Sprintf("Entity Risk %s: %s", n.Assessment.RiskLevel, utils.Truncate(n.EntityName, 50))
}

func stringAttr(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
