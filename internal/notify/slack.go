package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/utils"
)

// SlackSink posts notifications to an incoming webhook.
type SlackSink struct {
	webhookURL string
}

func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{webhookURL: webhookURL}
}

func (s *SlackSink) Name() string {
	return "slack"
}

func (s *SlackSink) Send(ctx context.Context, ch Channel, n *screening.RiskNotification) error {
	if err := slack.PostWebhookContext(ctx, s.webhookURL, slackMessage(ch, n)); err != nil {
		return fmt.Errorf("failed to post Slack webhook: %w", err)
	}
	return nil
}

func slackMessage(ch Channel, n *screening.RiskNotification) *slack.WebhookMessage {
	a := n.Assessment

	fields := []slack.AttachmentField{
		{Title: "Risk level", Value: string(a.RiskLevel), Short: true},
		{Title: "Score", Value: fmt.Sprintf("%.2f", a.OverallRiskScore), Short: true},
		{Title: "Composite", Value: fmt.Sprintf("%.3f", a.CompositeRiskScore), Short: true},
		{Title: "Confidence", Value: fmt.Sprintf("%.2f", a.ConfidenceLevel), Short: true},
	}
	if a.RequiresReview {
		fields = append(fields, slack.AttachmentField{Title: "Review", Value: "Analyst review required"})
	}
	if len(a.KeyFindings) > 0 {
		fields = append(fields, slack.AttachmentField{Title: "Key findings", Value: "• " + strings.Join(a.KeyFindings, "\n• ")})
	}

	return &slack.WebhookMessage{
		Text: fmt.Sprintf("[%s] %s risk for %s", ch, a.RiskLevel, utils.Truncate(n.EntityName, 50)),
		Attachments: []slack.Attachment{{
			Color:  levelColor(a.RiskLevel),
			Title:  "Entity screening assessment",
			Text:   a.Summary,
			Footer: n.StorageKey,
			Fields: fields,
		}},
	}
}

func levelColor(level screening.RiskLevel) string {
	switch level {
	case screening.RiskCritical:
		return "danger"
	case screening.RiskHigh:
		return "warning"
	case screening.RiskMedium:
		return "#439FE0"
	default:
		return "good"
	}
}
