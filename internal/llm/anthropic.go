package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/pkg/circuitbreaker"
	"github.com/entity-screening/backend/pkg/logger"
	"github.com/entity-screening/backend/pkg/retry"
)

// AnthropicClient completes prompts with the Anthropic Messages API.
type AnthropicClient struct {
	client      *anthropic.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewAnthropicClient(cfg Config) *AnthropicClient {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	logger.Info("LLM client initialized",
		zap.String("provider", "anthropic"),
		zap.String("model", cfg.Model),
	)

	return &AnthropicClient{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		cb:          newBreaker("llm-anthropic"),
		retryConfig: newRetryConfig(isRetryableAnthropic),
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := resolveTemperature(req.Temperature, c.temperature)
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.SystemPrompt,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(req.UserPrompt)},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateMessages(ctx, msgReq)
			if err != nil {
				return fmt.Errorf("failed to create message: %w", err)
			}

			text := resp.GetFirstContentText()
			if text == "" {
				return ErrEmptyCompletion
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.InputTokens),
				zap.Int("completion_tokens", resp.Usage.OutputTokens),
			)

			result = &CompletionResponse{
				Content: text,
				Model:   string(resp.Model),
				Usage: Usage{
					PromptTokens:     resp.Usage.InputTokens,
					CompletionTokens: resp.Usage.OutputTokens,
					TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func isRetryableAnthropic(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyCompletion) {
		return false
	}

	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimitErr() || apiErr.IsOverloadedErr() || apiErr.IsApiErr()
	}
	return true
}
