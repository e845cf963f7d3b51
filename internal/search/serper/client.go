package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/search"
	"github.com/entity-screening/backend/pkg/circuitbreaker"
	"github.com/entity-screening/backend/pkg/logger"
	"github.com/entity-screening/backend/pkg/retry"
	"github.com/entity-screening/backend/pkg/utils"
)

const (
	DefaultBaseURL = "https://google.serper.dev"

	maxResults       = 10
	maxTitleLength   = 200
	maxURLLength     = 500
	maxSnippetLength = 500
)

type Config struct {
	APIKey     string
	BaseURL    string
	Country    string
	Language   string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type Client struct {
	apiKey      string
	baseURL     string
	country     string
	language    string
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "us"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	cb := circuitbreaker.NewCircuitBreaker("serper", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		Logger:           logger.GetLogger(),
	})

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		country:    cfg.Country,
		language:   cfg.Language,
		httpClient: cfg.HTTPClient,
		cb:         cb,
		retryConfig: retry.Config{
			MaxAttempts:    cfg.MaxRetries + 1,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Retryable:      search.Retryable,
			Logger:         logger.GetLogger(),
		},
	}
}

func (c *Client) Name() string {
	return "serper"
}

func (c *Client) Search(ctx context.Context, query string, numResults int) ([]screening.ResultItem, error) {
	if numResults < 1 {
		numResults = 1
	}
	if numResults > maxResults {
		numResults = maxResults
	}

	var items []screening.ResultItem

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			var err error
			items, err = c.search(ctx, query, numResults)
			return err
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", search.ErrProviderError, err)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Search completed", zap.String("query", query), zap.Int("results", len(items)))

	return items, nil
}

func (c *Client) search(ctx context.Context, query string, numResults int) ([]screening.ResultItem, error) {
	body, err := json.Marshal(searchRequest{Q: query, Num: numResults, GL: c.country, HL: c.language})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", search.ErrTimeout, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", search.ErrProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, search.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &search.StatusError{Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", search.ErrProviderError, err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", search.ErrProviderError, err)
	}

	items := make([]screening.ResultItem, 0, len(parsed.Organic))
	for i, r := range parsed.Organic {
		if i >= numResults {
			break
		}
		items = append(items, screening.ResultItem{
			Title:    utils.Truncate(plainText(r.Title), maxTitleLength),
			URL:      utils.Truncate(strings.TrimSpace(r.Link), maxURLLength),
			Snippet:  utils.Truncate(plainText(r.Snippet), maxSnippetLength),
			Position: i + 1,
		})
	}

	return items, nil
}

// plainText strips any markup the provider leaves in titles and snippets.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
