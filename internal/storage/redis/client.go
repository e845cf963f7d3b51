package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewClient(ctx context.Context, host string, port int, password string, db int, prefix string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewWithClient(client, prefix), nil
}

func NewWithClient(client *redis.Client, prefix string) *Client {
	if prefix == "" {
		prefix = "screening"
	}
	return &Client{client: client, prefix: prefix, now: time.Now}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) key(kind models.RecordType, storageKey string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, kind, storageKey)
}

func (c *Client) PutSearch(ctx context.Context, rec *models.SearchRecord) error {
	return c.set(ctx, models.RecordSearch, rec.StorageKey, rec, rec.ExpiresAt)
}

// riskIndex is a sorted set of risk storage keys scored by creation time.
func (c *Client) riskIndex() string {
	return fmt.Sprintf("%s:%s:index", c.prefix, models.RecordRisk)
}

func (c *Client) PutRisk(ctx context.Context, rec *models.RiskRecord) error {
	if err := c.set(ctx, models.RecordRisk, rec.StorageKey, rec, rec.ExpiresAt); err != nil {
		return err
	}

	member := redis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: rec.StorageKey}
	if err := c.client.ZAdd(ctx, c.riskIndex(), member).Err(); err != nil {
		return fmt.Errorf("failed to index risk record: %w", err)
	}
	return nil
}

const listPageSize = 100

// ListRisk walks the index newest first. Index entries whose record has
// expired are removed once the walk finishes.
func (c *Client) ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error) {
	filter = filter.Normalize()

	var (
		out   []*models.RiskRecord
		stale []interface{}
	)
	for start := int64(0); len(out) < filter.Limit; start += listPageSize {
		keys, err := c.client.ZRevRange(ctx, c.riskIndex(), start, start+listPageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read risk index: %w", err)
		}
		if len(keys) == 0 {
			break
		}

		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = c.key(models.RecordRisk, k)
		}
		values, err := c.client.MGet(ctx, full...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get risk records: %w", err)
		}

		for i, v := range values {
			data, ok := v.(string)
			if !ok {
				stale = append(stale, keys[i])
				continue
			}
			var rec models.RiskRecord
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal risk record: %w", err)
			}
			if filter.Matches(&rec) && len(out) < filter.Limit {
				out = append(out, &rec)
			}
		}

		if len(keys) < listPageSize {
			break
		}
	}

	if len(stale) > 0 {
		if err := c.client.ZRem(ctx, c.riskIndex(), stale...).Err(); err != nil {
			logger.Warn("Failed to prune risk index", zap.Error(err))
		}
	}
	return out, nil
}

func (c *Client) set(ctx context.Context, kind models.RecordType, storageKey string, rec interface{}, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		return fmt.Errorf("%s record %s already expired", kind, storageKey)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}

	if err := c.client.Set(ctx, c.key(kind, storageKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s record: %w", kind, err)
	}

	logger.Debug("Record stored", zap.String("storage_key", storageKey), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error) {
	var rec models.SearchRecord
	if err := c.get(ctx, models.RecordSearch, storageKey, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) GetRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error) {
	var rec models.RiskRecord
	if err := c.get(ctx, models.RecordRisk, storageKey, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) get(ctx context.Context, kind models.RecordType, storageKey string, out interface{}) error {
	data, err := c.client.Get(ctx, c.key(kind, storageKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return screening.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s record: %w", kind, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s record: %w", kind, err)
	}
	return nil
}
