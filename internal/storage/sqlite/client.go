package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

type Client struct {
	db  *sql.DB
	now func() time.Time
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	c := &Client{db: db, now: time.Now}
	if err := c.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS screening_records (
		storage_key TEXT NOT NULL,
		record_type TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		risk_level TEXT,
		risk_score TEXT,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (storage_key, record_type)
	);
	CREATE INDEX IF NOT EXISTS idx_records_expires ON screening_records(expires_at);
	CREATE INDEX IF NOT EXISTS idx_records_risk_list ON screening_records(record_type, risk_level, created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("SQLite schema initialized")
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) PutSearch(ctx context.Context, rec *models.SearchRecord) error {
	return c.put(ctx, rec.StorageKey, models.RecordSearch, rec.EntityName, nil, nil, rec, rec.CreatedAt, rec.ExpiresAt)
}

func (c *Client) PutRisk(ctx context.Context, rec *models.RiskRecord) error {
	level := rec.RiskLevel
	score := rec.OverallRiskScore.StringFixed(models.ScorePlaces)
	return c.put(ctx, rec.StorageKey, models.RecordRisk, rec.EntityName, &level, &score, rec, rec.CreatedAt, rec.ExpiresAt)
}

func (c *Client) put(ctx context.Context, key string, kind models.RecordType, entity string, level, score *string, rec interface{}, created, expires time.Time) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", kind, err)
	}

	query := `
		INSERT INTO screening_records (storage_key, record_type, entity_name, risk_level, risk_score, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(storage_key, record_type) DO UPDATE SET
			entity_name = excluded.entity_name,
			risk_level = excluded.risk_level,
			risk_score = excluded.risk_score,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err = c.db.ExecContext(ctx, query, key, string(kind), entity, level, score, string(payload), created.Unix(), expires.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", kind, err)
	}

	logger.Debug("Record stored", zap.String("storage_key", key), zap.String("record_type", string(kind)))
	return nil
}

func (c *Client) GetSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error) {
	var rec models.SearchRecord
	if err := c.get(ctx, storageKey, models.RecordSearch, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) GetRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error) {
	var rec models.RiskRecord
	if err := c.get(ctx, storageKey, models.RecordRisk, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) get(ctx context.Context, key string, kind models.RecordType, out interface{}) error {
	query := `SELECT payload FROM screening_records WHERE storage_key = ? AND record_type = ? AND expires_at > ?`

	var payload string
	err := c.db.QueryRowContext(ctx, query, key, string(kind), c.now().Unix()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return screening.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s record: %w", kind, err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("failed to unmarshal %s record: %w", kind, err)
	}
	return nil
}

func (c *Client) ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error) {
	filter = filter.Normalize()

	query := `SELECT payload FROM screening_records WHERE record_type = ? AND expires_at > ?`
	args := []interface{}{string(models.RecordRisk), c.now().Unix()}
	if filter.RiskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, filter.RiskLevel)
	}
	if filter.Entity != "" {
		query += ` AND instr(lower(entity_name), lower(?)) > 0`
		args = append(args, filter.Entity)
	}
	query += ` ORDER BY created_at DESC, storage_key ASC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk records: %w", err)
	}
	defer rows.Close()

	var out []*models.RiskRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan risk record: %w", err)
		}
		var rec models.RiskRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal risk record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk records: %w", err)
	}
	return out, nil
}

// PurgeExpired deletes records past their expiry and returns how many were removed.
func (c *Client) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM screening_records WHERE expires_at <= ?`, c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("Expired records purged", zap.Int64("count", n))
	}
	return n, nil
}
