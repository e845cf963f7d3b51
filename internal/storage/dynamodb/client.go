package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type Client struct {
	api   API
	table string
	now   func() time.Time
}

// searchItem and riskItem are the table layouts. Scores are written as N
// attributes from their fixed-point string form; the table rejects raw floats
// that do not round-trip.
type searchItem struct {
	StorageKey    string   `dynamodbav:"storage_key"`
	RecordType    string   `dynamodbav:"record_type"`
	EntityName    string   `dynamodbav:"entity_name"`
	Category      string   `dynamodbav:"category"`
	Queries       []string `dynamodbav:"queries"`
	TotalCount    int      `dynamodbav:"total_count"`
	FailedQueries int      `dynamodbav:"failed_queries"`
	Payload       string   `dynamodbav:"payload"`
	CreatedAt     string   `dynamodbav:"created_at"`
	TTL           int64    `dynamodbav:"ttl"`
}

type riskItem struct {
	StorageKey          string                `dynamodbav:"storage_key"`
	RecordType          string                `dynamodbav:"record_type"`
	EntityName          string                `dynamodbav:"entity_name"`
	OverallRiskScore    attributevalue.Number `dynamodbav:"overall_risk_score"`
	RiskLevel           string                `dynamodbav:"risk_level"`
	FinancialCrimesRisk attributevalue.Number `dynamodbav:"financial_crimes_risk"`
	CorruptionRisk      attributevalue.Number `dynamodbav:"corruption_risk"`
	RegulatoryRisk      attributevalue.Number `dynamodbav:"regulatory_risk"`
	ReputationalRisk    attributevalue.Number `dynamodbav:"reputational_risk"`
	ConfidenceLevel     attributevalue.Number `dynamodbav:"confidence_level"`
	CompositeRiskScore  attributevalue.Number `dynamodbav:"composite_risk_score"`
	RequiresReview      bool                  `dynamodbav:"requires_review"`
	Summary             string                `dynamodbav:"summary,omitempty"`
	KeyFindings         []string              `dynamodbav:"key_findings"`
	RiskFactors         []string              `dynamodbav:"risk_factors,omitempty"`
	ComplianceConcerns  []string              `dynamodbav:"compliance_concerns,omitempty"`
	CreatedAt           string                `dynamodbav:"created_at"`
	TTL                 int64                 `dynamodbav:"ttl"`
}

func NewClient(cfg aws.Config, table, endpoint string) *Client {
	api := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	logger.Info("DynamoDB client initialized", zap.String("table", table))

	return NewWithAPI(api, table)
}

func NewWithAPI(api API, table string) *Client {
	return &Client{api: api, table: table, now: time.Now}
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.table)})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", c.table, err)
	}
	return nil
}

func (c *Client) PutSearch(ctx context.Context, rec *models.SearchRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal search record: %w", err)
	}

	return c.put(ctx, searchItem{
		StorageKey:    rec.StorageKey,
		RecordType:    string(models.RecordSearch),
		EntityName:    rec.EntityName,
		Category:      rec.Category,
		Queries:       rec.Queries,
		TotalCount:    rec.TotalCount,
		FailedQueries: rec.FailedQueries,
		Payload:       string(payload),
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		TTL:           rec.ExpiresAt.Unix(),
	})
}

func (c *Client) PutRisk(ctx context.Context, rec *models.RiskRecord) error {
	return c.put(ctx, riskItem{
		StorageKey:          rec.StorageKey,
		RecordType:          string(models.RecordRisk),
		EntityName:          rec.EntityName,
		OverallRiskScore:    number(rec.OverallRiskScore),
		RiskLevel:           rec.RiskLevel,
		FinancialCrimesRisk: number(rec.FinancialCrimesRisk),
		CorruptionRisk:      number(rec.CorruptionRisk),
		RegulatoryRisk:      number(rec.RegulatoryRisk),
		ReputationalRisk:    number(rec.ReputationalRisk),
		ConfidenceLevel:     number(rec.ConfidenceLevel),
		CompositeRiskScore:  number(rec.CompositeRiskScore),
		RequiresReview:      rec.RequiresReview,
		Summary:             rec.Summary,
		KeyFindings:         nonNil(rec.KeyFindings),
		RiskFactors:         rec.RiskFactors,
		ComplianceConcerns:  rec.ComplianceConcerns,
		CreatedAt:           rec.CreatedAt.Format(time.RFC3339),
		TTL:                 rec.ExpiresAt.Unix(),
	})
}

func (c *Client) put(ctx context.Context, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (c *Client) GetSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error) {
	var item searchItem
	if err := c.get(ctx, storageKey, models.RecordSearch, &item); err != nil {
		return nil, err
	}
	if c.expired(item.TTL) {
		return nil, screening.ErrNotFound
	}

	var rec models.SearchRecord
	if err := json.Unmarshal([]byte(item.Payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal search payload: %w", err)
	}
	return &rec, nil
}

func (c *Client) GetRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error) {
	var item riskItem
	if err := c.get(ctx, storageKey, models.RecordRisk, &item); err != nil {
		return nil, err
	}
	if c.expired(item.TTL) {
		return nil, screening.ErrNotFound
	}

	return item.record()
}

// ListRisk scans risk items. The table has no index on time or entity, so
// ordering and the entity match happen after the scan.
func (c *Client) ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error) {
	filter = filter.Normalize()

	expr := "record_type = :risk AND #ttl > :now"
	values := map[string]types.AttributeValue{
		":risk": &types.AttributeValueMemberS{Value: string(models.RecordRisk)},
		":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(c.now().Unix(), 10)},
	}
	if filter.RiskLevel != "" {
		expr += " AND risk_level = :level"
		values[":level"] = &types.AttributeValueMemberS{Value: filter.RiskLevel}
	}

	var (
		out      []*models.RiskRecord
		startKey map[string]types.AttributeValue
	)
	for {
		resp, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(c.table),
			FilterExpression:          aws.String(expr),
			ExpressionAttributeNames:  map[string]string{"#ttl": "ttl"},
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk items: %w", err)
		}

		for _, raw := range resp.Items {
			var item riskItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			if c.expired(item.TTL) {
				continue
			}
			rec, err := item.record()
			if err != nil {
				return nil, err
			}
			if filter.Matches(rec) {
				out = append(out, rec)
			}
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	models.SortNewestFirst(out)
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (item riskItem) record() (*models.RiskRecord, error) {
	rec := &models.RiskRecord{
		StorageKey:         item.StorageKey,
		EntityName:         item.EntityName,
		RiskLevel:          item.RiskLevel,
		RequiresReview:     item.RequiresReview,
		Summary:            item.Summary,
		KeyFindings:        item.KeyFindings,
		RiskFactors:        item.RiskFactors,
		ComplianceConcerns: item.ComplianceConcerns,
		ExpiresAt:          time.Unix(item.TTL, 0).UTC(),
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, item.CreatedAt)

	scores := []struct {
		dst *decimal.Decimal
		src attributevalue.Number
	}{
		{&rec.OverallRiskScore, item.OverallRiskScore},
		{&rec.FinancialCrimesRisk, item.FinancialCrimesRisk},
		{&rec.CorruptionRisk, item.CorruptionRisk},
		{&rec.RegulatoryRisk, item.RegulatoryRisk},
		{&rec.ReputationalRisk, item.ReputationalRisk},
		{&rec.ConfidenceLevel, item.ConfidenceLevel},
		{&rec.CompositeRiskScore, item.CompositeRiskScore},
	}
	for _, s := range scores {
		d, err := decimal.NewFromString(string(s.src))
		if err != nil {
			return nil, fmt.Errorf("invalid stored score %q: %w", s.src, err)
		}
		*s.dst = d
	}

	return rec, nil
}

func (c *Client) get(ctx context.Context, storageKey string, kind models.RecordType, out interface{}) error {
	resp, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"storage_key": &types.AttributeValueMemberS{Value: storageKey},
			"record_type": &types.AttributeValueMemberS{Value: string(kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if len(resp.Item) == 0 {
		return screening.ErrNotFound
	}

	if err := attributevalue.UnmarshalMap(resp.Item, out); err != nil {
		return fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return nil
}

// expired covers the window before DynamoDB's TTL sweeper deletes the item.
func (c *Client) expired(ttl int64) bool {
	return ttl > 0 && ttl <= c.now().Unix()
}

func number(d decimal.Decimal) attributevalue.Number {
	return attributevalue.Number(d.StringFixed(models.ScorePlaces))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
