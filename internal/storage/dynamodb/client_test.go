package dynamodb

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
)

type fakeAPI struct {
	items    map[string]map[string]types.AttributeValue
	err      error
	pageSize int
	scans    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["storage_key"].(*types.AttributeValueMemberS).Value
	sk := item["record_type"].(*types.AttributeValueMemberS).Value
	return pk + "#" + sk
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeAPI) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.err
}

// Scan applies only the record_type condition and pages pageSize items at a time.
func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scans++
	kind := in.ExpressionAttributeValues[":risk"].(*types.AttributeValueMemberS).Value

	var keys []string
	for k, item := range f.items {
		if item["record_type"].(*types.AttributeValueMemberS).Value == kind {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := itemKey(in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, last) + 1
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"storage_key": f.items[keys[end-1]]["storage_key"],
			"record_type": f.items[keys[end-1]]["record_type"],
		}
	}
	return out, nil
}

func TestPutRiskWritesScoresAsNumbers(t *testing.T) {
	api := newFakeAPI()
	c := NewWithAPI(api, "results")
	now := time.Now()

	a := &screening.RiskAssessment{
		OverallRiskScore:    0.91,
		RiskLevel:           screening.RiskCritical,
		FinancialCrimesRisk: 0.333333,
		KeyFindings:         []string{"regulator fine"},
		RequiresReview:      true,
	}
	require.NoError(t, c.PutRisk(context.Background(), models.NewRiskRecord("k1", "Acme", a, now, time.Hour)))

	item := api.items["k1#risk"]
	require.NotNil(t, item)

	score, ok := item["overall_risk_score"].(*types.AttributeValueMemberN)
	require.True(t, ok, "score must be an N attribute")
	assert.Equal(t, "0.9100", score.Value)
	assert.Equal(t, "0.3333", item["financial_crimes_risk"].(*types.AttributeValueMemberN).Value)

	ttl, ok := item["ttl"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.NotEmpty(t, ttl.Value)

	got, err := c.GetRisk(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "0.91", got.OverallRiskScore.String())
	assert.Equal(t, []string{"regulator fine"}, got.KeyFindings)
	assert.True(t, got.RequiresReview)
}

func TestSearchRoundTrip(t *testing.T) {
	api := newFakeAPI()
	c := NewWithAPI(api, "results")
	now := time.Now()

	rec := &models.SearchRecord{
		StorageKey: "k1",
		EntityName: "Acme",
		Queries:    []string{"Acme", "Acme fraud"},
		Groups:     []screening.QueryGroup{{Query: "Acme", Status: screening.GroupOK}},
		TotalCount: 2,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	require.NoError(t, c.PutSearch(context.Background(), rec))

	got, err := c.GetSearch(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, rec.Queries, got.Queries)
	assert.Equal(t, 2, got.TotalCount)
}

func TestGetHidesExpiredItems(t *testing.T) {
	api := newFakeAPI()
	c := NewWithAPI(api, "results")
	now := time.Now()

	rec := &models.SearchRecord{StorageKey: "k1", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, c.PutSearch(context.Background(), rec))

	_, err := c.GetSearch(context.Background(), "k1")
	assert.ErrorIs(t, err, screening.ErrNotFound)

	_, err = c.GetRisk(context.Background(), "missing")
	assert.ErrorIs(t, err, screening.ErrNotFound)
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	api := newFakeAPI()
	api.err = errors.New("ProvisionedThroughputExceeded")
	c := NewWithAPI(api, "results")

	err := c.PutSearch(context.Background(), &models.SearchRecord{StorageKey: "k"})
	assert.ErrorContains(t, err, "ProvisionedThroughputExceeded")
	assert.Error(t, c.Ping(context.Background()))
}

func TestListRiskPagesFiltersAndOrders(t *testing.T) {
	api := newFakeAPI()
	api.pageSize = 2
	c := NewWithAPI(api, "results")
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	put := func(key, entity string, level screening.RiskLevel, offset, ttl time.Duration) {
		a := &screening.RiskAssessment{OverallRiskScore: 0.7, RiskLevel: level, KeyFindings: []string{}}
		require.NoError(t, c.PutRisk(ctx, models.NewRiskRecord(key, entity, a, base.Add(offset), ttl)))
	}
	put("k1", "Acme Corp", screening.RiskHigh, 0, 2*time.Hour)
	put("k2", "Globex", screening.RiskHigh, time.Minute, 2*time.Hour)
	put("k3", "ACME Holdings", screening.RiskHigh, 2*time.Minute, 2*time.Hour)
	put("k4", "Acme Corp", screening.RiskLow, 3*time.Minute, 2*time.Hour)
	put("k5", "Acme Expired", screening.RiskHigh, 4*time.Minute, time.Minute)
	require.NoError(t, c.PutSearch(ctx, &models.SearchRecord{StorageKey: "k1", CreatedAt: base, ExpiresAt: base.Add(2 * time.Hour)}))

	recs, err := c.ListRisk(ctx, models.RiskFilter{RiskLevel: "HIGH", Entity: "acme"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "k3", recs[0].StorageKey)
	assert.Equal(t, "k1", recs[1].StorageKey)
	assert.Equal(t, "0.7", recs[0].OverallRiskScore.String())
	assert.Equal(t, 3, api.scans)

	recs, err = c.ListRisk(ctx, models.RiskFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "k4", recs[0].StorageKey)
}
