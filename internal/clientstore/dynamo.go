package clientstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/maypok86/otter/v2"

	gateway "github.com/bastionlabs/bastion/internal"
)

const (
	apiKeyIndex    = "api_key_index"
	dynamoCacheTTL = 5 * time.Minute
	cacheMaxLen    = 10_000
)

// QueryAPI is the slice of the DynamoDB client the store uses.
type QueryAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore resolves clients from a table with a GSI on api_key.
// Hits are cached in an otter W-TinyLFU cache for five minutes; misses are
// never cached so a freshly provisioned client is visible immediately.
type DynamoDBStore struct {
	client QueryAPI
	table  string
	logger *slog.Logger
	cache  *otter.Cache[string, *gateway.ClientRecord]
}

// NewDynamoDBStore creates a store querying table through client.
func NewDynamoDBStore(client QueryAPI, table string, logger *slog.Logger) (*DynamoDBStore, error) {
	c, err := otter.New(&otter.Options[string, *gateway.ClientRecord]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *gateway.ClientRecord](dynamoCacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}
	return &DynamoDBStore{client: client, table: table, logger: logger, cache: c}, nil
}

// GetByAPIKey queries the api_key GSI. Query failures degrade to a miss,
// letting the caller fall back to legacy keys rather than fail closed on a
// directory outage.
func (s *DynamoDBStore) GetByAPIKey(ctx context.Context, apiKey string) (*gateway.ClientRecord, error) {
	if rec, ok := s.cache.GetIfPresent(apiKey); ok {
		return rec, nil
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(apiKeyIndex),
		KeyConditionExpression: aws.String("api_key = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: apiKey},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		s.logger.Warn("client directory query failed",
			slog.String("table", s.table), slog.Any("error", err))
		return nil, nil
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var rec gateway.ClientRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		s.logger.Warn("client record unmarshal failed", slog.Any("error", err))
		return nil, nil
	}
	rec.Normalize()

	s.cache.Set(apiKey, &rec)
	return &rec, nil
}
