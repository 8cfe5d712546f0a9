package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	apperrors "github.com/jittakal/kafeventrouter/internal/errors"
	"github.com/jittakal/kafeventrouter/pkg/dedup"
)

// Ensure implementation satisfies interfaces at compile time.
var (
	_ dedup.Store  = (*DynamoDBStore)(nil)
	_ dedup.Pinger = (*DynamoDBStore)(nil)
)

const backendDynamoDB = "dynamodb"

// DynamoDBConfig contains DynamoDB store configuration.
type DynamoDBConfig struct {
	TableName      string
	Region         string
	Endpoint       string
	ConsistentRead bool
}

// dynamoAPI is the subset of the DynamoDB client used by the store.
type dynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dedupItem is the table item. The table's TTL attribute must be "ttl".
type dedupItem struct {
	ID  string `dynamodbav:"id"`
	TTL int64  `dynamodbav:"ttl"`
}

// DynamoDBStore implements dedup.Store on a DynamoDB table keyed by "id".
// Expired items that DynamoDB has not purged yet are treated as absent.
type DynamoDBStore struct {
	client         dynamoAPI
	tableName      string
	consistentRead bool
	now            func() time.Time
}

// NewDynamoDBStore creates a DynamoDB-backed store using the default AWS
// credential chain.
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig, logger *slog.Logger) (*DynamoDBStore, error) {
	if cfg.TableName == "" {
		return nil, fmt.Errorf("dynamodb table name is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("dynamodb dedup store created",
		"table", cfg.TableName,
		"region", awsConfig.Region,
		"consistent_read", cfg.ConsistentRead,
	)

	return newDynamoDBStore(client, cfg), nil
}

func newDynamoDBStore(client dynamoAPI, cfg DynamoDBConfig) *DynamoDBStore {
	return &DynamoDBStore{
		client:         client,
		tableName:      cfg.TableName,
		consistentRead: cfg.ConsistentRead,
		now:            time.Now,
	}
}

// Exists reports whether a live item exists for key.
func (s *DynamoDBStore) Exists(ctx context.Context, key string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(s.consistentRead),
	})
	if err != nil {
		return false, s.storeErr("exists", key, err)
	}
	if out.Item == nil {
		return false, nil
	}

	var item dedupItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return false, s.storeErr("exists", key, fmt.Errorf("failed to unmarshal item: %w", err))
	}

	// Items written without a ttl never expire.
	if item.TTL == 0 {
		return true, nil
	}
	return s.now().Unix() < item.TTL, nil
}

// Put writes the item unconditionally.
func (s *DynamoDBStore) Put(ctx context.Context, key string, expiresAt time.Time) error {
	item, err := s.marshalItem(key, expiresAt)
	if err != nil {
		return s.storeErr("put", key, err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return s.storeErr("put", key, err)
	}
	return nil
}

// PutIfAbsent writes the item only if no live item exists.
func (s *DynamoDBStore) PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (bool, error) {
	item, err := s.marshalItem(key, expiresAt)
	if err != nil {
		return false, s.storeErr("put_if_absent", key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#id":  "id",
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return true, nil
		}
		return false, s.storeErr("put_if_absent", key, err)
	}
	return false, nil
}

// Ping checks that the table is reachable.
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return s.storeErr("ping", "", err)
	}
	if out.Table != nil && out.Table.TableStatus != types.TableStatusActive && out.Table.TableStatus != types.TableStatusUpdating {
		return s.storeErr("ping", "", fmt.Errorf("table status %s", out.Table.TableStatus))
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *DynamoDBStore) Close() error {
	return nil
}

func (s *DynamoDBStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoDBStore) marshalItem(key string, expiresAt time.Time) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(dedupItem{ID: key, TTL: expiresAt.Unix()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item: %w", err)
	}
	return item, nil
}

func (s *DynamoDBStore) storeErr(op, key string, err error) error {
	return &apperrors.StoreError{Backend: backendDynamoDB, Operation: op, Key: key, Err: err}
}
