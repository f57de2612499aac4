package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoItem is the row shape for the cache table: a hash key plus value
// and expiry, letting DynamoDB's own TTL feature sweep expired items.
type dynamoItem struct {
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value"`
	CreatedTS int64  `dynamodbav:"created_ts"`
	TTLSecs   int64  `dynamodbav:"ttl_secs"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // epoch seconds, for the table's native TTL attribute
}

// DynamoDBBackend is an optional persistent-tier backend, selected when
// cache.persistent_backend=dynamodb. The table's native TTL attribute
// sweeps expired items without a scan of our own.
type DynamoDBBackend struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoDBBackend(ctx context.Context, table, region string) (*DynamoDBBackend, error) {
	if table == "" {
		return nil, errors.New("cache: dynamodb table is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &DynamoDBBackend{client: dynamodb.NewFromConfig(cfg), table: table}, nil
}

func (b *DynamoDBBackend) Get(ctx context.Context, key string) (entry, bool, error) {
	keyAV, err := attributevalue.MarshalMap(map[string]string{"key": key})
	if err != nil {
		return entry{}, false, err
	}
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &b.table,
		Key:       keyAV,
	})
	if err != nil {
		return entry{}, false, err
	}
	if out.Item == nil {
		return entry{}, false, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return entry{}, false, err
	}
	return entry{
		Value:     item.Value,
		CreatedTS: time.Unix(item.CreatedTS, 0),
		TTL:       time.Duration(item.TTLSecs) * time.Second,
		SizeBytes: len(item.Value),
	}, true, nil
}

func (b *DynamoDBBackend) Set(ctx context.Context, key string, e entry) error {
	item := dynamoItem{
		Key:       key,
		Value:     e.Value,
		CreatedTS: e.CreatedTS.Unix(),
		TTLSecs:   int64(e.TTL / time.Second),
		ExpiresAt: e.CreatedTS.Add(e.TTL).Unix(),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &b.table,
		Item:      av,
	})
	return err
}

func (b *DynamoDBBackend) Delete(ctx context.Context, key string) error {
	keyAV, err := attributevalue.MarshalMap(map[string]string{"key": key})
	if err != nil {
		return err
	}
	_, err = b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &b.table,
		Key:       keyAV,
	})
	return err
}

func (b *DynamoDBBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	var lastKey map[string]types.AttributeValue
	for {
		out, err := b.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                &b.table,
			ProjectionExpression:     aws.String("#k"),
			ExpressionAttributeNames: map[string]string{"#k": "key"},
			ExclusiveStartKey:        lastKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			var row struct {
				Key string `dynamodbav:"key"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err == nil {
				keys = append(keys, row.Key)
			}
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return keys, nil
}
