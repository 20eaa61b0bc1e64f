package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suPer8Hu/research-chat/internal/store"
)

const pkPrefix = "BLOB#"

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store keeps each blob as a single item keyed by PK.
type Store struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamostore: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamostore: table name must not be empty")
	}
	return &Store{api: api, tableName: tableName}, nil
}

func blobPK(key string) string {
	return pkPrefix + key
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: blobPK(key)},
			"body":      &types.AttributeValueMemberB{Value: data},
			"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamostore: Save %q: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: blobPK(key)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamostore: Load %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}
	body, ok := out.Item["body"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("dynamostore: Load %q: attribute \"body\" is not binary", key)
	}
	return body.Value, nil
}
