package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// GetItem reads one item. Like DynamoDB, a missing item yields an output
// with a nil Item and no error.
func (s *Store) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("get item: key is required")
	}
	_, key, err := s.locate(params.TableName, params.Key)
	if err != nil {
		return nil, err
	}

	var item map[string]types.AttributeValue
	if err := s.db.View(func(txn *badger.Txn) (err error) {
		item, err = readItem(txn, key)
		return err
	}); err != nil {
		return nil, err
	}
	if item == nil {
		return &dynamodb.GetItemOutput{}, nil
	}

	item, err = project(params.ProjectionExpression, params.ExpressionAttributeNames, item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}
