package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// DeleteItem removes an item. Deleting a missing item is a no-op, and
// condition expressions are rejected.
func (s *Store) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if params == nil || params.Key == nil {
		return nil, fmt.Errorf("delete item: key is required")
	}
	if params.ConditionExpression != nil {
		return nil, fmt.Errorf("delete item: condition expressions are not supported")
	}
	_, key, err := s.locate(params.TableName, params.Key)
	if err != nil {
		return nil, err
	}

	out := &dynamodb.DeleteItemOutput{}
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := readItem(txn, key)
		if err != nil || old == nil {
			return err
		}
		if params.ReturnValues == types.ReturnValueAllOld {
			out.Attributes = old
		}
		return txn.Delete(key)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
