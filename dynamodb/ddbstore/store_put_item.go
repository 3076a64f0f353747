package ddbstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// PutItem creates or replaces an item. ReturnValues ALL_OLD is honored;
// condition expressions are rejected.
func (s *Store) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if params == nil || params.Item == nil {
		return nil, fmt.Errorf("put item: item is required")
	}
	if params.ConditionExpression != nil {
		return nil, fmt.Errorf("put item: condition expressions are not supported")
	}
	_, key, err := s.locate(params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	value, err := encodeItem(params.Item)
	if err != nil {
		return nil, err
	}

	wantOld := params.ReturnValues == types.ReturnValueAllOld
	out := &dynamodb.PutItemOutput{}
	err = s.db.Update(func(txn *badger.Txn) error {
		if wantOld {
			old, err := readItem(txn, key)
			if err != nil {
				return err
			}
			out.Attributes = old
		}
		return txn.Set(key, value)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
