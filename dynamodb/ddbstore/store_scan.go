package ddbstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Scan retrieves all items in a table.
//
// Select=COUNT returns only Count. Filter expressions are not supported.
func (s *Store) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if params == nil {
		return nil, fmt.Errorf("params is required")
	}
	if params.FilterExpression != nil {
		return nil, fmt.Errorf("filter expressions are not supported")
	}
	if params.IndexName != nil && *params.IndexName != "" {
		return nil, fmt.Errorf("secondary indexes are not supported")
	}

	tabl, err := s.getTable(params.TableName)
	if err != nil {
		return nil, err
	}

	var items []map[string]types.AttributeValue
	var lastKey map[string]types.AttributeValue

	limit := 0
	if params.Limit != nil {
		limit = int(*params.Limit)
	}

	prefix := tabl.prefix

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		if params.ExclusiveStartKey != nil {
			startKey, err := tabl.keyOf(params.ExclusiveStartKey)
			if err != nil {
				return fmt.Errorf("start key: %w", err)
			}
			it.Seek(startKey)
			if it.Valid() && bytes.Equal(it.Item().Key(), startKey) {
				it.Next() // Skip the start key (exclusive)
			}
		} else {
			it.Seek(prefix)
		}

		for ; it.Valid(); it.Next() {
			if !bytes.HasPrefix(it.Item().Key(), prefix) {
				break
			}

			item, err := itemValue(it.Item())
			if err != nil {
				return err
			}

			items = append(items, item)

			if limit > 0 && len(items) >= limit {
				lastKey = tabl.keyAttributes(item)
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	count := int32(len(items))
	if params.Select == types.SelectCount {
		return &dynamodb.ScanOutput{
			Count:            count,
			ScannedCount:     count,
			LastEvaluatedKey: lastKey,
		}, nil
	}

	items, err = projectAll(params.ProjectionExpression, params.ExpressionAttributeNames, items)
	if err != nil {
		return nil, err
	}

	return &dynamodb.ScanOutput{
		Items:            items,
		Count:            count,
		ScannedCount:     count,
		LastEvaluatedKey: lastKey,
	}, nil
}
