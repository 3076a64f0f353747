package ddbstore

import (
	"errors"
	"fmt"

	"github.com/acksell/cachekey/dynamodb/ddbiface"
	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"
)

// Store is a DynamoDB-compatible store backed by BadgerDB.
// It implements the subset of the DynamoDB API in ddbiface.AWSDynamoClientV2,
// every call running in its own Badger transaction.
type Store struct {
	db     *badger.DB
	tables map[string]*tableSchema
}

var _ ddbiface.AWSDynamoClientV2 = (*Store)(nil)

// tableSchema is a table definition plus the prefix shared by all its
// Badger keys.
type tableSchema struct {
	definition table.TableDefinition
	prefix     []byte
}

// keyOf returns the Badger key of the item whose key attributes are in attrs.
func (t *tableSchema) keyOf(attrs map[string]types.AttributeValue) ([]byte, error) {
	pk, err := t.definition.ExtractPrimaryKey(attrs)
	if err != nil {
		return nil, fmt.Errorf("extract primary key: %w", err)
	}
	key, err := encodeKey(t.prefix, pk)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	return key, nil
}

// keyAttributes copies the key attributes out of item, as DynamoDB reports
// them in LastEvaluatedKey.
func (t *tableSchema) keyAttributes(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	keys := t.definition.KeyDefinitions
	out := make(map[string]types.AttributeValue, 2)
	for _, name := range []string{keys.PartitionKey.Name, keys.SortKey.Name} {
		if v, ok := item[name]; ok && name != "" {
			out[name] = v
		}
	}
	return out
}

// StoreOptions configures the BadgerDB store.
type StoreOptions struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
}

// New creates a new BadgerDB-backed DynamoDB store.
func New(opts StoreOptions, defs ...table.TableDefinition) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	// A nil Logger silences badger.
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	tables := make(map[string]*tableSchema, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		tables[def.Name] = &tableSchema{definition: def, prefix: tablePrefix(def.Name)}
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, tables: tables}, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getTable(tableName *string) (*tableSchema, error) {
	if tableName == nil {
		return nil, fmt.Errorf("table name is required")
	}
	schema, ok := s.tables[*tableName]
	if !ok {
		return nil, fmt.Errorf("table not found: %s", *tableName)
	}
	return schema, nil
}

// locate resolves the table and the Badger key addressed by a request.
func (s *Store) locate(tableName *string, attrs map[string]types.AttributeValue) (*tableSchema, []byte, error) {
	t, err := s.getTable(tableName)
	if err != nil {
		return nil, nil, err
	}
	key, err := t.keyOf(attrs)
	if err != nil {
		return nil, nil, err
	}
	return t, key, nil
}

// readItem loads the item at key. A missing key yields a nil item.
func readItem(txn *badger.Txn, key []byte) (map[string]types.AttributeValue, error) {
	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return itemValue(entry)
}

func itemValue(entry *badger.Item) (item map[string]types.AttributeValue, err error) {
	err = entry.Value(func(val []byte) error {
		item, err = decodeItem(val)
		return err
	})
	return item, err
}
