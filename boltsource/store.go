// Package boltsource keeps entity timestamps in a bbolt file and serves
// cache key reads from it.
//
// Every read behind one collection key runs in a single bbolt read
// transaction, so the count and the max aggregates always describe the same
// state. Writes that touch parents update the parents in the same write
// transaction.
package boltsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/dynamodb/table"
	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotFound    = errors.New("boltsource: entity not found")
	ErrUnknownType = errors.New("boltsource: unknown entity type")
)

const tracerName = "github.com/acksell/cachekey/boltsource"

// Row is the stored form of one entity.
type Row struct {
	ID         string                `json:"id"`
	Timestamps map[string]*time.Time `json:"timestamps,omitempty"`
	// Refs holds foreign keys by attribute name, e.g. "parent_id".
	Refs map[string]string `json:"refs,omitempty"`
}

// Store is a cachekey.CollectionStore and cachekey.Snapshotter over one
// bbolt database with a bucket per entity type.
type Store struct {
	db     *bolt.DB
	tables map[string]table.TableDefinition
	now    func() time.Time
	tracer trace.Tracer
}

var (
	_ cachekey.CollectionStore = (*Store)(nil)
	_ cachekey.Snapshotter     = (*Store)(nil)
)

type Options struct {
	// Timeout waits for the file lock. Zero waits one second.
	Timeout time.Duration
	// Now replaces time.Now for touches.
	Now func() time.Time
}

// Open opens or creates the database at path with a bucket per definition.
func Open(path string, defs []table.TableDefinition, opts Options) (*Store, error) {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tables := make(map[string]table.TableDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		tables[def.Name] = def
	}
	if err := table.ValidateTouches(defs); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for name := range tables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, tables: tables, now: opts.Now, tracer: otel.Tracer(tracerName)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) table(typeName string) (table.TableDefinition, error) {
	def, ok := s.tables[typeName]
	if !ok {
		return table.TableDefinition{}, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return def, nil
}

// View runs fn with a CollectionStore reading from one read transaction.
func (s *Store) View(ctx context.Context, fn func(cachekey.CollectionStore) error) error {
	_, span := s.tracer.Start(ctx, "boltsource.View")
	defer span.End()
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&txView{store: s, tx: tx})
	})
}

func (s *Store) FieldExists(_ context.Context, typeName, field string) (bool, error) {
	def, err := s.table(typeName)
	if err != nil {
		return false, err
	}
	return def.HasTimestamp(field), nil
}

func (s *Store) Count(ctx context.Context, typeName string) (n int64, err error) {
	err = s.View(ctx, func(v cachekey.CollectionStore) error {
		n, err = v.Count(ctx, typeName)
		return err
	})
	return n, err
}

func (s *Store) MaxOf(ctx context.Context, typeName, field string) (ts *time.Time, err error) {
	err = s.View(ctx, func(v cachekey.CollectionStore) error {
		ts, err = v.MaxOf(ctx, typeName, field)
		return err
	})
	return ts, err
}

// txView answers collection reads inside one transaction.
type txView struct {
	store *Store
	tx    *bolt.Tx
}

func (v *txView) FieldExists(ctx context.Context, typeName, field string) (bool, error) {
	return v.store.FieldExists(ctx, typeName, field)
}

func (v *txView) bucket(typeName string) (*bolt.Bucket, error) {
	if _, err := v.store.table(typeName); err != nil {
		return nil, err
	}
	b := v.tx.Bucket([]byte(typeName))
	if b == nil {
		return nil, fmt.Errorf("bucket %q is missing", typeName)
	}
	return b, nil
}

func (v *txView) Count(_ context.Context, typeName string) (int64, error) {
	b, err := v.bucket(typeName)
	if err != nil {
		return 0, err
	}
	return int64(b.Stats().KeyN), nil
}

func (v *txView) MaxOf(_ context.Context, typeName, field string) (*time.Time, error) {
	b, err := v.bucket(typeName)
	if err != nil {
		return nil, err
	}
	var newest *time.Time
	err = b.ForEach(func(k, raw []byte) error {
		var row Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return fmt.Errorf("decode %s/%s: %w", typeName, k, err)
		}
		if ts := row.Timestamps[field]; ts != nil && (newest == nil || ts.After(*newest)) {
			newest = ts
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newest, nil
}
