package cachekey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/acksell/cachekey/stampfmt"
)

// CollectionKeyBuilder builds keys describing a whole collection of entities.
//
// The count and the max aggregates are separate reads. Unless the store
// implements [Snapshotter] they are not taken from one snapshot, and a write
// landing between them can yield a count and timestamp pair that never
// coexisted. Usually that only costs a cache miss; callers that need strict
// consistency should use a store that supports snapshots.
type CollectionKeyBuilder struct {
	store   CollectionStore
	formats *stampfmt.Registry
}

// NewCollectionKeyBuilder returns a builder reading from store. A nil
// registry formats every type with the default precision.
func NewCollectionKeyBuilder(store CollectionStore, formats *stampfmt.Registry) *CollectionKeyBuilder {
	return &CollectionKeyBuilder{store: store, formats: formats}
}

// CollectionKeyWithoutTimestamp formats the identity-only key for a
// collection of count entities: "{type}/all/{count}".
func CollectionKeyWithoutTimestamp(typeName string, count int64) string {
	return typeName + "/all/" + strconv.FormatInt(count, 10)
}

// KeyWithoutTimestamp returns "{type}/all/{count}". No timestamp is read.
func (b *CollectionKeyBuilder) KeyWithoutTimestamp(ctx context.Context, typeName string) (string, error) {
	count, err := b.store.Count(ctx, typeName)
	if err != nil {
		return "", fmt.Errorf("count %s: %w", typeName, err)
	}
	return CollectionKeyWithoutTimestamp(typeName, count), nil
}

// Key returns "{type}/all/{count}-{timestamp}" where timestamp is the most
// recent value across every requested source field.
//
// Sources that do not exist on the type are skipped silently, as are sources
// whose maximum is null. When nothing remains the key falls back to
// KeyWithoutTimestamp.
func (b *CollectionKeyBuilder) Key(ctx context.Context, ref CollectionRef) (string, error) {
	snap, ok := b.store.(Snapshotter)
	if !ok {
		return b.key(ctx, b.store, ref)
	}
	var key string
	err := snap.View(ctx, func(s CollectionStore) error {
		var err error
		key, err = b.key(ctx, s, ref)
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (b *CollectionKeyBuilder) key(ctx context.Context, store CollectionStore, ref CollectionRef) (string, error) {
	sources, err := existingFields(ctx, store, ref.TypeName, ref.sources())
	if err != nil {
		return "", err
	}

	count, err := store.Count(ctx, ref.TypeName)
	if err != nil {
		return "", fmt.Errorf("count %s: %w", ref.TypeName, err)
	}

	ts, err := latest(ctx, sources, func(ctx context.Context, field string) (*time.Time, error) {
		return store.MaxOf(ctx, ref.TypeName, field)
	})
	if err != nil {
		return "", fmt.Errorf("max timestamp of %s: %w", ref.TypeName, err)
	}
	return stamp(CollectionKeyWithoutTimestamp(ref.TypeName, count), ts, b.formats.For(ref.TypeName)), nil
}

func existingFields(ctx context.Context, s SchemaIntrospector, typeName string, fields []string) ([]string, error) {
	existing := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		ok, err := s.FieldExists(ctx, typeName, f)
		if err != nil {
			return nil, fmt.Errorf("inspect %s.%s: %w", typeName, f, err)
		}
		if ok {
			existing = append(existing, f)
		}
	}
	return existing, nil
}
