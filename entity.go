// Package cachekey derives cache keys for persisted entities and for whole
// collections of entities.
//
// A key changes when the data it describes changes: entity keys combine the
// type name and id with the most recent of any number of timestamp
// attributes, collection keys combine the entity count with the most recent
// value of one or more timestamp fields across the collection. Missing
// timestamps never fail a key computation; the key degrades to an
// identity-only form instead.
//
//	ek := cachekey.NewEntityKeyBuilder(formats)
//	ek.KeyWithoutTimestamp(cachekey.NewRef("products"))        // "products/new"
//	ek.KeyFromAttributes(ctx, person, "updated_at", "synced_at") // "people/5-20240101000000000000000"
//
//	ck := cachekey.NewCollectionKeyBuilder(store, formats)
//	ck.Key(ctx, cachekey.CollectionRef{TypeName: "people"})     // "people/all/3-20240101000000000000000"
//
// Loading, counting and aggregating are done by collaborators implementing
// [AttributeReader], [SchemaIntrospector] and [AggregateQueryExecutor]. The
// key builders hold no mutable state and are safe for concurrent use.
package cachekey

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/exp/constraints"
)

// EntityRef identifies one entity instance.
//
// A new (not yet persisted) entity has no id.
type EntityRef struct {
	TypeName string
	ID       string
	IsNew    bool
}

// NewRef refers to an entity of typeName that has not been persisted yet.
func NewRef(typeName string) EntityRef {
	return EntityRef{TypeName: typeName, IsNew: true}
}

// PersistedRef refers to a stored entity of typeName with the given id.
func PersistedRef(typeName, id string) EntityRef {
	return EntityRef{TypeName: typeName, ID: id}
}

// IntID renders an integer id the way it appears in keys.
func IntID[T constraints.Integer](id T) string {
	if id < 0 {
		return strconv.FormatInt(int64(id), 10)
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Entity is implemented by anything that can be keyed by identity.
type Entity interface {
	CacheRef() EntityRef
}

// AttributeReader reads the current value of a named timestamp attribute.
//
// A nil time with a nil error means the attribute is null. Readers must not
// mutate the entity. An attribute the entity does not have should be reported
// with an error wrapping [ErrUnknownAttribute].
type AttributeReader interface {
	ReadTimestamp(ctx context.Context, attribute string) (*time.Time, error)
}

// TimestampedEntity is an Entity that can also read timestamp attributes.
// Any storage-backed type opts in to attribute keys by implementing it.
type TimestampedEntity interface {
	Entity
	AttributeReader
}

// CollectionRef identifies a homogeneous set of entities and the timestamp
// fields to consult for its freshness.
//
// Sources defaults to [DefaultTimestampSource] when empty.
type CollectionRef struct {
	TypeName string
	Sources  []string
}

// DefaultTimestampSource is consulted when a CollectionRef names no sources.
const DefaultTimestampSource = "updated_at"

func (r CollectionRef) sources() []string {
	if len(r.Sources) == 0 {
		return []string{DefaultTimestampSource}
	}
	return r.Sources
}

// SchemaIntrospector reports which fields exist on an entity type.
type SchemaIntrospector interface {
	FieldExists(ctx context.Context, typeName, field string) (bool, error)
}

// AggregateQueryExecutor runs read-only aggregate queries over the collection
// of all entities of a type.
//
// MaxOf returns nil when the collection is empty or every value of field is
// null.
type AggregateQueryExecutor interface {
	Count(ctx context.Context, typeName string) (int64, error)
	MaxOf(ctx context.Context, typeName, field string) (*time.Time, error)
}

// CollectionStore is everything the collection key needs from storage.
type CollectionStore interface {
	SchemaIntrospector
	AggregateQueryExecutor
}

// Snapshotter is implemented by stores that can serve several reads from one
// consistent snapshot. When the store given to a CollectionKeyBuilder
// implements it, the count and every aggregate for one key are read inside a
// single View call.
type Snapshotter interface {
	View(ctx context.Context, fn func(CollectionStore) error) error
}
