package cachekey

import (
	"context"
	"fmt"

	"github.com/acksell/cachekey/stampfmt"
)

// EntityKeyBuilder builds keys for single entities.
type EntityKeyBuilder struct {
	formats *stampfmt.Registry
}

// NewEntityKeyBuilder returns a builder formatting timestamps per type with
// formats. A nil registry formats every type with the default precision.
func NewEntityKeyBuilder(formats *stampfmt.Registry) *EntityKeyBuilder {
	return &EntityKeyBuilder{formats: formats}
}

// KeyWithoutTimestamp returns "{type}/new" for new entities and
// "{type}/{id}" otherwise. Timestamps are never consulted, which leaves
// expiration entirely to the caller.
func (b *EntityKeyBuilder) KeyWithoutTimestamp(ref EntityRef) string {
	if ref.IsNew {
		return ref.TypeName + "/new"
	}
	return ref.TypeName + "/" + ref.ID
}

// KeyFromAttributes returns "{type}/{id}-{timestamp}" where timestamp is the
// most recent non-null value among the named attributes. The attributes do
// not have to be stored columns; any value the entity can read works.
//
// If every attribute is null the result equals KeyWithoutTimestamp. Naming no
// attribute, or passing an entity that was never persisted, fails with
// ErrInvalidArgument.
func (b *EntityKeyBuilder) KeyFromAttributes(ctx context.Context, e TimestampedEntity, attributes ...string) (string, error) {
	if len(attributes) == 0 {
		return "", fmt.Errorf("%w: at least one attribute name is required", ErrInvalidArgument)
	}
	ref := e.CacheRef()
	if ref.IsNew {
		return "", fmt.Errorf("%w: %s entity is not persisted", ErrInvalidArgument, ref.TypeName)
	}

	ts, err := latest(ctx, attributes, e.ReadTimestamp)
	if err != nil {
		return "", fmt.Errorf("read %s/%s timestamps: %w", ref.TypeName, ref.ID, err)
	}
	return stamp(b.KeyWithoutTimestamp(ref), ts, b.formats.For(ref.TypeName)), nil
}

// KeyFromAttribute is KeyFromAttributes for a single attribute.
func (b *EntityKeyBuilder) KeyFromAttribute(ctx context.Context, e TimestampedEntity, attribute string) (string, error) {
	return b.KeyFromAttributes(ctx, e, attribute)
}
