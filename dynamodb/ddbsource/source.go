// Package ddbsource reads and writes entities stored in DynamoDB tables for
// cache key derivation.
//
// A Source works with any [ddbiface.AWSDynamoClientV2]: the AWS SDK client in
// production or a ddbstore.Store locally. It implements
// cachekey.CollectionStore for collection keys, loads single entities as
// cachekey.TimestampedEntity values, and keeps parent timestamps fresh by
// performing the touch cascade declared in each table definition.
//
// Aggregates are computed with full table scans. DynamoDB cannot serve
// several scans from one snapshot, so Source does not implement
// cachekey.Snapshotter.
package ddbsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/dynamodb/ddbiface"
	"github.com/acksell/cachekey/dynamodb/table"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnknownType is returned for type names without a table definition.
	ErrUnknownType = errors.New("ddbsource: unknown entity type")
	// ErrNotFound is returned by Load when no entity has the requested id.
	ErrNotFound = errors.New("ddbsource: entity not found")
)

const tracerName = "github.com/acksell/cachekey/dynamodb/ddbsource"

// Source is a cachekey collaborator backed by DynamoDB tables, one table per
// entity type.
type Source struct {
	client ddbiface.AWSDynamoClientV2
	tables map[string]table.TableDefinition
	now    func() time.Time
	tracer trace.Tracer
}

var _ cachekey.CollectionStore = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithClock replaces time.Now for timestamps written by Save and Touch.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// WithTracerProvider sets the provider spans are created with. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Source) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// New returns a Source for the given tables.
func New(client ddbiface.AWSDynamoClientV2, defs []table.TableDefinition, opts ...Option) (*Source, error) {
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

	s := &Source{
		client: client,
		tables: tables,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) table(typeName string) (table.TableDefinition, error) {
	def, ok := s.tables[typeName]
	if !ok {
		return table.TableDefinition{}, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	return def, nil
}

func (s *Source) startSpan(ctx context.Context, name, typeName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("cachekey.type", typeName))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// FieldExists reports whether field is a timestamp attribute of typeName's
// table. Key attributes do not count.
func (s *Source) FieldExists(_ context.Context, typeName, field string) (bool, error) {
	def, err := s.table(typeName)
	if err != nil {
		return false, err
	}
	return def.HasTimestamp(field), nil
}
