package ddbsource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is one stored entity. It implements cachekey.TimestampedEntity.
type Item struct {
	def   table.TableDefinition
	id    string
	attrs map[string]types.AttributeValue
}

var _ cachekey.TimestampedEntity = (*Item)(nil)

func (i *Item) CacheRef() cachekey.EntityRef {
	if i.id == "" {
		return cachekey.NewRef(i.def.Name)
	}
	return cachekey.PersistedRef(i.def.Name, i.id)
}

// ReadTimestamp decodes the named attribute. Declared timestamp attributes
// that are missing from the item read as null; other missing attributes are
// unknown.
func (i *Item) ReadTimestamp(_ context.Context, attribute string) (*time.Time, error) {
	av, ok := i.attrs[attribute]
	if !ok {
		if slices.Contains(i.def.Timestamps, attribute) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s has no attribute %q", cachekey.ErrUnknownAttribute, i.def.Name, attribute)
	}
	ts, err := decodeTime(av)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", i.def.Name, attribute, err)
	}
	return ts, nil
}

// Attributes returns a copy of the stored attributes.
func (i *Item) Attributes() map[string]types.AttributeValue {
	return maps.Clone(i.attrs)
}

// NewItem wraps attributes of an entity of typeName that has not been saved.
func (s *Source) NewItem(typeName string, attrs map[string]types.AttributeValue) (*Item, error) {
	def, err := s.table(typeName)
	if err != nil {
		return nil, err
	}
	return &Item{def: def, attrs: maps.Clone(attrs)}, nil
}

// Load reads the entity of typeName with the given id.
func (s *Source) Load(ctx context.Context, typeName, id string) (*Item, error) {
	def, err := s.table(typeName)
	if err != nil {
		return nil, err
	}
	key, err := def.KeyDefinitions.KeyFor(id)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &def.Name,
		Key:            key,
		ConsistentRead: ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", typeName, id, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, typeName, id)
	}
	return &Item{def: def, id: id, attrs: out.Item}, nil
}

// Save stores item, setting created_at (when declared and unset) and
// updated_at (when declared) to the current time, then touches every parent
// the table declares. The item becomes persisted.
func (s *Source) Save(ctx context.Context, item *Item) error {
	now := s.now()
	attrs := maps.Clone(item.attrs)
	if attrs == nil {
		attrs = make(map[string]types.AttributeValue)
	}
	if err := s.stamp(item.def, attrs, "created_at", now, false); err != nil {
		return err
	}
	if err := s.stamp(item.def, attrs, table.DefaultTimestamp, now, true); err != nil {
		return err
	}

	id, err := item.def.ID(attrs)
	if err != nil {
		return fmt.Errorf("save %s: %w", item.def.Name, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &item.def.Name, Item: attrs}); err != nil {
		return fmt.Errorf("put %s/%s: %w", item.def.Name, id, err)
	}
	item.attrs = attrs
	item.id = id

	return s.touchParents(ctx, item.def, attrs, now, map[string]bool{item.def.Name + "/" + id: true})
}

func (s *Source) stamp(def table.TableDefinition, attrs map[string]types.AttributeValue, field string, now time.Time, overwrite bool) error {
	if !slices.Contains(def.Timestamps, field) {
		return nil
	}
	if existing, ok := attrs[field]; ok && !overwrite {
		if _, null := existing.(*types.AttributeValueMemberNULL); !null {
			return nil
		}
	}
	av, err := encodeTime(now)
	if err != nil {
		return err
	}
	attrs[field] = av
	return nil
}

// Touch sets field (default updated_at) of the entity to the current time
// without changing anything else, and cascades to its parents.
//
// The read and the write are separate requests, so a concurrent writer to the
// same item can be overwritten.
func (s *Source) Touch(ctx context.Context, typeName, id, field string) error {
	return s.touch(ctx, typeName, id, field, s.now(), map[string]bool{})
}

func (s *Source) touch(ctx context.Context, typeName, id, field string, now time.Time, seen map[string]bool) error {
	ref := typeName + "/" + id
	if seen[ref] {
		return nil
	}
	seen[ref] = true

	item, err := s.Load(ctx, typeName, id)
	if err != nil {
		return err
	}
	if field == "" {
		field = table.DefaultTimestamp
	}
	if !item.def.HasTimestamp(field) {
		return fmt.Errorf("%w: %s has no timestamp %q", cachekey.ErrUnknownAttribute, typeName, field)
	}
	av, err := encodeTime(now)
	if err != nil {
		return err
	}
	item.attrs[field] = av
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &item.def.Name, Item: item.attrs}); err != nil {
		return fmt.Errorf("touch %s: %w", ref, err)
	}
	return s.touchParents(ctx, item.def, item.attrs, now, seen)
}

func (s *Source) touchParents(ctx context.Context, def table.TableDefinition, attrs map[string]types.AttributeValue, now time.Time, seen map[string]bool) error {
	for _, t := range def.Touches {
		parentID, ok := foreignKey(attrs[t.ForeignKey])
		if !ok {
			continue
		}
		err := s.touch(ctx, t.Parent, parentID, t.TouchedField(), now, seen)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func foreignKey(av types.AttributeValue) (string, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, v.Value != ""
	case *types.AttributeValueMemberN:
		return v.Value, true
	default:
		return "", false
	}
}

// Delete removes the entity and touches its parents.
func (s *Source) Delete(ctx context.Context, typeName, id string) error {
	item, err := s.Load(ctx, typeName, id)
	if err != nil {
		return err
	}
	key, err := item.def.KeyDefinitions.KeyFor(id)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &item.def.Name, Key: key}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", typeName, id, err)
	}
	return s.touchParents(ctx, item.def, item.attrs, s.now(), map[string]bool{typeName + "/" + id: true})
}

// Replace writes attrs as the entity of typeName verbatim: no timestamp is
// set and no parent is touched.
func (s *Source) Replace(ctx context.Context, typeName string, attrs map[string]types.AttributeValue) error {
	def, err := s.table(typeName)
	if err != nil {
		return err
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &def.Name, Item: attrs}); err != nil {
		return fmt.Errorf("put %s: %w", typeName, err)
	}
	return nil
}
