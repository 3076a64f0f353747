// Package table describes how entity types are stored: which attribute holds
// the id, which attributes hold timestamps, and which writes touch a related
// entity.
package table

import (
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultTimestamp is the attribute touched when a TouchDef names none.
const DefaultTimestamp = "updated_at"

// TableDefinition describes the table holding all entities of one type.
// Name doubles as the type name used in cache keys.
type TableDefinition struct {
	Name           string
	KeyDefinitions PrimaryKeyDefinition
	// Timestamps lists the attributes holding timestamps. Only these (and the
	// key attributes) are reported as existing fields.
	Timestamps []string
	// Touches lists the related entities whose timestamp is refreshed
	// whenever an entity of this type is written.
	Touches []TouchDef
}

// TouchDef declares that writing an entity refreshes a timestamp on a related
// parent entity, so the parent's keys (and its collection's) change too.
type TouchDef struct {
	// ForeignKey is the attribute on the child holding the parent's id.
	ForeignKey string
	// Parent is the table name of the parent type.
	Parent string
	// Field is the parent's timestamp attribute. Defaults to DefaultTimestamp.
	Field string
}

// TouchedField returns Field or DefaultTimestamp.
func (d TouchDef) TouchedField() string {
	if d.Field == "" {
		return DefaultTimestamp
	}
	return d.Field
}

// HasTimestamp reports whether name is a declared timestamp attribute. Key
// attributes are never timestamps, even when numeric.
func (t TableDefinition) HasTimestamp(name string) bool {
	return name != "" && slices.Contains(t.Timestamps, name)
}

// Validate checks the definition is usable.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if t.KeyDefinitions.PartitionKey.Name == "" {
		return fmt.Errorf("table %q: partition key name is required", t.Name)
	}
	for i, touch := range t.Touches {
		if touch.ForeignKey == "" || touch.Parent == "" {
			return fmt.Errorf("table %q: touch %d needs a foreign key and a parent", t.Name, i)
		}
	}
	return nil
}

// ValidateTouches checks that every touch in defs names a defined parent and a
// timestamp attribute declared on that parent.
func ValidateTouches(defs []TableDefinition) error {
	byName := make(map[string]TableDefinition, len(defs))
	for _, def := range defs {
		byName[def.Name] = def
	}
	for _, def := range defs {
		for _, touch := range def.Touches {
			parent, ok := byName[touch.Parent]
			if !ok {
				return fmt.Errorf("table %q touches undefined table %q", def.Name, touch.Parent)
			}
			if !parent.HasTimestamp(touch.TouchedField()) {
				return fmt.Errorf("table %q touches %s.%s, which is not a timestamp attribute", def.Name, touch.Parent, touch.TouchedField())
			}
		}
	}
	return nil
}

// ID returns the item's id as it appears in cache keys. For tables with a
// sort key the two key values are joined with "/".
func (t TableDefinition) ID(item map[string]types.AttributeValue) (string, error) {
	pk, err := t.ExtractPrimaryKey(item)
	if err != nil {
		return "", err
	}
	id := fmt.Sprint(pk.Values.PartitionKey)
	if t.KeyDefinitions.SortKey.Name != "" {
		id += "/" + fmt.Sprint(pk.Values.SortKey)
	}
	return id, nil
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if k.SortKey.Name == "" {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		panic(fmt.Sprintf("unsupported attribute value %T for dynamodb keys", v))
	}
}
