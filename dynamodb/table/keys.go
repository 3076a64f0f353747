package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef
	SortKey      KeyDef // optional, empty Name means partition key only
}

type KeyDef struct {
	Name string
	Kind KeyKind
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// KeyFor builds the key of the entity with the given id. Only tables without
// a sort key can be addressed by id alone.
func (k PrimaryKeyDefinition) KeyFor(id string) (map[string]types.AttributeValue, error) {
	if k.SortKey.Name != "" {
		return nil, fmt.Errorf("table has sort key %q, an id alone does not address an item", k.SortKey.Name)
	}
	var av types.AttributeValue
	switch k.PartitionKey.Kind {
	case KeyKindS, "":
		av = &types.AttributeValueMemberS{Value: id}
	case KeyKindN:
		av = &types.AttributeValueMemberN{Value: id}
	case KeyKindB:
		av = &types.AttributeValueMemberB{Value: []byte(id)}
	default:
		return nil, fmt.Errorf("unsupported key kind: %q", k.PartitionKey.Kind)
	}
	return map[string]types.AttributeValue{k.PartitionKey.Name: av}, nil
}

// DDB marshals the key values into a DynamoDB key.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := attributevalue.Marshal(k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("marshal partition key of type %T with value %v: %w", k.Values.PartitionKey, k.Values.PartitionKey, err)
	}
	if err := attributeMatchesDefinition(k.Definition.PartitionKey.Kind, pk); err != nil {
		return nil, fmt.Errorf("partition key kind does not match dynamo value: %w", err)
	}
	if k.Definition.SortKey.Name == "" {
		return map[string]types.AttributeValue{
			k.Definition.PartitionKey.Name: pk,
		}, nil
	}
	if k.Values.SortKey == nil {
		return nil, fmt.Errorf("sort key %q is required but got nil", k.Definition.SortKey.Name)
	}
	sk, err := attributevalue.Marshal(k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("marshal sort key of type %T with value %v: %w", k.Values.SortKey, k.Values.SortKey, err)
	}
	if err := attributeMatchesDefinition(k.Definition.SortKey.Kind, sk); err != nil {
		return nil, fmt.Errorf("sort key %q kind does not match dynamo value: %w", k.Definition.SortKey.Name, err)
	}

	return map[string]types.AttributeValue{
		k.Definition.PartitionKey.Name: pk,
		k.Definition.SortKey.Name:      sk,
	}, nil
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v.(type) {
	case *types.AttributeValueMemberS:
		got = KeyKindS
	case *types.AttributeValueMemberN:
		got = KeyKindN
	case *types.AttributeValueMemberB:
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}
