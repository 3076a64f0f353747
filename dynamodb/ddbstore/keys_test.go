package ddbstore

import (
	"bytes"
	"testing"

	"github.com/acksell/cachekey/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKey_NumbersSortNumerically(t *testing.T) {
	def := table.PrimaryKeyDefinition{PartitionKey: table.KeyDef{Name: "id", Kind: table.KeyKindN}}
	prefix := tablePrefix("people")

	var prev []byte
	for _, n := range []string{"-100", "-1.5", "0", "2", "10", "1e3"} {
		key, err := encodeKey(prefix, table.PrimaryKey{Definition: def, Values: table.PrimaryKeyValues{PartitionKey: n}})
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(key, prefix))
		if prev != nil {
			assert.Negative(t, bytes.Compare(prev, key), "key for %s sorts too early", n)
		}
		prev = key
	}
}

func TestEncodeKey_SeparatorIsEscaped(t *testing.T) {
	def := table.PrimaryKeyDefinition{
		PartitionKey: table.KeyDef{Name: "pk", Kind: table.KeyKindS},
		SortKey:      table.KeyDef{Name: "sk", Kind: table.KeyKindS},
	}
	a, err := encodeKey(tablePrefix("t"), table.PrimaryKey{Definition: def, Values: table.PrimaryKeyValues{PartitionKey: "a\x00", SortKey: "b"}})
	require.NoError(t, err)
	b, err := encodeKey(tablePrefix("t"), table.PrimaryKey{Definition: def, Values: table.PrimaryKeyValues{PartitionKey: "a", SortKey: "\x00b"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = encodeKey(tablePrefix("t"), table.PrimaryKey{Definition: def, Values: table.PrimaryKeyValues{PartitionKey: 5, SortKey: "b"}})
	assert.Error(t, err)
}

func TestItemCodec_Nested(t *testing.T) {
	item := map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberN{Value: "1"},
		"gone": &types.AttributeValueMemberNULL{Value: true},
		"meta": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"tags": &types.AttributeValueMemberSS{Value: []string{"a", "b"}},
			"hist": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberBOOL{Value: true},
				&types.AttributeValueMemberB{Value: []byte{0, 1}},
			}},
		}},
	}
	data, err := encodeItem(item)
	require.NoError(t, err)
	got, err := decodeItem(data)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}
