package ddbstore

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// storedAV is the gob form of a types.AttributeValue. Exactly one field
// matching Kind is meaningful; recursive members use nested storedAVs so no
// interface needs registering with gob.
type storedAV struct {
	Kind string
	S    string
	B    []byte
	Bool bool
	Set  []string
	BSet [][]byte
	M    map[string]storedAV
	L    []storedAV
}

func encodeItem(item map[string]types.AttributeValue) ([]byte, error) {
	stored, err := toStoredMap(item)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeItem(data []byte) (map[string]types.AttributeValue, error) {
	var stored map[string]storedAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return fromStoredMap(stored)
}

func toStoredMap(m map[string]types.AttributeValue) (map[string]storedAV, error) {
	out := make(map[string]storedAV, len(m))
	for name, av := range m {
		v, err := toStored(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func fromStoredMap(m map[string]storedAV) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(m))
	for name, v := range m {
		av, err := fromStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = av
	}
	return out, nil
}

func toStored(av types.AttributeValue) (storedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAV{Kind: "S", S: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAV{Kind: "N", S: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAV{Kind: "B", B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAV{Kind: "BOOL", Bool: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAV{Kind: "NULL", Bool: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAV{Kind: "SS", Set: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAV{Kind: "NS", Set: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAV{Kind: "BS", BSet: v.Value}, nil
	case *types.AttributeValueMemberM:
		m, err := toStoredMap(v.Value)
		return storedAV{Kind: "M", M: m}, err
	case *types.AttributeValueMemberL:
		l := make([]storedAV, len(v.Value))
		for i, elem := range v.Value {
			var err error
			if l[i], err = toStored(elem); err != nil {
				return storedAV{}, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return storedAV{Kind: "L", L: l}, nil
	default:
		return storedAV{}, fmt.Errorf("unsupported attribute value type: %T", av)
	}
}

func fromStored(v storedAV) (types.AttributeValue, error) {
	switch v.Kind {
	case "S":
		return &types.AttributeValueMemberS{Value: v.S}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: v.S}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: v.B}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: v.Bool}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: v.Bool}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: v.Set}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: v.Set}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: v.BSet}, nil
	case "M":
		m, err := fromStoredMap(v.M)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		l := make([]types.AttributeValue, len(v.L))
		for i, elem := range v.L {
			var err error
			if l[i], err = fromStored(elem); err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored kind %q", v.Kind)
	}
}
