package ddbstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/acksell/cachekey/dynamodb/table"
)

// Badger keys are [table][0x00][kind][partition][0x00][kind][sort]. Every
// component is escaped so the 0x00 separator never appears inside one, and
// numbers are encoded so byte order matches numeric order.

const keySeparator byte = 0x00

func tablePrefix(tableName string) []byte {
	return append(escapeBytes(nil, []byte(tableName)), keySeparator)
}

func encodeKey(prefix []byte, pk table.PrimaryKey) ([]byte, error) {
	key := append([]byte(nil), prefix...)
	key, err := appendKeyValue(key, pk.Values.PartitionKey, pk.Definition.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("partition key: %w", err)
	}
	key = append(key, keySeparator)
	if pk.Definition.SortKey.Name == "" {
		return key, nil
	}
	key, err = appendKeyValue(key, pk.Values.SortKey, pk.Definition.SortKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("sort key: %w", err)
	}
	return key, nil
}

func appendKeyValue(dst []byte, value any, kind table.KeyKind) ([]byte, error) {
	switch kind {
	case table.KeyKindS, "":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", value)
		}
		return escapeBytes(append(dst, 'S'), []byte(s)), nil

	case table.KeyKindN:
		var f float64
		var err error
		switch v := value.(type) {
		case string:
			f, err = strconv.ParseFloat(v, 64)
		case float64:
			f = v
		case int:
			f = float64(v)
		case int64:
			f = float64(v)
		default:
			return nil, fmt.Errorf("expected number for N key, got %T", value)
		}
		if err != nil {
			return nil, fmt.Errorf("parse number %v: %w", value, err)
		}
		return appendOrderedFloat(append(dst, 'N'), f), nil

	case table.KeyKindB:
		switch v := value.(type) {
		case []byte:
			return escapeBytes(append(dst, 'B'), v), nil
		case string:
			return escapeBytes(append(dst, 'B'), []byte(v)), nil
		}
		return nil, fmt.Errorf("expected binary for B key, got %T", value)

	default:
		return nil, fmt.Errorf("unsupported key kind: %s", kind)
	}
}

// appendOrderedFloat writes f as a sign byte and 8 big-endian bytes whose
// lexicographic order is the numeric order.
func appendOrderedFloat(dst []byte, f float64) []byte {
	bits := math.Float64bits(f)
	sign := byte(0x80)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		sign = 0x7F
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(append(dst, sign), bits)
}

// escapeBytes appends b to dst with 0x00 written as 0x01 0x01 and 0x01 as
// 0x01 0x02.
func escapeBytes(dst, b []byte) []byte {
	for _, c := range b {
		switch c {
		case 0x00:
			dst = append(dst, 0x01, 0x01)
		case 0x01:
			dst = append(dst, 0x01, 0x02)
		default:
			dst = append(dst, c)
		}
	}
	return dst
}
