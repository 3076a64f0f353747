package ddbsource

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Count returns the number of entities of typeName, following scan pages
// until the table is exhausted.
func (s *Source) Count(ctx context.Context, typeName string) (n int64, err error) {
	def, err := s.table(typeName)
	if err != nil {
		return 0, err
	}
	ctx, span := s.startSpan(ctx, "ddbsource.Count", typeName)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	input := &dynamodb.ScanInput{
		TableName:      &def.Name,
		Select:         types.SelectCount,
		ConsistentRead: ptr(true),
	}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return 0, fmt.Errorf("scan %s: %w", def.Name, err)
		}
		n += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return n, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// MaxOf returns the most recent value of field across every entity of
// typeName, or nil when no entity has a non-null value.
func (s *Source) MaxOf(ctx context.Context, typeName, field string) (newest *time.Time, err error) {
	def, err := s.table(typeName)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "ddbsource.MaxOf", typeName, attribute.String("cachekey.field", field))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name(field))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build projection for %q: %w", field, err)
	}

	input := &dynamodb.ScanInput{
		TableName:                &def.Name,
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
		ConsistentRead:           ptr(true),
	}
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", def.Name, err)
		}
		for _, item := range out.Items {
			ts, err := decodeTime(item[field])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", def.Name, field, err)
			}
			if ts != nil && (newest == nil || ts.After(*newest)) {
				newest = ts
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return newest, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// decodeTime reads a timestamp attribute. Strings hold RFC 3339 timestamps
// (how attributevalue marshals time.Time), numbers hold Unix seconds. Missing
// and NULL attributes decode to nil.
func decodeTime(av types.AttributeValue) (*time.Time, error) {
	switch v := av.(type) {
	case nil, *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberS:
		var t time.Time
		if err := attributevalue.Unmarshal(v, &t); err != nil {
			return nil, fmt.Errorf("decode timestamp %q: %w", v.Value, err)
		}
		return &t, nil
	case *types.AttributeValueMemberN:
		t, err := parseUnix(v.Value)
		if err != nil {
			return nil, fmt.Errorf("decode unix timestamp %q: %w", v.Value, err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("attribute of type %T is not a timestamp", av)
	}
}

// parseUnix reads decimal Unix seconds with up to nanosecond precision.
// Seconds and fraction are parsed as integers so no digit is lost to float
// rounding. Digits past the ninth fractional place are truncated.
func parseUnix(s string) (time.Time, error) {
	if strings.ContainsAny(s, "eE") {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, err
		}
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*float64(time.Second))).UTC(), nil
	}

	whole, frac, _ := strings.Cut(s, ".")
	negative := strings.HasPrefix(whole, "-")
	var secs int64
	if whole != "" && whole != "-" && whole != "+" {
		var err error
		if secs, err = strconv.ParseInt(whole, 10, 64); err != nil {
			return time.Time{}, err
		}
	}
	var nanos int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		nanos = int64(n)
		if negative {
			nanos = -nanos
		}
	}
	return time.Unix(secs, nanos).UTC(), nil
}

// encodeTime marshals t the way decodeTime reads it back.
func encodeTime(t time.Time) (types.AttributeValue, error) {
	return attributevalue.Marshal(t.UTC())
}

func ptr[T any](v T) *T {
	return &v
}
