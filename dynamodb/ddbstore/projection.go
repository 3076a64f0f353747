package ddbstore

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// projectionNames resolves a projection expression of top-level attribute
// names, e.g. "#0, #1, id". Nested paths are not supported.
func projectionNames(expr string, names map[string]string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(expr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("empty path in projection expression %q", expr)
		}
		if strings.ContainsAny(name, ".[]") {
			return nil, fmt.Errorf("nested projection paths are not supported: %q", name)
		}
		if strings.HasPrefix(name, "#") {
			resolved, ok := names[name]
			if !ok {
				return nil, fmt.Errorf("expression attribute name %q is not defined", name)
			}
			name = resolved
		}
		out = append(out, name)
	}
	return out, nil
}

func project(expr *string, names map[string]string, item map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	if expr == nil || item == nil {
		return item, nil
	}
	attrs, err := projectionNames(*expr, names)
	if err != nil {
		return nil, err
	}
	return pick(item, attrs), nil
}

func projectAll(expr *string, names map[string]string, items []map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	if expr == nil {
		return items, nil
	}
	attrs, err := projectionNames(*expr, names)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]types.AttributeValue, len(items))
	for i, item := range items {
		out[i] = pick(item, attrs)
	}
	return out, nil
}

func pick(item map[string]types.AttributeValue, attrs []string) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(attrs))
	for _, a := range attrs {
		if v, ok := item[a]; ok {
			out[a] = v
		}
	}
	return out
}
