package stampfmt

import (
	"maps"
	"time"
)

// Registry maps entity type names to their FormatSpec.
//
// A Registry is built once at configuration time and never mutated after
// construction, so lookups need no locking.
type Registry struct {
	fallback FormatSpec
	specs    map[string]FormatSpec
}

// NewRegistry returns a registry using fallback for every type not present in
// specs. The specs map is copied.
func NewRegistry(fallback FormatSpec, specs map[string]FormatSpec) *Registry {
	if fallback.Precision == "" {
		fallback.Precision = DefaultPrecision
	}
	return &Registry{
		fallback: fallback,
		specs:    maps.Clone(specs),
	}
}

// For returns the FormatSpec configured for typeName.
// A nil Registry returns the default spec.
func (r *Registry) For(typeName string) FormatSpec {
	if r == nil {
		return Spec(DefaultPrecision)
	}
	if spec, ok := r.specs[typeName]; ok && spec.Precision != "" {
		return spec
	}
	return r.fallback
}

// Format renders t with the spec registered for typeName.
func (r *Registry) Format(typeName string, t time.Time) string {
	return Format(t, r.For(typeName))
}
