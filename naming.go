package cachekey

import (
	"reflect"

	"gorm.io/gorm/schema"
)

// TypeNamer lets a type choose its own name in keys.
type TypeNamer interface {
	CacheTypeName() string
}

var naming schema.Namer = schema.NamingStrategy{}

// TypeName returns the name v's type uses in keys.
//
// Types implementing [TypeNamer] decide for themselves. Otherwise the Go type
// name is pluralized and converted to snake case, so Person becomes "people"
// and LineItem becomes "line_items". Pointers are dereferenced.
func TypeName(v any) string {
	if n, ok := v.(TypeNamer); ok {
		return n.CacheTypeName()
	}
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return naming.TableName(t.Name())
}
