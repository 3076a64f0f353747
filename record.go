package cachekey

import (
	"context"
	"fmt"
	"time"
)

// Record is a TimestampedEntity holding its attributes in memory.
//
// Attributes present in Timestamps with a nil value are null; attributes
// missing from Timestamps are unknown.
type Record struct {
	Ref        EntityRef
	Timestamps map[string]*time.Time
}

func (r Record) CacheRef() EntityRef {
	return r.Ref
}

func (r Record) ReadTimestamp(_ context.Context, attribute string) (*time.Time, error) {
	ts, ok := r.Timestamps[attribute]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no attribute %q", ErrUnknownAttribute, r.Ref.TypeName, attribute)
	}
	return ts, nil
}

var _ TimestampedEntity = Record{}
