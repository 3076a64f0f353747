package cachekey

import (
	"context"
	"time"

	"github.com/acksell/cachekey/stampfmt"
)

// resolveFunc reads one candidate timestamp. nil means null.
type resolveFunc func(ctx context.Context, name string) (*time.Time, error)

// latest resolves every candidate, drops nulls and returns the most recent
// instant, or nil when nothing is left. Equal instants are interchangeable.
func latest(ctx context.Context, names []string, resolve resolveFunc) (*time.Time, error) {
	var newest *time.Time
	for _, name := range names {
		ts, err := resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		if ts == nil {
			continue
		}
		if newest == nil || ts.After(*newest) {
			newest = ts
		}
	}
	return newest, nil
}

// stamp appends "-{timestamp}" to base, or returns base unchanged when ts is nil.
func stamp(base string, ts *time.Time, spec stampfmt.FormatSpec) string {
	if ts == nil {
		return base
	}
	return base + "-" + stampfmt.Format(*ts, spec)
}
