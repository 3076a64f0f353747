package cachekey_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/stampfmt"
	"github.com/stretchr/testify/assert"
)

// Builders hold no per-call state; run with -race.
func TestBuilders_ConcurrentUse(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	created := updated.Add(-time.Hour)

	formats := stampfmt.NewRegistry(stampfmt.Spec(stampfmt.Nsec), map[string]stampfmt.FormatSpec{
		"people": stampfmt.Spec(stampfmt.Number),
	})
	entities := cachekey.NewEntityKeyBuilder(formats)
	collections := cachekey.NewCollectionKeyBuilder(peopleStore(
		map[string]*time.Time{"updated_at": &updated},
		map[string]*time.Time{"created_at": &created},
	), formats)
	rec := cachekey.Record{
		Ref:        cachekey.PersistedRef("people", "1"),
		Timestamps: map[string]*time.Time{"updated_at": &updated, "created_at": &created},
	}

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key, err := entities.KeyFromAttributes(ctx, rec, "created_at", "updated_at")
				assert.NoError(t, err)
				assert.Equal(t, "people/1-20240101000000", key)

				key, err = collections.Key(ctx, cachekey.CollectionRef{TypeName: "people"})
				assert.NoError(t, err)
				assert.Equal(t, "people/all/2-20240101000000", key)

				assert.Equal(t, "people/new", entities.KeyWithoutTimestamp(cachekey.NewRef("people")))
			}
		}()
	}
	wg.Wait()
}
