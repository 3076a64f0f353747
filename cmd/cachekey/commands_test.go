package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/acksell/cachekey"
	"github.com/acksell/cachekey/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
}

func TestOpenStore(t *testing.T) {
	cfg, err := config.Parse([]byte(`
tables:
  - name: people
    partitionKey: {name: id}
    timestamps: [updated_at]
`), nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		backend config.Backend
		dataDir string
		snap    bool
	}{
		{name: "badger in memory", backend: config.BackendBadger},
		{name: "bolt", backend: config.BackendBolt, dataDir: filepath.Join(t.TempDir(), "cache.db"), snap: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := cfg
			cfg.Backend = tt.backend
			cfg.DataDir = tt.dataDir

			s, closeFn, err := openStore(ctx, cfg, cfg.TableDefinitions(), logrus.New())
			require.NoError(t, err)
			defer closeFn()

			_, isSnap := s.(cachekey.Snapshotter)
			assert.Equal(t, tt.snap, isSnap)

			key, err := cachekey.NewCollectionKeyBuilder(s, cfg.Registry()).Key(ctx, cachekey.CollectionRef{TypeName: "people"})
			require.NoError(t, err)
			assert.Equal(t, "people/all/0", key)

			_, err = s.Entity(ctx, "people", "1")
			assert.Error(t, err)
		})
	}
}

func TestSetup_PersistentStoreRequired(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("defaultFormat: nsec\n"), 0o644))
	ctx := context.Background()

	_, err := setup(ctx, commonFlags{configPath: cfgPath}, true)
	assert.ErrorIs(t, err, errNoData)

	s, err := setup(ctx, commonFlags{configPath: cfgPath}, false)
	require.NoError(t, err)
	s.close()

	s, err = setup(ctx, commonFlags{configPath: cfgPath, backend: "bolt", dataDir: filepath.Join(dir, "cache.db")}, true)
	require.NoError(t, err)
	s.close()
}
