package saptconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leaf_budget: 500\nbulk_workers: 4\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.LeafBudget)
	assert.Equal(t, 4, cfg.BulkWorkers)
	assert.Equal(t, Default().KVCachePagesMB, cfg.KVCachePagesMB,
		"an unspecified field keeps its built-in default")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("leaf_budget: [nope"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestFlagOverridesFile(t *testing.T) {
	cfg := Config{LeafBudget: 500}
	assert.Equal(t, 100, cfg.OverrideLeafBudget(100))
	assert.Equal(t, 500, cfg.OverrideLeafBudget(0))
}
