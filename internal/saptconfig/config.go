// Package saptconfig loads the optional YAML sidecar config the CLI
// tools use for batch defaults, layered under whatever explicit flags
// a command line actually sets: flags override the file, the file
// overrides the built-in defaults below.
package saptconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sapt-mt/sapt/internal/saptid"
)

// Config holds the batch-tunable defaults: the tree's leaf-array
// budget K, the bulk-loader's worker count, and the KV store's page
// cache size.
type Config struct {
	// LeafBudget is the Token Index's maxLeafSize (K). 0 selects the
	// package default.
	LeafBudget int `yaml:"leaf_budget"`
	// BulkWorkers is the worker-pool size BulkBuild fans its subtree
	// sorts across. 0 selects hardware parallelism (GOMAXPROCS).
	BulkWorkers int `yaml:"bulk_workers"`
	// KVCachePagesMB is an advisory hint for the KV store's page cache
	// size, in megabytes. bbolt itself relies on the OS page cache, so
	// this is surfaced to operators but not wired to a bbolt option.
	KVCachePagesMB int `yaml:"kv_cache_mb"`
}

// Default returns the built-in defaults used when no sidecar file is
// present and no flag overrides a field.
func Default() Config {
	return Config{LeafBudget: 0, BulkWorkers: 0, KVCachePagesMB: 64}
}

// Load reads a YAML sidecar file at path, starting from Default() so
// any field the file omits keeps its built-in value. A missing file is
// not an error: Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, saptid.Wrap(saptid.KindIoFailure, err, "read config "+path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, saptid.Wrap(saptid.KindUsageError, err, "parse config "+path)
	}
	return cfg, nil
}

// OverrideLeafBudget applies an explicit flag value over cfg's leaf
// budget when flagVal is non-zero, per the flags-beat-file precedence.
func (c Config) OverrideLeafBudget(flagVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	return c.LeafBudget
}

// OverrideBulkWorkers applies an explicit flag value over cfg's worker
// count when flagVal is non-zero.
func (c Config) OverrideBulkWorkers(flagVal int) int {
	if flagVal != 0 {
		return flagVal
	}
	return c.BulkWorkers
}
