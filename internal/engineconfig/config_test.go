package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.snapshots/internal/store"
)

func TestDefaultEngineConfigValues(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.True(t, cfg.Store.SaveDiffFiles)
	assert.Equal(t, "markdown", cfg.Store.DiffFormat)
	assert.Equal(t, DriftWarn, cfg.Drift.Strategy)
	assert.Equal(t, 1, cfg.Consolidation.MinSnapshots)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), cfg)
}

func TestLoadOverlaysYAMLOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	content := `
workspace_path: /tmp/workspace
store:
  diff_format: plain
  cache_size: 64
drift:
  strategy: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/workspace", cfg.WorkspacePath)
	assert.Equal(t, "plain", cfg.Store.DiffFormat)
	assert.Equal(t, 64, cfg.Store.CacheSize)
	assert.Equal(t, DriftStrategy("error"), cfg.Drift.Strategy)
	// Fields left unset by the overlay keep their defaults.
	assert.True(t, cfg.Store.SaveDiffFiles)
}

func TestStoreConfigConversion(t *testing.T) {
	sc := StoreConfig{SaveDiffFiles: true, DiffFormat: "text", CacheSize: 10}
	converted := sc.ToStoreConfig()
	assert.Equal(t, store.DiffFormatText, converted.DiffFormat)
	assert.Equal(t, 10, converted.CacheSize)
}

func TestStoreConfigConversionDefaultsToMarkdown(t *testing.T) {
	sc := StoreConfig{DiffFormat: "unrecognized"}
	converted := sc.ToStoreConfig()
	assert.Equal(t, store.DiffFormatMarkdown, converted.DiffFormat)
}

func TestCheckpointConfigConversion(t *testing.T) {
	cc := CheckpointConfig{SaveLatestFiles: true}
	converted := cc.ToCheckpointConfig()
	assert.True(t, converted.SaveLatestFiles)
}
