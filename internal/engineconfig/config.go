// Package engineconfig defines the snapshot engine's aggregate
// configuration — one root struct rolling up a small config per
// sub-manager — and loads it with viper from YAML/JSON/TOML.
package engineconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"dev.helix.snapshots/internal/checkpoint"
	"dev.helix.snapshots/internal/store"
)

// DriftStrategy selects how create_snapshot reacts to detected drift.
type DriftStrategy string

const (
	DriftWarn    DriftStrategy = "warn"
	DriftAutoFix DriftStrategy = "auto-fix"
	DriftError   DriftStrategy = "error"
)

// StoreConfig configures the Core snapshot store.
type StoreConfig struct {
	SaveDiffFiles bool   `mapstructure:"save_diff_files" json:"save_diff_files" yaml:"save_diff_files"`
	DiffFormat    string `mapstructure:"diff_format" json:"diff_format" yaml:"diff_format"` // "markdown" | "plain" | "text"
	CacheSize     int    `mapstructure:"cache_size" json:"cache_size" yaml:"cache_size"`
}

// ToStoreConfig converts the mapstructure-friendly config into store.Config.
func (c StoreConfig) ToStoreConfig() store.Config {
	format := store.DiffFormatMarkdown
	switch c.DiffFormat {
	case "plain":
		format = store.DiffFormatPlain
	case "text":
		format = store.DiffFormatText
	}
	return store.Config{
		SaveDiffFiles: c.SaveDiffFiles,
		DiffFormat:    format,
		CacheSize:     c.CacheSize,
	}
}

// CheckpointConfig configures the Checkpoint manager.
type CheckpointConfig struct {
	SaveLatestFiles bool          `mapstructure:"save_latest_files" json:"save_latest_files" yaml:"save_latest_files"`
	MaxAge          time.Duration `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
}

// ToCheckpointConfig converts to checkpoint.Config.
func (c CheckpointConfig) ToCheckpointConfig() checkpoint.Config {
	return checkpoint.Config{SaveLatestFiles: c.SaveLatestFiles}
}

// IgnoreConfig configures the Ignore manager's config-provided exclusions.
type IgnoreConfig struct {
	ExcludeFromChecking []string `mapstructure:"exclude_from_checking" json:"exclude_from_checking" yaml:"exclude_from_checking"`
}

// ConsolidationConfig holds candidate-count bounds with the meaning of
// consolidate.Criteria's MinSnapshots/MaxSnapshots. They are loaded with the
// rest of the config; no engine code reads them.
type ConsolidationConfig struct {
	MinSnapshots int `mapstructure:"min_snapshots" json:"min_snapshots" yaml:"min_snapshots"`
	MaxSnapshots int `mapstructure:"max_snapshots" json:"max_snapshots" yaml:"max_snapshots"`
}

// DriftConfig configures unknown-change detection.
type DriftConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Strategy DriftStrategy `mapstructure:"strategy" json:"strategy" yaml:"strategy"`
}

// EngineConfig is the snapshot engine's root configuration, aggregating
// every sub-manager's config, loadable from YAML/JSON/env via viper.
type EngineConfig struct {
	WorkspacePath string              `mapstructure:"workspace_path" json:"workspace_path" yaml:"workspace_path"`
	Store         StoreConfig         `mapstructure:"store" json:"store" yaml:"store"`
	Checkpoint    CheckpointConfig    `mapstructure:"checkpoint" json:"checkpoint" yaml:"checkpoint"`
	Ignore        IgnoreConfig        `mapstructure:"ignore" json:"ignore" yaml:"ignore"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation" json:"consolidation" yaml:"consolidation"`
	Drift         DriftConfig         `mapstructure:"drift" json:"drift" yaml:"drift"`
}

// DefaultEngineConfig returns the engine's production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Store: StoreConfig{
			SaveDiffFiles: true,
			DiffFormat:    "markdown",
			CacheSize:     256,
		},
		Checkpoint: CheckpointConfig{
			SaveLatestFiles: false,
			MaxAge:          30 * 24 * time.Hour,
		},
		Consolidation: ConsolidationConfig{
			MinSnapshots: 1,
			MaxSnapshots: 50,
		},
		Drift: DriftConfig{
			Enabled:  true,
			Strategy: DriftWarn,
		},
	}
}

// Load reads an EngineConfig from a YAML/JSON/TOML file at path via viper,
// overlaying it on DefaultEngineConfig. A missing file is not an error: the
// defaults are returned unchanged.
func Load(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}
	// viper only reports ConfigFileNotFoundError for search-path lookups;
	// with an explicit SetConfigFile a missing file surfaces as a plain
	// open error, so check existence first to keep missing-file tolerance.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return EngineConfig{}, fmt.Errorf("engineconfig: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("engineconfig: unmarshaling %s: %w", path, err)
	}
	return cfg, nil
}
