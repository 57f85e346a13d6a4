// Package checkpoint implements the checkpoint manager: the hash baseline
// of the whole workspace that unknown-change detection diffs the live tree
// against. Checkpoints are replaceable — a new one is written after every
// committed snapshot and only the latest serves as the baseline.
package checkpoint

import "time"

// Metadata holds size/timing bookkeeping for a checkpoint.
type Metadata struct {
	TotalFiles     int   `json:"total_files"`
	CreationTimeMs int64 `json:"creation_time_ms"`
}

// Data is the full serialized form of one checkpoint.
type Data struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	SnapshotID   string            `json:"snapshot_id"`
	FileHashes   map[string]string `json:"file_hashes"`
	FileContents map[string]string `json:"file_contents,omitempty"`
	Metadata     Metadata          `json:"metadata"`
}

// ChangeType classifies one drift finding.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Deleted  ChangeType = "deleted"
)

// Change describes one file that drifted from the baseline.
type Change struct {
	Path       string     `json:"path"`
	ChangeType ChangeType `json:"change_type"`
	OldHash    string     `json:"old_hash,omitempty"`
	NewHash    string     `json:"new_hash,omitempty"`
}

// DriftResult is the outcome of detect_unknown.
type DriftResult struct {
	HasChanges    bool
	Changes       []Change
	GeneratedDiff string
}

// metaEntry is one row of checkpoint-metadata.json's "checkpoints" array.
type metaEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// metadataFile is the on-disk shape of checkpoint-metadata.json.
type metadataFile struct {
	Checkpoints        []metaEntry `json:"checkpoints"`
	LatestCheckpointID string      `json:"latestCheckpointId"`
}

// Config configures the Checkpoint manager.
type Config struct {
	// SaveLatestFiles enables verbatim content capture alongside hashes,
	// which makes drift diffs exact instead of placeholder text.
	SaveLatestFiles bool
}

// DefaultConfig returns the manager's production defaults.
func DefaultConfig() Config {
	return Config{SaveLatestFiles: false}
}

// ContentReader reads the live content of a workspace-relative path, used
// to build the "new" side of a drift diff.
type ContentReader func(relPath string) (string, error)

// HashComputer computes the current hash of every non-ignored workspace
// file under consideration, keyed by workspace-relative path. Files that no
// longer exist are simply absent from the returned map.
type HashComputer func() (map[string]string, error)
