// Package store implements the core snapshot store: on-disk layout, index,
// in-memory cache, and atomic save/load/remove. Persistence is
// write-temp-then-rename; a bounded hashicorp/golang-lru cache sits on top
// of the authoritative index to keep hot snapshot bodies in memory.
package store

import "time"

// Snapshot is the full, immutable record of one edit operation.
type Snapshot struct {
	ID                 string            `json:"id"`
	Timestamp          time.Time         `json:"timestamp"`
	SequenceNumber     int               `json:"sequence_number"`
	PreviousSnapshotID string            `json:"previous_snapshot_id,omitempty"`
	Tool               string            `json:"tool"`
	Description        string            `json:"description"`
	AffectedFiles      []string          `json:"affected_files"`
	Diff               string            `json:"diff"`
	ReverseDiff        string            `json:"reverse_diff,omitempty"`
	BaseFileHashes     map[string]string `json:"base_file_hashes"`
	ResultFileHashes   map[string]string `json:"result_file_hashes"`
	Context            Context           `json:"context"`
	Metadata           Metadata          `json:"metadata"`
	DiffPath           string            `json:"diff_path,omitempty"`
	ReverseDiffPath    string            `json:"reverse_diff_path,omitempty"`

	// Consolidated-snapshot-only fields.
	SequenceRange     *[2]int                `json:"sequence_range,omitempty"`
	ConsolidatedFrom  []string               `json:"consolidated_from,omitempty"`
	ConsolidationMeta *ConsolidationMetadata `json:"consolidation_metadata,omitempty"`

	// Extra carries any JSON fields this version of the struct does not
	// model, so snapshots written by a newer version round-trip without
	// data loss, per the external-interfaces forward-compatibility rule.
	Extra map[string]interface{} `json:"-"`
}

// Context is the caller-provided invocation context attached to a snapshot.
type Context struct {
	SessionID     string      `json:"session_id"`
	WorkspacePath string      `json:"workspace_path"`
	ToolParams    interface{} `json:"tool_params,omitempty"`
}

// Metadata holds size/timing bookkeeping for a snapshot.
type Metadata struct {
	FilesSizeBytes  int64 `json:"files_size_bytes"`
	LinesChanged    int   `json:"lines_changed"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// ConsolidationMetadata describes a consolidation event.
type ConsolidationMetadata struct {
	OriginalCount          int       `json:"original_count"`
	TotalLinesChanged      int       `json:"total_lines_changed"`
	ConsolidationTimestamp time.Time `json:"consolidation_timestamp"`
	SpaceFreed             int64     `json:"space_freed"`
}

// IsConsolidated reports whether s is a consolidated snapshot.
func (s *Snapshot) IsConsolidated() bool {
	return s.SequenceRange != nil
}

// IndexEntry is the compact per-snapshot record kept in index.json.
type IndexEntry struct {
	ID                 string    `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	Tool               string    `json:"tool"`
	AffectedFiles      []string  `json:"affected_files"`
	SequenceNumber     int       `json:"sequence_number"`
	PreviousSnapshotID string    `json:"previous_snapshot_id,omitempty"`
}
