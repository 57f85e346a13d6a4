// Package engine implements the snapshot engine facade: the orchestration
// layer that wires the diff, ignore, store, checkpoint, and consolidation
// components into the public operations — snapshot creation, reversal,
// consolidation, history queries, and state accessors.
package engine

import (
	"time"

	"dev.helix.snapshots/internal/checkpoint"
	"dev.helix.snapshots/internal/fsruntime"
	"dev.helix.snapshots/internal/ignore"
	"dev.helix.snapshots/internal/store"
)

// OpContext is the caller-provided invocation context for a create_snapshot
// call.
type OpContext struct {
	SessionID  string
	ToolParams interface{}
}

// OpMetadata carries size/timing bookkeeping supplied by the caller.
type OpMetadata struct {
	FilesSizeBytes  int64
	LinesChanged    int
	ExecutionTimeMs int64
}

// CreateSnapshotOp is the operation payload consumed by CreateSnapshot.
type CreateSnapshotOp struct {
	Tool          string
	Description   string
	AffectedFiles []string
	Diff          string
	Context       OpContext
	Metadata      OpMetadata
}

// HistoryQuery filters and paginates GetEditHistory.
type HistoryQuery struct {
	Limit        int
	Since        *time.Time
	Until        *time.Time
	ToolFilter   string
	FileFilter   string
	IncludeDiffs bool
}

// HistoryPage is the outcome of GetEditHistory.
type HistoryPage struct {
	Items   []store.Snapshot
	HasMore bool
}

// ReverseOptions configures ReverseOp.
type ReverseOptions struct {
	DryRun bool
	Force  bool
}

// ReverseResult is the outcome of ReverseOp.
type ReverseResult struct {
	OK            bool
	Message       string
	SnapshotID    string
	ReverseDiff   string
	AffectedFiles []string
}

// ConsolidateOptions selects the snapshots to merge. Exactly one of IDs or
// SequenceRange must be supplied.
type ConsolidateOptions struct {
	IDs             []string
	SequenceRange   *[2]int
	Title           string
	Description     string
	DeleteOriginals bool
}

// ConsolidateResult is the outcome of ConsolidateSnapshots.
type ConsolidateResult struct {
	ConsolidatedID   string
	SequenceRange    [2]int
	DeletedOriginals []string
}

// CurrentState is the engine's cached view of the workspace's position in
// the snapshot chain.
type CurrentState struct {
	LastSnapshotID  string
	SequenceNumber  int
	KnownFileHashes map[string]string
}

// CacheStats reports the size of the in-memory snapshot index.
type CacheStats struct {
	SnapshotCount   int
	ByTimeCount     int
	BySequenceCount int
}

// ReadDiffResult is the outcome of ReadSnapshotDiff.
type ReadDiffResult struct {
	OK           bool
	Diff         string
	SnapshotMeta *store.Snapshot
}

// Runtime is the subset of the external editing runtime the engine calls
// into: diff application for reversal only. fsruntime.Runtime satisfies
// this; callers embedding the engine in a richer host may supply their own.
type Runtime interface {
	ApplyUnifiedDiff(diffText string, opts fsruntime.ApplyOptions) (fsruntime.ApplyResult, error)
}

// IgnoreInfo re-exports ignore.Info under the engine's own name so callers
// depend only on this package.
type IgnoreInfo = ignore.Info

// CheckpointData re-exports checkpoint.Data for callers that want the raw
// baseline without reaching into the sub-package.
type CheckpointData = checkpoint.Data
