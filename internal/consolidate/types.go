// Package consolidate implements the Consolidation manager: merging a
// contiguous range of snapshots into one, renumbering successors, and
// rewriting parent links so the chain stays dense and well-formed. The
// selection/filtering helpers (Candidates, StorageStats) support operator
// tooling that picks which ranges are worth collapsing.
package consolidate

import "time"

// Criteria filters candidate snapshots for consolidation.
type Criteria struct {
	MaxAge            time.Duration
	ToolFilter        string
	FilePatternFilter string
	MinSnapshots      int
	MaxSnapshots      int
}

// StorageStatsResult aggregates on-disk snapshot sizes, split by whether a
// snapshot is a consolidation result or an original.
type StorageStatsResult struct {
	TotalSnapshots        int
	ConsolidatedSnapshots int
	PlainSnapshots        int
	TotalBytes            int64
	ConsolidatedBytes     int64
	PlainBytes            int64
}

// IssueKind classifies a sequence-continuity validation finding.
type IssueKind string

const (
	IssueGap              IssueKind = "gap"
	IssueMispointedParent IssueKind = "mispointed_parent"
)

// Issue describes one finding from ValidateSequenceContinuity.
type Issue struct {
	Kind   IssueKind
	Detail string
}

// ValidationResult is the outcome of ValidateSequenceContinuity.
type ValidationResult struct {
	Valid  bool
	Issues []Issue
}

// Result is the outcome of a successful Consolidate call. DeletedOriginals
// lists every merged snapshot's id removed from the index (unconditional);
// deleteOriginals additionally controls whether their on-disk files were
// also removed, but the index no longer carries them either way.
type Result struct {
	ConsolidatedID   string
	SequenceRange    [2]int
	RenumberedCount  int
	DeletedOriginals []string
	MergeWarnings    []string
}
