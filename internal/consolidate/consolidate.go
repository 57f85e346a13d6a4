package consolidate

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dev.helix.snapshots/internal/clock"
	"dev.helix.snapshots/internal/diffs"
	"dev.helix.snapshots/internal/engineerrors"
	"dev.helix.snapshots/internal/idgen"
	"dev.helix.snapshots/internal/logging"
	"dev.helix.snapshots/internal/store"
)

// Manager merges contiguous snapshot ranges and keeps the resulting chain
// dense, delegating all persistence to a Store.
type Manager struct {
	st     *store.Store
	clock  clock.Clock
	logger *logging.Logger
}

// New creates a Manager operating against st.
func New(st *store.Store, clk clock.Clock, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New("consolidate", logging.INFO)
	}
	return &Manager{st: st, clock: clk, logger: logger}
}

// Consolidate merges the snapshots named by ids (which must form a strict
// +1 sequence chain, each pointing to its immediate predecessor) into one
// ConsolidatedSnapshot, renumbers every later snapshot, and rewrites the
// first later snapshot's parent pointer to the consolidated id.
func (m *Manager) Consolidate(ids []string, title, description string, deleteOriginals bool, idGen *idgen.Generator) (Result, error) {
	if len(ids) == 0 {
		return Result{}, engineerrors.NewInputError("EmptyRange", "consolidate requires at least one snapshot id")
	}

	snaps := make([]*store.Snapshot, 0, len(ids))
	for _, id := range ids {
		s, ok, err := m.st.Load(id)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, engineerrors.NewInputError("UnknownSnapshot", id)
		}
		snaps = append(snaps, s)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].SequenceNumber < snaps[j].SequenceNumber })

	for i := 1; i < len(snaps); i++ {
		if snaps[i].SequenceNumber != snaps[i-1].SequenceNumber+1 {
			return Result{}, engineerrors.NewInputError("NonContiguousRange",
				fmt.Sprintf("sequence %d does not follow %d", snaps[i].SequenceNumber, snaps[i-1].SequenceNumber))
		}
		if snaps[i].PreviousSnapshotID != snaps[i-1].ID {
			return Result{}, engineerrors.NewIntegrityError("ChainMismatch",
				fmt.Sprintf("snapshot %s does not point at its immediate predecessor %s", snaps[i].ID, snaps[i-1].ID))
		}
	}

	a := snaps[0].SequenceNumber
	b := snaps[len(snaps)-1].SequenceNumber

	diffTexts := make([]string, 0, len(snaps))
	totalLines := 0
	var spaceFreed int64
	var affectedFiles []string
	seenFiles := make(map[string]bool)
	consolidatedFrom := make([]string, 0, len(snaps))
	for _, s := range snaps {
		diffTexts = append(diffTexts, s.Diff)
		totalLines += s.Metadata.LinesChanged
		consolidatedFrom = append(consolidatedFrom, s.ID)
		for _, f := range s.AffectedFiles {
			if !seenFiles[f] {
				seenFiles[f] = true
				affectedFiles = append(affectedFiles, f)
			}
		}
		if size, err := m.st.FileSize(s.ID); err == nil {
			spaceFreed += size
		}
	}

	merged, err := diffs.Merge(diffTexts, diffs.MergeOptions{PreserveGitHeaders: true, ConflictResolution: diffs.ConflictConcatenate})
	if err != nil {
		return Result{}, err
	}

	id, err := idGen.Generate(func(candidate string) bool {
		_, ok := m.st.Get(candidate)
		return ok
	})
	if err != nil {
		return Result{}, err
	}

	now := m.clock.Now()
	desc := description
	if title != "" {
		desc = fmt.Sprintf("%s: %s", title, description)
	}

	consolidated := &store.Snapshot{
		ID:                 id,
		Timestamp:          now,
		SequenceNumber:     a,
		PreviousSnapshotID: snaps[0].PreviousSnapshotID,
		Tool:               "Consolidation",
		Description:        desc,
		AffectedFiles:      affectedFiles,
		Diff:               merged.MergedText,
		BaseFileHashes:     snaps[0].BaseFileHashes,
		ResultFileHashes:   snaps[len(snaps)-1].ResultFileHashes,
		Context:            snaps[0].Context,
		Metadata: store.Metadata{
			LinesChanged: totalLines,
		},
		SequenceRange:    &[2]int{a, b},
		ConsolidatedFrom: consolidatedFrom,
		ConsolidationMeta: &store.ConsolidationMetadata{
			OriginalCount:          len(snaps),
			TotalLinesChanged:      totalLines,
			ConsolidationTimestamp: now,
			SpaceFreed:             spaceFreed,
		},
	}

	if err := m.st.Save(consolidated); err != nil {
		return Result{}, err
	}

	fromSet := toSet(consolidatedFrom)
	allIDs := m.st.IDsBySequence()

	for _, otherID := range allIDs {
		if fromSet[otherID] || otherID == consolidated.ID {
			continue
		}
		entry, ok := m.st.Get(otherID)
		if !ok || !fromSet[entry.PreviousSnapshotID] {
			continue
		}
		full, ok, err := m.st.Load(otherID)
		if err != nil || !ok {
			m.logger.Warn("consolidate: could not load successor %s to relink: %v", otherID, err)
			break
		}
		full.PreviousSnapshotID = consolidated.ID
		if err := m.st.Save(full); err != nil {
			m.logger.Warn("consolidate: failed relinking successor %s: %v", otherID, err)
		}
		break
	}

	shift := b - a
	renumbered := 0
	for _, otherID := range allIDs {
		if fromSet[otherID] || otherID == consolidated.ID {
			continue
		}
		entry, ok := m.st.Get(otherID)
		if !ok || entry.SequenceNumber <= b {
			continue
		}
		full, ok, err := m.st.Load(otherID)
		if err != nil || !ok {
			m.logger.Warn("consolidate: could not load %s for renumbering: %v", otherID, err)
			continue
		}
		full.SequenceNumber -= shift
		if err := m.st.Save(full); err != nil {
			m.logger.Warn("consolidate: renumbering %s failed, a later validation pass will need to heal this: %v", otherID, err)
			continue
		}
		renumbered++
	}

	// The originals' index entries are removed unconditionally: leaving them
	// in place would duplicate sequence number a (the consolidated snapshot
	// now claims it too), violating the dense-sequence invariant on every
	// call, not just the deleteOriginals=true path. deleteOriginals only
	// controls whether the now-orphaned on-disk JSON (and any externalized
	// diff files) are also removed.
	var deleted []string
	for _, s := range snaps {
		if err := m.st.Remove(s.ID); err != nil {
			m.logger.Warn("consolidate: failed removing index entry for original %s: %v", s.ID, err)
			continue
		}
		if deleteOriginals {
			if err := m.st.DeleteFiles(s); err != nil {
				m.logger.Warn("consolidate: failed deleting on-disk file for original %s: %v", s.ID, err)
			}
		}
		deleted = append(deleted, s.ID)
	}

	if err := m.st.ReloadCache(); err != nil {
		m.logger.Warn("consolidate: cache reload after consolidation failed: %v", err)
	}

	return Result{
		ConsolidatedID:   consolidated.ID,
		SequenceRange:    [2]int{a, b},
		RenumberedCount:  renumbered,
		DeletedOriginals: deleted,
		MergeWarnings:    merged.Warnings,
	}, nil
}

// Candidates filters and clamps all to the given selection Criteria,
// returning snapshots ordered by ascending sequence number.
func Candidates(all []store.IndexEntry, criteria Criteria, now time.Time) []store.IndexEntry {
	sorted := append([]store.IndexEntry(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })

	var filtered []store.IndexEntry
	for _, e := range sorted {
		if criteria.MaxAge > 0 && now.Sub(e.Timestamp) > criteria.MaxAge {
			continue
		}
		if criteria.ToolFilter != "" && e.Tool != criteria.ToolFilter {
			continue
		}
		if criteria.FilePatternFilter != "" && !matchesAnyFile(e.AffectedFiles, criteria.FilePatternFilter) {
			continue
		}
		filtered = append(filtered, e)
	}

	if criteria.MaxSnapshots > 0 && len(filtered) > criteria.MaxSnapshots {
		filtered = filtered[:criteria.MaxSnapshots]
	}
	if criteria.MinSnapshots > 0 && len(filtered) < criteria.MinSnapshots {
		return nil
	}
	return filtered
}

func matchesAnyFile(files []string, pattern string) bool {
	for _, f := range files {
		if ok, err := filepath.Match(pattern, f); err == nil && ok {
			return true
		}
		if strings.Contains(f, pattern) {
			return true
		}
	}
	return false
}

// StorageStats aggregates on-disk snapshot sizes across the store's full
// index, distinguishing consolidated snapshots from plain ones.
func StorageStats(st *store.Store) (StorageStatsResult, error) {
	var stats StorageStatsResult
	for _, e := range st.Index() {
		size, err := st.FileSize(e.ID)
		if err != nil {
			return StorageStatsResult{}, err
		}
		snap, ok, err := st.Load(e.ID)
		if err != nil {
			return StorageStatsResult{}, err
		}
		stats.TotalSnapshots++
		stats.TotalBytes += size
		if ok && snap.IsConsolidated() {
			stats.ConsolidatedSnapshots++
			stats.ConsolidatedBytes += size
		} else {
			stats.PlainSnapshots++
			stats.PlainBytes += size
		}
	}
	return stats, nil
}

// ValidateSequenceContinuity checks that snaps form a dense, parent-linked
// chain, reporting sequence gaps and mispointed parents (which subsumes the
// "consolidated range's successor doesn't point at the consolidated id"
// case, since the consolidated snapshot occupies its own slot in the chain).
func ValidateSequenceContinuity(snaps []*store.Snapshot) ValidationResult {
	sorted := append([]*store.Snapshot(nil), snaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })

	var issues []Issue
	for i, s := range sorted {
		if i == 0 {
			if s.SequenceNumber != 1 {
				issues = append(issues, Issue{Kind: IssueGap,
					Detail: fmt.Sprintf("first snapshot %s has sequence %d, expected 1", s.ID, s.SequenceNumber)})
			}
			continue
		}
		prev := sorted[i-1]
		if s.SequenceNumber != prev.SequenceNumber+1 {
			issues = append(issues, Issue{Kind: IssueGap,
				Detail: fmt.Sprintf("sequence jumps from %d (%s) to %d (%s)", prev.SequenceNumber, prev.ID, s.SequenceNumber, s.ID)})
		}
		if s.PreviousSnapshotID != prev.ID {
			issues = append(issues, Issue{Kind: IssueMispointedParent,
				Detail: fmt.Sprintf("snapshot %s (seq %d) points to parent %q, expected %s (seq %d)",
					s.ID, s.SequenceNumber, s.PreviousSnapshotID, prev.ID, prev.SequenceNumber)})
		}
	}
	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
