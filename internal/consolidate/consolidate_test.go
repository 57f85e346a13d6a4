package consolidate

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.snapshots/internal/clock"
	"dev.helix.snapshots/internal/idgen"
	"dev.helix.snapshots/internal/logging"
	"dev.helix.snapshots/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir, store.DefaultConfig(), logging.Discard("store"))
	require.NoError(t, err)
	require.NoError(t, st.Init())
	return st
}

// lineDiff builds a minimal valid one-hunk unified diff for path so the
// consolidation merge step has real parseable input.
func lineDiff(path, oldLine, newLine string) string {
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ -1,1 +1,1 @@\n-%s\n+%s\n", path, path, oldLine, newLine)
}

func chainedSnapshot(id, prev string, seq int, ts time.Time, diff string, files ...string) *store.Snapshot {
	return &store.Snapshot{
		ID:                 id,
		PreviousSnapshotID: prev,
		SequenceNumber:     seq,
		Timestamp:          ts,
		Tool:               "TestTool",
		Description:        "change " + id,
		AffectedFiles:      files,
		Diff:               diff,
		Metadata:           store.Metadata{LinesChanged: 1},
	}
}

func TestConsolidateMergesContiguousChain(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := chainedSnapshot("s1", "", 1, base, "--- a/a.go\n+++ a/a.go\n@@ -1,1 +1,1 @@\n-old\n+mid\n", "a.go")
	s2 := chainedSnapshot("s2", "s1", 2, base.Add(time.Minute), "--- a/a.go\n+++ a/a.go\n@@ -1,1 +1,1 @@\n-mid\n+new\n", "a.go")
	require.NoError(t, st.Save(s1))
	require.NoError(t, st.Save(s2))

	m := New(st, clock.Fixed{At: base.Add(time.Hour)}, logging.Discard("consolidate"))
	result, err := m.Consolidate([]string{"s1", "s2"}, "Merge", "combine edits", false, idgen.Default())
	require.NoError(t, err)

	assert.Equal(t, [2]int{1, 2}, result.SequenceRange)
	assert.NotEmpty(t, result.ConsolidatedID)
	assert.ElementsMatch(t, []string{"s1", "s2"}, result.DeletedOriginals)

	consolidated, ok := st.Get(result.ConsolidatedID)
	require.True(t, ok)
	assert.Equal(t, 1, consolidated.SequenceNumber)

	// deleteOriginals=false still removes the originals from the index —
	// otherwise they'd duplicate sequence number 1 alongside the
	// consolidated snapshot, breaking the dense-sequence invariant.
	_, ok = st.Get("s1")
	assert.False(t, ok)
	_, ok = st.Get("s2")
	assert.False(t, ok)

	seen := map[int]int{}
	for _, e := range st.Index() {
		seen[e.SequenceNumber]++
	}
	for seq, count := range seen {
		assert.Equalf(t, 1, count, "sequence number %d claimed by %d snapshots", seq, count)
	}
}

func TestConsolidateRejectsNonContiguousRange(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := chainedSnapshot("s1", "", 1, base, lineDiff("a.go", "v1", "v2"), "a.go")
	s3 := chainedSnapshot("s3", "s2", 3, base.Add(2*time.Minute), lineDiff("a.go", "v3", "v4"), "a.go")
	require.NoError(t, st.Save(s1))
	require.NoError(t, st.Save(s3))

	m := New(st, clock.Fixed{At: base}, logging.Discard("consolidate"))
	_, err := m.Consolidate([]string{"s1", "s3"}, "", "", false, idgen.Default())
	assert.Error(t, err)
}

func TestConsolidateRenumbersSuccessorsAndRelinksParent(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := chainedSnapshot("s1", "", 1, base, lineDiff("a.go", "v1", "v2"), "a.go")
	s2 := chainedSnapshot("s2", "s1", 2, base.Add(time.Minute), lineDiff("a.go", "v2", "v3"), "a.go")
	s3 := chainedSnapshot("s3", "s2", 3, base.Add(2*time.Minute), lineDiff("b.go", "w1", "w2"), "b.go")
	require.NoError(t, st.Save(s1))
	require.NoError(t, st.Save(s2))
	require.NoError(t, st.Save(s3))

	m := New(st, clock.Fixed{At: base.Add(time.Hour)}, logging.Discard("consolidate"))
	result, err := m.Consolidate([]string{"s1", "s2"}, "", "", false, idgen.Default())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RenumberedCount)

	successor, ok := st.Get("s3")
	require.True(t, ok)
	assert.Equal(t, 2, successor.SequenceNumber)

	full, ok, err := st.Load("s3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.ConsolidatedID, full.PreviousSnapshotID)
}

func TestConsolidateDeletesOriginalsWhenRequested(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(dir, store.DefaultConfig(), logging.Discard("store"))
	require.NoError(t, err)
	require.NoError(t, st.Init())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := chainedSnapshot("s1", "", 1, base, lineDiff("a.go", "v1", "v2"), "a.go")
	s2 := chainedSnapshot("s2", "s1", 2, base.Add(time.Minute), lineDiff("a.go", "v2", "v3"), "a.go")
	require.NoError(t, st.Save(s1))
	require.NoError(t, st.Save(s2))
	s1Path := snapshotFilePath(dir, base, "s1")
	require.FileExists(t, s1Path)

	m := New(st, clock.Fixed{At: base.Add(time.Hour)}, logging.Discard("consolidate"))
	result, err := m.Consolidate([]string{"s1", "s2"}, "", "", true, idgen.Default())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, result.DeletedOriginals)

	_, ok := st.Get("s1")
	assert.False(t, ok)
	assert.NoFileExists(t, s1Path, "deleteOriginals=true should remove the on-disk snapshot file")
}

func TestConsolidateKeepsOriginalFilesWhenNotRequested(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(dir, store.DefaultConfig(), logging.Discard("store"))
	require.NoError(t, err)
	require.NoError(t, st.Init())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1 := chainedSnapshot("s1", "", 1, base, lineDiff("a.go", "v1", "v2"), "a.go")
	s2 := chainedSnapshot("s2", "s1", 2, base.Add(time.Minute), lineDiff("a.go", "v2", "v3"), "a.go")
	require.NoError(t, st.Save(s1))
	require.NoError(t, st.Save(s2))
	s1Path := snapshotFilePath(dir, base, "s1")
	require.FileExists(t, s1Path)

	m := New(st, clock.Fixed{At: base.Add(time.Hour)}, logging.Discard("consolidate"))
	result, err := m.Consolidate([]string{"s1", "s2"}, "", "", false, idgen.Default())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, result.DeletedOriginals)

	// Removed from the index (no duplicate sequence numbers)...
	_, ok := st.Get("s1")
	assert.False(t, ok)
	// ...but the JSON file itself is left on disk, since deleteOriginals is false.
	assert.FileExists(t, s1Path)
}

// snapshotFilePath mirrors Store's on-disk layout
// (<root>/<YYYY>/<MM>/<DD>/<HHMMSS>_<id>.json) so tests can assert on file
// presence without exporting that path computation from the store package.
func snapshotFilePath(workspaceDir string, ts time.Time, id string) string {
	return filepath.Join(workspaceDir, ".continue-reasoning", "snapshots",
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		fmt.Sprintf("%s_%s.json", ts.Format("150405"), id))
}

func TestCandidatesFiltersByToolAndLimits(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	all := []store.IndexEntry{
		{ID: "a", SequenceNumber: 1, Tool: "Edit", Timestamp: now.Add(-time.Hour)},
		{ID: "b", SequenceNumber: 2, Tool: "Write", Timestamp: now.Add(-time.Minute)},
		{ID: "c", SequenceNumber: 3, Tool: "Edit", Timestamp: now.Add(-30 * time.Second)},
	}

	got := Candidates(all, Criteria{ToolFilter: "Edit"}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestCandidatesReturnsNilBelowMinSnapshots(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	all := []store.IndexEntry{{ID: "a", SequenceNumber: 1, Timestamp: now}}
	got := Candidates(all, Criteria{MinSnapshots: 5}, now)
	assert.Nil(t, got)
}

func TestValidateSequenceContinuityDetectsGap(t *testing.T) {
	snaps := []*store.Snapshot{
		{ID: "a", SequenceNumber: 1},
		{ID: "c", SequenceNumber: 3, PreviousSnapshotID: "a"},
	}
	result := ValidateSequenceContinuity(snaps)
	assert.False(t, result.Valid)
	assert.Equal(t, IssueGap, result.Issues[0].Kind)
}

func TestValidateSequenceContinuityDetectsMispointedParent(t *testing.T) {
	snaps := []*store.Snapshot{
		{ID: "a", SequenceNumber: 1},
		{ID: "b", SequenceNumber: 2, PreviousSnapshotID: "wrong"},
	}
	result := ValidateSequenceContinuity(snaps)
	assert.False(t, result.Valid)

	found := false
	for _, issue := range result.Issues {
		if issue.Kind == IssueMispointedParent {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateSequenceContinuityValid(t *testing.T) {
	snaps := []*store.Snapshot{
		{ID: "a", SequenceNumber: 1},
		{ID: "b", SequenceNumber: 2, PreviousSnapshotID: "a"},
	}
	result := ValidateSequenceContinuity(snaps)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Issues)
}

func TestStorageStatsSplitsConsolidatedAndPlain(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	plain := chainedSnapshot("p1", "", 1, base, lineDiff("a.go", "v1", "v2"), "a.go")
	require.NoError(t, st.Save(plain))

	consolidated := chainedSnapshot("c1", "p1", 2, base.Add(time.Minute), lineDiff("a.go", "v2", "v4"), "a.go")
	consolidated.SequenceRange = &[2]int{2, 3}
	consolidated.ConsolidatedFrom = []string{"x1", "x2"}
	consolidated.ConsolidationMeta = &store.ConsolidationMetadata{OriginalCount: 2}
	require.NoError(t, st.Save(consolidated))

	stats, err := StorageStats(st)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSnapshots)
	assert.Equal(t, 1, stats.ConsolidatedSnapshots)
	assert.Equal(t, 1, stats.PlainSnapshots)
}
