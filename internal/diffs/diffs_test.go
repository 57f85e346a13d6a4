package diffs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnifiedDiffBasic(t *testing.T) {
	old := "line1\nline2\nline3\n"
	new := "line1\nline2-changed\nline3\n"

	diff, err := GenerateUnifiedDiff(old, new, GenerateOptions{OldPath: "a.txt", NewPath: "a.txt"})
	require.NoError(t, err)

	assert.Contains(t, diff, "--- a/a.txt")
	assert.Contains(t, diff, "+++ b/a.txt")
	assert.Contains(t, diff, "-line2")
	assert.Contains(t, diff, "+line2-changed")

	result := Validate(diff)
	assert.True(t, result.Valid, "%v", result.Errors)
}

func TestGenerateUnifiedDiffCreation(t *testing.T) {
	diff, err := GenerateUnifiedDiff("", "new content\n", GenerateOptions{OldPath: "new.txt", NewPath: "new.txt"})
	require.NoError(t, err)
	assert.Contains(t, diff, "--- /dev/null")
	assert.Contains(t, diff, "+++ b/new.txt")
}

func TestGenerateUnifiedDiffDeletion(t *testing.T) {
	diff, err := GenerateUnifiedDiff("old content\n", "", GenerateOptions{OldPath: "gone.txt", NewPath: "gone.txt"})
	require.NoError(t, err)
	assert.Contains(t, diff, "+++ /dev/null")
}

func TestGenerateUnifiedDiffWithGitHeaders(t *testing.T) {
	diff, err := GenerateUnifiedDiff("a\n", "b\n", GenerateOptions{OldPath: "f.go", NewPath: "f.go", GitHeaders: true})
	require.NoError(t, err)
	assert.Contains(t, diff, "diff --git a/f.go b/f.go")
	assert.Contains(t, diff, "index ")
}

func TestParseDetailedRoundTrip(t *testing.T) {
	old := "alpha\nbeta\ngamma\n"
	new := "alpha\nBETA\ngamma\n"
	diff, err := GenerateUnifiedDiff(old, new, GenerateOptions{OldPath: "x.txt", NewPath: "x.txt"})
	require.NoError(t, err)

	fds, err := ParseDetailed(diff)
	require.NoError(t, err)
	require.Len(t, fds, 1)

	fd := fds[0]
	assert.Equal(t, "x.txt", fd.OldPath)
	assert.Equal(t, "x.txt", fd.NewPath)
	added, deleted := CountChanges(fd)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, deleted)
}

func TestReverseRoundTrip(t *testing.T) {
	old := "one\ntwo\nthree\n"
	new := "one\nTWO\nthree\n"
	diff, err := GenerateUnifiedDiff(old, new, GenerateOptions{OldPath: "r.txt", NewPath: "r.txt"})
	require.NoError(t, err)

	reversed, err := Reverse(diff, ReverseOptions{})
	require.NoError(t, err)

	twice, err := Reverse(reversed, ReverseOptions{})
	require.NoError(t, err)

	assert.Equal(t, CleanTimestamps(diff), CleanTimestamps(twice))
}

func TestReverseCreationBecomesDeletion(t *testing.T) {
	diff, err := GenerateUnifiedDiff("", "hello\n", GenerateOptions{OldPath: "n.txt", NewPath: "n.txt"})
	require.NoError(t, err)

	reversed, err := Reverse(diff, ReverseOptions{})
	require.NoError(t, err)

	fds, err := ParseDetailed(reversed)
	require.NoError(t, err)
	require.Len(t, fds, 1)
	assert.True(t, IsFileDeletion(fds[0]))
}

func TestMergeConcatenatesNonOverlappingHunks(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = string(rune('a' + i))
	}
	base := joinLines(lines)

	changed1 := append([]string(nil), lines...)
	changed1[1] = "CHANGED-NEAR-START"
	changed2 := append([]string(nil), lines...)
	changed2[18] = "CHANGED-NEAR-END"

	d1, err := GenerateUnifiedDiff(base, joinLines(changed1), GenerateOptions{OldPath: "m.txt", NewPath: "m.txt"})
	require.NoError(t, err)
	d2, err := GenerateUnifiedDiff(base, joinLines(changed2), GenerateOptions{OldPath: "m.txt", NewPath: "m.txt"})
	require.NoError(t, err)

	result, err := Merge([]string{d1, d2}, MergeOptions{ConflictResolution: ConflictConcatenate})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Empty(t, result.Conflicts)
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestMergeDetectsOverlap(t *testing.T) {
	old := "a\nb\nc\n"
	d1, err := GenerateUnifiedDiff(old, "a\nB\nc\n", GenerateOptions{OldPath: "o.txt", NewPath: "o.txt"})
	require.NoError(t, err)
	d2, err := GenerateUnifiedDiff(old, "a\nb\nC\n", GenerateOptions{OldPath: "o.txt", NewPath: "o.txt"})
	require.NoError(t, err)

	result, err := Merge([]string{d1, d2}, MergeOptions{ConflictResolution: ConflictFail})
	require.NoError(t, err)
	assert.False(t, result.OK)
}

func TestValidateRejectsEmpty(t *testing.T) {
	result := Validate("")
	assert.False(t, result.Valid)
}

func TestValidateRejectsCRLF(t *testing.T) {
	result := Validate("--- a/f\r\n+++ b/f\r\n@@ -1,0 +1,0 @@\r\n")
	assert.False(t, result.Valid)
}

func TestExtractFilePathPrefersNewPath(t *testing.T) {
	fd := FileDiff{OldPath: "old.txt", NewPath: "new.txt"}
	assert.Equal(t, "new.txt", ExtractFilePath(fd))
}

func TestExtractFilePathFallsBackOnDeletion(t *testing.T) {
	fd := FileDiff{OldPath: "old.txt", NewPath: "/dev/null", IsDeletion: true}
	assert.Equal(t, "old.txt", ExtractFilePath(fd))
}

func TestEnsureTrailingNewline(t *testing.T) {
	assert.Equal(t, "", EnsureTrailingNewline(""))
	assert.Equal(t, "a\n", EnsureTrailingNewline("a"))
	assert.Equal(t, "a\n", EnsureTrailingNewline("a\n"))
}
