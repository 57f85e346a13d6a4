// Package fsruntime provides a minimal, filesystem-backed implementation of
// the editing runtime's apply-unified-diff interface, good enough to
// exercise snapshot reversal end to end in tests and the snapshotctl CLI.
// It is deliberately not a general editing tool: no write/delete/apply-block
// surface, only hunk application against real files.
package fsruntime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dev.helix.snapshots/internal/diffs"
)

// ApplyOptions configures ApplyUnifiedDiff.
type ApplyOptions struct {
	BaseDir string
	DryRun  bool
}

// ApplyResult reports what ApplyUnifiedDiff did.
type ApplyResult struct {
	OK             bool
	Message        string
	ChangesApplied int
	AffectedFiles  []string
	Diff           string
}

// Runtime applies unified diffs directly against files under a base
// directory.
type Runtime struct{}

// New creates a Runtime.
func New() *Runtime {
	return &Runtime{}
}

// ApplyUnifiedDiff parses diffText into per-file hunks and applies each to
// the corresponding file under opts.BaseDir: creating, patching, or
// removing it according to the diff's creation/deletion markers. A dry run
// parses and reports without touching the filesystem.
func (r *Runtime) ApplyUnifiedDiff(diffText string, opts ApplyOptions) (ApplyResult, error) {
	fileDiffs, err := diffs.ParseDetailed(diffText)
	if err != nil {
		return ApplyResult{OK: false, Message: err.Error()}, err
	}

	var affected []string
	changes := 0
	for _, fd := range fileDiffs {
		path := diffs.ExtractFilePath(fd)
		abs := filepath.Join(opts.BaseDir, path)

		switch {
		case diffs.IsFileDeletion(fd):
			if !opts.DryRun {
				if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
					msg := fmt.Sprintf("removing %s: %v", path, err)
					return ApplyResult{OK: false, Message: msg}, fmt.Errorf("fsruntime: %s", msg)
				}
			}
		case diffs.IsFileCreation(fd):
			content := applyHunks("", fd.Hunks)
			if !opts.DryRun {
				if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
					msg := fmt.Sprintf("creating directory for %s: %v", path, err)
					return ApplyResult{OK: false, Message: msg}, fmt.Errorf("fsruntime: %s", msg)
				}
				if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
					msg := fmt.Sprintf("writing %s: %v", path, err)
					return ApplyResult{OK: false, Message: msg}, fmt.Errorf("fsruntime: %s", msg)
				}
			}
		default:
			data, err := os.ReadFile(abs)
			if err != nil {
				msg := fmt.Sprintf("reading %s: %v", path, err)
				return ApplyResult{OK: false, Message: msg}, fmt.Errorf("fsruntime: %s", msg)
			}
			newContent := applyHunks(string(data), fd.Hunks)
			if !opts.DryRun {
				if err := os.WriteFile(abs, []byte(newContent), 0o644); err != nil {
					msg := fmt.Sprintf("writing %s: %v", path, err)
					return ApplyResult{OK: false, Message: msg}, fmt.Errorf("fsruntime: %s", msg)
				}
			}
		}

		affected = append(affected, path)
		changes++
	}

	return ApplyResult{OK: true, ChangesApplied: changes, AffectedFiles: affected, Diff: diffText}, nil
}

// applyHunks replays a file's hunks against its old content, producing the
// new content. Context lines are copied through, deletions are skipped,
// and additions are inserted; text outside any hunk passes through
// unchanged.
func applyHunks(old string, hunks []diffs.Hunk) string {
	oldLines := splitLines(old)
	var out []string
	oldIdx := 0

	for _, h := range hunks {
		for oldIdx < h.OldStart-1 && oldIdx < len(oldLines) {
			out = append(out, oldLines[oldIdx])
			oldIdx++
		}
		for _, l := range h.Lines {
			switch l.Type {
			case diffs.LineContext:
				out = append(out, l.Content)
				oldIdx++
			case diffs.LineDelete:
				oldIdx++
			case diffs.LineAdd:
				out = append(out, l.Content)
			}
		}
	}
	for oldIdx < len(oldLines) {
		out = append(out, oldLines[oldIdx])
		oldIdx++
	}

	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
