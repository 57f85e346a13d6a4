package diffs

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const defaultContextLines = 3

// GenerateUnifiedDiff produces a unified-diff text transitioning oldText to
// newText. Line alignment is computed by diffmatchpatch in line mode (the
// standard "diff the lines, not the characters" trick: each distinct line
// becomes one opaque rune, the rune strings are diffed, then decoded back
// into lines), so the hunk line counts Validate checks hold on arbitrary
// input.
func GenerateUnifiedDiff(oldText, newText string, opts GenerateOptions) (string, error) {
	oldPath := opts.OldPath
	newPath := opts.NewPath
	if oldPath == "" {
		oldPath = newPath
	}
	if newPath == "" {
		newPath = oldPath
	}

	edits := computeLineEdits(oldText, newText)
	contextLines := opts.ContextSize
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}
	hunks := groupIntoHunks(edits, contextLines)

	var buf bytes.Buffer

	isCreation := oldText == ""
	isDeletion := newText == "" && oldText != ""

	if opts.GitHeaders {
		gitPath := newPath
		if isDeletion {
			gitPath = oldPath
		}
		fmt.Fprintf(&buf, "diff --git a/%s b/%s\n", gitPath, gitPath)
		oldHash := shortSHA1(oldText)
		newHash := shortSHA1(newText)
		fmt.Fprintf(&buf, "index %s..%s 100644\n", oldHash, newHash)
	}

	oldHeader := "a/" + oldPath
	newHeader := "b/" + newPath
	if isCreation {
		oldHeader = "/dev/null"
	}
	if isDeletion {
		newHeader = "/dev/null"
	}

	if opts.Timestamps {
		ts := time.Now().UTC().Format("2006-01-02 15:04:05.000000000 -0700")
		fmt.Fprintf(&buf, "--- %s\t%s\n", oldHeader, ts)
		fmt.Fprintf(&buf, "+++ %s\t%s\n", newHeader, ts)
	} else {
		fmt.Fprintf(&buf, "--- %s\n", oldHeader)
		fmt.Fprintf(&buf, "+++ %s\n", newHeader)
	}

	for _, h := range hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			buf.WriteString(l.Type.marker())
			buf.WriteString(l.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String(), nil
}

// shortSHA1 returns the 7-hex-char prefix of the SHA-1 hash of content, the
// format required for Git "index" preamble lines.
func shortSHA1(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:7]
}

// lineEdit is one aligned element of the old/new line sequences: either an
// unchanged line (Type == LineContext) or a pure insertion/deletion.
type lineEdit struct {
	Type    LineType
	Content string
}

// computeLineEdits aligns oldText and newText line-by-line using
// diffmatchpatch's line-mode diff, returning a flat edit script ordered
// so that, within any contiguous change, all deletions precede all
// additions (required by generate_unified_diff's line-ordering rule).
func computeLineEdits(oldText, newText string) []lineEdit {
	dmp := diffmatchpatch.New()
	wrapped1, wrapped2, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(wrapped1, wrapped2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var edits []lineEdit
	for _, d := range diffs {
		lines := splitKeepingLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for _, ln := range lines {
				edits = append(edits, lineEdit{Type: LineContext, Content: ln})
			}
		case diffmatchpatch.DiffDelete:
			for _, ln := range lines {
				edits = append(edits, lineEdit{Type: LineDelete, Content: ln})
			}
		case diffmatchpatch.DiffInsert:
			for _, ln := range lines {
				edits = append(edits, lineEdit{Type: LineAdd, Content: ln})
			}
		}
	}

	// diffmatchpatch's line mode can interleave a delete block followed by
	// an insert block for the same region in either order; normalize so
	// deletions always precede insertions within one contiguous change,
	// matching this module's documented line ordering.
	return reorderDeletesBeforeInserts(edits)
}

// splitKeepingLines splits s on "\n", dropping a single trailing empty
// element produced by a final newline (diffmatchpatch's decoded line
// blocks always end in "\n" except possibly the very last line of input).
func splitKeepingLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// reorderDeletesBeforeInserts walks the flat edit script and, for every
// maximal run that mixes LineDelete and LineAdd with no LineContext between
// them, re-emits all deletes first then all inserts.
func reorderDeletesBeforeInserts(edits []lineEdit) []lineEdit {
	out := make([]lineEdit, 0, len(edits))
	i := 0
	for i < len(edits) {
		if edits[i].Type == LineContext {
			out = append(out, edits[i])
			i++
			continue
		}
		j := i
		var dels, ins []lineEdit
		for j < len(edits) && edits[j].Type != LineContext {
			if edits[j].Type == LineDelete {
				dels = append(dels, edits[j])
			} else {
				ins = append(ins, edits[j])
			}
			j++
		}
		out = append(out, dels...)
		out = append(out, ins...)
		i = j
	}
	return out
}
