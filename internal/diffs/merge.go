package diffs

import (
	"bytes"
	"fmt"
	"sort"
)

// Merge combines multiple unified-diff texts (typically successive
// snapshots' diffs covering overlapping files) into one, grouping parsed
// file diffs by path and concatenating their hunks sorted by old_start.
// Hunks overlap when one hunk's old range runs into the next hunk's old
// start; conflict_resolution determines whether that aborts the merge,
// is reported but kept (concatenate), or causes that file to be dropped
// (skip).
func Merge(diffTexts []string, opts MergeOptions) (MergeResult, error) {
	byPath := make(map[string][]Hunk)
	order := make([]string, 0)
	gitHeaders := make(map[string]string)
	indexLines := make(map[string]string)
	creation := make(map[string]bool)
	deletion := make(map[string]bool)
	oldPathOf := make(map[string]string)
	newPathOf := make(map[string]string)

	for _, text := range diffTexts {
		fileDiffs, err := ParseDetailed(text)
		if err != nil {
			return MergeResult{}, err
		}
		for _, fd := range fileDiffs {
			path := fd.NewPath
			if path == "" || path == "/dev/null" {
				path = fd.OldPath
			}
			if _, seen := byPath[path]; !seen {
				order = append(order, path)
			}
			byPath[path] = append(byPath[path], fd.Hunks...)
			if opts.PreserveGitHeaders {
				if fd.GitHeader != "" {
					gitHeaders[path] = fd.GitHeader
				}
				if fd.IndexLine != "" {
					indexLines[path] = fd.IndexLine
				}
			}
			if fd.IsCreation {
				creation[path] = true
			}
			if fd.IsDeletion {
				deletion[path] = true
			}
			oldPathOf[path] = fd.OldPath
			newPathOf[path] = fd.NewPath
		}
	}

	result := MergeResult{OK: true}
	var buf bytes.Buffer

	for _, path := range order {
		hunks := append([]Hunk(nil), byPath[path]...)
		sort.Slice(hunks, func(i, j int) bool { return hunks[i].OldStart < hunks[j].OldStart })

		conflicted := false
		for i := 0; i+1 < len(hunks); i++ {
			cur, next := hunks[i], hunks[i+1]
			if cur.OldStart+cur.OldCount-1 >= next.OldStart {
				conflicted = true
				result.Conflicts = append(result.Conflicts, Conflict{
					Path:   path,
					Reason: fmt.Sprintf("hunk at %d overlaps hunk at %d", cur.OldStart, next.OldStart),
				})
			}
		}

		if conflicted {
			switch opts.ConflictResolution {
			case ConflictFail:
				result.OK = false
				return result, nil
			case ConflictSkip:
				result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %s due to overlapping hunks", path))
				continue
			case ConflictConcatenate:
				// fall through: still emit, conflicts already recorded.
			}
		}

		if opts.PreserveGitHeaders {
			if gh, ok := gitHeaders[path]; ok {
				buf.WriteString(gh)
				buf.WriteString("\n")
			}
			if il, ok := indexLines[path]; ok {
				buf.WriteString(il)
				buf.WriteString("\n")
			}
		}

		oldHeader := aHeaderFor(oldPathOf[path], creation[path])
		newHeader := bHeaderFor(newPathOf[path], deletion[path])
		fmt.Fprintf(&buf, "--- %s\n", oldHeader)
		fmt.Fprintf(&buf, "+++ %s\n", newHeader)
		for _, h := range hunks {
			fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
			for _, l := range h.Lines {
				buf.WriteString(l.Type.marker())
				buf.WriteString(l.Content)
				buf.WriteString("\n")
			}
		}
		result.FilesProcessed++
	}

	result.MergedText = buf.String()
	return result, nil
}
