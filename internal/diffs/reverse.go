package diffs

import (
	"bytes"
	"fmt"
	"strings"
)

// Reverse swaps a unified diff's direction: `---`/`+++` headers are
// exchanged, every hunk's old/new counts are swapped, every `+` line
// becomes a `-` line and vice versa, and `/dev/null` maps to the real
// path and back (a creation becomes a deletion and vice versa). Context
// lines are left unchanged; "\ No newline" marker lines are dropped by the
// parser and do not appear in the reversed output. When opts names
// IncludeFiles/ExcludeFiles, only the matching per-file sections are
// reversed; the rest pass through unchanged (still reported as an error
// only if that leaves mismatched bookkeeping, which it never does: excluded
// sections are simply copied verbatim).
func Reverse(text string, opts ReverseOptions) (string, error) {
	entries, err := ParseMultiFileDiff(text)
	if err != nil {
		return "", err
	}

	include := toSet(opts.IncludeFiles)
	exclude := toSet(opts.ExcludeFiles)

	var buf bytes.Buffer
	for _, entry := range entries {
		path := entry.NewPath
		if path == "" || path == "/dev/null" {
			path = entry.OldPath
		}
		if exclude[path] {
			buf.WriteString(entry.Body)
			if !strings.HasSuffix(entry.Body, "\n") {
				buf.WriteString("\n")
			}
			continue
		}
		if len(include) > 0 && !include[path] {
			buf.WriteString(entry.Body)
			if !strings.HasSuffix(entry.Body, "\n") {
				buf.WriteString("\n")
			}
			continue
		}

		fd, err := parseOneFileDiff(entry)
		if err != nil {
			return "", err
		}
		reversed, err := reverseFileDiff(fd)
		if err != nil {
			return "", err
		}
		buf.WriteString(reversed)
	}

	return buf.String(), nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func reverseFileDiff(fd FileDiff) (string, error) {
	var buf bytes.Buffer

	if fd.GitHeader != "" {
		buf.WriteString(fd.GitHeader)
		buf.WriteString("\n")
	}
	if fd.IndexLine != "" {
		buf.WriteString(reverseIndexLine(fd.IndexLine))
		buf.WriteString("\n")
	}

	oldHeader := aHeaderFor(fd.NewPath, fd.IsDeletion)
	newHeader := bHeaderFor(fd.OldPath, fd.IsCreation)
	fmt.Fprintf(&buf, "--- %s\n", oldHeader)
	fmt.Fprintf(&buf, "+++ %s\n", newHeader)

	for _, h := range fd.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n", h.NewStart, h.NewCount, h.OldStart, h.OldCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdd:
				buf.WriteString("-" + l.Content + "\n")
			case LineDelete:
				buf.WriteString("+" + l.Content + "\n")
			default:
				buf.WriteString(" " + l.Content + "\n")
			}
		}
	}

	return buf.String(), nil
}

// aHeaderFor computes the `--- a/<path>` header value, honoring /dev/null
// when the side it represents is absent (a creation's old side).
func aHeaderFor(path string, isAbsent bool) string {
	if isAbsent || path == "" || path == "/dev/null" {
		return "/dev/null"
	}
	return "a/" + path
}

// bHeaderFor computes the `+++ b/<path>` header value, honoring /dev/null
// when the side it represents is absent (a deletion's new side).
func bHeaderFor(path string, isAbsent bool) string {
	if isAbsent || path == "" || path == "/dev/null" {
		return "/dev/null"
	}
	return "b/" + path
}

// reverseIndexLine swaps the two hashes in "index <old7>..<new7> 100644".
func reverseIndexLine(line string) string {
	rest := strings.TrimPrefix(line, "index ")
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return line
	}
	hashes := strings.SplitN(fields[0], "..", 2)
	if len(hashes) != 2 {
		return line
	}
	mode := ""
	if len(fields) > 1 {
		mode = " " + fields[1]
	}
	return fmt.Sprintf("index %s..%s%s", hashes[1], hashes[0], mode)
}
