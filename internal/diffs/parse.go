package diffs

import (
	"fmt"
	"strconv"
	"strings"

	"dev.helix.snapshots/internal/engineerrors"
)

// ParseMultiFileDiff splits a (possibly multi-file) unified-diff text into
// one entry per file, preserving each file's hunk body verbatim. It
// recognizes two framings: plain "--- / +++" pairs, and Git-framed
// "diff --git ... / index ... / --- / +++" preambles. A new file begins at
// every "diff --git" line, or at any "--- " line immediately followed by a
// "+++ " line that was not already consumed as part of a Git preamble.
func ParseMultiFileDiff(text string) ([]MultiFileEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, engineerrors.NewDiffError("EmptyInput", 0, "diff text is empty")
	}

	lines := splitLinesPreserving(text)
	var entries []MultiFileEntry

	i := 0
	n := len(lines)
	for i < n {
		if strings.HasPrefix(lines[i], "diff --git ") || isFileHeaderPair(lines, i) {
			start := i
			// advance past an optional Git preamble block up to and
			// including the +++ line.
			if strings.HasPrefix(lines[i], "diff --git ") {
				i++
				for i < n && !strings.HasPrefix(lines[i], "--- ") {
					i++
					if i >= n || strings.HasPrefix(lines[i], "diff --git ") {
						break
					}
				}
			}
			var oldPath, newPath string
			if i < n && strings.HasPrefix(lines[i], "--- ") {
				oldPath = extractPathFromHeader(strings.TrimPrefix(lines[i], "--- "))
				i++
			}
			if i < n && strings.HasPrefix(lines[i], "+++ ") {
				newPath = extractPathFromHeader(strings.TrimPrefix(lines[i], "+++ "))
				i++
			}
			for i < n && !strings.HasPrefix(lines[i], "diff --git ") && !isFileHeaderPair(lines, i) {
				i++
			}
			entries = append(entries, MultiFileEntry{
				OldPath: oldPath,
				NewPath: newPath,
				Body:    strings.Join(lines[start:i], "\n"),
			})
			continue
		}
		i++
	}

	if len(entries) == 0 {
		return nil, engineerrors.NewDiffError("MalformedHeader", 0, "no recognizable file diff header found")
	}
	return entries, nil
}

// isFileHeaderPair reports whether lines[i] is a "--- " line immediately
// followed by a "+++ " line — the plain (non-Git) file-boundary framing.
func isFileHeaderPair(lines []string, i int) bool {
	return i+1 < len(lines) && strings.HasPrefix(lines[i], "--- ") && strings.HasPrefix(lines[i+1], "+++ ")
}

// extractPathFromHeader strips the a/ or b/ prefix and any trailing
// tab-separated timestamp from a --- / +++ header value.
func extractPathFromHeader(raw string) string {
	if idx := strings.IndexByte(raw, '\t'); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)
	if raw == "/dev/null" {
		return raw
	}
	if strings.HasPrefix(raw, "a/") || strings.HasPrefix(raw, "b/") {
		return raw[2:]
	}
	return raw
}

// ParseDetailed parses a unified-diff text into fully structured FileDiff
// records, decomposing each file's hunks into typed lines.
func ParseDetailed(text string) ([]FileDiff, error) {
	entries, err := ParseMultiFileDiff(text)
	if err != nil {
		return nil, err
	}

	result := make([]FileDiff, 0, len(entries))
	for _, entry := range entries {
		fd, err := parseOneFileDiff(entry)
		if err != nil {
			return nil, err
		}
		result = append(result, fd)
	}
	return result, nil
}

func parseOneFileDiff(entry MultiFileEntry) (FileDiff, error) {
	lines := splitLinesPreserving(entry.Body)

	fd := FileDiff{
		OldPath: entry.OldPath,
		NewPath: entry.NewPath,
	}

	i := 0
	for i < len(lines) && !strings.HasPrefix(lines[i], "@@") {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff --git "):
			fd.GitHeader = line
		case strings.HasPrefix(line, "index "):
			fd.IndexLine = line
		}
		i++
	}

	fd.IsCreation = fd.OldPath == "/dev/null"
	fd.IsDeletion = fd.NewPath == "/dev/null"

	for i < len(lines) {
		if !strings.HasPrefix(lines[i], "@@") {
			i++
			continue
		}
		hunk, consumed, err := parseHunkHeader(lines[i:])
		if err != nil {
			return FileDiff{}, err
		}
		fd.Hunks = append(fd.Hunks, hunk)
		i += consumed
	}

	return fd, nil
}

// parseHunkHeader parses one "@@ -a,b +c,d @@" header (the ",b"/",d" counts
// default to 1 when omitted, per the unified-diff format) and consumes the
// hunk's body lines up to the next hunk header or end of input.
func parseHunkHeader(lines []string) (Hunk, int, error) {
	header := lines[0]
	rest := strings.TrimPrefix(header, "@@ ")
	if idx := strings.Index(rest, " @@"); idx >= 0 {
		rest = rest[:idx]
	}
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return Hunk{}, 0, engineerrors.NewDiffError("MalformedHeader", 0, fmt.Sprintf("bad hunk header: %q", header))
	}

	oldStart, oldCount, err := parseRange(fields[0], "-")
	if err != nil {
		return Hunk{}, 0, err
	}
	newStart, newCount, err := parseRange(fields[1], "+")
	if err != nil {
		return Hunk{}, 0, err
	}

	hunk := Hunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}

	consumed := 1
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if line == "" && i == len(lines)-1 {
			consumed++
			continue
		}
		if strings.HasPrefix(line, "@@") {
			break
		}
		if strings.HasPrefix(line, "diff --git ") {
			break
		}
		if len(line) == 0 {
			consumed++
			continue
		}
		switch line[0] {
		case ' ':
			hunk.Lines = append(hunk.Lines, Line{Type: LineContext, Content: line[1:]})
		case '+':
			hunk.Lines = append(hunk.Lines, Line{Type: LineAdd, Content: line[1:]})
		case '-':
			hunk.Lines = append(hunk.Lines, Line{Type: LineDelete, Content: line[1:]})
		case '\\':
			// "\ No newline at end of file" marker: not a content line.
		default:
			consumed++
			goto doneHunk
		}
		consumed++
	}
doneHunk:
	return hunk, consumed, nil
}

// parseRange parses "-a,b" or "+c,d" (prefix stripped by caller's field
// split already includes the sign) into (start, count).
func parseRange(field, sign string) (int, int, error) {
	field = strings.TrimPrefix(field, sign)
	parts := strings.SplitN(field, ",", 2)
	start, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, engineerrors.NewDiffError("MalformedHeader", 0, fmt.Sprintf("bad range %q", field))
	}
	count := 1
	if len(parts) == 2 {
		count, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, engineerrors.NewDiffError("MalformedHeader", 0, fmt.Sprintf("bad range count %q", field))
		}
	}
	return start, count, nil
}

// splitLinesPreserving splits on "\n" without dropping empty trailing
// segments produced by a final newline, so body reconstruction via
// strings.Join stays byte-faithful modulo the final newline itself.
func splitLinesPreserving(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
