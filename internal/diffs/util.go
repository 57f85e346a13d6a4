package diffs

import (
	"fmt"
	"regexp"
	"strings"
)

// ExtractFilePath returns the best-guess workspace-relative path for a
// FileDiff, preferring the new path and falling back to the old path for
// deletions.
func ExtractFilePath(fd FileDiff) string {
	if fd.NewPath != "" && fd.NewPath != "/dev/null" {
		return fd.NewPath
	}
	return fd.OldPath
}

// IsFileCreation reports whether fd represents a new file (old side absent).
func IsFileCreation(fd FileDiff) bool {
	return fd.IsCreation || fd.OldPath == "/dev/null"
}

// IsFileDeletion reports whether fd represents a removed file (new side absent).
func IsFileDeletion(fd FileDiff) bool {
	return fd.IsDeletion || fd.NewPath == "/dev/null"
}

// CountChanges returns the number of added and deleted lines across every
// hunk of fd.
func CountChanges(fd FileDiff) (added, deleted int) {
	for _, h := range fd.Hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdd:
				added++
			case LineDelete:
				deleted++
			}
		}
	}
	return added, deleted
}

// EnsureTrailingNewline appends a trailing "\n" to text if it is non-empty
// and does not already end in one.
func EnsureTrailingNewline(text string) string {
	if text == "" || strings.HasSuffix(text, "\n") {
		return text
	}
	return text + "\n"
}

// AddFileHashesToDiff inserts (or replaces) a Git "index <old7>..<new7>
// 100644" line immediately after the "diff --git" header for every file
// section in text, computing the hashes from oldContentByPath/
// newContentByPath (keyed by the file's workspace-relative path).
func AddFileHashesToDiff(text string, oldContentByPath, newContentByPath map[string]string) (string, error) {
	entries, err := ParseMultiFileDiff(text)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, entry := range entries {
		fd, err := parseOneFileDiff(entry)
		if err != nil {
			return "", err
		}
		path := ExtractFilePath(fd)
		oldHash := shortSHA1(oldContentByPath[path])
		newHash := shortSHA1(newContentByPath[path])
		indexLine := fmt.Sprintf("index %s..%s 100644", oldHash, newHash)

		lines := splitLinesPreserving(entry.Body)
		wrote := false
		for _, line := range lines {
			if strings.HasPrefix(line, "diff --git ") {
				out.WriteString(line)
				out.WriteString("\n")
				out.WriteString(indexLine)
				out.WriteString("\n")
				wrote = true
				continue
			}
			if strings.HasPrefix(line, "index ") && wrote {
				// replace any pre-existing index line immediately following
				continue
			}
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

var timestampPattern = regexp.MustCompile(`\t[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9:.]+( [+-][0-9]{4})?`)

// CleanTimestamps strips Git-style timestamp suffixes from --- / +++
// header lines, useful for comparing diffs modulo generation time.
func CleanTimestamps(text string) string {
	lines := splitLinesPreserving(text)
	for i, line := range lines {
		if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") {
			lines[i] = timestampPattern.ReplaceAllString(line, "")
		}
	}
	return strings.Join(lines, "\n") + boundaryNewline(text)
}

func boundaryNewline(original string) string {
	if strings.HasSuffix(original, "\n") {
		return "\n"
	}
	return ""
}
