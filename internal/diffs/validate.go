package diffs

import (
	"fmt"
	"strings"
)

// Validate checks a unified-diff text against the structural rules every
// diff produced or consumed by this module must satisfy: every "+++" is
// preceded by a "---", every hunk header parses and its declared counts
// match the lines actually present, CRLF is rejected outright, and a
// non-empty diff missing a final trailing newline is flagged.
func Validate(text string) ValidationResult {
	if strings.TrimSpace(text) == "" {
		return ValidationResult{Valid: false, Errors: []string{"diff text is empty"}}
	}

	var errs []string

	if strings.Contains(text, "\r\n") {
		errs = append(errs, "diff contains CRLF line endings, which are not supported")
	}

	if !strings.HasSuffix(text, "\n") {
		errs = append(errs, "diff is missing a trailing newline")
	}

	lines := splitLinesPreserving(text)
	lastWasMinusMinusMinus := false
	for idx, line := range lines {
		lineNo := idx + 1
		switch {
		case strings.HasPrefix(line, "+++ "):
			if !lastWasMinusMinusMinus {
				errs = append(errs, fmt.Sprintf("line %d: '+++' not preceded by '---'", lineNo))
			}
			lastWasMinusMinusMinus = false
		case strings.HasPrefix(line, "--- "):
			lastWasMinusMinusMinus = true
		default:
			if !strings.HasPrefix(line, "@@") {
				lastWasMinusMinusMinus = false
			}
		}
	}

	fileDiffs, err := ParseDetailed(text)
	if err != nil {
		errs = append(errs, err.Error())
		return ValidationResult{Valid: false, Errors: errs}
	}

	for _, fd := range fileDiffs {
		for _, h := range fd.Hunks {
			oldSeen, newSeen := 0, 0
			for _, l := range h.Lines {
				switch l.Type {
				case LineContext:
					oldSeen++
					newSeen++
				case LineDelete:
					oldSeen++
				case LineAdd:
					newSeen++
				}
			}
			if oldSeen != h.OldCount {
				errs = append(errs, fmt.Sprintf("hunk @@ -%d,%d +%d,%d @@: old line count mismatch (declared %d, found %d)",
					h.OldStart, h.OldCount, h.NewStart, h.NewCount, h.OldCount, oldSeen))
			}
			if newSeen != h.NewCount {
				errs = append(errs, fmt.Sprintf("hunk @@ -%d,%d +%d,%d @@: new line count mismatch (declared %d, found %d)",
					h.OldStart, h.OldCount, h.NewStart, h.NewCount, h.NewCount, newSeen))
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
