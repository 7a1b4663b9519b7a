// Package textdiff produces unified-diff hunks and add/delete counts
// between two versions of a scripted (formatted) code string, on demand
// (spec.md §4.10).
package textdiff

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// LineTag classifies one line within a hunk.
type LineTag string

const (
	TagContext LineTag = "context"
	TagAdd     LineTag = "add"
	TagDelete  LineTag = "delete"
)

// Line is one tagged line of a hunk, with its position in the old and/or
// new text (zero when not applicable to that side).
type Line struct {
	Tag       LineTag
	Text      string
	OldLineNo int
	NewLineNo int
}

// Hunk is one contiguous region of change, in unified-diff shape.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Header   string
	Lines    []Line
}

// Result is the full diff between two code strings.
type Result struct {
	Hunks     []Hunk
	Additions int
	Deletions int
}

// DefaultContextLines is used when Generate is called with contextLines <= 0
// (spec.md §4.10: "Context: 3 lines by default").
const DefaultContextLines = 3

// Generate computes the unified diff between oldCode and newCode. Equal
// inputs (including both empty) yield an empty hunk list and zero counts.
func Generate(oldCode, newCode string, contextLines int) Result {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}

	aLines := splitLines(oldCode)
	bLines := splitLines(newCode)
	matcher := difflib.NewMatcher(aLines, bLines)
	groups := matcher.GetGroupedOpCodes(contextLines)

	var hunks []Hunk
	additions, deletions := 0, 0

	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		first, last := group[0], group[len(group)-1]
		oldStart, newStart := first.I1+1, first.J1+1
		oldCount, newCount := last.I2-first.I1, last.J2-first.J1

		var lines []Line
		for _, op := range group {
			switch op.Tag {
			case 'e':
				for i := op.I1; i < op.I2; i++ {
					lines = append(lines, Line{
						Tag: TagContext, Text: aLines[i],
						OldLineNo: i + 1, NewLineNo: op.J1 + (i - op.I1) + 1,
					})
				}
			case 'd':
				for i := op.I1; i < op.I2; i++ {
					lines = append(lines, Line{Tag: TagDelete, Text: aLines[i], OldLineNo: i + 1})
					deletions++
				}
			case 'i':
				for j := op.J1; j < op.J2; j++ {
					lines = append(lines, Line{Tag: TagAdd, Text: bLines[j], NewLineNo: j + 1})
					additions++
				}
			case 'r':
				for i := op.I1; i < op.I2; i++ {
					lines = append(lines, Line{Tag: TagDelete, Text: aLines[i], OldLineNo: i + 1})
					deletions++
				}
				for j := op.J1; j < op.J2; j++ {
					lines = append(lines, Line{Tag: TagAdd, Text: bLines[j], NewLineNo: j + 1})
					additions++
				}
			}
		}

		hunks = append(hunks, Hunk{
			OldStart: oldStart, OldCount: oldCount,
			NewStart: newStart, NewCount: newCount,
			Header: fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldCount, newStart, newCount),
			Lines:  lines,
		})
	}

	return Result{Hunks: hunks, Additions: additions, Deletions: deletions}
}

// UnifiedString renders the same diff as a standard unified-diff text block,
// for callers that want to print or pipe it through ordinary tooling.
func UnifiedString(oldCode, newCode, fromLabel, toLabel string, contextLines int) (string, error) {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	diff := difflib.UnifiedDiff{
		A:        splitLines(oldCode),
		B:        splitLines(newCode),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  contextLines,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// splitLines splits s into lines that keep their "\n", terminating a last
// unterminated line. Unlike difflib.SplitLines it adds no empty line after a
// trailing newline, so hunk positions and counts match the input text.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n"
	return lines
}
