// Package highlight computes presentation hints for diff lines:
// intraline change spans for paired deletion/addition lines and syntax
// token spans for the host's renderer.
package highlight

import (
	"github.com/pmezard/go-difflib/difflib"

	"github.com/pbaumgart/loupe/internal/review"
)

// Intraline diffs two line texts and returns the modified column spans
// on each side. Columns are zero-based rune offsets, start inclusive,
// end exclusive. Both results are nil when the lines are equal or share
// nothing worth highlighting.
func Intraline(oldText, newText string) (oldSpans, newSpans []review.LineHighlight) {
	if oldText == newText {
		return nil, nil
	}
	a := splitRunes(oldText)
	b := splitRunes(newText)
	matcher := difflib.NewMatcher(a, b)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'r':
			oldSpans = appendSpan(oldSpans, op.I1, op.I2)
			newSpans = appendSpan(newSpans, op.J1, op.J2)
		case 'd':
			oldSpans = appendSpan(oldSpans, op.I1, op.I2)
		case 'i':
			newSpans = appendSpan(newSpans, op.J1, op.J2)
		}
	}
	// A highlight covering the entire line carries no information.
	if covers(oldSpans, len(a)) && covers(newSpans, len(b)) {
		return nil, nil
	}
	return oldSpans, newSpans
}

func splitRunes(s string) []string {
	runes := []rune(s)
	parts := make([]string, len(runes))
	for i, r := range runes {
		parts[i] = string(r)
	}
	return parts
}

func appendSpan(spans []review.LineHighlight, start, end int) []review.LineHighlight {
	if end <= start {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].EndColumn == start {
		spans[n-1].EndColumn = end
		return spans
	}
	return append(spans, review.LineHighlight{StartColumn: start, EndColumn: end})
}

func covers(spans []review.LineHighlight, length int) bool {
	if length == 0 {
		return true
	}
	return len(spans) == 1 && spans[0].StartColumn == 0 && spans[0].EndColumn == length
}

// PairLines attaches intraline highlights to matching deletion/addition
// pairs within a hunk: the i-th deletion of a contiguous removal run is
// paired with the i-th addition of the run that follows it.
func PairLines(lines []review.DiffLine) {
	i := 0
	for i < len(lines) {
		if lines[i].Kind != review.LineDeletion {
			i++
			continue
		}
		delStart := i
		for i < len(lines) && lines[i].Kind == review.LineDeletion {
			i++
		}
		addStart := i
		for i < len(lines) && lines[i].Kind == review.LineAddition {
			i++
		}
		pairs := min(addStart-delStart, i-addStart)
		for p := 0; p < pairs; p++ {
			del := &lines[delStart+p]
			add := &lines[addStart+p]
			del.Highlights, add.Highlights = Intraline(del.Text, add.Text)
		}
	}
}
