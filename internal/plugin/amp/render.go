package amp

import (
	"fmt"
	"strings"

	"github.com/pbaumgart/loupe/internal/highlight"
	"github.com/pbaumgart/loupe/internal/plugin"
)

// renderPayload turns the structured payload into the plain-text
// message piped to the agent. Section order is fixed so repeated
// submissions of the same payload produce identical bytes.
func renderPayload(payload plugin.ReviewPayload) string {
	var sections []string

	if payload.Summary != "" {
		sections = append(sections, "Summary:\n"+strings.TrimSpace(payload.Summary))
	}

	if len(payload.Actions) > 0 {
		lines := make([]string, len(payload.Actions))
		for i, action := range payload.Actions {
			lines[i] = "- " + action
		}
		sections = append(sections, "Requested Actions:\n"+strings.Join(lines, "\n"))
	}

	if len(payload.Comments) > 0 {
		lines := make([]string, len(payload.Comments))
		for i, comment := range payload.Comments {
			lines[i] = formatComment(comment)
		}
		sections = append(sections, "Inline Comments:\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

func formatComment(comment plugin.CommentDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s line %d", comment.Path, comment.Line)
	if comment.Severity != "" {
		fmt.Fprintf(&b, " [%s]", comment.Severity)
	}
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(comment.Note))
	if comment.SuggestionPatch != "" {
		tag := highlight.LanguageTag(comment.Path)
		fmt.Fprintf(&b, "\n  Suggested replacement:\n  ```%s\n", tag)
		for _, line := range strings.Split(strings.TrimRight(comment.SuggestionPatch, "\n"), "\n") {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
		b.WriteString("  ```")
	}
	return b.String()
}
