package amp

import (
	"strings"

	"github.com/pbaumgart/loupe/internal/plugin"
)

// parseThreadTable extracts thread references from the column table
// printed by `amp threads list`. The table ends each row with the
// thread id; the leading columns form the title, which may itself
// contain single spaces.
func parseThreadTable(output string) []plugin.ThreadRef {
	var threads []plugin.ThreadRef
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "─") || strings.HasPrefix(trimmed, "Title ") {
			continue
		}
		if ref, ok := parseThreadLine(line); ok {
			threads = append(threads, ref)
		}
	}
	return threads
}

func parseThreadLine(line string) (plugin.ThreadRef, bool) {
	columns := splitColumns(line)
	if len(columns) < 4 {
		return plugin.ThreadRef{}, false
	}

	titleSplit := max(len(columns)-4, 1)
	titleCols, tailCols := columns[:titleSplit], columns[titleSplit:]
	infoCols := tailCols
	if len(tailCols) >= 4 {
		infoCols = tailCols[1:]
	}
	if len(infoCols) < 3 {
		return plugin.ThreadRef{}, false
	}

	return plugin.ThreadRef{
		ID:    infoCols[len(infoCols)-1],
		Title: strings.TrimSpace(strings.Join(titleCols, " ")),
	}, true
}

// splitColumns splits a table row on runs of two or more spaces, so
// titles with single interior spaces survive as one column.
func splitColumns(line string) []string {
	var columns []string
	start := 0
	i := 0
	for i < len(line) {
		if line[i] != ' ' {
			i++
			continue
		}
		j := i
		for j < len(line) && line[j] == ' ' {
			j++
		}
		if j-i >= 2 {
			if segment := strings.TrimSpace(line[start:i]); segment != "" {
				columns = append(columns, segment)
			}
			start = j
		}
		i = j
	}
	if segment := strings.TrimSpace(line[start:]); segment != "" {
		columns = append(columns, segment)
	}
	return columns
}
