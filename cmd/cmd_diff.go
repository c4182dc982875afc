package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/highlight"
	"github.com/pbaumgart/loupe/internal/review"
)

type diffCmd struct {
	app *app

	source     string
	jsonOutput bool
	statOnly   bool
	noColor    bool
}

func newDiffCmd(a *app) *diffCmd {
	return &diffCmd{app: a}
}

func (cmd *diffCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "diff",
		Usage:     "Show the structured diff of pending changes",
		UsageText: "loupe diff [--source uncommitted|head|workspace] [--json|--stat] [path]",
		Description: `Sources:
  uncommitted  workspace diff with head fallback (default)
  head         working tree against the HEAD commit; fails without commits
  workspace    working tree against HEAD, or the empty tree in an
               unborn repository`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "source",
				Usage:       "diff baseline: uncommitted, head, or workspace",
				Value:       "uncommitted",
				Destination: &cmd.source,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the diff model as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "stat",
				Usage:       "show per-file stats only",
				Destination: &cmd.statOnly,
			},
			&cli.BoolFlag{
				Name:        "no-color",
				Usage:       "disable colored output",
				Destination: &cmd.noColor,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *diffCmd) run(ctx context.Context, c *cli.Command) error {
	repo, err := cmd.app.openRepo(c.Args().First())
	if err != nil {
		return err
	}

	var diff *review.Diff
	switch cmd.source {
	case "uncommitted":
		diff, err = repo.DiffUncommitted(ctx)
	case "head":
		diff, err = repo.DiffHead(ctx)
	case "workspace":
		diff, err = repo.DiffWorkspace(ctx)
	default:
		return fmt.Errorf("unknown diff source %q", cmd.source)
	}
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		return writeJSON(out, diff)
	}
	if cmd.statOnly {
		return printDiffStat(out, diff)
	}
	printDiff(out, diff, newDiffStyles(!cmd.noColor))
	return nil
}

func printDiffStat(out io.Writer, diff *review.Diff) error {
	if len(diff.Files) == 0 {
		fmt.Fprintln(out, "No changes")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, file := range diff.Files {
		name := file.Path
		if file.OldPath != "" {
			name = fmt.Sprintf("%s -> %s", file.OldPath, file.Path)
		}
		if file.IsBinary {
			fmt.Fprintf(w, "%s\t%s\tbin\n", name, file.Status)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t+%d\t-%d\n", name, file.Status, file.Stats.Additions, file.Stats.Deletions)
	}
	total := diff.TotalStats()
	fmt.Fprintf(w, "total\t\t+%d\t-%d\n", total.Additions, total.Deletions)
	return w.Flush()
}

// diffStyles holds the lipgloss styles for diff rendering. The zero
// value renders everything unstyled.
type diffStyles struct {
	header   lipgloss.Style
	hunk     lipgloss.Style
	addition lipgloss.Style
	deletion lipgloss.Style
	keyword  lipgloss.Style
	literal  lipgloss.Style
	number   lipgloss.Style
	comment  lipgloss.Style

	syntax bool
}

func newDiffStyles(color bool) diffStyles {
	if !color {
		return diffStyles{}
	}
	return diffStyles{
		header:   lipgloss.NewStyle().Bold(true),
		hunk:     lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		addition: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		deletion: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		keyword:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		literal:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		number:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		comment:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		syntax:   true,
	}
}

func printDiff(out io.Writer, diff *review.Diff, styles diffStyles) {
	if len(diff.Files) == 0 {
		fmt.Fprintln(out, "No changes")
		return
	}
	for i := range diff.Files {
		file := &diff.Files[i]
		printFileHeader(out, file, styles)
		if file.IsBinary {
			fmt.Fprintln(out, "  (binary file)")
			continue
		}
		for _, hunk := range file.Hunks {
			printHunk(out, file.Path, hunk, styles)
		}
	}
	total := diff.TotalStats()
	fmt.Fprintf(out, "\n%d files changed, +%d -%d\n", len(diff.Files), total.Additions, total.Deletions)
}

func printFileHeader(out io.Writer, file *review.DiffFile, styles diffStyles) {
	name := file.Path
	if file.OldPath != "" {
		name = fmt.Sprintf("%s -> %s", file.OldPath, file.Path)
	}
	fmt.Fprintln(out, styles.header.Render(fmt.Sprintf("%s %s", file.Status, name)))
}

func printHunk(out io.Writer, path string, hunk review.DiffHunk, styles diffStyles) {
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@",
		hunk.Header.BaseStart, hunk.Header.BaseLines,
		hunk.Header.HeadStart, hunk.Header.HeadLines)
	if hunk.Section != "" {
		header += " " + hunk.Section
	}
	fmt.Fprintln(out, styles.hunk.Render(header))
	for _, line := range hunk.Lines {
		fmt.Fprintln(out, renderLine(styles, path, line))
	}
}

func renderLine(styles diffStyles, path string, line review.DiffLine) string {
	switch line.Kind {
	case review.LineAddition:
		return styles.addition.Render("+" + line.Text)
	case review.LineDeletion:
		return styles.deletion.Render("-" + line.Text)
	default:
		if styles.syntax {
			return " " + colorizeSource(styles, path, line.Text)
		}
		return " " + line.Text
	}
}

// colorizeSource applies syntax colors to a context line. Token texts
// concatenate back to the original line, so styling each in place is
// loss-free.
func colorizeSource(styles diffStyles, path, text string) string {
	tokens := highlight.Tokens(path, text)
	if tokens == nil {
		return text
	}
	var b strings.Builder
	for _, token := range tokens {
		style, ok := styles.forTokenKind(token.Kind)
		if !ok {
			b.WriteString(token.Text)
			continue
		}
		b.WriteString(style.Render(token.Text))
	}
	return b.String()
}

func (s diffStyles) forTokenKind(kind string) (lipgloss.Style, bool) {
	switch {
	case strings.HasPrefix(kind, "Keyword"):
		return s.keyword, true
	case strings.HasPrefix(kind, "LiteralString"):
		return s.literal, true
	case strings.HasPrefix(kind, "LiteralNumber"):
		return s.number, true
	case strings.HasPrefix(kind, "Comment"):
		return s.comment, true
	default:
		return lipgloss.Style{}, false
	}
}
