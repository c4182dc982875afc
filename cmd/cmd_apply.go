package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/review"
)

type applyCmd struct {
	app *app

	suggestionPath string
	dryRun         bool
	jsonOutput     bool
}

func newApplyCmd(a *app) *applyCmd {
	return &applyCmd{app: a}
}

func (cmd *applyCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "apply",
		Usage:     "Apply a suggestion's text edits to the working tree",
		UsageText: "loupe apply --suggestion file.json [--dry-run] [path]",
		Description: `Reads a suggestion document (title plus text edits addressed by
path/line/column) and applies it to the working tree, staging the
updated files. With --dry-run the resulting patches are printed and
nothing is written. Pass "-" to read the suggestion from stdin.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "suggestion",
				Aliases:     []string{"s"},
				Usage:       "suggestion JSON file, or - for stdin",
				Required:    true,
				Destination: &cmd.suggestionPath,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "print the patches without writing",
				Destination: &cmd.dryRun,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output dry-run previews as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *applyCmd) run(_ context.Context, c *cli.Command) error {
	suggestion, err := cmd.readSuggestion()
	if err != nil {
		return err
	}
	repo, err := cmd.app.openRepo(c.Args().First())
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.dryRun {
		previews, err := repo.PreviewSuggestion(suggestion)
		if err != nil {
			return err
		}
		if cmd.jsonOutput {
			return writeJSON(out, previews)
		}
		if len(previews) == 0 {
			fmt.Fprintln(out, "No changes")
			return nil
		}
		for _, preview := range previews {
			fmt.Fprint(out, preview.Patch)
		}
		return nil
	}

	if err := repo.ApplySuggestion(suggestion); err != nil {
		return err
	}
	if !cmd.jsonOutput {
		fmt.Fprintln(out, "Suggestion applied and staged")
	}
	return nil
}

func (cmd *applyCmd) readSuggestion() (review.Suggestion, error) {
	var raw []byte
	var err error
	if cmd.suggestionPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(cmd.suggestionPath)
	}
	if err != nil {
		return review.Suggestion{}, fmt.Errorf("read suggestion: %w", err)
	}
	var suggestion review.Suggestion
	if err := json.Unmarshal(raw, &suggestion); err != nil {
		return review.Suggestion{}, fmt.Errorf("parse suggestion: %w", err)
	}
	if len(suggestion.Edits) == 0 {
		return review.Suggestion{}, fmt.Errorf("suggestion has no edits")
	}
	return suggestion, nil
}
