package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/plugin"
)

const pollInterval = 2 * time.Second

type reviewCmd struct {
	app *app

	pluginID   string
	threadID   string
	summary    string
	actions    []string
	comments   []string
	wait       bool
	jsonOutput bool
}

func newReviewCmd(a *app) *reviewCmd {
	return &reviewCmd{app: a}
}

func (cmd *reviewCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "review",
		Usage:     "Submit review feedback to an agent plugin",
		UsageText: "loupe review --plugin id [--thread id] [--summary text] [--action text]... [--comment path:line:severity:note]... [--wait]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "plugin",
				Usage:       "plugin to submit through",
				Destination: &cmd.pluginID,
			},
			&cli.StringFlag{
				Name:        "thread",
				Usage:       "existing thread to continue instead of starting a new one",
				Destination: &cmd.threadID,
			},
			&cli.StringFlag{
				Name:        "summary",
				Usage:       "overall review summary",
				Destination: &cmd.summary,
			},
			&cli.StringSliceFlag{
				Name:        "action",
				Usage:       "requested action (repeatable)",
				Destination: &cmd.actions,
			},
			&cli.StringSliceFlag{
				Name:        "comment",
				Usage:       "inline comment as path:line:severity:note (repeatable)",
				Destination: &cmd.comments,
			},
			&cli.BoolFlag{
				Name:        "wait",
				Usage:       "poll until the agent finishes its revision",
				Destination: &cmd.wait,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the submission result as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *reviewCmd) run(ctx context.Context, c *cli.Command) error {
	payload, err := cmd.payload()
	if err != nil {
		return err
	}
	if payload.Empty() {
		return fmt.Errorf("nothing to submit: provide --summary, --action, or --comment")
	}

	pluginID := cmd.pluginID
	if pluginID == "" {
		if preferred := cmd.app.cfg.Plugins.Preferred; len(preferred) > 0 {
			pluginID = preferred[0]
		} else {
			return fmt.Errorf("no plugin selected: pass --plugin or configure plugins.preferred")
		}
	}

	svc := cmd.app.pluginService()
	session, err := svc.Attach(ctx, pluginID, cmd.threadID)
	if err != nil {
		return err
	}
	result, err := svc.SubmitReview(ctx, session, payload)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput && !cmd.wait {
		return writeJSON(out, result)
	}
	if !cmd.jsonOutput {
		if result.Message != "" {
			fmt.Fprintln(out, result.Message)
		}
		if result.Reference != "" {
			fmt.Fprintf(out, "Reference: %s\n", result.Reference)
		}
	}

	if !cmd.wait || !result.RevisionStarted {
		if cmd.jsonOutput {
			return writeJSON(out, result)
		}
		return nil
	}
	return cmd.waitForRevision(ctx, c, svc, session)
}

func (cmd *reviewCmd) waitForRevision(ctx context.Context, c *cli.Command, svc *plugin.Service, session plugin.Session) error {
	out := c.Root().Writer
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		progress, err := svc.PollProgress(ctx, session)
		if err != nil {
			return err
		}
		switch progress.State {
		case plugin.RevisionCompleted:
			if cmd.jsonOutput {
				return writeJSON(out, progress)
			}
			fmt.Fprintln(out, "Revision completed")
			if progress.Detail != "" {
				fmt.Fprintln(out, progress.Detail)
			}
			return nil
		case plugin.RevisionFailed:
			if cmd.jsonOutput {
				if err := writeJSON(out, progress); err != nil {
					return err
				}
			}
			return fmt.Errorf("revision failed: %s", progress.Detail)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (cmd *reviewCmd) payload() (plugin.ReviewPayload, error) {
	payload := plugin.ReviewPayload{
		Summary: cmd.summary,
		Actions: cmd.actions,
	}
	for _, raw := range cmd.comments {
		comment, err := parseComment(raw)
		if err != nil {
			return plugin.ReviewPayload{}, err
		}
		payload.Comments = append(payload.Comments, comment)
	}
	return payload, nil
}

// parseComment splits a path:line:severity:note argument. The note may
// itself contain colons; only the first three separators matter.
func parseComment(raw string) (plugin.CommentDraft, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 {
		return plugin.CommentDraft{}, fmt.Errorf("malformed comment %q: want path:line:severity:note", raw)
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil || line < 1 {
		return plugin.CommentDraft{}, fmt.Errorf("malformed comment %q: line must be a positive integer", raw)
	}
	severity := plugin.Severity(parts[2])
	switch severity {
	case plugin.SeverityInfo, plugin.SeverityWarning, plugin.SeverityError:
	case "":
		severity = plugin.SeverityInfo
	default:
		return plugin.CommentDraft{}, fmt.Errorf("malformed comment %q: unknown severity %q", raw, parts[2])
	}
	if parts[3] == "" {
		return plugin.CommentDraft{}, fmt.Errorf("malformed comment %q: empty note", raw)
	}
	return plugin.CommentDraft{
		Path:     parts[0],
		Line:     line,
		Severity: severity,
		Note:     parts[3],
	}, nil
}
