package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/review"
	"github.com/pbaumgart/loupe/internal/session"
	"github.com/pbaumgart/loupe/internal/watch"
)

type watchCmd struct {
	app *app

	jsonOutput bool
}

func newWatchCmd(a *app) *watchCmd {
	return &watchCmd{app: a}
}

func (cmd *watchCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Keep a review session open and report repository changes",
		UsageText: "loupe watch [--json] [path]",
		Description: `Opens a session on the repository, then refreshes it whenever the
repository changes on disk. Each refresh prints one status line (or one
JSON object with --json). Stop with Ctrl-C.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output one JSON object per update",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})
	return root
}

// sessionEvent is the serializable per-update summary printed by watch.
type sessionEvent struct {
	State   session.State     `json:"state"`
	Err     string            `json:"error,omitempty"`
	Branch  string            `json:"branch,omitempty"`
	Dirty   bool              `json:"dirty"`
	Diff    session.DiffState `json:"diff"`
	DiffErr string            `json:"diff_error,omitempty"`
	Files   int               `json:"files"`
	Stats   review.DiffStats  `json:"stats"`
}

func (cmd *watchCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := cmd.app
	open := session.Opener(func(path string) (session.Repository, error) {
		repo, err := a.openRepo(path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	})
	mgr := session.NewManager(open, a.pluginService(), a.log)
	defer mgr.Close()

	path := c.Args().First()
	if path == "" {
		path = "."
	}
	mgr.Open(ctx, path)

	out := c.Root().Writer
	var watcher *watch.Watcher
	defer func() {
		if watcher != nil {
			_ = watcher.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-mgr.Updates():
		}

		view := mgr.View()
		if err := cmd.printEvent(out, view); err != nil {
			return err
		}
		switch view.State {
		case session.StateFailed:
			return fmt.Errorf("open %s: %s", path, view.Err)
		case session.StateReady:
			if watcher == nil {
				var err error
				watcher, err = cmd.startWatcher(ctx, mgr, view.Snapshot.Info.Root)
				if err != nil {
					return err
				}
			}
		}
	}
}

func (cmd *watchCmd) startWatcher(ctx context.Context, mgr *session.Manager, root string) (*watch.Watcher, error) {
	a := cmd.app
	watcher, err := watch.New(root, func() {
		mgr.Refresh(ctx)
		mgr.ReloadDiff(ctx)
	}, watch.Options{
		Debounce: a.cfg.Watch.Debounce.Std(),
		Ignore:   a.cfg.Watch.Ignore,
		Logger:   a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	return watcher, nil
}

func (cmd *watchCmd) printEvent(out io.Writer, view session.View) error {
	event := sessionEvent{
		State:   view.State,
		Err:     view.Err,
		Diff:    view.Diff.State,
		DiffErr: view.Diff.Err,
	}
	if view.Snapshot != nil {
		event.Branch = view.Snapshot.Workspace.CurrentBranch
		event.Dirty = view.Snapshot.Workspace.Dirty
	}
	if view.Diff.Diff != nil {
		event.Files = len(view.Diff.Diff.Files)
		event.Stats = view.Diff.Diff.TotalStats()
	}

	if cmd.jsonOutput {
		return writeJSON(out, event)
	}
	switch {
	case event.Err != "":
		fmt.Fprintf(out, "%-8s %s\n", event.State, event.Err)
	case event.State == session.StateReady:
		fmt.Fprintf(out, "%-8s branch=%s dirty=%t diff=%s files=%d +%d -%d\n",
			event.State, event.Branch, event.Dirty, event.Diff,
			event.Files, event.Stats.Additions, event.Stats.Deletions)
	default:
		fmt.Fprintf(out, "%-8s\n", event.State)
	}
	return nil
}
