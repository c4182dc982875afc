package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/review"
)

type snapshotCmd struct {
	app *app

	jsonOutput bool
}

func newSnapshotCmd(a *app) *snapshotCmd {
	return &snapshotCmd{app: a}
}

func (cmd *snapshotCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "snapshot",
		Usage:     "Show repository metadata and the pending revision range",
		UsageText: "loupe snapshot [--json] [path]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the snapshot as JSON",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *snapshotCmd) run(_ context.Context, c *cli.Command) error {
	repo, err := cmd.app.openRepo(c.Args().First())
	if err != nil {
		return err
	}
	snap, err := repo.Snapshot()
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		return writeJSON(out, snap)
	}

	fmt.Fprintf(out, "Repository:     %s\n", snap.Info.Root)
	if snap.Info.DefaultBranch != "" {
		fmt.Fprintf(out, "Default branch: %s\n", snap.Info.DefaultBranch)
	}
	if snap.Workspace.CurrentBranch != "" {
		fmt.Fprintf(out, "Current branch: %s\n", snap.Workspace.CurrentBranch)
	}
	fmt.Fprintf(out, "Workspace:      %s\n", workspaceLabel(snap.Workspace.Dirty))
	if snap.Revisions == nil || snap.Revisions.Head == nil {
		fmt.Fprintln(out, "Head:           (no commits)")
		return nil
	}
	fmt.Fprintf(out, "Head:           %s\n", revisionLabel(snap.Revisions.Head))
	if snap.Revisions.Base != nil {
		fmt.Fprintf(out, "Base:           %s\n", revisionLabel(snap.Revisions.Base))
	} else {
		fmt.Fprintln(out, "Base:           (empty tree)")
	}
	return nil
}

func workspaceLabel(dirty bool) string {
	if dirty {
		return "dirty"
	}
	return "clean"
}

func revisionLabel(rev *review.Revision) string {
	oid := rev.OID
	if len(oid) > 12 {
		oid = oid[:12]
	}
	if rev.Summary == "" {
		return oid
	}
	return fmt.Sprintf("%s  %s", oid, rev.Summary)
}
