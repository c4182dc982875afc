package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

type pluginsCmd struct {
	app *app

	jsonOutput bool
	threadsOf  string
}

func newPluginsCmd(a *app) *pluginsCmd {
	return &pluginsCmd{app: a}
}

func (cmd *pluginsCmd) register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "plugins",
		Usage:     "List registered agent plugins and their capabilities",
		UsageText: "loupe plugins [--json] [--threads plugin-id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON",
				Destination: &cmd.jsonOutput,
			},
			&cli.StringFlag{
				Name:        "threads",
				Usage:       "list the resumable threads of the given plugin instead",
				Destination: &cmd.threadsOf,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *pluginsCmd) run(ctx context.Context, c *cli.Command) error {
	svc := cmd.app.pluginService()
	out := c.Root().Writer

	if cmd.threadsOf != "" {
		threads, err := svc.ListThreads(ctx, cmd.threadsOf)
		if err != nil {
			return err
		}
		if cmd.jsonOutput {
			return writeJSON(out, threads)
		}
		if len(threads) == 0 {
			fmt.Fprintln(out, "No threads")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE")
		for _, thread := range threads {
			fmt.Fprintf(w, "%s\t%s\n", thread.ID, thread.Title)
		}
		return w.Flush()
	}

	summaries := svc.Summaries(cmd.app.cfg.Plugins.Preferred)
	if cmd.jsonOutput {
		return writeJSON(out, summaries)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tTHREADS\tNO-THREAD ATTACH\tPOLLING")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Label,
			yesNo(s.Capabilities.ListThreads),
			yesNo(s.Capabilities.AttachWithoutThread),
			yesNo(s.Capabilities.Polling))
	}
	return w.Flush()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
