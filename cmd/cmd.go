// Package cmd exposes the review engine as a command line surface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/pbaumgart/loupe/internal/buildinfo"
	"github.com/pbaumgart/loupe/internal/config"
	"github.com/pbaumgart/loupe/internal/git"
	"github.com/pbaumgart/loupe/internal/plugin"
	"github.com/pbaumgart/loupe/internal/plugin/amp"
	"github.com/pbaumgart/loupe/internal/plugin/gitonly"
)

// app carries the state shared by every subcommand, populated by the
// root command's Before hook.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func Run() error {
	return run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) error {
	a := &app{}

	var (
		configPath string
		verbose    bool
	)

	root := &cli.Command{
		Name:      "loupe",
		Usage:     "Review local git changes and hand them to coding agents",
		UsageText: "loupe [global options] command [command options]",
		Description: `Loupe inspects a git repository the way a reviewer would: it reads the
pending revision range, builds a structured diff of uncommitted work,
and submits review feedback to agent plugins such as the Amp CLI.`,
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("LOUPE_CONFIG"),
				Value:       config.DefaultPath(),
				Destination: &configPath,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Usage:       "enable debug logging",
				Sources:     cli.EnvVars("LOUPE_VERBOSE"),
				Destination: &verbose,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.log)

			cfg, err := config.Load(configPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("validate config: %w", err)
			}
			a.cfg = cfg
			return ctx, nil
		},
	}

	root = newSnapshotCmd(a).register(root)
	root = newDiffCmd(a).register(root)
	root = newApplyCmd(a).register(root)
	root = newPluginsCmd(a).register(root)
	root = newReviewCmd(a).register(root)
	root = newWatchCmd(a).register(root)

	return root.Run(ctx, args)
}

// openRepo opens the repository containing path ("." when empty) with
// the configured diff settings.
func (a *app) openRepo(path string) (*git.Repository, error) {
	if path == "" {
		path = "."
	}
	return git.OpenWithConfig(path, git.Config{
		ContextLines: a.cfg.Diff.ContextLines,
		RenameScore:  a.cfg.Diff.RenameScore,
	})
}

// pluginService assembles the plugin registry from configuration.
func (a *app) pluginService() *plugin.Service {
	registry := plugin.NewRegistry(
		gitonly.New(),
		amp.New(amp.Options{
			Binary:  a.cfg.Amp.Binary,
			Timeout: a.cfg.Amp.Timeout.Std(),
			Logger:  a.log,
		}),
	)
	return plugin.NewService(registry, a.log)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
