/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"log/slog"

	"chainguard.dev/feedstocktasks/config"
	"chainguard.dev/feedstocktasks/metrics"
	"chainguard.dev/feedstocktasks/task"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// app is shared by the subcommands of one invocation.
type app struct {
	lookuper envconfig.Lookuper
	cfg      *config.Config
}

// taskFlags are the flags identifying a task.
type taskFlags struct {
	task     string
	repo     string
	prNumber int
	dataDir  string
}

func (f *taskFlags) register(cmd *cobra.Command, withDataDir bool) {
	cmd.Flags().StringVar(&f.task, "task", "", "task to run (rerender or lint)")
	cmd.Flags().StringVar(&f.repo, "repo", "", "feedstock repository name")
	cmd.Flags().IntVar(&f.prNumber, "pr-number", 0, "pull request number")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("pr-number")
	if withDataDir {
		cmd.Flags().StringVar(&f.dataDir, "task-data-dir", "", "directory the task bundle is written to")
		_ = cmd.MarkFlagRequired("task-data-dir")
	}
}

func (f *taskFlags) descriptor() (task.Descriptor, error) {
	kind, err := task.ParseKind(f.task)
	if err != nil {
		return task.Descriptor{}, err
	}
	d := task.Descriptor{Kind: kind, Repo: f.repo, PRNumber: f.prNumber, DataDir: f.dataDir}
	if err := d.Validate(); err != nil {
		return task.Descriptor{}, err
	}
	return d, nil
}

func newRootCmd(l envconfig.Lookuper) *cobra.Command {
	a := &app{lookuper: l}

	root := &cobra.Command{
		Use:   "feedstock-tasks",
		Short: "Run rerender and lint tasks for feedstock pull requests",
		Long: `feedstock-tasks runs a pull request task in three phases.

init-task reports that the task started, run-task executes it against the
pull request without credentials and writes a result bundle, and
finalize-task consumes the bundle with credentials to push, comment and set
statuses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadWith(ctx, a.lookuper)
			if err != nil {
				return err
			}
			a.cfg = cfg

			logger := clog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
			cmd.SetContext(clog.WithLogger(ctx, logger))
			return nil
		},
	}

	root.AddCommand(a.initCmd(), a.runCmd(), a.finalizeCmd())
	return root
}

// track runs fn as phase of kind with a span and metrics, then pushes the
// metrics. A failed push is logged and does not change the outcome.
func (a *app) track(ctx context.Context, phase, kind string, fn func(context.Context) error) error {
	rec := metrics.New()
	ctx = metrics.WithRecorder(ctx, rec)

	ctx, done := rec.Track(ctx, phase, kind)
	err := fn(ctx)
	done(err)

	if perr := rec.Push(ctx, a.cfg.PushgatewayURL); perr != nil {
		clog.FromContext(ctx).Warnf("Failed to push metrics: %v", perr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}
