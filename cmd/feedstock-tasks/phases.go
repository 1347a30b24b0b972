/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"

	"chainguard.dev/feedstocktasks/changemanager"
	"chainguard.dev/feedstocktasks/clonemanager"
	"chainguard.dev/feedstocktasks/config"
	"chainguard.dev/feedstocktasks/executor"
	"chainguard.dev/feedstocktasks/finalizer"
	"chainguard.dev/feedstocktasks/initiator"
	"chainguard.dev/feedstocktasks/statusmanager"
	"chainguard.dev/feedstocktasks/task"
	"github.com/spf13/cobra"
)

func (a *app) initCmd() *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   "init-task",
		Short: "Mark a task as started on its pull request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			return a.track(cmd.Context(), "init", d.Kind.String(), func(ctx context.Context) error {
				gh, err := a.cfg.GitHubClient(ctx, config.EnvTokenSource(config.TokenEnv))
				if err != nil {
					return err
				}
				sm, err := statusmanager.New(a.cfg.StatusContext)
				if err != nil {
					return err
				}
				i, err := initiator.New(gh, sm, a.cfg.Org)
				if err != nil {
					return err
				}
				return i.Init(ctx, d)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   "run-task",
		Short: "Run a task against a pull request without credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := flags.descriptor()
			if err != nil {
				return err
			}
			return a.track(cmd.Context(), "run", d.Kind.String(), func(ctx context.Context) error {
				// Anonymous clones only: this phase never holds a token.
				clones, err := clonemanager.New(ctx, a.cfg.BotLogin, clonemanager.WithBaseURL(a.cfg.ServerURL))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				r := executor.NewCommandRenderer(a.cfg.RerenderCommand, a.cfg.RerenderCommitMessage)
				r.Output = out
				l := executor.NewCommandLinter(a.cfg.LintCommand)
				l.Output = out

				e, err := executor.New(clones, r, l,
					executor.WithOrg(a.cfg.Org),
					executor.WithImage(&executor.DockerPuller{Output: out}, a.cfg.Image()),
					executor.WithOutput(out),
				)
				if err != nil {
					return err
				}
				_, err = e.Run(ctx, d)
				return err
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *app) finalizeCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "finalize-task",
		Short: "Push, comment and set statuses from a task bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := "unknown"
			if b, err := task.Read(dataDir); err == nil {
				kind = b.Kind.String()
			}
			return a.track(cmd.Context(), "finalize", kind, func(ctx context.Context) error {
				ts := config.EnvTokenSource(config.TokenEnv)
				gh, err := a.cfg.GitHubClient(ctx, ts)
				if err != nil {
					return err
				}
				clones, err := clonemanager.New(ctx, a.cfg.BotLogin,
					clonemanager.WithBaseURL(a.cfg.ServerURL),
					clonemanager.WithEmail(a.cfg.BotEmail),
				)
				if err != nil {
					return err
				}
				changes, err := changemanager.New(gh, ts, changemanager.WithRunLink(a.cfg.RunLink()))
				if err != nil {
					return err
				}
				sm, err := statusmanager.New(a.cfg.StatusContext)
				if err != nil {
					return err
				}
				f, err := finalizer.New(gh, clones, changes, sm,
					finalizer.WithOrg(a.cfg.Org),
					finalizer.WithBotLogin(a.cfg.BotLogin),
					finalizer.WithRerenderTitle(a.cfg.RerenderTitle),
					finalizer.WithRunLink(a.cfg.RunLink()),
					finalizer.WithRequireHeadMatch(a.cfg.RequireHeadMatch),
				)
				if err != nil {
					return err
				}
				return f.Finalize(ctx, dataDir)
			})
		},
	}
	cmd.Flags().StringVar(&dataDir, "task-data-dir", "", "directory holding the task bundle")
	_ = cmd.MarkFlagRequired("task-data-dir")
	return cmd
}
