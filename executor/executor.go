/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package executor runs the unprivileged phase of a task. It checks out the
// pull request head from the base repository, runs the renderer or linter
// against it and records the outcome in a result bundle for the finalize
// phase. It never holds write credentials.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"chainguard.dev/feedstocktasks/clonemanager"
	"chainguard.dev/feedstocktasks/config"
	"chainguard.dev/feedstocktasks/task"
	"github.com/chainguard-dev/clog"
)

// DefaultOrg owns the repositories tasks run against.
const DefaultOrg = "conda-forge"

// Renderer regenerates the derived files of a checkout.
type Renderer interface {
	Rerender(ctx context.Context, c *clonemanager.Clone) (task.RerenderResults, error)
}

// Linter lints the checkout at dir.
type Linter interface {
	Lint(ctx context.Context, dir string) (lints, hints []string, err error)
}

// ImagePuller fetches the container image the tools run in.
type ImagePuller interface {
	Pull(ctx context.Context, image string) error
}

// Executor performs the run phase.
type Executor struct {
	clones   *clonemanager.Manager
	renderer Renderer
	linter   Linter
	puller   ImagePuller
	org      string
	image    string
	out      io.Writer
}

// Option configures an Executor.
type Option func(*Executor)

// WithOrg overrides the organization owning the repositories.
func WithOrg(org string) Option {
	return func(e *Executor) { e.org = org }
}

// WithImage pulls image through p before any tool runs.
func WithImage(p ImagePuller, image string) Option {
	return func(e *Executor) {
		e.puller = p
		e.image = image
	}
}

// WithOutput sets where tool output and log groups are written.
func WithOutput(w io.Writer) Option {
	return func(e *Executor) { e.out = w }
}

// New creates an Executor. clones must not carry a token source.
func New(clones *clonemanager.Manager, r Renderer, l Linter, opts ...Option) (*Executor, error) {
	switch {
	case clones == nil:
		return nil, errors.New("clone manager cannot be nil")
	case r == nil:
		return nil, errors.New("renderer cannot be nil")
	case l == nil:
		return nil, errors.New("linter cannot be nil")
	}
	e := &Executor{
		clones:   clones,
		renderer: r,
		linter:   l,
		org:      DefaultOrg,
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes d and writes its bundle into d.DataDir. Renderer and linter
// failures are recorded in the bundle; only failures to check out the pull
// request or to persist the bundle are returned.
func (e *Executor) Run(ctx context.Context, d task.Descriptor) (*task.Bundle, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.DataDir == "" {
		return nil, errors.New("task data dir cannot be empty")
	}

	log := clog.FromContext(ctx).With("task", d.Kind).With("repo", d.Repo).With("pr", d.PRNumber)
	ctx = clog.WithLogger(ctx, log)
	log.Infof("Running task %s for %s/%s#%d", d.Kind, e.org, d.Repo, d.PRNumber)

	// Tools run from here on see PR controlled content.
	if err := os.Unsetenv(config.TokenEnv); err != nil {
		return nil, fmt.Errorf("scrubbing %s: %w", config.TokenEnv, err)
	}

	if err := os.MkdirAll(d.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating task data dir: %w", err)
	}

	ws := d.WorkspaceDir()
	c, err := e.clones.Clone(ctx, ws, e.org, d.Repo, "")
	if err != nil {
		return nil, err
	}
	head, err := c.FetchPullHead(ctx, d.PRNumber)
	if err != nil {
		return nil, err
	}
	log.Infof("Checked out %s at %s", c.Branch(), head)

	e.pullImage(ctx)

	var b *task.Bundle
	switch d.Kind {
	case task.KindRerender:
		res, err := e.rerender(ctx, c)
		if err != nil {
			log.Errorf("Rerender failed: %v", err)
			res = task.RerenderResults{RerenderError: true}
		}
		b = task.NewRerenderBundle(d, head, res)
	case task.KindLint:
		res := task.LintResults{}
		lints, hints, err := e.lint(ctx, ws)
		if err != nil {
			log.Warnf("LINTING ERROR: %v", err)
			res.LintError = true
		} else {
			res.Lints, res.Hints = lints, hints
		}
		b = task.NewLintBundle(d, head, res)
	}

	if err := task.Write(d.DataDir, b); err != nil {
		return nil, err
	}

	if err := c.RemoveGitDir(); err != nil {
		return nil, err
	}
	if d.Kind == task.KindLint {
		if err := os.RemoveAll(ws); err != nil {
			return nil, fmt.Errorf("removing workspace: %w", err)
		}
	}
	return b, nil
}

// rerender calls the renderer, turning a panic into an error.
func (e *Executor) rerender(ctx context.Context, c *clonemanager.Clone) (res task.RerenderResults, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return e.renderer.Rerender(ctx, c)
}

// lint calls the linter, turning a panic into an error.
func (e *Executor) lint(ctx context.Context, dir string) (lints, hints []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("linter panicked: %v", r)
		}
	}()
	return e.linter.Lint(ctx, dir)
}

func (e *Executor) pullImage(ctx context.Context) {
	if e.puller == nil || e.image == "" {
		return
	}
	if err := e.puller.Pull(ctx, e.image); err != nil {
		clog.FromContext(ctx).Warnf("Pulling %s failed: %v", e.image, err)
	}
}
