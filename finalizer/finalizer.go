/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package finalizer runs the privileged phase of a task. It consumes the
// result bundle left by the run phase, re-applies the rendered files to a
// fresh clone of the pull request branch and reports back on the pull
// request through comments, pushes and commit statuses.
package finalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chainguard.dev/feedstocktasks/changemanager"
	"chainguard.dev/feedstocktasks/clonemanager"
	"chainguard.dev/feedstocktasks/lintcomment"
	"chainguard.dev/feedstocktasks/metrics"
	"chainguard.dev/feedstocktasks/pullrequest"
	"chainguard.dev/feedstocktasks/statusmanager"
	"chainguard.dev/feedstocktasks/task"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

var (
	// ErrPullRequestClosed is returned when the pull request was closed
	// before the task could be finalized.
	ErrPullRequestClosed = errors.New("pull request is closed")

	// ErrRerenderFailed is returned when the rerender failed or its result
	// could not be pushed. The pull request has been told either way.
	ErrRerenderFailed = errors.New("rerendering failed")

	// ErrHeadMoved is returned when the pull request head changed since the
	// run phase and a matching head is required.
	ErrHeadMoved = errors.New("pull request head moved")
)

const (
	// DefaultOrg owns the base repositories.
	DefaultOrg = "conda-forge"
	// DefaultBotLogin is the account the bot acts as.
	DefaultBotLogin = "conda-forge-admin"
	// DefaultRerenderTitle is the title of rerender pull requests opened by
	// the bot.
	DefaultRerenderTitle = "MNT: rerender"

	// MixedDescription is the status description for hints without lints.
	MixedDescription = "Some recipes have hints."

	// RerenderHelp is appended to the rerender error message.
	RerenderHelp = " or you can try [rerendering locally]" +
		"(https://conda-forge.org/docs/maintainer/updating_pkgs.html#rerendering-with-conda-smithy-locally)"

	// DebugSuggestions is appended to the info message of a failed rerender.
	DebugSuggestions = "The following suggestions might help debug any issues:\n" +
		"* Is the `recipe/{meta.yaml,recipe.yaml}` file valid?\n" +
		"* If there is a `recipe/conda-build-config.yaml` file in the feedstock make sure that it is compatible " +
		"with the current [global pinnnings](https://github.com/conda-forge/conda-forge-pinning-feedstock/blob/master/recipe/conda_build_config.yaml).\n" +
		"* Is the fork used for this PR on an organization or user GitHub account? Automated rerendering via the " +
		"webservices admin bot only works for user GitHub accounts."
)

// Finalizer performs the finalize phase.
type Finalizer struct {
	gh       *github.Client
	clones   *clonemanager.Manager
	changes  *changemanager.Manager
	statuses *statusmanager.Manager

	org              string
	botLogin         string
	rerenderTitle    string
	runLink          string
	requireHeadMatch bool
	tempDir          string
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithOrg overrides the organization owning the base repositories.
func WithOrg(org string) Option {
	return func(f *Finalizer) { f.org = org }
}

// WithBotLogin sets the account whose pull requests and comments are the
// bot's own.
func WithBotLogin(login string) Option {
	return func(f *Finalizer) { f.botLogin = login }
}

// WithRerenderTitle sets the title of bot opened rerender pull requests.
func WithRerenderTitle(title string) Option {
	return func(f *Finalizer) { f.rerenderTitle = title }
}

// WithRunLink sets the workflow run linked from lint comments.
func WithRunLink(link string) Option {
	return func(f *Finalizer) { f.runLink = link }
}

// WithRequireHeadMatch makes a moved pull request head fatal.
func WithRequireHeadMatch(require bool) Option {
	return func(f *Finalizer) { f.requireHeadMatch = require }
}

// WithTempDir sets the directory temporary clones are created in.
func WithTempDir(dir string) Option {
	return func(f *Finalizer) { f.tempDir = dir }
}

// New creates a Finalizer.
func New(gh *github.Client, clones *clonemanager.Manager, changes *changemanager.Manager, statuses *statusmanager.Manager, opts ...Option) (*Finalizer, error) {
	switch {
	case gh == nil:
		return nil, errors.New("github client cannot be nil")
	case clones == nil:
		return nil, errors.New("clone manager cannot be nil")
	case changes == nil:
		return nil, errors.New("change manager cannot be nil")
	case statuses == nil:
		return nil, errors.New("status manager cannot be nil")
	}
	f := &Finalizer{
		gh:            gh,
		clones:        clones,
		changes:       changes,
		statuses:      statuses,
		org:           DefaultOrg,
		botLogin:      DefaultBotLogin,
		rerenderTitle: DefaultRerenderTitle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Finalize consumes the bundle in dataDir and acts on it.
func (f *Finalizer) Finalize(ctx context.Context, dataDir string) error {
	b, err := task.Consume(dataDir)
	if err != nil {
		return err
	}

	log := clog.FromContext(ctx).With("task", b.Kind).With("repo", b.Repo).With("pr", b.PRNumber)
	ctx = clog.WithLogger(ctx, log)
	log.Infof("Finalizing task %s for %s/%s#%d", b.Kind, f.org, b.Repo, b.PRNumber)
	if pretty, err := json.MarshalIndent(b.Results(), "", "  "); err == nil {
		log.Infof("Task results:\n%s", pretty)
	}

	ref, err := pullrequest.Get(ctx, f.gh, f.org, b.Repo, b.PRNumber)
	if err != nil {
		return err
	}
	if ref.Closed() {
		return fmt.Errorf("%s/%s#%d: %w", f.org, b.Repo, b.PRNumber, ErrPullRequestClosed)
	}

	if b.HeadSHA != "" && b.HeadSHA != ref.HeadSHA {
		if f.requireHeadMatch {
			return fmt.Errorf("ran against %s but head is %s: %w", b.HeadSHA, ref.HeadSHA, ErrHeadMoved)
		}
		log.Warnf("Pull request head moved from %s to %s since the task ran", b.HeadSHA, ref.HeadSHA)
	}

	switch b.Kind {
	case task.KindRerender:
		return f.rerender(ctx, dataDir, b, ref)
	case task.KindLint:
		return f.lint(ctx, b, ref)
	default:
		return fmt.Errorf("task %q is not valid: %w", b.Kind, task.ErrUnknownKind)
	}
}

func (f *Finalizer) rerender(ctx context.Context, dataDir string, b *task.Bundle, ref *pullrequest.Ref) error {
	log := clog.FromContext(ctx)
	res := b.Rerender

	tmp, err := os.MkdirTemp(f.tempDir, "finalize-")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	c, err := f.clones.Clone(ctx, filepath.Join(tmp, ref.HeadRepo), ref.HeadOwner, ref.HeadRepo, ref.HeadBranch)
	if err != nil {
		return err
	}

	if !res.RerenderError {
		if err := clonemanager.SyncDirs(task.WorkspaceDir(dataDir, b.Repo), c.Dir()); err != nil {
			return err
		}
		if err := c.StageAll(); err != nil {
			return err
		}
		if res.CommitMessage != "" {
			if _, err := c.Commit(ctx, res.CommitMessage, true); err != nil {
				return err
			}
		}
	}

	info := res.InfoMessage
	if res.RerenderError {
		info += "\n" + DebugSuggestions
	}

	pushFailed, err := f.changes.Propagate(ctx, changemanager.Request{
		Action:      "rerender",
		Changed:     res.Changed,
		Error:       res.RerenderError,
		HelpMessage: RerenderHelp,
		InfoMessage: info,
	}, c, ref)
	if err != nil {
		return err
	}
	if res.RerenderError || pushFailed {
		return fmt.Errorf("%w: error in push|rerender: %t|%t", ErrRerenderFailed, pushFailed, res.RerenderError)
	}

	if ref.Title == f.rerenderTitle && ref.Author == f.botLogin {
		if err := pullrequest.MarkReadyForReview(ctx, f.gh, ref); err != nil {
			log.Errorf("Failed to mark #%d ready for review: %v", ref.Number, err)
		}
	}
	return nil
}

func (f *Finalizer) lint(ctx context.Context, b *task.Bundle, ref *pullrequest.Ref) error {
	log := clog.FromContext(ctx)
	res := b.Lint

	var (
		body   string
		status lintcomment.Status
	)
	if res.LintError {
		body, status = lintcomment.ErrorMessage(f.runLink), lintcomment.Bad
	} else {
		var err error
		if body, status, err = lintcomment.Build(res.Lints, res.Hints, f.runLink); err != nil {
			return err
		}
	}

	comment, err := lintcomment.Upsert(ctx, f.gh, ref.BaseOwner, ref.BaseRepo, ref.Number, f.botLogin, body)
	if err != nil {
		return err
	}
	metrics.FromContext(ctx).Commented(string(task.KindLint))

	url := comment.GetHTMLURL()
	switch status {
	case lintcomment.Good:
		err = f.statuses.Set(ctx, f.gh, ref.BaseOwner, ref.BaseRepo, ref.HeadSHA, statusmanager.Success, url)
	case lintcomment.Mixed:
		err = f.statuses.SetDescribed(ctx, f.gh, ref.BaseOwner, ref.BaseRepo, ref.HeadSHA, statusmanager.Success, MixedDescription, url)
	default:
		err = f.statuses.Set(ctx, f.gh, ref.BaseOwner, ref.BaseRepo, ref.HeadSHA, statusmanager.Failure, url)
	}
	if err != nil {
		return err
	}

	log.Infof("Linter status: %s", status)
	log.Infof("Linter message:\n%s", body)
	return nil
}
