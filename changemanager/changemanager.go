/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changemanager carries the outcome of a task back to its pull
// request: it pushes the changed branch, posts at most one comment
// describing what happened, and closes the pull request when asked to and
// there was nothing to do.
package changemanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"chainguard.dev/feedstocktasks/actionsrun"
	"chainguard.dev/feedstocktasks/metrics"
	"chainguard.dev/feedstocktasks/pullrequest"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// Greeting opens every comment the bot posts.
const Greeting = "Hi! This is the friendly automated conda-forge-webservice.\n\n"

// ClosingNote is appended to the nothing-to-do message when the pull
// request is closed.
const ClosingNote = "\nI'm closing this PR!"

var (
	pushFailedTmpl = template.Must(template.New("push-failed").Parse(
		"I tried to {{.Action}} for you, but it looks like I wasn't able to push to the `{{.Branch}}` " +
			"branch of `{{.Owner}}`/`{{.Repo}}`. Did you check the \"Allow edits from maintainers\" box?\n\n" +
			"**NOTE**: Our webservices cannot push to PRs from organization accounts or PRs from forks made from " +
			"organization forks because of GitHub permissions. Please fork the feedstock directly from conda-forge " +
			"into your personal GitHub account.\n"))

	errorTmpl = template.Must(template.New("error").Parse(
		"I tried to {{.Action}} for you but ran into some issues. Please check the output logs of the GitHub " +
			"actions workflow below for more details. You can also ping conda-forge/core for further " +
			"assistance{{.Help}}.\n"))

	nothingTmpl = template.Must(template.New("nothing").Parse(
		"I tried to {{.Action}} for you, but it looks like there was nothing to do.\n"))
)

type messageData struct {
	Action string
	Branch string
	Owner  string
	Repo   string
	Help   string
}

// Pusher pushes the local branch of a clone to its origin using a token
// that is only attached for the duration of the push.
type Pusher interface {
	PushWithCredentials(ctx context.Context, ts oauth2.TokenSource) error
}

// Request describes the outcome of a task to propagate.
type Request struct {
	// Action is the verb used in comments, e.g. "rerender".
	Action string
	// Changed reports whether the clone holds commits to push.
	Changed bool
	// Error reports whether the task failed.
	Error bool
	// CloseIfNoChangesOrErrors closes the pull request when there was
	// nothing to do.
	CloseIfNoChangesOrErrors bool
	// HelpMessage is appended to the error message, e.g. " or you can ...".
	HelpMessage string
	// InfoMessage is appended to whatever comment is posted, and forces a
	// comment when there would otherwise be none.
	InfoMessage string
}

// Manager propagates task outcomes with a fixed GitHub client and token.
type Manager struct {
	gh      *github.Client
	ts      oauth2.TokenSource
	runLink string
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunLink sets the workflow run linked from every comment footer.
func WithRunLink(link string) Option {
	return func(m *Manager) { m.runLink = link }
}

// New creates a Manager. ts supplies the token used for the push only.
func New(gh *github.Client, ts oauth2.TokenSource, opts ...Option) (*Manager, error) {
	if gh == nil {
		return nil, errors.New("github client cannot be nil")
	}
	if ts == nil {
		return nil, errors.New("token source cannot be nil")
	}
	m := &Manager{gh: gh, ts: ts}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Propagate pushes when req.Changed, then posts a single comment and closes
// the pull request as the request dictates. A failed push is reported
// through pushFailed and the comment, never as err; err carries failures of
// the GitHub calls.
func (m *Manager) Propagate(ctx context.Context, req Request, p Pusher, ref *pullrequest.Ref) (pushFailed bool, err error) {
	log := clog.FromContext(ctx).With("action", req.Action).With("pr", ref.Number)
	log.Infof("Propagating: branch|owner|repo = %s|%s|%s", ref.HeadBranch, ref.HeadOwner, ref.HeadRepo)

	data := messageData{
		Action: req.Action,
		Branch: ref.HeadBranch,
		Owner:  ref.HeadOwner,
		Repo:   ref.HeadRepo,
		Help:   req.HelpMessage,
	}

	var message string
	closePR := false
	switch {
	case req.Changed:
		if perr := p.PushWithCredentials(ctx, m.ts); perr != nil {
			log.Errorf("Push failed: %v", perr)
			metrics.FromContext(ctx).PushFailed(req.Action)
			pushFailed = true
			if message, err = render(pushFailedTmpl, data); err != nil {
				return pushFailed, err
			}
		}
	case req.Error:
		if message, err = render(errorTmpl, data); err != nil {
			return false, err
		}
	default:
		if message, err = render(nothingTmpl, data); err != nil {
			return false, err
		}
		if req.CloseIfNoChangesOrErrors {
			message += ClosingNote
			closePR = true
		}
	}

	if req.InfoMessage != "" {
		if message == "" {
			message = Greeting + req.InfoMessage + "\n"
		} else {
			message += "\n" + req.InfoMessage
		}
	}

	if message != "" {
		body := message + actionsrun.Footer(m.runLink)
		if _, _, err := m.gh.Issues.CreateComment(ctx, ref.BaseOwner, ref.BaseRepo, ref.Number, &github.IssueComment{
			Body: github.Ptr(body),
		}); err != nil {
			return pushFailed, fmt.Errorf("posting comment: %w", err)
		}
		metrics.FromContext(ctx).Commented(req.Action)
		log.Info("Posted comment")
	}

	if closePR {
		log.Infof("Closing PR #%d", ref.Number)
		if _, _, err := m.gh.PullRequests.Edit(ctx, ref.BaseOwner, ref.BaseRepo, ref.Number, &github.PullRequest{
			State: github.Ptr("closed"),
		}); err != nil {
			return pushFailed, fmt.Errorf("closing pull request: %w", err)
		}
	}

	return pushFailed, nil
}

// render executes t and prefixes the greeting.
func render(t *template.Template, data messageData) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(Greeting)
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s message: %w", t.Name(), err)
	}
	return buf.String(), nil
}
