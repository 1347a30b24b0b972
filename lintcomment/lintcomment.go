/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package lintcomment renders linter results into the pull request comment
// posted by the lint task and keeps a single such comment per pull request.
package lintcomment

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"chainguard.dev/feedstocktasks/actionsrun"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// Greeting opens every lint comment and identifies earlier ones.
const Greeting = "Hi! This is the friendly automated conda-forge-linting service."

// Status summarizes lint results.
type Status string

const (
	// Good means there were neither lints nor hints.
	Good Status = "good"
	// Mixed means there were hints but no lints.
	Mixed Status = "mixed"
	// Bad means there was at least one lint.
	Bad Status = "bad"
)

const errorText = Greeting + "\n\n" +
	"I Failed to even lint the recipe, probably because of a conda-smithy\n" +
	"bug :cry:. This likely indicates a problem in your `meta.yaml`, though. " +
	"To get a traceback to help figure out what's going on, install conda-smithy " +
	"and run `conda smithy recipe-lint --conda-forge .` from the recipe directory.\n"

var commentTmpl = template.Must(template.New("lint-comment").Parse(`{{.Greeting}}

{{if .Lints -}}
I wanted to let you know that I linted all conda-recipes in your PR (` + "`recipe`" + `) and found some lint.

Here's what I've got...

{{range .Lints}}* {{.}}
{{end}}{{else -}}
I just wanted to let you know that I linted all conda-recipes in your PR (` + "`recipe`" + `) and found it was in an excellent condition.
{{end}}{{if .Hints}}
I do have some suggestions for making it better though...

{{range .Hints}}* {{.}}
{{end}}{{end}}`))

// Build renders the comment body for lints and hints, footer included, and
// reports the resulting status.
func Build(lints, hints []string, runLink string) (string, Status, error) {
	var buf bytes.Buffer
	if err := commentTmpl.Execute(&buf, struct {
		Greeting string
		Lints    []string
		Hints    []string
	}{Greeting, lints, hints}); err != nil {
		return "", "", fmt.Errorf("rendering lint comment: %w", err)
	}

	status := Good
	switch {
	case len(lints) > 0:
		status = Bad
	case len(hints) > 0:
		status = Mixed
	}
	return buf.String() + actionsrun.Footer(runLink), status, nil
}

// ErrorMessage is the comment body posted when the linter could not run.
func ErrorMessage(runLink string) string {
	return errorText + actionsrun.Footer(runLink)
}

// Upsert edits the most recent lint comment left by botLogin on the pull
// request, or creates one when there is none.
func Upsert(ctx context.Context, gh *github.Client, owner, repo string, number int, botLogin, body string) (*github.IssueComment, error) {
	log := clog.FromContext(ctx).With("pr", number)

	prev, err := findPrevious(ctx, gh, owner, repo, number, botLogin)
	if err != nil {
		return nil, err
	}

	if prev != nil {
		log.Infof("Updating lint comment %d", prev.GetID())
		c, _, err := gh.Issues.EditComment(ctx, owner, repo, prev.GetID(), &github.IssueComment{
			Body: github.Ptr(body),
		})
		if err != nil {
			return nil, fmt.Errorf("editing lint comment: %w", err)
		}
		return c, nil
	}

	log.Info("Posting lint comment")
	c, _, err := gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return nil, fmt.Errorf("posting lint comment: %w", err)
	}
	return c, nil
}

func findPrevious(ctx context.Context, gh *github.Client, owner, repo string, number int, botLogin string) (*github.IssueComment, error) {
	var last *github.IssueComment
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		for _, c := range comments {
			if c.GetUser().GetLogin() == botLogin && strings.HasPrefix(c.GetBody(), Greeting) {
				last = c
			}
		}
		if resp.NextPage == 0 {
			return last, nil
		}
		opts.Page = resp.NextPage
	}
}
