/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pullrequest fetches the live state of a pull request and promotes
// draft pull requests through the GraphQL API.
package pullrequest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

// Ref is a snapshot of a pull request taken at the start of a phase.
type Ref struct {
	Number int
	NodeID string
	Title  string
	Author string
	State  string
	Draft  bool

	HeadSHA    string
	HeadBranch string
	HeadOwner  string
	HeadRepo   string

	BaseOwner string
	BaseRepo  string

	HTMLURL string
}

// Closed reports whether the pull request was closed or merged.
func (r *Ref) Closed() bool {
	return r.State == "closed"
}

// Get fetches owner/repo#number.
func Get(ctx context.Context, gh *github.Client, owner, repo string, number int) (*Ref, error) {
	pr, _, err := gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	ref := &Ref{
		Number:     pr.GetNumber(),
		NodeID:     pr.GetNodeID(),
		Title:      pr.GetTitle(),
		Author:     pr.GetUser().GetLogin(),
		State:      pr.GetState(),
		Draft:      pr.GetDraft(),
		HeadSHA:    pr.GetHead().GetSHA(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadOwner:  pr.GetHead().GetRepo().GetOwner().GetLogin(),
		HeadRepo:   pr.GetHead().GetRepo().GetName(),
		BaseOwner:  pr.GetBase().GetRepo().GetOwner().GetLogin(),
		BaseRepo:   pr.GetBase().GetRepo().GetName(),
		HTMLURL:    pr.GetHTMLURL(),
	}
	if ref.Number == 0 {
		ref.Number = number
	}
	if ref.BaseOwner == "" {
		ref.BaseOwner = owner
	}
	if ref.BaseRepo == "" {
		ref.BaseRepo = repo
	}

	clog.FromContext(ctx).With("state", ref.State).With("head", ref.HeadSHA).
		Infof("Fetched %s/%s#%d", owner, repo, ref.Number)
	return ref, nil
}

// GraphQLClient returns a GraphQL client sharing gh's transport and host.
func GraphQLClient(gh *github.Client) *githubv4.Client {
	base := gh.BaseURL
	if base == nil || base.Host == "api.github.com" {
		return githubv4.NewClient(gh.Client())
	}
	return githubv4.NewEnterpriseClient(graphQLURL(base), gh.Client())
}

// graphQLURL derives the GraphQL endpoint from a REST base URL:
// https://ghe/api/v3/ becomes https://ghe/api/graphql and any other base gets
// graphql appended.
func graphQLURL(base *url.URL) string {
	u := *base
	switch {
	case strings.HasSuffix(u.Path, "/api/v3/"):
		u.Path = strings.TrimSuffix(u.Path, "v3/") + "graphql"
	default:
		u.Path = strings.TrimSuffix(u.Path, "/") + "/graphql"
	}
	return u.String()
}

// MarkReadyForReview converts a draft pull request into one ready for review.
// It is a no-op for pull requests that are not drafts.
func MarkReadyForReview(ctx context.Context, gh *github.Client, ref *Ref) error {
	if !ref.Draft {
		return nil
	}

	var m struct {
		MarkPullRequestReadyForReview struct {
			PullRequest struct {
				ID      githubv4.ID
				IsDraft githubv4.Boolean
			}
		} `graphql:"markPullRequestReadyForReview(input: $input)"`
	}
	input := githubv4.MarkPullRequestReadyForReviewInput{
		PullRequestID: githubv4.ID(ref.NodeID),
	}

	clog.FromContext(ctx).Infof("Marking #%d as ready for review", ref.Number)
	if err := GraphQLClient(gh).Mutate(ctx, &m, input, nil); err != nil {
		return fmt.Errorf("marking pull request ready for review: %w", err)
	}
	ref.Draft = bool(m.MarkPullRequestReadyForReview.PullRequest.IsDraft)
	return nil
}
