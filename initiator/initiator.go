/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package initiator runs before the task executes and marks lint runs as
// pending on the pull request head.
package initiator

import (
	"context"
	"errors"

	"chainguard.dev/feedstocktasks/pullrequest"
	"chainguard.dev/feedstocktasks/statusmanager"
	"chainguard.dev/feedstocktasks/task"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// DefaultOrg owns the base repositories.
const DefaultOrg = "conda-forge"

// Initiator performs the init phase.
type Initiator struct {
	gh       *github.Client
	statuses *statusmanager.Manager
	org      string
}

// New creates an Initiator for repositories owned by org.
func New(gh *github.Client, statuses *statusmanager.Manager, org string) (*Initiator, error) {
	if gh == nil {
		return nil, errors.New("github client cannot be nil")
	}
	if statuses == nil {
		return nil, errors.New("status manager cannot be nil")
	}
	if org == "" {
		org = DefaultOrg
	}
	return &Initiator{gh: gh, statuses: statuses, org: org}, nil
}

// Init prepares d. Lint tasks get a pending status without a link; rerender
// tasks need nothing.
func (i *Initiator) Init(ctx context.Context, d task.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	clog.FromContext(ctx).Infof("Initializing task %s for %s/%s#%d", d.Kind, i.org, d.Repo, d.PRNumber)

	if d.Kind != task.KindLint {
		return nil
	}

	ref, err := pullrequest.Get(ctx, i.gh, i.org, d.Repo, d.PRNumber)
	if err != nil {
		return err
	}
	return i.statuses.Set(ctx, i.gh, ref.BaseOwner, ref.BaseRepo, ref.HeadSHA, statusmanager.Pending, "")
}
