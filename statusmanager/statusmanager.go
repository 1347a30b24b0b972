/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package statusmanager reports the outcome of a task as a GitHub commit
// status under a fixed context. Each Set call replaces the previous status of
// the same context on GitHub, so the last write wins.
package statusmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
)

// DefaultContext is the status context used when none is configured.
const DefaultContext = "conda-forge-linter"

// State is a commit status state.
type State string

const (
	Pending State = "pending"
	Success State = "success"
	Failure State = "failure"
)

var defaultDescriptions = map[State]string{
	Pending: "Linting in progress...",
	Success: "All recipes are excellent.",
	Failure: "Some recipes need some changes.",
}

// Option customizes the Manager.
type Option func(*Manager)

// WithDescription overrides the description posted for state.
func WithDescription(state State, description string) Option {
	return func(m *Manager) { m.descriptions[state] = description }
}

// Manager writes commit statuses for one context.
type Manager struct {
	context      string
	descriptions map[State]string
}

// New constructs a Manager for the status context name.
func New(name string, opts ...Option) (*Manager, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("status context cannot be empty")
	}
	m := &Manager{
		context:      name,
		descriptions: make(map[State]string, len(defaultDescriptions)),
	}
	for s, d := range defaultDescriptions {
		m.descriptions[s] = d
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Context returns the status context name.
func (m *Manager) Context() string {
	return m.context
}

// Description returns the description posted for state.
func (m *Manager) Description(state State) string {
	return m.descriptions[state]
}

// Set posts state on sha of owner/repo with the state's description. An
// empty targetURL posts no link.
func (m *Manager) Set(ctx context.Context, gh *github.Client, owner, repo, sha string, state State, targetURL string) error {
	return m.SetDescribed(ctx, gh, owner, repo, sha, state, m.descriptions[state], targetURL)
}

// SetDescribed is Set with an explicit description.
func (m *Manager) SetDescribed(ctx context.Context, gh *github.Client, owner, repo, sha string, state State, description, targetURL string) error {
	if _, ok := m.descriptions[state]; !ok {
		return fmt.Errorf("unknown status state %q", state)
	}
	if sha == "" {
		return errors.New("commit sha cannot be empty")
	}

	status := &github.RepoStatus{
		State:       github.Ptr(string(state)),
		Description: github.Ptr(description),
		Context:     github.Ptr(m.context),
	}
	if targetURL != "" {
		status.TargetURL = github.Ptr(targetURL)
	}

	clog.FromContext(ctx).With("sha", sha).Infof("Setting %s status to %s on %s/%s", m.context, state, owner, repo)
	if _, _, err := gh.Repositories.CreateStatus(ctx, owner, repo, sha, status); err != nil {
		return fmt.Errorf("creating commit status: %w", err)
	}
	return nil
}
