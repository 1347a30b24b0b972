/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the git host clones are made from.
const DefaultBaseURL = "https://github.com"

const originName = "origin"

// Manager creates clones of repositories on a single git host and commits to
// them with a fixed identity.
type Manager struct {
	baseURL     string
	identity    string
	email       string
	tokenSource oauth2.TokenSource
}

// Option configures a Manager.
type Option func(*Manager)

// WithBaseURL overrides the git host. Any URL or local directory that
// <base>/<owner>/<repo>.git resolves against is accepted.
func WithBaseURL(base string) Option {
	return func(m *Manager) {
		m.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithEmail sets the commit author email.
func WithEmail(email string) Option {
	return func(m *Manager) {
		m.email = email
	}
}

// WithTokenSource authenticates clones and fetches. Without it clones are
// anonymous.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(m *Manager) {
		m.tokenSource = ts
	}
}

// New constructs a Manager. Identity is used as the commit author name and,
// unless WithEmail is given, as the local part of a noreply email.
func New(_ context.Context, identity string, opts ...Option) (*Manager, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.New("identity cannot be empty")
	}

	m := &Manager{
		baseURL:  DefaultBaseURL,
		identity: identity,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.email == "" {
		m.email = identity + "@users.noreply.github.com"
	}
	return m, nil
}

// RepoURL returns the plain (credential free) URL of owner/repo.
func (m *Manager) RepoURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", m.baseURL, owner, repo)
}

// Clone is a working tree checked out from a remote.
type Clone struct {
	manager *Manager
	dir     string
	owner   string
	name    string
	branch  string
	repo    *git.Repository
}

// Clone clones owner/repo into dir. When branch is empty the remote's default
// branch is checked out.
func (m *Manager) Clone(ctx context.Context, dir, owner, repo, branch string) (*Clone, error) {
	switch {
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case repo == "":
		return nil, errors.New("repo cannot be empty")
	case dir == "":
		return nil, errors.New("dir cannot be empty")
	}

	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	remote := m.RepoURL(owner, repo)
	opts := &git.CloneOptions{
		URL:  remote,
		Auth: auth,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
		opts.SingleBranch = true
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)
	r, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	if branch == "" {
		head, err := r.Head()
		if err != nil {
			return nil, fmt.Errorf("resolving HEAD: %w", err)
		}
		branch = head.Name().Short()
	}

	return &Clone{
		manager: m,
		dir:     dir,
		owner:   owner,
		name:    repo,
		branch:  branch,
		repo:    r,
	}, nil
}

func (m *Manager) authForRemote() (transport.AuthMethod, error) {
	if m.tokenSource == nil {
		return nil, nil
	}
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

// PullHeadBranch is the local branch a pull request head is fetched into.
func PullHeadBranch(number int) string {
	return fmt.Sprintf("pull/%d/head", number)
}

// FetchPullHead fetches refs/pull/<number>/head into a local branch of the
// same name, checks it out and returns its commit SHA.
func (c *Clone) FetchPullHead(ctx context.Context, number int) (string, error) {
	if number <= 0 {
		return "", fmt.Errorf("invalid pull request number %d", number)
	}

	auth, err := c.manager.authForRemote()
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}

	branch := PullHeadBranch(number)
	spec := gitconfig.RefSpec(fmt.Sprintf("+refs/%s:refs/heads/%s", branch, branch))

	clog.FromContext(ctx).Infof("Fetching %s", spec)
	if err := c.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: originName,
		RefSpecs:   []gitconfig.RefSpec{spec},
		Auth:       auth,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("fetching %s: %w", branch, err)
	}

	if err := c.Checkout(branch); err != nil {
		return "", err
	}
	return c.Head()
}

// Checkout switches the working tree to a local branch.
func (c *Clone) Checkout(branch string) error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	}); err != nil {
		return fmt.Errorf("checking out %s: %w", branch, err)
	}
	c.branch = branch
	return nil
}

// Dir returns the working tree root.
func (c *Clone) Dir() string {
	return c.dir
}

// Branch returns the checked out branch.
func (c *Clone) Branch() string {
	return c.branch
}

// Head returns the SHA of the checked out commit.
func (c *Clone) Head() (string, error) {
	ref, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// IsDirty reports whether the working tree differs from HEAD, counting
// untracked files.
func (c *Clone) IsDirty() (bool, error) {
	wt, err := c.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("getting worktree status: %w", err)
	}
	return !status.IsClean(), nil
}

// StageAll stages every addition, modification and deletion.
func (c *Clone) StageAll() error {
	wt, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}
	return nil
}

// Commit records the staged changes with the manager's identity and returns
// the new commit SHA.
func (c *Clone) Commit(ctx context.Context, message string, allowEmpty bool) (string, error) {
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}

	wt, err := c.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.manager.identity,
			Email: c.manager.email,
			When:  time.Now(),
		},
		AllowEmptyCommits: allowEmpty,
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}

	clog.FromContext(ctx).Infof("Committed %s on %s", hash, c.branch)
	return hash.String(), nil
}

// RemoteURL returns the URL origin points at.
func (c *Clone) RemoteURL() (string, error) {
	cfg, err := c.repo.Config()
	if err != nil {
		return "", fmt.Errorf("reading config: %w", err)
	}
	remote, ok := cfg.Remotes[originName]
	if !ok || len(remote.URLs) == 0 {
		return "", errors.New("origin remote not configured")
	}
	return remote.URLs[0], nil
}

// SetRemoteURL points origin at u.
func (c *Clone) SetRemoteURL(u string) error {
	cfg, err := c.repo.Config()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	remote, ok := cfg.Remotes[originName]
	if !ok {
		return errors.New("origin remote not configured")
	}
	remote.URLs = []string{u}
	if err := c.repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// RemoveGitDir deletes the .git directory, leaving a plain file tree.
func (c *Clone) RemoveGitDir() error {
	if err := os.RemoveAll(filepath.Join(c.dir, git.GitDirName)); err != nil {
		return fmt.Errorf("removing git dir: %w", err)
	}
	c.repo = nil
	return nil
}
