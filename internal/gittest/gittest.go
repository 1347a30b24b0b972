/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gittest builds local bare repositories that stand in for GitHub
// remotes in tests. Origins live at <root>/<owner>/<repo>.git so a
// clonemanager.Manager configured WithBaseURL(root) clones them.
package gittest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Origin is a bare repository plus a private working clone used to author
// commits and push them into it.
type Origin struct {
	Owner  string
	Repo   string
	Branch string
	Dir    string

	t       testing.TB
	work    *git.Repository
	workDir string
}

// NewOrigin creates <root>/<owner>/<repo>.git with a single commit holding
// files on branch, which is also the default branch.
func NewOrigin(t testing.TB, root, owner, repo, branch string, files map[string]string) *Origin {
	t.Helper()

	dir := filepath.Join(root, owner, repo+".git")
	if _, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
		Bare:        true,
	}); err != nil {
		t.Fatalf("PlainInit origin: %v", err)
	}

	workDir := t.TempDir()
	work, err := git.PlainInitWithOptions(workDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
	})
	if err != nil {
		t.Fatalf("PlainInit work: %v", err)
	}
	if _, err := work.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{dir}}); err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}

	o := &Origin{
		Owner:   owner,
		Repo:    repo,
		Branch:  branch,
		Dir:     dir,
		t:       t,
		work:    work,
		workDir: workDir,
	}
	o.commit(files, "initial")
	o.push(branch, plumbing.NewBranchReferenceName(branch))
	return o
}

// Push commits files on top of branch and pushes it. Branch is created from
// the default branch when it does not exist yet. It returns the new SHA.
func (o *Origin) Push(branch string, files map[string]string, message string) string {
	o.t.Helper()
	o.checkout(branch)
	sha := o.commit(files, message)
	o.push(branch, plumbing.NewBranchReferenceName(branch))
	return sha
}

// PushPullRequest commits files on top of the default branch and publishes
// the result as refs/pull/<number>/head. It returns the head SHA.
func (o *Origin) PushPullRequest(number int, files map[string]string) string {
	o.t.Helper()
	branch := fmt.Sprintf("pr-%d", number)
	o.checkout(branch)
	sha := o.commit(files, fmt.Sprintf("pull request %d", number))
	o.push(branch, plumbing.ReferenceName(fmt.Sprintf("refs/pull/%d/head", number)))
	return sha
}

// Head resolves a full reference name in the origin.
func (o *Origin) Head(ref string) string {
	o.t.Helper()
	return o.Commit(ref).Hash.String()
}

// Commit returns the commit a full reference name points at in the origin.
func (o *Origin) Commit(ref string) *object.Commit {
	o.t.Helper()
	r, err := git.PlainOpen(o.Dir)
	if err != nil {
		o.t.Fatalf("PlainOpen origin: %v", err)
	}
	h, err := r.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		o.t.Fatalf("Reference %s: %v", ref, err)
	}
	c, err := r.CommitObject(h.Hash())
	if err != nil {
		o.t.Fatalf("CommitObject: %v", err)
	}
	return c
}

// File returns the content of path at ref in the origin, and whether it
// exists.
func (o *Origin) File(ref, path string) (string, bool) {
	o.t.Helper()
	f, err := o.Commit(ref).File(path)
	if err != nil {
		return "", false
	}
	content, err := f.Contents()
	if err != nil {
		o.t.Fatalf("Contents %s: %v", path, err)
	}
	return content, true
}

func (o *Origin) checkout(branch string) {
	o.t.Helper()
	wt, err := o.work.Worktree()
	if err != nil {
		o.t.Fatalf("Worktree: %v", err)
	}

	name := plumbing.NewBranchReferenceName(branch)
	opts := &git.CheckoutOptions{Branch: name, Force: true}
	if _, err := o.work.Reference(name, true); err != nil {
		base, err := o.work.Reference(plumbing.NewBranchReferenceName(o.Branch), true)
		if err != nil {
			o.t.Fatalf("Reference %s: %v", o.Branch, err)
		}
		opts.Create = true
		opts.Hash = base.Hash()
	}
	if err := wt.Checkout(opts); err != nil {
		o.t.Fatalf("Checkout %s: %v", branch, err)
	}
}

func (o *Origin) commit(files map[string]string, message string) string {
	o.t.Helper()
	wt, err := o.work.Worktree()
	if err != nil {
		o.t.Fatalf("Worktree: %v", err)
	}
	for name, content := range files {
		path := filepath.Join(o.workDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			o.t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			o.t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		o.t.Fatalf("Add: %v", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	if err != nil {
		o.t.Fatalf("Commit: %v", err)
	}
	return hash.String()
}

func (o *Origin) push(branch string, dst plumbing.ReferenceName) {
	o.t.Helper()
	spec := gitconfig.RefSpec(fmt.Sprintf("+%s:%s", plumbing.NewBranchReferenceName(branch), dst))
	if err := o.work.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{spec},
	}); err != nil && err != git.NoErrAlreadyUpToDate {
		o.t.Fatalf("Push %s: %v", spec, err)
	}
}
