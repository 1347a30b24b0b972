/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package task

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the maintenance action a pipeline run performs.
type Kind string

const (
	// KindRerender regenerates CI scaffolding from the recipe.
	KindRerender Kind = "rerender"
	// KindLint validates the recipe with the linter.
	KindLint Kind = "lint"
)

// ErrUnknownKind is returned for any task name other than rerender or lint.
var ErrUnknownKind = errors.New("unknown task kind")

// ParseKind validates a task name supplied on the command line or read from
// a bundle.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(s)); k {
	case KindRerender, KindLint:
		return k, nil
	default:
		return "", fmt.Errorf("task %q is not valid: %w", s, ErrUnknownKind)
	}
}

func (k Kind) String() string {
	return string(k)
}

// Descriptor identifies one pipeline run. It is created when an invocation
// starts and never modified.
type Descriptor struct {
	Kind     Kind
	Repo     string
	PRNumber int
	DataDir  string
}

// Validate checks the fields every phase relies on. DataDir is only needed
// by the run phase, so it is not checked here.
func (d Descriptor) Validate() error {
	switch {
	case d.Kind != KindRerender && d.Kind != KindLint:
		return fmt.Errorf("task %q is not valid: %w", d.Kind, ErrUnknownKind)
	case strings.TrimSpace(d.Repo) == "":
		return errors.New("repo cannot be empty")
	case strings.ContainsAny(d.Repo, `/\`) || d.Repo == "." || d.Repo == "..":
		return fmt.Errorf("repo %q must be a bare repository name", d.Repo)
	case d.PRNumber <= 0:
		return fmt.Errorf("pull request number must be positive, got %d", d.PRNumber)
	}
	return nil
}

// WorkspaceDir returns the directory holding the checkout the run phase
// operated on.
func (d Descriptor) WorkspaceDir() string {
	return WorkspaceDir(d.DataDir, d.Repo)
}

// WorkspaceDir returns the checkout directory for repo inside dataDir.
func WorkspaceDir(dataDir, repo string) string {
	return filepath.Join(dataDir, repo)
}
