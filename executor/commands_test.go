/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/feedstocktasks/clonemanager"
	"chainguard.dev/feedstocktasks/internal/gittest"
	"github.com/google/go-cmp/cmp"
)

func testClone(t *testing.T) *clonemanager.Clone {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()
	gittest.NewOrigin(t, root, "conda-forge", "foo-feedstock", "main", map[string]string{
		"recipe/meta.yaml": "version: 1\n",
	})
	m, err := clonemanager.New(ctx, "conda-forge-admin", clonemanager.WithBaseURL(root))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := m.Clone(ctx, filepath.Join(t.TempDir(), "foo-feedstock"), "conda-forge", "foo-feedstock", "")
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	return c
}

func TestCommandRenderer(t *testing.T) {
	ctx := context.Background()

	t.Run("changes", func(t *testing.T) {
		var out bytes.Buffer
		r := &CommandRenderer{
			Command:       []string{"sh", "-c", "echo rendered > azure-pipelines.yml"},
			CommitMessage: "MNT: Re-rendered",
			Output:        &out,
		}
		res, err := r.Rerender(ctx, testClone(t))
		if err != nil {
			t.Fatalf("Rerender: %v", err)
		}
		if !res.Changed || res.RerenderError || res.CommitMessage != "MNT: Re-rendered" {
			t.Errorf("results: got = %+v", res)
		}
		if !strings.HasPrefix(out.String(), "::group::rerender\n") || !strings.HasSuffix(out.String(), "::endgroup::\n") {
			t.Errorf("output not grouped: %q", out.String())
		}
	})

	t.Run("no changes", func(t *testing.T) {
		r := &CommandRenderer{Command: []string{"true"}, CommitMessage: "MNT: Re-rendered", Output: io.Discard}
		res, err := r.Rerender(ctx, testClone(t))
		if err != nil {
			t.Fatalf("Rerender: %v", err)
		}
		if res.Changed || res.RerenderError || res.CommitMessage != "" {
			t.Errorf("results: got = %+v", res)
		}
	})

	t.Run("fails", func(t *testing.T) {
		r := NewCommandRenderer("sh -c false", "MNT: Re-rendered")
		r.Output = io.Discard
		res, err := r.Rerender(ctx, testClone(t))
		if err != nil {
			t.Fatalf("Rerender: %v", err)
		}
		if !res.RerenderError || res.Changed || res.InfoMessage == "" {
			t.Errorf("results: got = %+v", res)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		r := NewCommandRenderer("  ", "")
		if _, err := r.Rerender(ctx, testClone(t)); err == nil {
			t.Error("Rerender: got = nil, wanted = non-nil")
		}
	})
}

func TestCommandLinter(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		wantLints []string
		wantHints []string
		wantErr   bool
	}{{
		name:      "yaml report with lints exits non-zero",
		script:    "printf 'lints:\\n  - missing license\\nhints:\\n  - use noarch\\n'; exit 1",
		wantLints: []string{"missing license"},
		wantHints: []string{"use noarch"},
	}, {
		name:      "json report",
		script:    `echo '{"lints": [], "hints": ["consider tests"]}'`,
		wantLints: []string{},
		wantHints: []string{"consider tests"},
	}, {
		name:      "missing keys",
		script:    "echo 'lints: []'",
		wantLints: []string{},
		wantHints: []string{},
	}, {
		name:    "crash without report",
		script:  "echo oops >&2; exit 2",
		wantErr: true,
	}, {
		name:    "malformed report",
		script:  "echo 'lints: [unterminated'",
		wantErr: true,
	}, {
		name:    "no output",
		script:  "true",
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &CommandLinter{Command: []string{"sh", "-c", tt.script}, Output: io.Discard}
			lints, hints, err := l.Lint(ctx, t.TempDir())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lint: got err = %v, wanted err = %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.wantLints, lints); diff != "" {
				t.Errorf("lints (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantHints, hints); diff != "" {
				t.Errorf("hints (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDockerPuller(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer
	p := &DockerPuller{Binary: "echo", Output: &out}
	if err := p.Pull(ctx, "condaforge/ops:latest"); err != nil {
		t.Fatalf("Pull: %v", err)
	}
	want := "::group::docker image pull\npull condaforge/ops:latest\n::endgroup::\n"
	if out.String() != want {
		t.Errorf("output: got = %q, wanted = %q", out.String(), want)
	}

	p = &DockerPuller{Binary: "false", Output: io.Discard}
	if err := p.Pull(ctx, "img"); err == nil {
		t.Error("Pull: got = nil, wanted = non-nil")
	}
}
