/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"chainguard.dev/feedstocktasks/config"
	"chainguard.dev/feedstocktasks/internal/githubtest"
	"chainguard.dev/feedstocktasks/internal/gittest"
	"chainguard.dev/feedstocktasks/task"
	"github.com/google/go-github/v75/github"
	"github.com/sethvargo/go-envconfig"
)

func executeCommand(env map[string]string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd := newRootCmd(envconfig.MapLookuper(env))
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

type world struct {
	root    string
	base    *gittest.Origin
	fork    *gittest.Origin
	srv     *githubtest.Server
	dataDir string
	env     map[string]string
}

func newWorld(t *testing.T, prFiles map[string]string) *world {
	t.Helper()
	root := t.TempDir()

	base := gittest.NewOrigin(t, root, "conda-forge", "foo-feedstock", "main", map[string]string{
		"recipe/meta.yaml": "version: 1\n",
	})
	fork := gittest.NewOrigin(t, root, "someone", "foo-feedstock", "my-branch", map[string]string{
		"recipe/meta.yaml": "version: 1\n",
	})
	head := base.PushPullRequest(12, prFiles)

	srv := githubtest.New(t)
	srv.AddPullRequest("conda-forge", "foo-feedstock", &github.PullRequest{
		Number: github.Ptr(12),
		Title:  github.Ptr("Update to 2"),
		User:   &github.User{Login: github.Ptr("someone")},
		Head: &github.PullRequestBranch{
			SHA: github.Ptr(head),
			Ref: github.Ptr("my-branch"),
			Repo: &github.Repository{
				Name:  github.Ptr("foo-feedstock"),
				Owner: &github.User{Login: github.Ptr("someone")},
			},
		},
		Base: &github.PullRequestBranch{
			Repo: &github.Repository{
				Name:  github.Ptr("foo-feedstock"),
				Owner: &github.User{Login: github.Ptr("conda-forge")},
			},
		},
	})

	return &world{
		root:    root,
		base:    base,
		fork:    fork,
		srv:     srv,
		dataDir: filepath.Join(t.TempDir(), "task-data"),
		env: map[string]string{
			"GITHUB_SERVER_URL": root,
			"GITHUB_API_URL":    srv.EnterpriseURL(),
			"GITHUB_RUN_ID":     "42",
		},
	}
}

func (w *world) taskArgs(phase, kind string) []string {
	args := []string{phase, "--task", kind, "--repo", "foo-feedstock", "--pr-number", "12"}
	if phase == "run-task" {
		args = append(args, "--task-data-dir", w.dataDir)
	}
	return args
}

func TestLintPipeline(t *testing.T) {
	w := newWorld(t, map[string]string{
		"lint.yaml": "lints:\n  - missing license\nhints: []\n",
	})
	w.env["LINT_COMMAND"] = "cat lint.yaml"

	var pushes atomic.Int32
	pg := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/metrics/job/feedstock_tasks") {
			pushes.Add(1)
		}
		rw.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(pg.Close)
	w.env["PUSHGATEWAY_URL"] = pg.URL

	t.Setenv(config.TokenEnv, "s3cr3t")
	if out, err := executeCommand(w.env, w.taskArgs("init-task", "lint")...); err != nil {
		t.Fatalf("init-task: %v\n%s", err, out)
	}
	if out, err := executeCommand(w.env, w.taskArgs("run-task", "lint")...); err != nil {
		t.Fatalf("run-task: %v\n%s", err, out)
	}

	t.Setenv(config.TokenEnv, "s3cr3t")
	if out, err := executeCommand(w.env, "finalize-task", "--task-data-dir", w.dataDir); err != nil {
		t.Fatalf("finalize-task: %v\n%s", err, out)
	}

	comments := w.srv.Comments("conda-forge", "foo-feedstock", 12)
	if len(comments) != 1 {
		t.Fatalf("comments: got = %d, wanted = 1", len(comments))
	}
	if !strings.Contains(comments[0].Body, "* missing license") || !strings.Contains(comments[0].Body, "actions/runs/42") {
		t.Errorf("comment body: %q", comments[0].Body)
	}

	statuses := w.srv.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("statuses: got = %d, wanted = 2", len(statuses))
	}
	if statuses[0].State != "pending" || statuses[0].TargetURL != "" {
		t.Errorf("first status: got = %+v", statuses[0])
	}
	if statuses[1].State != "failure" || statuses[1].TargetURL != comments[0].HTMLURL {
		t.Errorf("second status: got = %+v", statuses[1])
	}
	if got := pushes.Load(); got != 3 {
		t.Errorf("metric pushes: got = %d, wanted = 3", got)
	}
}

func TestRerenderPipeline(t *testing.T) {
	w := newWorld(t, map[string]string{"recipe/meta.yaml": "version: 2\n"})
	w.env["RERENDER_COMMAND"] = "cp recipe/meta.yaml rendered.yaml"

	if out, err := executeCommand(w.env, w.taskArgs("init-task", "rerender")...); err != nil {
		t.Fatalf("init-task: %v\n%s", err, out)
	}
	if n := w.srv.Calls(githubtest.OpGetPullRequest); n != 0 {
		t.Errorf("init-task rerender made %d GitHub calls", n)
	}

	if out, err := executeCommand(w.env, w.taskArgs("run-task", "rerender")...); err != nil {
		t.Fatalf("run-task: %v\n%s", err, out)
	}

	t.Setenv(config.TokenEnv, "s3cr3t")
	if out, err := executeCommand(w.env, "finalize-task", "--task-data-dir", w.dataDir); err != nil {
		t.Fatalf("finalize-task: %v\n%s", err, out)
	}

	head := w.fork.Commit("refs/heads/my-branch")
	if head.Message != "MNT: Re-rendered" {
		t.Errorf("commit message: got = %q", head.Message)
	}
	if got, ok := w.fork.File("refs/heads/my-branch", "rendered.yaml"); !ok || got != "version: 2\n" {
		t.Errorf("rendered.yaml: got = %q, %v", got, ok)
	}
	if got := len(w.srv.Comments("conda-forge", "foo-feedstock", 12)); got != 0 {
		t.Errorf("comments: got = %d, wanted = 0", got)
	}

	// The bundle is single use.
	if _, err := executeCommand(w.env, "finalize-task", "--task-data-dir", w.dataDir); !errors.Is(err, task.ErrBundleConsumed) {
		t.Errorf("second finalize-task: got = %v, wanted = %v", err, task.ErrBundleConsumed)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr error
	}{{
		name: "missing flags",
		args: []string{"run-task", "--task", "lint"},
	}, {
		name:    "unknown task",
		args:    []string{"init-task", "--task", "build", "--repo", "foo-feedstock", "--pr-number", "1"},
		wantErr: task.ErrUnknownKind,
	}, {
		name: "bad pull request number",
		args: []string{"init-task", "--task", "lint", "--repo", "foo-feedstock", "--pr-number", "0"},
	}, {
		name: "bad config",
		env:  map[string]string{"REQUIRE_HEAD_MATCH": "maybe"},
		args: []string{"finalize-task", "--task-data-dir", "/nonexistent"},
	}, {
		name: "missing bundle",
		args: []string{"finalize-task", "--task-data-dir", "/nonexistent"},
	}, {
		name: "unexpected argument",
		args: []string{"finalize-task", "--task-data-dir", "/nonexistent", "extra"},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(tt.env, tt.args...)
			if err == nil {
				t.Fatal("got = nil, wanted = non-nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("got = %v, wanted = %v", err, tt.wantErr)
			}
		})
	}
}
