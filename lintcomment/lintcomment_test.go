/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package lintcomment

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"chainguard.dev/feedstocktasks/actionsrun"
	"chainguard.dev/feedstocktasks/internal/githubtest"
)

const runLink = "https://github.com/conda-forge/conda-forge-webservices/actions/runs/7"

func TestBuild(t *testing.T) {
	footer := actionsrun.Footer(runLink)

	tests := []struct {
		name       string
		lints      []string
		hints      []string
		wantStatus Status
		wantBody   string
	}{{
		name:       "clean",
		wantStatus: Good,
		wantBody: Greeting + "\n\n" +
			"I just wanted to let you know that I linted all conda-recipes in your PR (`recipe`) and found it was in an excellent condition.\n",
	}, {
		name:       "empty slices",
		lints:      []string{},
		hints:      []string{},
		wantStatus: Good,
		wantBody: Greeting + "\n\n" +
			"I just wanted to let you know that I linted all conda-recipes in your PR (`recipe`) and found it was in an excellent condition.\n",
	}, {
		name:       "hints only",
		hints:      []string{"Consider adding a license_file."},
		wantStatus: Mixed,
		wantBody: Greeting + "\n\n" +
			"I just wanted to let you know that I linted all conda-recipes in your PR (`recipe`) and found it was in an excellent condition.\n" +
			"\nI do have some suggestions for making it better though...\n\n" +
			"* Consider adding a license_file.\n",
	}, {
		name:       "lints and hints",
		lints:      []string{"The recipe must have a `build/number` section.", "Selectors are malformed."},
		hints:      []string{"Use noarch."},
		wantStatus: Bad,
		wantBody: Greeting + "\n\n" +
			"I wanted to let you know that I linted all conda-recipes in your PR (`recipe`) and found some lint.\n\n" +
			"Here's what I've got...\n\n" +
			"* The recipe must have a `build/number` section.\n" +
			"* Selectors are malformed.\n" +
			"\nI do have some suggestions for making it better though...\n\n" +
			"* Use noarch.\n",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, status, err := Build(tt.lints, tt.hints, runLink)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if status != tt.wantStatus {
				t.Errorf("status: got = %q, wanted = %q", status, tt.wantStatus)
			}
			if want := tt.wantBody + footer; body != want {
				t.Errorf("body:\ngot  = %q\nwant = %q", body, want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	got := ErrorMessage(runLink)
	if !strings.HasPrefix(got, Greeting+"\n\nI Failed to even lint the recipe") {
		t.Errorf("ErrorMessage prefix: got = %q", got)
	}
	if !strings.HasSuffix(got, actionsrun.Footer(runLink)) {
		t.Errorf("ErrorMessage lacks footer: %q", got)
	}
	if got := ErrorMessage(""); strings.Contains(got, "<sub>") {
		t.Errorf("ErrorMessage without run link has a footer: %q", got)
	}
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("creates", func(t *testing.T) {
		srv := githubtest.New(t)
		srv.AddComment("conda-forge", "foo-feedstock", 3, "someone", "please review")

		c, err := Upsert(ctx, srv.Client(t), "conda-forge", "foo-feedstock", 3, "conda-forge-admin", Greeting+" body")
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if c.GetHTMLURL() == "" {
			t.Error("HTMLURL: got = empty, wanted = non-empty")
		}
		comments := srv.Comments("conda-forge", "foo-feedstock", 3)
		if len(comments) != 2 {
			t.Fatalf("comments: got = %d, wanted = 2", len(comments))
		}
		if comments[1].Body != Greeting+" body" || comments[1].Login != "conda-forge-admin" {
			t.Errorf("new comment: got = %+v", comments[1])
		}
	})

	t.Run("edits previous", func(t *testing.T) {
		srv := githubtest.New(t)
		srv.AddComment("conda-forge", "foo-feedstock", 3, "conda-forge-admin", Greeting+" old")
		// Same greeting from another user is not ours.
		srv.AddComment("conda-forge", "foo-feedstock", 3, "someone", Greeting+" quoted")
		// Our comments that are not lint comments are left alone.
		srv.AddComment("conda-forge", "foo-feedstock", 3, "conda-forge-admin", "Hi! This is the friendly automated conda-forge-webservice.")
		id := srv.AddComment("conda-forge", "foo-feedstock", 3, "conda-forge-admin", Greeting+" older")

		c, err := Upsert(ctx, srv.Client(t), "conda-forge", "foo-feedstock", 3, "conda-forge-admin", Greeting+" new")
		if err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if c.GetID() != id {
			t.Errorf("edited comment: got = %d, wanted = %d", c.GetID(), id)
		}
		if n := srv.Calls(githubtest.OpCreateComment); n != 0 {
			t.Errorf("CreateComment calls: got = %d, wanted = 0", n)
		}
		comments := srv.Comments("conda-forge", "foo-feedstock", 3)
		if got := comments[3]; !got.Edited || got.Body != Greeting+" new" {
			t.Errorf("last lint comment: got = %+v", got)
		}
		if comments[0].Edited {
			t.Error("first lint comment was edited")
		}
	})

	t.Run("errors", func(t *testing.T) {
		srv := githubtest.New(t)
		srv.FailOn(githubtest.OpListComments, http.StatusInternalServerError)
		if _, err := Upsert(ctx, srv.Client(t), "conda-forge", "foo-feedstock", 3, "conda-forge-admin", "x"); err == nil {
			t.Error("Upsert list failure: got = nil, wanted = non-nil")
		}

		srv = githubtest.New(t)
		srv.FailOn(githubtest.OpCreateComment, http.StatusForbidden)
		if _, err := Upsert(ctx, srv.Client(t), "conda-forge", "foo-feedstock", 3, "conda-forge-admin", "x"); err == nil {
			t.Error("Upsert create failure: got = nil, wanted = non-nil")
		}
	})
}
