/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package actionsrun holds helpers tied to the GitHub Actions run executing
// a task: the link back to the run and log grouping.
package actionsrun

import (
	"fmt"
	"io"
	"strings"
)

// Link returns the URL of the workflow run, or "" when runID is unknown.
func Link(serverURL, repository, runID string) string {
	if runID == "" || repository == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimSuffix(serverURL, "/"), repository, runID)
}

// Footer is appended to every comment the bot posts so maintainers can find
// the logs behind it. It is empty when the run link is unknown.
func Footer(runLink string) string {
	if runLink == "" {
		return ""
	}
	return fmt.Sprintf("\n\n<sub>This message was generated by GitHub actions workflow run [%s](%s).</sub>\n", runLink, runLink)
}

// Group starts a collapsible log group and returns the function that ends it.
func Group(w io.Writer, name string) func() {
	fmt.Fprintf(w, "::group::%s\n", name)
	return func() {
		fmt.Fprintln(w, "::endgroup::")
	}
}
