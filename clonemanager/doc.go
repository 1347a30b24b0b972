/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager prepares git clones of feedstock repositories for the
// task phases. A Manager is configured with the commit identity of the bot
// and the git host, and hands out Clone handles that:
//   - Check out a branch, or the head of a pull request via its
//     refs/pull/N/head reference.
//   - Report whether the working tree has changes and stage all of them.
//   - Commit with the bot identity, optionally allowing empty commits.
//   - Push once with a token embedded in the origin URL, restoring the plain
//     URL afterwards on every exit path.
//
// SyncDirs mirrors one working tree onto another so results produced in an
// unprivileged clone can be replayed onto a fresh privileged one.
package clonemanager
