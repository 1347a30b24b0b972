/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package task defines the task kinds handled by the pipeline and the Result
// Bundle that carries execution results across the security boundary between
// the unprivileged run phase and the privileged finalize phase.
//
// The bundle is a versioned, typed message. It is written exactly once into
// the task data directory by the run phase:
//
//	if err := task.Write(dataDir, bundle); err != nil {
//	    return err
//	}
//
// and consumed exactly once by the finalize phase, which may run in a
// different process with different credentials:
//
//	bundle, err := task.Consume(dataDir)
//
// A second Write into the same directory fails with ErrBundleExists, and a
// second Consume fails with ErrBundleConsumed. There is no redelivery.
package task
