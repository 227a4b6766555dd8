// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package retry runs a task until it succeeds, fails permanently or the
// policy gives up.
package retry

import "context"

type (
	// Task is one attempt at an operation. The returned flag reports whether
	// a failed attempt may be repeated; it is ignored when err is nil.
	Task func(ctx context.Context) (retryable bool, err error)

	// Policy decides how often and how far apart a named task is attempted.
	// Start returns nil once an attempt succeeds, or the error that ended the
	// attempts.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}
)
