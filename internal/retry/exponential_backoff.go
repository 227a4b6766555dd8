// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock"
)

// ExponentialBackoff doubles the wait after each failed attempt, from
// MinInterval up to MaxInterval, with up to 5% jitter either way.
type ExponentialBackoff struct {
	// MaxAttempts caps the number of attempts. Zero means no cap and one
	// disables retries.
	MaxAttempts uint64

	// MinInterval is the first wait. Defaults to 125ms.
	MinInterval time.Duration

	// MaxInterval bounds the wait. Defaults to 30s.
	MaxInterval time.Duration

	// Timeout bounds all attempts together. Zero means no bound.
	Timeout time.Duration

	NoJitter bool
	Logger   *slog.Logger
}

const (
	defaultMinInterval = time.Second / 8
	defaultMaxInterval = 30 * time.Second
)

// Start runs the task until it succeeds, returns a non-retryable error, runs
// out of attempts or ctx is done.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	l := logger{log.Wrap(e.Logger)}

	var attempt uint64
	for {
		attempt++
		retryable, err := task(ctx)
		if err == nil {
			l.succeeded(ctx, name, attempt)
			return nil
		}

		wait := e.Interval(ctx, attempt, retryable)
		if wait == 0 {
			l.gaveUp(ctx, name, attempt, err)
			return err
		}
		l.waiting(ctx, name, attempt, wait, err)

		select {
		case <-wallclock.Instance.After(wait):
		case <-ctx.Done():
			l.gaveUp(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}

// Interval returns the wait after the given failed attempt, or zero if no
// further attempt should be made.
func (e *ExponentialBackoff) Interval(
	ctx context.Context,
	attempt uint64,
	retryable bool,
) time.Duration {
	if !retryable || attempt == e.MaxAttempts || ctx.Err() != nil {
		return 0
	}

	lo, hi := e.MinInterval, e.MaxInterval
	if lo <= 0 {
		lo = defaultMinInterval
	}
	if hi <= 0 {
		hi = defaultMaxInterval
	}

	wait := lo
	for n := uint64(1); n < attempt && wait < hi; n++ {
		wait *= 2
	}
	wait = min(wait, hi)

	if !e.NoJitter {
		// #nosec G404
		wait = time.Duration(float64(wait) * (0.95 + 0.1*rand.Float64()))
	}
	return wait
}
