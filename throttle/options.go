// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import (
	"log/slog"
	"math"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/options"
)

type (
	// Option represents a single aggregator option.
	Option interface{ aggregator(*Options) }

	// Options are the resolved aggregator options.
	Options struct {
		// Capacity is the maximum length of the batch queue.
		Capacity int

		// Delay is the debounce or batching interval.
		Delay time.Duration

		Strategy Strategy

		// Retain is the number of most recent events kept in the queue after
		// an emission. Zero drains the queue fully.
		Retain int

		// VisibilityThreshold is the on-screen fraction at or above which a
		// reported visibility counts as visible.
		VisibilityThreshold float64

		// Hidden starts the aggregator invisible.
		Hidden bool

		Name     string
		Observer Observer
		Logger   *slog.Logger
	}

	// WithCapacity sets the maximum length of the batch queue.
	WithCapacity int

	// WithDelay sets the debounce or batching interval.
	WithDelay time.Duration

	// WithStrategy selects how the emission timer is re-armed.
	WithStrategy Strategy

	// WithRetain keeps the given number of most recent events in the queue
	// after each emission, for consumers that render a rolling series.
	WithRetain int

	// WithVisibilityThreshold sets the fraction of the consumer that must be
	// on-screen for it to count as visible.
	WithVisibilityThreshold float64

	// WithHidden starts the aggregator invisible until visibility is reported.
	WithHidden bool

	// WithName labels the aggregator in logs.
	WithName string

	// This option is not used directly; see WithObserver below.
	withObserver struct{ Observer }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// Defaults applied before any options.
const (
	DefaultCapacity            = 100
	DefaultDelay               = 100 * time.Millisecond
	DefaultVisibilityThreshold = 0.1
)

func defaultOptions() Options {
	return Options{
		Capacity:            DefaultCapacity,
		Delay:               DefaultDelay,
		Strategy:            PeriodicBatch,
		VisibilityThreshold: DefaultVisibilityThreshold,
	}
}

// Validate checks the options, returning the first invalid setting.
func (o *Options) Validate() error {
	switch {
	case o.Capacity <= 0:
		return &ConfigurationError{
			Message:       "capacity must be positive",
			PropertyName:  "Capacity",
			PropertyValue: o.Capacity,
		}
	case o.Delay <= 0:
		return &ConfigurationError{
			Message:       "delay must be positive",
			PropertyName:  "Delay",
			PropertyValue: o.Delay,
		}
	case o.Strategy != PeriodicBatch && o.Strategy != Debounce:
		return &ConfigurationError{
			Message:       "unknown strategy",
			PropertyName:  "Strategy",
			PropertyValue: o.Strategy,
		}
	case o.Retain < 0 || o.Retain > o.Capacity:
		return &ConfigurationError{
			Message:       "retain must be between zero and capacity",
			PropertyName:  "Retain",
			PropertyValue: o.Retain,
		}
	case math.IsNaN(o.VisibilityThreshold),
		o.VisibilityThreshold < 0,
		o.VisibilityThreshold > 1:
		return &ConfigurationError{
			Message:       "visibility threshold must be within [0, 1]",
			PropertyName:  "VisibilityThreshold",
			PropertyValue: o.VisibilityThreshold,
		}
	default:
		return nil
	}
}

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for opt := range options.Apply[Option](opts, rest...) {
		opt.aggregator(o)
	}
}

func (o *Options) aggregator(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithCapacity) aggregator(opt *Options) {
	opt.Capacity = int(o)
}

func (o WithDelay) aggregator(opt *Options) {
	opt.Delay = time.Duration(o)
}

func (o WithStrategy) aggregator(opt *Options) {
	opt.Strategy = Strategy(o)
}

func (o WithRetain) aggregator(opt *Options) {
	opt.Retain = int(o)
}

func (o WithVisibilityThreshold) aggregator(opt *Options) {
	opt.VisibilityThreshold = float64(o)
}

func (o WithHidden) aggregator(opt *Options) {
	opt.Hidden = bool(o)
}

func (o WithName) aggregator(opt *Options) {
	opt.Name = string(o)
}

// WithObserver reports ingestion, eviction, drops and emissions to the given
// observer.
func WithObserver(observer Observer) Option {
	return withObserver{observer}
}

func (o withObserver) aggregator(opt *Options) {
	opt.Observer = o.Observer
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) aggregator(opt *Options) {
	opt.Logger = o.Logger
}
