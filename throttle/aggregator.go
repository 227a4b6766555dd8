// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package throttle decouples the arrival rate of a high-frequency event
// stream from the rate at which a consumer is asked to re-render. Events are
// batched in a bounded queue, gated on the consumer's visibility, and emitted
// as snapshots at most once per configured delay.
package throttle

import (
	"math"
	"sync"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/container"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock"
)

type (
	// Aggregator batches events for a single consumer. All methods are safe
	// for concurrent use.
	Aggregator[T any] struct {
		// Held across a whole emission, before mu, so that snapshots are
		// delivered one at a time and in sequence order.
		deliver sync.Mutex

		mu       sync.Mutex
		queue    *container.Ring[Event[T]]
		visible  bool
		state    State
		timer    wallclock.Timer
		gen      uint64
		seq      uint64
		ingested uint64
		evicted  uint64
		closed   bool

		consumer Consumer[T]
		opts     Options
		observer Observer
		clock    wallclock.WallClock
		logger   logger
	}

	// State is the emission state of an aggregator.
	State byte
)

const (
	// Idle indicates that no emission timer is pending.
	Idle State = iota

	// Pending indicates that an emission timer is armed.
	Pending
)

// String returns the name of the state.
func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// New creates an aggregator delivering snapshots to the given consumer.
// Invalid options fail immediately with a *ConfigurationError.
func New[T any](consumer Consumer[T], opt ...Option) (*Aggregator[T], error) {
	opts := defaultOptions()
	opts.Apply(opt)

	if consumer == nil {
		return nil, &ConfigurationError{
			Message:       "consumer must not be nil",
			PropertyName:  "consumer",
			PropertyValue: consumer,
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	a := &Aggregator[T]{
		queue:    container.NewRing[Event[T]](opts.Capacity),
		visible:  !opts.Hidden,
		consumer: consumer,
		opts:     opts,
		observer: observer,
		clock:    wallclock.Instance,
		logger:   logger{log.Wrap(opts.Logger), opts.Name},
	}
	a.logger.created(&opts)
	return a, nil
}

// OnEvent offers a payload to the aggregator. It is silently ignored while
// the aggregator is invisible or closed. When the queue is full the oldest
// event is evicted.
func (a *Aggregator[T]) OnEvent(payload T) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if !a.visible {
		a.observer.DroppedInvisible()
		return
	}

	ev := Event[T]{Payload: payload, Timestamp: a.clock.Now()}
	if a.queue.Push(ev) {
		a.evicted++
		a.observer.Evicted()
	}
	a.ingested++
	a.observer.Ingested()

	if a.state == Idle || a.opts.Strategy == Debounce {
		a.arm()
	}
}

// Tick emits immediately if a timer is pending, as if it had fired. It is a
// no-op while idle. Tick must not be called from within Consume.
func (a *Aggregator[T]) Tick() {
	a.fire(0, false)
}

// SetVisibility updates whether the consumer is visible. Becoming invisible
// does not flush queued events.
func (a *Aggregator[T]) SetVisibility(visible bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.visible == visible {
		return
	}
	a.visible = visible
	a.logger.visibility(visible)
}

// ReportVisibility updates visibility from the fraction of the consumer that
// is currently on-screen, compared against the configured threshold.
func (a *Aggregator[T]) ReportVisibility(fraction float64) {
	a.SetVisibility(IsVisible(fraction, a.opts.VisibilityThreshold))
}

// Reset clears the queue and cancels any pending timer.
func (a *Aggregator[T]) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked()
}

// Close resets the aggregator and disposes of it; every later call is a
// no-op. A delivery already in progress is allowed to finish.
func (a *Aggregator[T]) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.resetLocked()
	a.closed = true
}

// State returns the current emission state.
func (a *Aggregator[T]) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Len returns the number of queued events.
func (a *Aggregator[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queue.Len()
}

// Visible returns the current visibility state.
func (a *Aggregator[T]) Visible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.visible
}

// Options returns the resolved options of the aggregator.
func (a *Aggregator[T]) Options() Options {
	return a.opts
}

// IsVisible reports whether an on-screen fraction meets the threshold.
// Fractions outside [0, 1] are clamped and NaN counts as hidden.
func IsVisible(fraction, threshold float64) bool {
	if math.IsNaN(fraction) {
		return false
	}
	return min(max(fraction, 0), 1) >= threshold
}

// Arm (or re-arm) the emission timer, invalidating any callback from a
// previous arming. Must be called with the lock held.
func (a *Aggregator[T]) arm() {
	a.stopLocked()
	gen := a.gen
	a.timer = a.clock.AfterFunc(a.opts.Delay, func() { a.fire(gen, true) })
	a.state = Pending
}

// Handle a timer firing (or a manual tick if fromTimer is false).
func (a *Aggregator[T]) fire(gen uint64, fromTimer bool) {
	a.deliver.Lock()
	defer a.deliver.Unlock()

	a.mu.Lock()
	if a.state != Pending || (fromTimer && gen != a.gen) {
		a.mu.Unlock()
		return
	}
	snap, ok := a.emitLocked()
	a.mu.Unlock()

	if ok {
		a.consumer.Consume(snap)
	}
}

// Build the snapshot for an emission and drain the queue. Returns false if
// the tick is dropped because the consumer is invisible. Must be called with
// the lock held.
func (a *Aggregator[T]) emitLocked() (Snapshot[T], bool) {
	a.stopLocked()
	a.state = Idle

	if !a.visible {
		a.observer.TickDropped()
		a.logger.tickDropped(a.queue.Len())
		return Snapshot[T]{}, false
	}

	a.seq++
	snap := Snapshot[T]{
		Seq:       a.seq,
		Events:    a.queue.Values(),
		Ingested:  a.ingested,
		Evicted:   a.evicted,
		EmittedAt: a.clock.Now(),
	}
	a.ingested, a.evicted = 0, 0
	a.queue.Truncate(a.opts.Retain)

	a.observer.Emitted(len(snap.Events))
	return snap, true
}

// Stop the timer and invalidate any in-flight callback. Must be called with
// the lock held.
func (a *Aggregator[T]) stopLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Aggregator[T]) resetLocked() {
	if a.closed {
		return
	}
	discarded := a.queue.Len()
	a.stopLocked()
	a.queue.Clear()
	a.state = Idle
	a.ingested, a.evicted = 0, 0
	a.logger.reset(discarded)
}
