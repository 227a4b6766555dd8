// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package wallclocktest provides a manually advanced wall clock for tests.
package wallclocktest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/wallclock"
)

type (
	// Manual is a wall clock whose time only moves when Advance is called.
	// Timers fire synchronously on the goroutine calling Advance, in deadline
	// order.
	Manual struct {
		mu     sync.Mutex
		now    time.Time
		timers []*manualTimer
	}

	manualTimer struct {
		clock    *Manual
		deadline time.Time
		active   bool
		f        func()
		c        chan time.Time
	}
)

// Epoch is the default start time of a manual clock.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewManual creates a manual clock starting at the given time, or at Epoch if
// the time is zero.
func NewManual(start time.Time) *Manual {
	if start.IsZero() {
		start = Epoch
	}
	return &Manual{now: start}
}

// Install replaces wallclock.Instance with the manual clock for the duration
// of the test.
func (m *Manual) Install(t interface{ Cleanup(func()) }) *Manual {
	prev := wallclock.Instance
	wallclock.Instance = m
	t.Cleanup(func() { wallclock.Instance = prev })
	return m
}

func (m *Manual) WithTimeoutCause(
	parent context.Context,
	timeout time.Duration,
	cause error,
) (context.Context, context.CancelFunc) {
	ctx, cancelCause := context.WithCancelCause(parent)

	go func(t wallclock.Timer) {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C():
			cancelCause(cause)
		}
	}(m.NewTimer(timeout))

	return ctx, func() { cancelCause(nil) }
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	return m.NewTimer(d).C()
}

func (m *Manual) AfterFunc(d time.Duration, f func()) wallclock.Timer {
	return m.add(d, f, nil)
}

func (m *Manual) NewTimer(d time.Duration) wallclock.Timer {
	return m.add(d, nil, make(chan time.Time, 1))
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward, firing every timer whose deadline is
// reached along the way.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.next(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.deadline
		next.active = false
		now := m.now
		m.mu.Unlock()

		if next.f != nil {
			next.f()
		} else {
			select {
			case next.c <- now:
			default:
			}
		}
	}
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, t := range m.timers {
		if t.active {
			n++
		}
	}
	return n
}

func (m *Manual) add(d time.Duration, f func(), c chan time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		active:   true,
		f:        f,
		c:        c,
	}
	m.timers = append(m.timers, t)
	return t
}

// next returns the earliest active timer due by target and prunes inactive
// timers. Must be called with the lock held.
func (m *Manual) next(target time.Time) *manualTimer {
	var earliest *manualTimer
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.active {
			continue
		}
		live = append(live, t)
		if t.deadline.After(target) {
			continue
		}
		if earliest == nil || t.deadline.Before(earliest.deadline) {
			earliest = t
		}
	}
	clear(m.timers[len(live):])
	m.timers = live
	return earliest
}

func (t *manualTimer) C() <-chan time.Time {
	return t.c
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	if !slices.Contains(t.clock.timers, t) {
		t.clock.timers = append(t.clock.timers, t)
	}
	t.deadline = t.clock.now.Add(d)
	t.active = true
	return wasActive
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	t.active = false
	return wasActive
}
