// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import "time"

type (
	// Event is a single payload as received by the aggregator, stamped with
	// its arrival time.
	Event[T any] struct {
		Payload   T
		Timestamp time.Time
	}

	// Snapshot is the bounded summary handed to a consumer on each emission.
	// It is immutable once delivered; Events is a copy owned by the snapshot.
	Snapshot[T any] struct {
		// Seq increases by one with every delivered snapshot.
		Seq uint64

		// Events in arrival order, including any retained from the previous
		// emission.
		Events []Event[T]

		// The number of events accepted and evicted since the last emission.
		Ingested uint64
		Evicted  uint64

		// When the snapshot was built.
		EmittedAt time.Time
	}

	// Consumer receives snapshots from an aggregator. Consume may be called
	// with an empty snapshot and must tolerate it.
	Consumer[T any] interface {
		Consume(Snapshot[T])
	}

	// ConsumerFunc adapts a function to the Consumer interface.
	ConsumerFunc[T any] func(Snapshot[T])
)

// Consume calls f.
func (f ConsumerFunc[T]) Consume(s Snapshot[T]) {
	f(s)
}

// Len returns the number of events in the snapshot.
func (s Snapshot[T]) Len() int {
	return len(s.Events)
}

// Latest returns the most recent event in the snapshot.
func (s Snapshot[T]) Latest() (Event[T], bool) {
	if len(s.Events) == 0 {
		return Event[T]{}, false
	}
	return s.Events[len(s.Events)-1], true
}

// Span returns the time between the oldest and newest event.
func (s Snapshot[T]) Span() time.Duration {
	if len(s.Events) < 2 {
		return 0
	}
	return s.Events[len(s.Events)-1].Timestamp.Sub(s.Events[0].Timestamp)
}

// Rate returns the arrival rate of the snapshot's events per second.
func (s Snapshot[T]) Rate() float64 {
	return Rate(len(s.Events), s.Span())
}

// Rate returns count per second over the elapsed time. A zero or negative
// elapsed time yields zero rather than an infinite or undefined rate.
func Rate(count int, elapsed time.Duration) float64 {
	if count <= 0 || elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}
