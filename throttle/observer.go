// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

// Observer is notified of the aggregator's accounting events. Methods are
// called with the aggregator's lock held and must not block or call back into
// the aggregator.
type Observer interface {
	// Ingested is called for every event appended to the queue.
	Ingested()

	// Evicted is called when the oldest queued event is discarded to make
	// room for a new one.
	Evicted()

	// DroppedInvisible is called for every event ignored while invisible.
	DroppedInvisible()

	// TickDropped is called when a timer fires while invisible.
	TickDropped()

	// Emitted is called for every snapshot built, with its event count.
	Emitted(events int)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) Ingested()         {}
func (NopObserver) Evicted()          {}
func (NopObserver) DroppedInvisible() {}
func (NopObserver) TickDropped()      {}
func (NopObserver) Emitted(int)       {}
