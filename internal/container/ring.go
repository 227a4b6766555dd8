// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package container

// Ring is a generic fixed-capacity circular queue. Pushing onto a full ring
// evicts the oldest item. It is not safe for concurrent use; owners provide
// their own synchronization.
type Ring[T any] struct {
	items []T
	size  int
	leave int // Points to the oldest item
}

// NewRing creates a new Ring. A non-positive capacity is treated as one.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{items: make([]T, max(capacity, 1))}
}

// Len returns the number of items in the ring.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the maximum number of items the ring retains.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Push adds an item to the end of the ring, returning whether the oldest item
// was evicted to make room.
func (r *Ring[T]) Push(value T) (evicted bool) {
	if r.size == len(r.items) {
		r.items[r.leave] = value
		r.leave = r.move(r.leave)
		return true
	}

	r.items[(r.leave+r.size)%len(r.items)] = value
	r.size++
	return false
}

// Latest returns the most recently pushed item.
func (r *Ring[T]) Latest() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}
	return r.items[(r.leave+r.size-1)%len(r.items)], true
}

// Values returns a copy of the items from oldest to newest.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[(r.leave+i)%len(r.items)]
	}
	return out
}

// Truncate discards the oldest items until at most keep remain.
func (r *Ring[T]) Truncate(keep int) {
	keep = max(keep, 0)
	if keep >= r.size {
		return
	}

	var zero T
	for r.size > keep {
		// Release references so the items can be collected.
		r.items[r.leave] = zero
		r.leave = r.move(r.leave)
		r.size--
	}
}

// Clear removes all items from the ring.
func (r *Ring[T]) Clear() {
	clear(r.items)
	r.size = 0
	r.leave = 0
}

// move increments the index circularly.
func (r *Ring[T]) move(index int) int {
	return (index + 1) % len(r.items)
}
