// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import (
	"sync"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/container"
)

// History is a bounded buffer a presentation layer may use to keep recent
// values derived from snapshots. Once full, each push discards the oldest
// value. It is safe for concurrent use.
type History[T any] struct {
	mu    sync.RWMutex
	items *container.Ring[T]
}

// NewHistory creates a history retaining at most limit values.
func NewHistory[T any](limit int) (*History[T], error) {
	if limit <= 0 {
		return nil, &ConfigurationError{
			Message:       "history limit must be positive",
			PropertyName:  "History",
			PropertyValue: limit,
		}
	}
	return &History[T]{items: container.NewRing[T](limit)}, nil
}

// Push appends a value, discarding the oldest if the history is full.
func (h *History[T]) Push(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items.Push(value)
}

// Values returns a copy of the retained values from oldest to newest.
func (h *History[T]) Values() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.items.Values()
}

// Latest returns the most recently pushed value.
func (h *History[T]) Latest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.items.Latest()
}

// Len returns the number of retained values.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.items.Len()
}

// Limit returns the maximum number of retained values.
func (h *History[T]) Limit() int {
	return h.items.Cap()
}

// Clear discards all retained values.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items.Clear()
}
