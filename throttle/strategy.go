// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import "fmt"

// Strategy determines how the emission timer reacts to events that arrive
// while it is already armed.
type Strategy byte

const (
	// PeriodicBatch arms the timer on the first event and ignores further
	// events until it fires, batching everything received in between. Suited
	// to monitors and charts.
	PeriodicBatch Strategy = iota

	// Debounce cancels and re-arms the timer on every event, so a burst
	// produces a single emission one delay after its last event. Suited to
	// logs and forms.
	Debounce
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case PeriodicBatch:
		return "periodic-batch"
	case Debounce:
		return "debounce"
	default:
		return fmt.Sprintf("strategy(%d)", byte(s))
	}
}

// MarshalText marshals the strategy to its configuration name.
func (s Strategy) MarshalText() ([]byte, error) {
	switch s {
	case PeriodicBatch, Debounce:
		return []byte(s.String()), nil
	default:
		return nil, &ConfigurationError{
			Message:       "unknown strategy",
			PropertyName:  "Strategy",
			PropertyValue: byte(s),
		}
	}
}

// UnmarshalText unmarshals the strategy from its configuration name.
func (s *Strategy) UnmarshalText(b []byte) error {
	switch string(b) {
	case "periodic-batch", "periodic":
		*s = PeriodicBatch
	case "debounce":
		*s = Debounce
	default:
		return &ConfigurationError{
			Message:       "unknown strategy",
			PropertyName:  "Strategy",
			PropertyValue: string(b),
		}
	}
	return nil
}
