// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package iso provides time types that serialize to ISO 8601.
package iso

import (
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"
)

type (
	// DateTime is a date and time in ISO 8601 format, per RFC 3339.
	DateTime time.Time

	// Duration is a duration in ISO 8601 format (e.g. "PT0.5S"). Go duration
	// strings (e.g. "300ms") are also accepted when unmarshaling.
	Duration time.Duration
)

// String returns the date-time as an ISO 8601 string in UTC.
func (dt DateTime) String() string {
	return time.Time(dt).UTC().Format(time.RFC3339Nano)
}

// MarshalText marshals the date-time to an ISO 8601 string.
func (dt DateTime) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// UnmarshalText unmarshals the date-time from an ISO 8601 string.
func (dt *DateTime) UnmarshalText(b []byte) error {
	parsed, err := iso8601.Parse(b)
	if err != nil {
		return err
	}
	*dt = DateTime(parsed)
	return nil
}

// String returns the duration as an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText marshals the duration to an ISO 8601 string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText unmarshals the duration from an ISO 8601 or Go duration
// string.
func (d *Duration) UnmarshalText(b []byte) error {
	s := string(b)
	if !strings.HasPrefix(strings.TrimLeft(s, "-+"), "P") {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	parsed, err := duration.Parse(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed.ToTimeDuration())
	return nil
}
