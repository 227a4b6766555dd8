// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import (
	"fmt"
	"log/slog"
)

// ConfigurationError is returned when an aggregator or history buffer is
// constructed with invalid settings. It is the only error this package
// produces; runtime data loss (eviction, invisible drops) is policy and is
// never reported as an error.
type ConfigurationError struct {
	Message       string
	PropertyName  string
	PropertyValue any
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s=%v", e.Message, e.PropertyName, e.PropertyValue)
}

// Attrs returns additional error attributes for slog.
func (e *ConfigurationError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("property_name", e.PropertyName),
		slog.Any("property_value", e.PropertyValue),
	}
}
