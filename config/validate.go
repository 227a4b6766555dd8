// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/iancoleman/strcase"
)

// Error reports an invalid configuration field.
type Error struct {
	Message string
	Field   string
	Value   any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s=%v: %v", e.Message, e.Field, e.Value, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s=%v", e.Message, e.Field, e.Value)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("field", e.Field),
		slog.Any("value", e.Value),
	}
}

// Validate checks the configuration, returning the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Broker == "":
		return &Error{Message: "broker must be set", Field: "broker"}
	case c.Listen == "":
		return &Error{Message: "listen address must be set", Field: "listen"}
	case len(c.Channels) == 0:
		return &Error{Message: "at least one channel is required", Field: "channels"}
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return &Error{
			Message: "invalid log level",
			Field:   "log.level",
			Value:   c.Log.Level,
			Wrapped: err,
		}
	}

	names := map[string]struct{}{}
	topics := map[string]struct{}{}
	for i := range c.Channels {
		ch := &c.Channels[i]
		field := fmt.Sprintf("channels[%d]", i)

		switch {
		case ch.Name == "":
			return &Error{Message: "channel name must be set", Field: field + ".name"}
		case ch.Topic == "":
			return &Error{
				Message: "channel topic must be set",
				Field:   field + ".topic",
			}
		case ch.History <= 0:
			return &Error{
				Message: "history must be positive",
				Field:   field + ".history",
				Value:   ch.History,
			}
		}
		if _, ok := names[ch.Name]; ok {
			return &Error{
				Message: "duplicate channel name",
				Field:   field + ".name",
				Value:   ch.Name,
			}
		}
		if _, ok := topics[ch.Topic]; ok {
			return &Error{
				Message: "duplicate channel topic",
				Field:   field + ".topic",
				Value:   ch.Topic,
			}
		}
		names[ch.Name] = struct{}{}
		topics[ch.Topic] = struct{}{}

		if err := ch.AggregatorOptions().Validate(); err != nil {
			var cfgErr *throttle.ConfigurationError
			if errors.As(err, &cfgErr) {
				return &Error{
					Message: cfgErr.Message,
					Field:   field + "." + strcase.ToSnake(cfgErr.PropertyName),
					Value:   cfgErr.PropertyValue,
				}
			}
			return err
		}
	}
	return nil
}
