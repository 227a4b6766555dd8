// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ingest

import (
	"fmt"
	"log/slog"
)

type (
	// RouteError is returned when a receiver is constructed with an invalid
	// route.
	RouteError struct {
		Message string
		Topic   string
	}

	// PayloadError describes a message that could not be decoded into a
	// sample. Such messages are logged and dropped.
	PayloadError struct {
		Topic string
		Err   error
	}

	// DisconnectError reports a DISCONNECT sent by the broker.
	DisconnectError struct {
		ReasonCode byte
	}
)

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: topic=%q", e.Message, e.Topic)
}

// Attrs returns additional error attributes for slog.
func (e *RouteError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("malformed sample payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Attrs returns additional error attributes for slog.
func (e *PayloadError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("broker disconnected with reason code 0x%02X", e.ReasonCode)
}

// Attrs returns additional error attributes for slog.
func (e *DisconnectError) Attrs() []slog.Attr {
	return []slog.Attr{slog.Int("reason_code", int(e.ReasonCode))}
}
