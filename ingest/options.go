// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ingest

import (
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/options"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/retry"
)

type (
	// ReceiverOption represents a single receiver option.
	ReceiverOption interface{ receiver(*ReceiverOptions) }

	// ReceiverOptions are the resolved receiver options.
	ReceiverOptions struct {
		// ClientID is the MQTT client identifier. A random one is generated
		// if it is empty.
		ClientID string

		// KeepAlive is the MQTT keep-alive interval in seconds.
		KeepAlive uint16

		// QoS is the subscription quality of service.
		QoS byte

		Retry  retry.Policy
		Logger *slog.Logger
	}

	// WithClientID sets the MQTT client identifier.
	WithClientID string

	// WithKeepAlive sets the MQTT keep-alive interval in seconds.
	WithKeepAlive uint16

	// WithQoS sets the subscription quality of service.
	WithQoS byte

	// This option is not used directly; see WithRetry below.
	withRetry struct{ retry.Policy }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const defaultKeepAlive = 30

// Apply resolves the provided list of options.
func (o *ReceiverOptions) Apply(
	opts []ReceiverOption,
	rest ...ReceiverOption,
) {
	for opt := range options.Apply[ReceiverOption](opts, rest...) {
		opt.receiver(o)
	}
}

func (o *ReceiverOptions) receiver(opt *ReceiverOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) receiver(opt *ReceiverOptions) {
	opt.ClientID = string(o)
}

func (o WithKeepAlive) receiver(opt *ReceiverOptions) {
	opt.KeepAlive = uint16(o)
}

func (o WithQoS) receiver(opt *ReceiverOptions) {
	opt.QoS = byte(o)
}

// WithRetry sets the policy used to establish the broker connection.
func WithRetry(policy retry.Policy) ReceiverOption {
	return withRetry{policy}
}

func (o withRetry) receiver(opt *ReceiverOptions) {
	opt.Retry = o.Policy
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) ReceiverOption {
	return withLogger{logger}
}

func (o withLogger) receiver(opt *ReceiverOptions) {
	opt.Logger = o.Logger
}
