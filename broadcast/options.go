// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broadcast

import (
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/options"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	// HubOption represents a single hub option.
	HubOption interface{ hub(*HubOptions) }

	// HubOptions are the resolved hub options.
	HubOptions struct {
		// WriteTimeout bounds each websocket write.
		WriteTimeout time.Duration

		// CheckOrigin overrides the websocket origin check.
		CheckOrigin func(origin string) bool

		Logger *slog.Logger
	}

	// ChannelOption represents a single channel option.
	ChannelOption interface{ channel(*ChannelOptions) }

	// ChannelOptions are the resolved channel options.
	ChannelOptions struct {
		// History is the number of views retained for replay to new clients.
		History int

		// SendBuffer is the number of views queued per client beyond the
		// history replay before new views are dropped for that client.
		SendBuffer int

		// Clients tracks the number of connected clients, if set.
		Clients prometheus.Gauge

		Logger *slog.Logger
	}

	// WithWriteTimeout bounds each websocket write.
	WithWriteTimeout time.Duration

	// WithHistory sets the number of views retained for replay.
	WithHistory int

	// WithSendBuffer sets the per-client queue length.
	WithSendBuffer int

	// This option is not used directly; see WithOriginCheck below.
	withOriginCheck func(string) bool

	// This option is not used directly; see WithClientGauge below.
	withClientGauge struct{ prometheus.Gauge }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }

	// Option is applicable to both hubs and channels.
	Option interface {
		HubOption
		ChannelOption
	}
)

// Defaults applied before any options.
const (
	DefaultHistory      = 60
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 5 * time.Second
)

// Apply resolves the provided list of options.
func (o *HubOptions) Apply(opts []HubOption, rest ...HubOption) {
	for opt := range options.Apply[HubOption](opts, rest...) {
		opt.hub(o)
	}
}

func (o *HubOptions) hub(opt *HubOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *ChannelOptions) Apply(opts []ChannelOption, rest ...ChannelOption) {
	for opt := range options.Apply[ChannelOption](opts, rest...) {
		opt.channel(o)
	}
}

func (o *ChannelOptions) channel(opt *ChannelOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithWriteTimeout) hub(opt *HubOptions) {
	opt.WriteTimeout = time.Duration(o)
}

func (o WithHistory) channel(opt *ChannelOptions) {
	opt.History = int(o)
}

func (o WithSendBuffer) channel(opt *ChannelOptions) {
	opt.SendBuffer = int(o)
}

// WithOriginCheck overrides the websocket origin check. By default only
// same-host origins are accepted.
func WithOriginCheck(check func(origin string) bool) HubOption {
	return withOriginCheck(check)
}

func (o withOriginCheck) hub(opt *HubOptions) {
	opt.CheckOrigin = o
}

// WithClientGauge tracks the number of connected clients on the gauge.
func WithClientGauge(gauge prometheus.Gauge) ChannelOption {
	return withClientGauge{gauge}
}

func (o withClientGauge) channel(opt *ChannelOptions) {
	opt.Clients = o.Gauge
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) hub(opt *HubOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) channel(opt *ChannelOptions) {
	opt.Logger = o.Logger
}
