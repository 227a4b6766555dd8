// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package throttle

import (
	"context"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
)

type logger struct {
	log.Logger
	name string
}

func (l *logger) created(opts *Options) {
	l.Debug(context.Background(), "aggregator created",
		slog.String("name", l.name),
		slog.String("strategy", opts.Strategy.String()),
		slog.Duration("delay", opts.Delay),
		slog.Int("capacity", opts.Capacity),
		slog.Int("retain", opts.Retain),
	)
}

func (l *logger) visibility(visible bool) {
	l.Debug(context.Background(), "visibility changed",
		slog.String("name", l.name),
		slog.Bool("visible", visible),
	)
}

func (l *logger) tickDropped(queued int) {
	l.Debug(context.Background(), "tick dropped while invisible",
		slog.String("name", l.name),
		slog.Int("queued", queued),
	)
}

func (l *logger) reset(discarded int) {
	l.Debug(context.Background(), "aggregator reset",
		slog.String("name", l.name),
		slog.Int("discarded", discarded),
	)
}
