// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broadcast

import (
	"context"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
)

type logger struct {
	log.Logger
	channel string
}

func (l *logger) joined(ctx context.Context, remote string, clients int) {
	l.Info(ctx, "client joined",
		slog.String("channel", l.channel),
		slog.String("remote", remote),
		slog.Int("clients", clients),
	)
}

func (l *logger) left(ctx context.Context, remote string, clients int) {
	l.Info(ctx, "client left",
		slog.String("channel", l.channel),
		slog.String("remote", remote),
		slog.Int("clients", clients),
	)
}

func (l *logger) lagging(ctx context.Context, remote string, seq uint64) {
	l.Debug(ctx, "client lagging; view dropped",
		slog.String("channel", l.channel),
		slog.String("remote", remote),
		slog.Uint64("seq", seq),
	)
}

func (l *logger) badMessage(ctx context.Context, remote string, err error) {
	l.Debug(ctx, "ignoring client message",
		slog.String("channel", l.channel),
		slog.String("remote", remote),
		slog.String("error", err.Error()),
	)
}
