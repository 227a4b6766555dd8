// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) connected(ctx context.Context, address, clientID string) {
	l.Info(ctx, "connected to broker",
		slog.String("address", address),
		slog.String("client_id", clientID),
	)
}

func (l *logger) subscribed(ctx context.Context, topic string) {
	l.Debug(ctx, "subscribed", slog.String("topic", topic))
}

func (l *logger) unrouted(ctx context.Context, topic string) {
	l.Debug(ctx, "message on unrouted topic", slog.String("topic", topic))
}

func (l *logger) connectionLost(ctx context.Context, err error) {
	l.Warn(ctx, fmt.Errorf("broker connection lost: %w", err))
}

func (l *logger) reconnected(ctx context.Context, address string) {
	l.Info(ctx, "reconnected to broker", slog.String("address", address))
}
