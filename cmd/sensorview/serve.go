// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Azure/iot-operations-sdks/go/sensorview/broadcast"
	"github.com/Azure/iot-operations-sdks/go/sensorview/config"
	"github.com/Azure/iot-operations-sdks/go/sensorview/ingest"
	"github.com/Azure/iot-operations-sdks/go/sensorview/internal/metrics"
	"github.com/Azure/iot-operations-sdks/go/sensorview/sensor"
	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/gorilla/mux"
)

const shutdownTimeout = 5 * time.Second

// The assembled channels of a running service.
type service struct {
	hub         *broadcast.Hub
	metrics     *metrics.Metrics
	aggregators []*throttle.Aggregator[sensor.Sample]
	routes      []ingest.Route

	// Set once the broker receiver exists; health follows its connection.
	receiver *ingest.Receiver
}

// Wire one aggregator per configured channel between the ingest routes and
// the broadcast hub.
func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	s := &service{
		hub:     broadcast.NewHub(broadcast.WithLogger(logger)),
		metrics: metrics.New(),
	}

	for i := range cfg.Channels {
		ch := &cfg.Channels[i]

		bc, err := s.hub.Add(ch.Name, ch.Kind,
			broadcast.WithHistory(ch.History),
			broadcast.WithClientGauge(s.metrics.Clients(ch.Name)),
		)
		if err != nil {
			s.close()
			return nil, err
		}

		agg, err := throttle.New[sensor.Sample](bc,
			ch.AggregatorOptions(),
			throttle.WithObserver(s.metrics.Observer(ch.Name)),
			throttle.WithLogger(logger),
		)
		if err != nil {
			s.close()
			return nil, err
		}
		bc.Attach(agg)

		s.aggregators = append(s.aggregators, agg)
		s.routes = append(s.routes, ingest.Route{
			Topic:   ch.Topic,
			Kind:    ch.Kind,
			Handler: agg.OnEvent,
		})
	}
	return s, nil
}

func (s *service) router() *mux.Router {
	r := mux.NewRouter()
	s.hub.Route(r)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.receiver != nil && !s.receiver.Connected() {
			http.Error(w, "broker disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

func (s *service) close() {
	for _, agg := range s.aggregators {
		agg.Close()
	}
	s.hub.Close()
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	s, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	receiver, err := ingest.NewReceiver(s.routes,
		ingest.WithClientID(cfg.ClientID),
		ingest.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	s.receiver = receiver

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errC := make(chan error, 1)
	go func() { errC <- srv.Serve(ln) }()
	logger.Info("serving", slog.String("address", ln.Addr().String()))

	if err := receiver.Start(ctx, cfg.Broker); err != nil {
		shutdown(srv, logger)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer func() {
		if err := receiver.Close(); err != nil {
			logger.Warn("broker disconnect failed", slog.String("error", err.Error()))
		}
	}()

	select {
	case <-ctx.Done():
		shutdown(srv, logger)
		return nil
	case err := <-errC:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown failed", slog.String("error", err.Error()))
	}
}
