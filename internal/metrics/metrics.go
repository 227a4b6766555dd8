// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package metrics exports aggregator counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/Azure/iot-operations-sdks/go/sensorview/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "sensorview_"

type (
	// Metrics holds the per-channel aggregator counters.
	Metrics struct {
		registry *prometheus.Registry

		ingested         *prometheus.CounterVec
		evicted          *prometheus.CounterVec
		droppedInvisible *prometheus.CounterVec
		ticksDropped     *prometheus.CounterVec
		snapshots        *prometheus.CounterVec
		snapshotEvents   *prometheus.HistogramVec
		clients          *prometheus.GaugeVec
	}

	observer struct {
		ingested         prometheus.Counter
		evicted          prometheus.Counter
		droppedInvisible prometheus.Counter
		ticksDropped     prometheus.Counter
		snapshots        prometheus.Counter
		snapshotEvents   prometheus.Observer
	}
)

// New creates the counters and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_ingested_total",
				Help: "Total events accepted into the queue by channel",
			},
			[]string{"channel"},
		),
		evicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_evicted_total",
				Help: "Total events evicted from a full queue by channel",
			},
			[]string{"channel"},
		),
		droppedInvisible: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_dropped_invisible_total",
				Help: "Total events ignored while the channel was invisible",
			},
			[]string{"channel"},
		),
		ticksDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticks_dropped_total",
				Help: "Total ticks that delivered nothing while invisible",
			},
			[]string{"channel"},
		),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshots_emitted_total",
				Help: "Total snapshots delivered to the consumer by channel",
			},
			[]string{"channel"},
		),
		snapshotEvents: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_events",
				Help:    "Number of events per delivered snapshot",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"channel"},
		),
		clients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "clients",
				Help: "Connected presentation clients by channel",
			},
			[]string{"channel"},
		),
	}

	m.registry.MustRegister(
		m.ingested,
		m.evicted,
		m.droppedInvisible,
		m.ticksDropped,
		m.snapshots,
		m.snapshotEvents,
		m.clients,
		collectors.NewGoCollector(),
	)
	return m
}

// Observer returns the aggregator observer for a channel.
func (m *Metrics) Observer(channel string) throttle.Observer {
	return &observer{
		ingested:         m.ingested.WithLabelValues(channel),
		evicted:          m.evicted.WithLabelValues(channel),
		droppedInvisible: m.droppedInvisible.WithLabelValues(channel),
		ticksDropped:     m.ticksDropped.WithLabelValues(channel),
		snapshots:        m.snapshots.WithLabelValues(channel),
		snapshotEvents:   m.snapshotEvents.WithLabelValues(channel),
	}
}

// Clients returns the connected-client gauge for a channel.
func (m *Metrics) Clients(channel string) prometheus.Gauge {
	return m.clients.WithLabelValues(channel)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (o *observer) Ingested()         { o.ingested.Inc() }
func (o *observer) Evicted()          { o.evicted.Inc() }
func (o *observer) DroppedInvisible() { o.droppedInvisible.Inc() }
func (o *observer) TickDropped()      { o.ticksDropped.Inc() }

func (o *observer) Emitted(events int) {
	o.snapshots.Inc()
	o.snapshotEvents.Observe(float64(events))
}
