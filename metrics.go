// metrics.go: Prometheus metrics for piece lifecycle and dispatch
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gopieces

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lifecycle operation labels.
const (
	OpLoad    = "load"
	OpInit    = "init"
	OpInstall = "install"
	OpReload  = "reload"
	OpUnload  = "unload"
	OpEnable  = "enable"
	OpDisable = "disable"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultPanic   = "panic"
)

// Metrics collects host metrics on a private Prometheus registry.
//
// All methods are safe on a nil *Metrics, which is what a host gets when
// metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	lifecycle   *prometheus.CounterVec
	pieces      *prometheus.GaugeVec
	dispatched  *prometheus.CounterVec
	runLatency  *prometheus.HistogramVec
	events      prometheus.Counter
	queueDepth  prometheus.Gauge
	initLatency *prometheus.HistogramVec
}

// NewMetrics creates a collector under the given namespace ("gopieces" if empty).
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gopieces"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.lifecycle = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "piece",
			Name:      "lifecycle_total",
			Help:      "Piece lifecycle operations by kind, operation and result",
		},
		[]string{"kind", "op", "result"},
	)

	m.pieces = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pieces",
			Help:      "Number of current pieces per kind",
		},
		[]string{"kind"},
	)

	m.dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Run calls per monitor and result",
		},
		[]string{"piece", "result"},
	)

	m.runLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Time spent in a monitor's Run",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"piece"},
	)

	m.initLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "piece",
			Name:      "init_duration_seconds",
			Help:      "Time spent in a piece's Init",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"kind", "result"},
	)

	m.events = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "events_total",
		Help:      "Events dispatched",
	})

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Events waiting in the publish queue",
	})

	m.registry.MustRegister(
		m.lifecycle,
		m.pieces,
		m.dispatched,
		m.runLatency,
		m.initLatency,
		m.events,
		m.queueDepth,
	)
	return m
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordLifecycle(kind Kind, op string, err error) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(kind.String(), op, resultOf(err)).Inc()
}

func (m *Metrics) RecordInit(kind Kind, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.initLatency.WithLabelValues(kind.String(), resultOf(err)).Observe(d.Seconds())
}

func (m *Metrics) SetPieces(kind Kind, n int) {
	if m == nil {
		return
	}
	m.pieces.WithLabelValues(kind.String()).Set(float64(n))
}

func (m *Metrics) RecordRun(piece, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(piece, result).Inc()
	if result != ResultSkipped {
		m.runLatency.WithLabelValues(piece).Observe(d.Seconds())
	}
}

func (m *Metrics) RecordEvent() {
	if m == nil {
		return
	}
	m.events.Inc()
}

func (m *Metrics) SetQueueDepth(n int64) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func resultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
