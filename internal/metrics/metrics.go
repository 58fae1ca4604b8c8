// Package metrics provides Prometheus metrics for the IVR navigator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ivrnav"

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	SignalsTotal     *prometheus.CounterVec
	DecisionDuration prometheus.Histogram

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter

	// Transport metrics
	StreamsActive prometheus.Gauge
	SinkErrors    *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of IVR decisions by action",
		}, []string{"action"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_signals_total",
			Help:      "Primary classifier signal per transcript",
		}, []string{"signal"}),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent classifying a transcript and updating its session",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		}),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live call sessions",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of call sessions created",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Total number of call sessions removed by the idle sweep",
		}),

		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of open websocket transcript streams",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failures writing decisions to external sinks",
		}, []string{"sink"}),
	}

	registry.MustRegister(
		m.DecisionsTotal,
		m.SignalsTotal,
		m.DecisionDuration,
		m.SessionsActive,
		m.SessionsCreated,
		m.SessionsExpired,
		m.StreamsActive,
		m.SinkErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision records one engine decision.
func (m *Metrics) RecordDecision(action, signal string, seconds float64) {
	m.DecisionsTotal.WithLabelValues(action).Inc()
	m.SignalsTotal.WithLabelValues(signal).Inc()
	m.DecisionDuration.Observe(seconds)
}

// RecordSessionCreated records a new session.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionExpired records a session removed by the sweep.
func (m *Metrics) RecordSessionExpired() {
	m.SessionsExpired.Inc()
	m.SessionsActive.Dec()
}

// RecordSinkError records a failed write to sink.
func (m *Metrics) RecordSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}
