// Package metrics exposes Prometheus instrumentation for the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitalstream"

// Metrics groups the collectors updated by the simulator, hub and recorder.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	Connections    prometheus.Gauge
	FramesSent     prometheus.Counter
	SendFailures   *prometheus.CounterVec
	FrameBytes     prometheus.Gauge
	Summaries      prometheus.Counter
	PersistErrors  *prometheus.CounterVec
	PersistDropped prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks executed",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent mutating state and broadcasting one tick",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observer_connections",
			Help:      "Currently registered observer connections",
		}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Snapshot frames handed to observer connections",
		}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Observer sends that failed, by reason",
		}, []string{"reason"}),
		FrameBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Size of the last broadcast frame",
		}),
		Summaries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Subject summaries generated",
		}),
		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Persistence writes that failed, by kind",
		}, []string{"kind"}),
		PersistDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_dropped_total",
			Help:      "Persistence jobs dropped because the queue was full",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(seconds float64, frameBytes int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(seconds)
	m.FrameBytes.Set(float64(frameBytes))
}

// SetConnections updates the live connection gauge.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

// FrameDelivered counts one successful send.
func (m *Metrics) FrameDelivered() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

// SendFailed counts one failed send.
func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.SendFailures.WithLabelValues(reason).Inc()
}

// SummaryGenerated counts one subject summary.
func (m *Metrics) SummaryGenerated() {
	if m == nil {
		return
	}
	m.Summaries.Inc()
}

// PersistFailed counts one failed persistence write of the given kind.
func (m *Metrics) PersistFailed(kind string) {
	if m == nil {
		return
	}
	m.PersistErrors.WithLabelValues(kind).Inc()
}

// PersistDrop counts one job dropped by the recorder.
func (m *Metrics) PersistDrop() {
	if m == nil {
		return
	}
	m.PersistDropped.Inc()
}
