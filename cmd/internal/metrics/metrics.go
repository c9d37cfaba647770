// Package metrics holds the Prometheus instruments for the scribble server.
//
// A nil *Metrics is valid and records nothing, so packages under test can run without a
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scrblit"

// Archive results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultRefused = "refused"
)

type Metrics struct {
	registry *prometheus.Registry

	connections     prometheus.Gauge
	strokes         prometheus.Counter
	malformed       prometheus.Counter
	coverage        prometheus.Gauge
	triggers        prometheus.Counter
	archives        *prometheus.CounterVec
	archiveDuration prometheus.Histogram
	evicted         prometheus.Counter
	uploads         *prometheus.CounterVec
}

// New registers every instrument on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := NewWith(reg)
	m.registry = reg
	return m
}

// NewWith registers every instrument on reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections registered with the hub.",
		}),
		strokes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strokes_total",
			Help:      "Strokes accepted into the canvas session.",
		}),
		malformed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_malformed_total",
			Help:      "Inbound messages discarded as malformed.",
		}),
		coverage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coverage_ratio",
			Help:      "Current canvas coverage in [0, 1].",
		}),
		triggers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_triggers_total",
			Help:      "Threshold crossings that fired TRIGGER_SAVE.",
		}),
		archives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_total",
			Help:      "Archival attempts by result.",
		}, []string{"result"}),
		archiveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_duration_seconds",
			Help:      "Wall time of archival handoffs.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_evicted_total",
			Help:      "Clients closed because their send queue was full.",
		}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_saves_total",
			Help:      "Client-initiated save-scribble uploads by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry New created. Metrics built with NewWith fall back to the
// default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) StrokeAccepted(coverage float64) {
	if m == nil {
		return
	}
	m.strokes.Inc()
	m.coverage.Set(coverage)
}

func (m *Metrics) SetCoverage(coverage float64) {
	if m == nil {
		return
	}
	m.coverage.Set(coverage)
}

func (m *Metrics) MessageMalformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) SnapshotTriggered() {
	if m == nil {
		return
	}
	m.triggers.Inc()
}

// ArchiveDone records one handoff. result is one of the Result constants.
func (m *Metrics) ArchiveDone(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.archives.WithLabelValues(result).Inc()
	m.archiveDuration.Observe(took.Seconds())
}

func (m *Metrics) ClientEvicted() {
	if m == nil {
		return
	}
	m.evicted.Inc()
}

func (m *Metrics) ClientSave(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}
