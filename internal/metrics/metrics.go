// Package metrics records Prometheus metrics for experiment lifecycle,
// editing and library activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/labkit/internal/fault"
)

// Metrics holds labkit collectors. A nil *Metrics records nothing.
type Metrics struct {
	transitions    *prometheus.CounterVec
	openExperiment prometheus.Gauge
	placements     *prometheus.CounterVec
	wires          *prometheus.CounterVec
	libraryOps     *prometheus.CounterVec
	libraryLatency *prometheus.HistogramVec
	archiveBytes   prometheus.Histogram
	errors         *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// New registers collectors with reg. Passing a fresh prometheus.NewRegistry
// keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labkit_experiment_transitions_total",
			Help: "Experiment lifecycle transitions",
		}, []string{"op"}),
		openExperiment: f.NewGauge(prometheus.GaugeOpts{
			Name: "labkit_experiments_open",
			Help: "Experiments currently open",
		}),
		placements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labkit_elements_placed_total",
			Help: "Elements placed, by experiment type and coordinate mode",
		}, []string{"type", "mode"}),
		wires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labkit_wire_changes_total",
			Help: "Wires connected or disconnected",
		}, []string{"op"}),
		libraryOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labkit_library_operations_total",
			Help: "Library operations by result",
		}, []string{"op", "result"}),
		libraryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labkit_library_operation_duration_seconds",
			Help:    "Time spent in library operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		archiveBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "labkit_archive_size_bytes",
			Help:    "Size of encoded archives",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "labkit_errors_total",
			Help: "Recoverable errors by kind",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// Transition counts a lifecycle operation (create, open, import, close,
// delete) and adjusts the open gauge by delta.
func (m *Metrics) Transition(op string, delta int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op).Inc()
	m.openExperiment.Add(float64(delta))
}

// Placed counts one placement.
func (m *Metrics) Placed(typ string, grid bool) {
	if m == nil {
		return
	}
	mode := "native"
	if grid {
		mode = "grid"
	}
	m.placements.WithLabelValues(typ, mode).Inc()
}

// Wire counts a connect or disconnect.
func (m *Metrics) Wire(op string) {
	if m == nil {
		return
	}
	m.wires.WithLabelValues(op).Inc()
}

// Library records one library operation that started at start.
func (m *Metrics) Library(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.libraryOps.WithLabelValues(op, result).Inc()
	m.libraryLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ArchiveSize observes the size of an encoded archive.
func (m *Metrics) ArchiveSize(n int) {
	if m == nil {
		return
	}
	m.archiveBytes.Observe(float64(n))
}

// Error counts err by kind. Errors that are not *fault.Error count as
// "unknown"; nil is ignored.
func (m *Metrics) Error(err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(fault.KindOf(err).String()).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
