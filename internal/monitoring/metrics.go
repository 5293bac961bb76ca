// Package monitoring records run metrics and exports them in the Prometheus
// text format for a node exporter textfile collector.
package monitoring

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

const namespace = "floodprep"

// Metrics holds the Prometheus counters and histograms for preparation runs.
// Each instance owns its registry so batch runs and tests never collide.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // labels: variant, outcome
	StageDuration   *prometheus.HistogramVec // labels: stage
	ZoneResolutions *prometheus.CounterVec   // labels: mode={explicit,derived}
	CatalogWrites   *prometheus.CounterVec   // labels: result={written,failed}
	LastSuccess     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates all run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Preparation runs by variant and outcome.",
		}, []string{"variant", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		ZoneResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_resolutions_total",
			Help:      "Projection resolutions by mode.",
		}, []string{"mode"}),
		CatalogWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_writes_total",
			Help:      "Catalog files by write result.",
		}, []string{"result"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last fully successful run.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.StageDuration,
		m.ZoneResolutions,
		m.CatalogWrites,
		m.LastSuccess,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished run. A successful run also moves LastSuccess.
func (m *Metrics) RecordRun(variant, outcome string, at time.Time) {
	m.RunsTotal.WithLabelValues(variant, outcome).Inc()
	if outcome == OutcomeOK {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// WriteTextfile atomically writes every metric to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "monitoring: create textfile dir")
	}
	return eris.Wrap(prometheus.WriteToTextfile(path, m.registry), "monitoring: write textfile")
}
