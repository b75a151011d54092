// Package metrics holds the Prometheus collectors for a tracking run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry so tests and
// multiple trackers never collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks               prometheus.Counter
	Events              *prometheus.CounterVec
	AcquisitionFailures *prometheus.CounterVec
	Suppressed          prometheus.Counter
	StrategyHits        *prometheus.CounterVec
	MirrorErrors        *prometheus.CounterVec
	Progress            prometheus.Gauge
	SnapshotDuration    prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playtrack_ticks_total",
			Help: "Observation ticks executed.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtrack_events_total",
			Help: "Events appended to the log, by kind.",
		}, []string{"kind"}),
		AcquisitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtrack_acquisition_failures_total",
			Help: "Snapshot or selector lookups that failed, by operation.",
		}, []string{"op"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playtrack_suppressed_total",
			Help: "Readings dropped because the percent did not change.",
		}),
		StrategyHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtrack_strategy_hits_total",
			Help: "Readings produced, by extraction strategy.",
		}, []string{"strategy"}),
		MirrorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playtrack_mirror_errors_total",
			Help: "Failed writes to best-effort mirrors, by mirror.",
		}, []string{"mirror"}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "playtrack_progress_percent",
			Help: "Last emitted progress percent.",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playtrack_snapshot_duration_seconds",
			Help:    "Time spent acquiring one snapshot.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
	m.Registry.MustRegister(
		m.Ticks, m.Events, m.AcquisitionFailures, m.Suppressed,
		m.StrategyHits, m.MirrorErrors, m.Progress, m.SnapshotDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
