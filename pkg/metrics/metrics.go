// Package metrics defines the prometheus instruments shared by the API
// server and the snapshot refresher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all monitoroor instruments.
type Metrics struct {
	// RunsRecorded counts ingested run records by status.
	RunsRecorded *prometheus.CounterVec

	// CorrectionsApplied counts successful correction applies.
	CorrectionsApplied prometheus.Counter

	// RefreshDuration observes snapshot refresh latency by outcome.
	RefreshDuration *prometheus.HistogramVec

	// RefreshFailures counts snapshot refresh passes that kept the
	// previous snapshot.
	RefreshFailures prometheus.Counter

	// SnapshotStale is 1 while the served snapshot is older than one
	// refresh interval.
	SnapshotStale prometheus.Gauge

	// SnapshotRuns is the number of runs in the served snapshot.
	SnapshotRuns prometheus.Gauge

	// RequestDuration observes HTTP handler latency.
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers all instruments on reg. A nil registerer yields a
// detached set, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RunsRecorded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "monitoroor_runs_recorded_total",
			Help: "Total run records ingested, by status.",
		}, []string{"status"}),

		CorrectionsApplied: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "monitoroor_corrections_applied_total",
			Help: "Total corrections applied to failed runs.",
		}),

		RefreshDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitoroor_snapshot_refresh_duration_seconds",
			Help:    "Snapshot refresh latency.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),

		RefreshFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "monitoroor_snapshot_refresh_failures_total",
			Help: "Snapshot refresh passes that failed and kept the previous snapshot.",
		}),

		SnapshotStale: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "monitoroor_snapshot_stale",
			Help: "Whether the served snapshot is older than one refresh interval.",
		}),

		SnapshotRuns: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "monitoroor_snapshot_runs",
			Help: "Number of runs held in the served snapshot.",
		}),

		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitoroor_http_request_duration_seconds",
			Help:    "HTTP handler latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "method", "status"}),
	}
}
