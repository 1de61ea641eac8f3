package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hq_ingest"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec // labels: outcome={success,unreachable,malformed}
	Escalations   prometheus.Counter
	Snapshots     *prometheus.CounterVec // labels: result={written,failed}

	NormalizeErrors       prometheus.Counter
	StationFailures       prometheus.Counter
	MeasurementsPersisted prometheus.Counter
	PublishErrors         prometheus.Counter

	CycleDuration     prometheus.Histogram
	LastSuccessfulRun prometheus.Gauge
	PipelineRunning   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.Escalations,
		m.Snapshots,
		m.NormalizeErrors,
		m.StationFailures,
		m.MeasurementsPersisted,
		m.PublishErrors,
		m.CycleDuration,
		m.LastSuccessfulRun,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Feed retrieval attempts by outcome.",
		}, []string{"outcome"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Cycles abandoned after reaching the retry ceiling.",
		}),
		Snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_snapshots_total",
			Help:      "Archive snapshots by result.",
		}, []string{"result"}),
		NormalizeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_errors_total",
			Help:      "Readings or series rejected during normalization.",
		}),
		StationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_failures_total",
			Help:      "Station batches that failed to persist.",
		}),
		MeasurementsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_persisted_total",
			Help:      "Measurements written to the store.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Station batches that could not be forwarded downstream.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete ingestion cycle including retry waits.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 21600, 86400},
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_cycle_timestamp_seconds",
			Help:      "Unix time of the last cycle that persisted data.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while the scheduler is active, 0 when shut down.",
		}),
	}
}
