// Package metrics exposes pipeline run counters in the Prometheus format.
//
// A batch run is short-lived, so besides the /metrics handler used by
// `cnyre serve` the registry can be written to a node-exporter textfile
// once the run ends.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cnyre"

// Metrics holds the pipeline's collectors on a private registry.
type Metrics struct {
	// Counters
	RecordsFetched     *prometheus.CounterVec
	RecordsFiltered    *prometheus.CounterVec
	RecordsRejected    *prometheus.CounterVec
	EntitiesLoaded     *prometheus.CounterVec
	PagesSkipped       prometheus.Counter
	FetchFailures      *prometheus.CounterVec
	PropertiesEnriched prometheus.Counter
	Inconsistencies    prometheus.Counter

	// Gauges
	LastRunStatus    *prometheus.GaugeVec
	LastRunTimestamp prometheus.Gauge

	// Histograms
	RunDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RecordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Raw records received from a feed",
		},
		[]string{"feed"},
	)
	m.RecordsFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_filtered_total",
			Help:      "Valid records outside the county scope",
		},
		[]string{"feed"},
	)
	m.RecordsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records routed to the rejected sink, by reason",
		},
		[]string{"reason"},
	)
	m.EntitiesLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_loaded_total",
			Help:      "Entities written to the store",
		},
		[]string{"entity"}, // "ratio", "property", "assessment"
	)
	m.PagesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_skipped_total",
		Help:      "Pages whose transaction failed on every attempt",
	})
	m.FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Feeds that ended early on a fetch error",
		},
		[]string{"feed"},
	)
	m.PropertiesEnriched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "properties_enriched_total",
		Help:      "Properties whose trend rows were recomputed",
	})
	m.Inconsistencies = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_inconsistencies_total",
		Help:      "Properties skipped by the enricher for a missing ratio",
	})

	m.LastRunStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_status",
			Help:      "1 for the status of the most recent run, 0 for the others",
		},
		[]string{"status"},
	)
	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the most recent run finished",
	})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a pipeline run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
	})

	m.registry.MustRegister(
		m.RecordsFetched,
		m.RecordsFiltered,
		m.RecordsRejected,
		m.EntitiesLoaded,
		m.PagesSkipped,
		m.FetchFailures,
		m.PropertiesEnriched,
		m.Inconsistencies,
		m.LastRunStatus,
		m.LastRunTimestamp,
		m.RunDuration,
	)
	return m
}

// ObserveRun sets the last-run gauges. statuses lists every status value
// so that the previous run's series is reset to 0.
func (m *Metrics) ObserveRun(status string, statuses []string, started, finished time.Time) {
	for _, s := range statuses {
		m.LastRunStatus.WithLabelValues(s).Set(0)
	}
	m.LastRunStatus.WithLabelValues(status).Set(1)
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	m.RunDuration.Observe(finished.Sub(started).Seconds())
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in the text exposition format,
// atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
