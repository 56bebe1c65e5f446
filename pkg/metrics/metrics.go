// Package metrics exposes Prometheus counters/gauges/histograms for the
// monitor's ingest, parsing, store, broadcast, and stats stages, plus the
// /health, /ready, /live handlers consumed by process supervisors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	LinesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_lines_ingested_total",
			Help: "Total number of log lines read from a node's source",
		},
		[]string{"node", "source"},
	)

	NodeConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storjmonitor_node_connected",
			Help: "Whether a node's ingest source is currently connected (1) or not (0)",
		},
		[]string{"node"},
	)

	// Parser metrics
	EventsParsedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_events_parsed_total",
			Help: "Total number of log lines successfully parsed, by event kind",
		},
		[]string{"node", "kind"},
	)

	LinesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_lines_rejected_total",
			Help: "Total number of log lines that did not parse into a recognized event",
		},
		[]string{"node"},
	)

	// Pairing metrics
	UnpairedStartsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storjmonitor_unpaired_starts",
			Help: "Number of operation-start records awaiting a matching traffic event",
		},
		[]string{"node"},
	)

	PairedDurationSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_paired_duration_source_total",
			Help: "Total number of paired events by which duration source was used",
		},
		[]string{"node", "source"}, // source = explicit|arrival|timestamp
	)

	// Store metrics
	StoreQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storjmonitor_store_queue_depth",
			Help: "Current depth of the store writer's pending command queue",
		},
	)

	StoreBatchWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storjmonitor_store_batch_write_duration_seconds",
			Help:    "Time taken to write one batch of queued commands",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storjmonitor_store_batch_size",
			Help:    "Number of commands written per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	RollupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storjmonitor_rollup_duration_seconds",
			Help:    "Time taken to recompute hourly rollups",
			Buckets: prometheus.DefBuckets,
		},
	)

	PruneDeletedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_prune_deleted_rows_total",
			Help: "Total number of rows deleted by retention pruning, by table",
		},
		[]string{"table"},
	)

	// Broadcast metrics
	DashboardClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storjmonitor_dashboard_clients_connected",
			Help: "Current number of connected dashboard websocket clients",
		},
	)

	BroadcastSendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storjmonitor_broadcast_send_failures_total",
			Help: "Total number of dashboard sends that failed and dropped the subscriber",
		},
	)

	// Stats engine metrics
	ActiveViewsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storjmonitor_active_views",
			Help: "Current number of distinct dashboard views with at least one subscriber",
		},
	)

	StatsRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storjmonitor_stats_refresh_duration_seconds",
			Help:    "Time taken for one stats engine recompute tick across all active views",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API collaborator metrics
	APIPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storjmonitor_api_polls_total",
			Help: "Total number of admin API polls by node, class, and outcome",
		},
		[]string{"node", "class", "outcome"}, // outcome = success|error
	)
)

func init() {
	prometheus.MustRegister(
		LinesIngestedTotal,
		NodeConnected,
		EventsParsedTotal,
		LinesRejectedTotal,
		UnpairedStartsGauge,
		PairedDurationSource,
		StoreQueueDepth,
		StoreBatchWriteDuration,
		StoreBatchSize,
		RollupDuration,
		PruneDeletedRows,
		DashboardClientsConnected,
		BroadcastSendFailuresTotal,
		ActiveViewsGauge,
		StatsRefreshDuration,
		APIPollsTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
