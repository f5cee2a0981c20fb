package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scanner metrics
var (
	ScanRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livecat_scan_runs_total",
			Help: "Total number of scan runs started",
		},
	)

	ScanDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_scan_decisions_total",
			Help: "Scan decisions by kind",
		},
		[]string{"scope", "decision"},
	)

	ScanFilesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_scan_files_skipped_total",
			Help: "Files skipped during scanning by reason",
		},
		[]string{"scope", "reason"},
	)

	ScanDirsShortCircuited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_scan_dirs_short_circuited_total",
			Help: "Directories skipped by the mtime short-circuit",
		},
		[]string{"scope"},
	)

	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_scan_duration_seconds",
			Help:    "Duration of scan runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"scope"},
	)

	ScanIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livecat_scan_running",
			Help: "1 if a scan is currently in progress",
		},
	)

	ScanWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livecat_scan_workers",
			Help: "Number of workers used by the current scan",
		},
	)
)

// Extractor metrics
var (
	ExtractDocsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_extract_documents_total",
			Help: "Documents extracted by parse status",
		},
		[]string{"scope", "status"},
	)

	ExtractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "livecat_extract_duration_seconds",
			Help:    "Per-document extraction duration",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
)

// Stager metrics
var (
	StageAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_stage_appends_total",
			Help: "Records appended to staged streams",
		},
		[]string{"scope", "stream"},
	)

	StageBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_stage_bytes_total",
			Help: "Bytes appended to staged streams",
		},
		[]string{"scope", "stream"},
	)
)

// Ingestor metrics
var (
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_ingest_rows_total",
			Help: "Rows merged into the catalog by stream",
		},
		[]string{"scope", "stream"},
	)

	IngestMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_ingest_malformed_total",
			Help: "Malformed staged records skipped during ingestion",
		},
		[]string{"scope", "stream"},
	)

	IngestBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_ingest_batch_duration_seconds",
			Help:    "Duration of ingest batches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"scope"},
	)
)

// Catalog store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_db_transaction_duration_seconds",
			Help:    "Catalog transaction duration by outcome",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"outcome"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livecat_db_connections_open",
			Help: "Number of open catalog connections",
		},
	)
)

// Analytics metrics
var (
	AnalyticsRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livecat_analytics_runs_total",
			Help: "Total number of analytics refreshes",
		},
	)

	AnalyticsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_analytics_duration_seconds",
			Help:    "Duration of analytics passes by metric",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"metric"},
	)
)

// HTTP metrics for the query surface
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livecat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livecat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
