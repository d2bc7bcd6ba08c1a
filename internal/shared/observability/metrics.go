package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pycomplete_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	ReductionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pycomplete_reduction_seconds",
		Help:    "Time spent extracting imports and reducing a parsed module.",
		Buckets: prometheus.DefBuckets,
	})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pycomplete_requests_total",
		Help: "Total number of completion requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pycomplete_request_seconds",
		Help:    "Latency of completion requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ParseSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pycomplete_parse_source_total",
		Help: "Total number of source parses by outcome.",
	}, []string{"outcome"})

	DocumentsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pycomplete_documents_active",
		Help: "Number of documents held by the session registry.",
	})

	WorkerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pycomplete_worker_requests_total",
		Help: "Total number of requests sent to the Python worker.",
	}, []string{"method", "outcome"})

	WorkerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pycomplete_worker_request_seconds",
		Help:    "Round trip latency of Python worker requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	WorkerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pycomplete_worker_starts_total",
		Help: "Total number of Python worker processes started.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pycomplete_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	JournalEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pycomplete_journal_entries_total",
		Help: "Parse journal entries by result (written, dropped, failed).",
	}, []string{"result"})

	JournalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pycomplete_journal_queue_depth",
		Help: "Parse journal entries waiting to be written.",
	})

	BridgeRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pycomplete_bridge_rate_limited_total",
		Help: "Total number of editor bridge requests rejected by the rate limiter.",
	})
)
