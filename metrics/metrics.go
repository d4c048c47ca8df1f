// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photovault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Ingestion metrics
var (
	SentinelTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_sentinel_ticks_total",
			Help: "Sentinel evaluations by resulting state",
		},
		[]string{"state"},
	)

	ScanDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_scan_dispatched_total",
			Help: "Processing jobs enqueued by the scanner",
		},
		[]string{"kind"},
	)

	ScanEnqueueFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photovault_scan_enqueue_failures_total",
			Help: "Processing jobs the scanner failed to enqueue",
		},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_jobs_processed_total",
			Help: "Processing jobs consumed by kind and outcome",
		},
		[]string{"kind", "outcome"}, // inserted, duplicate, skipped, failed
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photovault_job_duration_seconds",
			Help:    "Time spent processing one file",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)

	IngestionPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photovault_ingestion_pending",
			Help: "Pending counter of the active batch",
		},
	)

	IngestionCompleted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photovault_ingestion_completed",
			Help: "Completed counter of the active batch",
		},
	)
)

// Export metrics
var (
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_exports_total",
			Help: "Bulk exports by scope and final status",
		},
		[]string{"scope", "status"},
	)

	ExportUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photovault_export_units_total",
			Help: "Units of work written into export archives",
		},
		[]string{"scope"},
	)
)
