// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// LoanPoolRecords counts per-record outcomes: created, updated, skipped, failed.
	LoanPoolRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_pool_records_total",
			Help: "Total number of loan pool records handled, by outcome",
		},
		[]string{"outcome"},
	)

	LoanPoolBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loan_pool_batch_duration_seconds",
			Help:    "Duration of one loan pool processing batch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	LoanPoolStaleRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loan_pool_stale_records",
			Help: "UNPROCESSED records older than the stale threshold at the last check",
		},
	)

	CRMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_requests_total",
			Help: "Total number of CRM API requests, by operation and status",
		},
		[]string{"operation", "status"},
	)

	CRMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "crm_request_duration_seconds",
			Help: "Duration of CRM API requests",
		},
		[]string{"operation"},
	)

	InboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_pool_inbound_requests_total",
			Help: "Total number of inbound loan payloads, by response code",
		},
		[]string{"code"},
	)
)
