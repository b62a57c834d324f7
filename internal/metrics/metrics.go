package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_jobs_processed_total",
			Help: "Total number of jobs processed by type and outcome.",
		},
		[]string{"type", "outcome"}, // completed, retried, failed, skipped
	)

	JobRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_job_retries_total",
			Help: "Total number of job retries by type and reason.",
		},
		[]string{"type", "reason"}, // e.g. http_5xx, timeout, network, other
	)

	JobsExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_jobs_exhausted_total",
			Help: "Total number of jobs that reached max attempts.",
		},
		[]string{"type"},
	)

	JobsReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecount_jobs_reclaimed_total",
			Help: "Total number of stuck jobs swept back to pending.",
		},
	)

	JobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecount_job_duration_seconds",
			Help:    "Job handler execution time by type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome.",
		},
		[]string{"outcome"}, // success, failed
	)

	WebhookDeactivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecount_webhook_deactivations_total",
			Help: "Total number of webhook registrations deactivated by fail count.",
		},
	)

	ReconTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_recon_transitions_total",
			Help: "Total number of label status transitions by new label.",
		},
		[]string{"label"},
	)

	ProducerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecount_producer_runs_total",
			Help: "Total number of producer runs by producer and outcome.",
		},
		[]string{"producer", "outcome"}, // ok, error
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		JobsProcessedTotal,
		JobRetriesTotal,
		JobsExhaustedTotal,
		JobsReclaimedTotal,
		JobDurationSeconds,
		WebhookDeliveriesTotal,
		WebhookDeactivationsTotal,
		ReconTransitionsTotal,
		ProducerRunsTotal,
	)
}

// RecordJob records a processed job with its outcome and handler duration
func RecordJob(jobType, outcome string, d time.Duration) {
	JobsProcessedTotal.WithLabelValues(jobType, outcome).Inc()
	JobDurationSeconds.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordRetry records a retried job with a classified failure reason
func RecordRetry(jobType, reason string) {
	JobRetriesTotal.WithLabelValues(jobType, reason).Inc()
}

// RecordExhausted records a job that reached its attempt cap
func RecordExhausted(jobType string) {
	JobsExhaustedTotal.WithLabelValues(jobType).Inc()
}

// RecordReclaimed records stuck jobs returned to pending by the sweep
func RecordReclaimed(n int64) {
	JobsReclaimedTotal.Add(float64(n))
}

// RecordWebhookDelivery records a webhook delivery attempt outcome
func RecordWebhookDelivery(outcome string) {
	WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordWebhookDeactivation records a registration flipped to inactive
func RecordWebhookDeactivation() {
	WebhookDeactivationsTotal.Inc()
}

// RecordTransition records a reconciliation label transition
func RecordTransition(label string) {
	ReconTransitionsTotal.WithLabelValues(label).Inc()
}

// RecordProducerRun records the outcome of one producer tick
func RecordProducerRun(producer, outcome string) {
	ProducerRunsTotal.WithLabelValues(producer, outcome).Inc()
}
