package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_started_total",
		Help: "Total number of checkout sessions started",
	})

	CheckoutsResetTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_reset_total",
		Help: "Total number of checkout sessions discarded by reset",
	})

	StepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_step_transitions_total",
		Help: "Checkout step transitions by step left and direction",
	}, []string{"from", "direction"})

	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_validation_failures_total",
		Help: "Guard and reconciliation failures by step",
	}, []string{"step"})

	SchedulesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schedules_generated_total",
		Help: "Installment schedules generated by recurrence kind",
	}, []string{"kind"})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_submissions_total",
		Help: "Sale submissions by sale structure and outcome",
	}, []string{"structure", "outcome"})

	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_request_latency_seconds",
		Help:    "Latency of settlement service submissions",
		Buckets: prometheus.DefBuckets,
	})

	ReceiptsProjectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receipts_projected_total",
		Help: "Total number of receipts written by the projector",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
