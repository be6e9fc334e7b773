package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookpage",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookpage",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// HandlerResultsTotal counts handler outcomes: applied, unresolved, error, duplicate, ignored.
	HandlerResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookpage",
		Subsystem: "billing",
		Name:      "handler_results_total",
		Help:      "Webhook handler outcomes by event type.",
	}, []string{"event_type", "outcome"})
)
