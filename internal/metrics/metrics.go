package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Payment gateway
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_requests_total",
			Help: "Total number of payment gateway requests",
		},
		[]string{"operation", "status"},
	)
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "payment_gateway_request_duration_seconds",
			Help: "Duration of payment gateway requests in seconds",
		},
		[]string{"operation"},
	)

	// Reconciliation
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Reconciliation attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Webhook deliveries by event type and result",
		},
		[]string{"event", "result"},
	)
	SubscriptionsMarkedOverdue = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_marked_overdue_total",
			Help: "Subscriptions moved from pending to overdue",
		},
	)

	// Graduation
	GraduationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graduation_transitions_total",
			Help: "Alumni transitions by result",
		},
		[]string{"result"},
	)

	// Scheduled jobs
	JobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Scheduled job executions by job and result",
		},
		[]string{"job", "result"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scheduled_job_duration_seconds",
			Help: "Duration of scheduled job executions",
		},
		[]string{"job"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	prometheus.MustRegister(GatewayRequestsTotal)
	prometheus.MustRegister(GatewayRequestDuration)
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(WebhookEventsTotal)
	prometheus.MustRegister(SubscriptionsMarkedOverdue)

	prometheus.MustRegister(GraduationTransitionsTotal)

	prometheus.MustRegister(JobRunsTotal)
	prometheus.MustRegister(JobDuration)

	prometheus.MustRegister(collectors.NewGoCollector())
	prometheus.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
