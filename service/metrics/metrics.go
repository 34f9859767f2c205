package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Ingestion Metrics
	webhooksReceivedTotal     *prometheus.CounterVec
	transactionsEnqueuedTotal *prometheus.CounterVec

	// Processing Metrics
	processingAttemptsTotal *prometheus.CounterVec
	processingDuration      *prometheus.HistogramVec
	settlementDuration      prometheus.Histogram

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Ingestion Metrics
		webhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhooks_received_total",
				Help: "Total number of transaction webhooks received by result",
			},
			[]string{"result"},
		),
		transactionsEnqueuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_enqueued_total",
				Help: "Total number of processing jobs enqueued by status",
			},
			[]string{"status"},
		),

		// Processing Metrics
		processingAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "processing_attempts_total",
				Help: "Total number of transaction processing attempts by outcome",
			},
			[]string{"outcome"},
		),
		processingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "processing_attempt_duration_seconds",
				Help:    "Duration of transaction processing attempts in seconds",
				Buckets: []float64{0.05, 0.25, 1.0, 5.0, 15.0, 30.0, 60.0, 300.0, 600.0},
			},
			[]string{"outcome"},
		),
		settlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_call_duration_seconds",
				Help:    "Duration of the external settlement call in seconds",
				Buckets: []float64{0.05, 0.25, 1.0, 5.0, 15.0, 30.0, 60.0, 300.0},
			},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method, and status",
			},
			[]string{"handler", "method", "status"},
		),
	}
}

// Webhook result labels.
const (
	WebhookResultAccepted  = "accepted"
	WebhookResultDuplicate = "duplicate"
	WebhookResultError     = "error"
)

// Processing outcome labels.
const (
	ProcessingOutcomeProcessed    = "processed"
	ProcessingOutcomeFailed       = "failed"
	ProcessingOutcomeShortCircuit = "short_circuit"
	ProcessingOutcomeError        = "error"
)

// RecordWebhook records a received webhook by result.
func (m *Metrics) RecordWebhook(result string) {
	m.webhooksReceivedTotal.WithLabelValues(result).Inc()
}

// RecordEnqueue records a job enqueue attempt by status ("ok" or "error").
func (m *Metrics) RecordEnqueue(status string) {
	m.transactionsEnqueuedTotal.WithLabelValues(status).Inc()
}

// RecordProcessingAttempt records a processing attempt and its duration.
func (m *Metrics) RecordProcessingAttempt(outcome string, seconds float64) {
	m.processingAttemptsTotal.WithLabelValues(outcome).Inc()
	m.processingDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordSettlementDuration records the duration of the settlement call.
func (m *Metrics) RecordSettlementDuration(seconds float64) {
	m.settlementDuration.Observe(seconds)
}

// RecordHTTPRequest records an HTTP request's duration and status.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, seconds float64) {
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(seconds)
	m.httpRequestsTotal.WithLabelValues(handler, method, statusLabel(statusCode)).Inc()
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "5xx"
	case statusCode >= 400:
		return "4xx"
	case statusCode >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
