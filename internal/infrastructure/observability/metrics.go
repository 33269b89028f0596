package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Provider call metrics
	ProviderCalls        *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	// Reconciliation metrics
	WebhooksTotal     *prometheus.CounterVec
	PollsTotal        *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	SweepPolled     *prometheus.CounterVec
	OutboxPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Outbound provider calls by provider, operation and outcome kind",
			},
			[]string{"provider", "operation", "outcome"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Outbound provider call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhooks_total",
				Help:      "Inbound webhook events by provider and outcome (applied, dropped, rejected)",
			},
			[]string{"provider", "outcome"},
		),
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_polls_total",
				Help:      "Status polls by provider and outcome (changed, unchanged, failed)",
			},
			[]string{"provider", "outcome"},
		),
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Persisted status changes by record type, source and target status",
			},
			[]string{"record", "source", "to"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
		SweepPolled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_polled_total",
				Help:      "Transactions polled by the background sweep, by outcome",
			},
			[]string{"outcome"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox entries relayed to the event stream, by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.ProviderCalls,
		m.ProviderCallDuration,
		m.WebhooksTotal,
		m.PollsTotal,
		m.StatusTransitions,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.SweepPolled,
		m.OutboxPublished,
	)

	return m
}

// NewNopMetrics returns metrics registered against a private registry, for
// tests and tools that do not expose /metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics("paygate", prometheus.NewRegistry())
}
