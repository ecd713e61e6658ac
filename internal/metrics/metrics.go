package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	SendRequests     *prometheus.CounterVec
	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	TopupDecisions   *prometheus.CounterVec
	NotifierFailures prometheus.Counter
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			SendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "send_requests_total",
				Help:      "Total SMS send requests by outcome.",
			}, []string{"outcome"}),
			GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total upstream carrier requests by status.",
			}, []string{"status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Latency distribution for upstream carrier calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			TopupDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topup_decisions_total",
				Help:      "Total processed top-up requests by decision.",
			}, []string{"decision"}),
			NotifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifier_failures_total",
				Help:      "Total failed ops-channel notification attempts.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.SendRequests,
			metricsInstance.GatewayRequests,
			metricsInstance.GatewayLatency,
			metricsInstance.TopupDecisions,
			metricsInstance.NotifierFailures,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// Outcome labels for SendRequests. Keep stable; dashboards depend on them.
const (
	OutcomeSent               = "sent"
	OutcomeFailed             = "failed"
	OutcomeRejectedPolicy     = "rejected_policy"
	OutcomeRejectedBalance    = "rejected_balance"
	OutcomeRejectedInactive   = "rejected_inactive"
	OutcomeRejectedRecipients = "rejected_recipients"
)
