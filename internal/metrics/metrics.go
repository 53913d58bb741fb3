// Package metrics defines the Prometheus instruments for the payment
// confirmation flow. Metrics are registered globally via promauto and exposed
// by the server on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusChecks counts completed gateway status checks by provider and
	// result (pending, paid, failed, cancelled, network_error, stale).
	StatusChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paymentflow_status_checks_total",
		Help: "Completed gateway status checks by provider and result.",
	}, []string{"provider", "result"})

	// SessionOutcomes counts terminal session outcomes by provider and
	// reason (paid, gateway_failed, gateway_cancelled, timeout,
	// initiation_rejected, initiation_network).
	SessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paymentflow_session_outcomes_total",
		Help: "Terminal payment session outcomes by provider and reason.",
	}, []string{"provider", "reason"})

	// CheckDuration observes gateway status check latency.
	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paymentflow_check_duration_seconds",
		Help:    "Latency of gateway status checks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// ActivePolls tracks sessions currently in the polling state.
	ActivePolls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paymentflow_active_polls",
		Help: "Number of sessions currently polling for payment status.",
	})

	// SkippedTicks counts scheduled ticks skipped because a previous check
	// was still in flight.
	SkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paymentflow_skipped_ticks_total",
		Help: "Scheduled poll ticks skipped due to an in-flight status check.",
	})

	// ArtifactFetches counts artifact fetch attempts by result.
	ArtifactFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paymentflow_artifact_fetches_total",
		Help: "Post-payment artifact fetches by result.",
	}, []string{"result"})
)
