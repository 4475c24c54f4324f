package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		swishRequestsTotal,
		swishRequestDuration,
		swishCallbacksTotal,
	)
}

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	swishRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swish_requests_total",
			Help: "Outbound gateway calls by operation and outcome (success/rejected/error).",
		},
		[]string{"operation", "outcome"},
	)

	swishRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swish_request_duration_seconds",
			Help:    "Latency of outbound gateway calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	swishCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swish_callbacks_total",
			Help: "Inbound gateway callbacks by kind (payment/refund/unknown) and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func ObserveRequest(operation, outcome string, elapsed time.Duration) {
	swishRequestsTotal.WithLabelValues(norm(operation), norm(outcome)).Inc()
	swishRequestDuration.WithLabelValues(norm(operation)).Observe(elapsed.Seconds())
}

func IncCallback(kind, outcome string) {
	swishCallbacksTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
