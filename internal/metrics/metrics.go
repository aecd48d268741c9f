// Package metrics はPrometheusのコレクタをまとめて持つ。/metrics で公開する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	// outcome: admitted / rejected / fail_open
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_ratelimit_decisions_total",
			Help: "Rate limiter decisions per route class",
		},
		[]string{"class", "outcome"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Accepted order status transitions",
		},
		[]string{"from", "to"},
	)

	OrderConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_order_transition_conflicts_total",
			Help: "Status writes rejected because the order changed after it was read",
		},
	)

	// result: sent / failed / dropped
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_notifications_total",
			Help: "Notification dispatch results",
		},
		[]string{"kind", "result"},
	)

	ActivityLogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_activity_log_failures_total",
			Help: "Activity log appends that failed and were skipped",
		},
	)
)
