// ABOUTME: Prometheus collectors for the conversation store and HTTP surface
// ABOUTME: Registered on the default registry and served by promhttp

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coven_chat_store_operation_duration_seconds",
			Help:    "Conversation store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_store_errors_total",
			Help: "Total failed conversation store operations",
		},
		[]string{"backend", "operation"},
	)

	ConversationsSynthesized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coven_chat_conversations_synthesized_total",
			Help: "Total placeholder conversations created during resolution",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coven_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
