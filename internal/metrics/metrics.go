package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Currently connected sessions",
		},
	)

	SessionsReconnected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_reconnected_total",
			Help: "Sessions resumed inside the retention window",
		},
	)

	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_expired_total",
			Help: "Sessions closed by retention window expiry",
		},
	)

	// Routing metrics
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_routed_total",
			Help: "Envelopes accepted by the router",
		},
		[]string{"kind", "room_type"}, // room_type: "community" or "assistant"
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_rejected_total",
			Help: "Envelopes rejected before fan-out",
		},
		[]string{"reason"},
	)

	DuplicatesSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_duplicates_suppressed_total",
			Help: "Idempotent retries acknowledged without re-broadcast",
		},
	)

	FanoutSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_fanout_recipients",
			Help:    "Recipients per broadcast",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// Delivery metrics
	AckRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_ack_retries_total",
			Help: "Envelope redeliveries after ack timeout",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Envelopes abandoned after retry exhaustion",
		},
	)

	// Assistant collaborator metrics
	AssistantRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_assistant_requests_total",
			Help: "Requests forwarded to the assistant collaborator",
		},
		[]string{"outcome"}, // "ok", "error", "timeout"
	)

	AssistantLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_assistant_latency_seconds",
			Help:    "Assistant collaborator round-trip latency",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	// History bridge metrics
	HistoryBackfills = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_history_backfills_total",
			Help: "Gap-fill fetches issued on reconnect",
		},
	)

	HistoryBackfillMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_history_backfill_messages_total",
			Help: "Envelopes replayed from the history collaborator",
		},
	)
)
