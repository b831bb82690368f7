package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agencychat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agencychat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agencychat_messages_appended_total",
			Help: "Messages persisted",
		},
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agencychat_broadcast_deliveries_total",
			Help: "receive_message frames handed to a session",
		},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agencychat_broadcast_failures_total",
			Help: "Per-session deliveries that failed",
		},
	)

	// Realtime
	WSSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agencychat_ws_sessions",
			Help: "Open websocket sessions",
		},
	)

	SocketEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agencychat_socket_events_total",
			Help: "Inbound socket events by outcome",
		},
		[]string{"event", "outcome"}, // outcome: ok, rejected, failed
	)
)
