package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the WebSocket server.
var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_connections_total",
		Help: "Total number of WebSocket connections established",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pusherd_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pusherd_connections_rejected_total",
		Help: "Connection attempts rejected, by reason",
	}, []string{"reason"})

	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_messages_received_total",
		Help: "Total inbound frames read from clients",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_messages_sent_total",
		Help: "Total frames written to clients",
	})

	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_bytes_received_total",
		Help: "Total bytes read from clients",
	})

	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_bytes_sent_total",
		Help: "Total bytes written to clients",
	})

	RateLimitedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_rate_limited_messages_total",
		Help: "Inbound frames dropped by the message rate limiter",
	})

	DroppedSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_dropped_sends_total",
		Help: "Outbound frames dropped because a peer send buffer was full",
	})

	ChannelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pusherd_channels_active",
		Help: "Current number of live channels",
	})

	PresenceMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pusherd_presence_channels_active",
		Help: "Current number of presence channels with members",
	})

	ClientEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pusherd_client_events_total",
		Help: "Client events accepted and fanned out",
	})

	ErrorFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pusherd_error_frames_total",
		Help: "pusher:error frames sent to clients, by message",
	}, []string{"message"})
)

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
