package ws

import "github.com/prometheus/client_golang/prometheus"

// Relay metrics. Label cardinality is bounded: the frame outcome label is
// one of msg, ping, malformed, throttled.
var (
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Current number of registered websocket sessions.",
		},
	)

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_frames_total",
			Help: "Total inbound frames by outcome.",
		},
		[]string{"outcome"},
	)

	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_send_failures_total",
			Help: "Total failed outbound writes.",
		},
	)
)

func init() {
	prometheus.MustRegister(activeConnections, framesTotal, sendFailures)
}
