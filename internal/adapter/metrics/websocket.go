package metrics

import "github.com/prometheus/client_golang/prometheus"

type WebSocketMetrics struct {
	ActiveConnections prometheus.Gauge
	Rejections        prometheus.Counter
	Evictions         *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	MessagesReceived  *prometheus.CounterVec
	LaggedDrops       prometheus.Counter
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of pooled WebSocket connections.",
		}),
		Rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejections_total",
			Help:      "Total number of upgrades refused because the pool was full.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "evictions_total",
			Help:      "Total number of connections removed by the pool, by reason.",
		}, []string{"reason"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of messages written to clients, by type.",
		}, []string{"type"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_received_total",
			Help:      "Total number of messages read from clients, by type.",
		}, []string{"type"}),
		LaggedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "lagged_drops_total",
			Help:      "Total number of bus events dropped for slow subscribers.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.Rejections, m.Evictions, m.MessagesSent, m.MessagesReceived, m.LaggedDrops)
	return m
}
