package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics tracks calls to the follower and profile APIs.
type UpstreamMetrics struct {
	RequestDuration *prometheus.HistogramVec
	Errors          *prometheus.CounterVec
	BreakerState    prometheus.Gauge
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of upstream API requests, by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Total number of failed upstream requests, by endpoint and kind.",
		}, []string{"endpoint", "kind"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.Errors, m.BreakerState)
	return m
}
