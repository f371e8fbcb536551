package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollerMetrics tracks the follower poll loop and change detection.
type PollerMetrics struct {
	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	ConsecutiveErrors prometheus.Gauge
	Halted            prometheus.Gauge
	NewFollowers      *prometheus.CounterVec
	Unfollows         prometheus.Counter
	HistoryRebuilds   prometheus.Counter
}

func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	m := &PollerMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles, by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of poll cycles that reached the upstream.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ConsecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "consecutive_errors",
			Help:      "Current number of consecutive failed poll cycles.",
		}),
		Halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "halted",
			Help:      "1 once the poller stopped after too many consecutive errors.",
		}),
		NewFollowers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "new_followers_total",
			Help:      "Total number of detected follows, by kind.",
		}, []string{"kind"}),
		Unfollows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "highlighted_unfollows_total",
			Help:      "Total number of times the highlighted account stopped following.",
		}),
		HistoryRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "history_rebuilds_total",
			Help:      "Total number of history rebuilds after the follower count dropped.",
		}),
	}

	reg.MustRegister(m.Cycles, m.CycleDuration, m.ConsecutiveErrors, m.Halted, m.NewFollowers, m.Unfollows, m.HistoryRebuilds)
	return m
}
