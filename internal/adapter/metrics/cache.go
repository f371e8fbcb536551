package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the follower snapshot cache.
type CacheMetrics struct {
	Hits    prometheus.Counter
	Misses  prometheus.Counter
	Shared  prometheus.Counter
	Fetches *prometheus.CounterVec
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot_cache",
			Name:      "hits_total",
			Help:      "Total number of snapshot reads served from cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot_cache",
			Name:      "misses_total",
			Help:      "Total number of snapshot reads that required a fetch.",
		}),
		Shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot_cache",
			Name:      "shared_fetches_total",
			Help:      "Total number of reads that joined an in-flight fetch.",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot_cache",
			Name:      "fetches_total",
			Help:      "Total number of upstream fetches, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Shared, m.Fetches)
	return m
}
