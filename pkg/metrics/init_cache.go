package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCacheMetrics() {
	r.CacheEntries = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "petasos_cache_entries",
			Help: "Number of entries held in a local cache",
		},
		[]string{"cache"},
	)

	r.WatchdogLastActivity = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "petasos_watchdog_last_activity_timestamp_seconds",
			Help: "Unix timestamp of the last completed watchdog pass",
		},
		[]string{"watchdog"},
	)

	r.WatchdogRetiredTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_watchdog_retired_total",
			Help: "Total number of cache entries retired by watchdogs",
		},
		[]string{"cache"},
	)
}
