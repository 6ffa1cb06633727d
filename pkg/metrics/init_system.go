package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process gauges are sampled by UpdateSystemMetrics on each scrape of the
// status server, not on a timer.
func (r *Registry) initSystemMetrics() {
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
			Namespace: "petasos",
			Subsystem: "process",
			Name:      name,
			Help:      help,
		})
	}

	r.UptimeSeconds = gauge("uptime_seconds", "Seconds since this node or repository registered its metrics")
	r.GoRoutines = gauge("goroutines", "Goroutines alive, including watchdog, discovery and RPC workers")
	r.MemoryAllocBytes = gauge("heap_alloc_bytes", "Heap bytes held by live objects, dominated by the task and job card caches")
	r.MemorySysBytes = gauge("sys_bytes", "Bytes obtained from the OS by the Go runtime")
	r.GCCycles = gauge("gc_cycles", "Completed garbage collection cycles")
}
