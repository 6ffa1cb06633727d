package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTaskMetrics() {
	r.TaskTransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_task_transitions_total",
			Help: "Total number of actionable task status transitions applied locally",
		},
		[]string{"status"},
	)

	r.QueueOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_task_queue_outcomes_total",
			Help: "Total number of queue attempts by outcome",
		},
		[]string{"outcome"},
	)

	r.ProxyDegraded = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "petasos_proxy_degraded",
			Help: "Whether the task grid proxy is running without the repository (1 = degraded)",
		},
	)
}
