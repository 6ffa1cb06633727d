package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initEndpointMetrics() {
	r.EndpointsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "petasos_endpoints_total",
			Help: "Number of endpoints known to the endpoint registry",
		},
	)

	r.EndpointsLive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "petasos_endpoints_live",
			Help: "Number of endpoints currently considered live",
		},
	)

	r.EndpointChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_endpoint_checks_total",
			Help: "Total number of endpoint liveness probes",
		},
		[]string{"result"}, // live, unreachable, abandoned
	)
}
