package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRPCMetrics() {
	r.RPCCallsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_rpc_calls_total",
			Help: "Total number of outbound remote procedure calls",
		},
		[]string{"method"},
	)

	r.RPCFailuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_rpc_failures_total",
			Help: "Total number of failed outbound remote procedure calls",
		},
		[]string{"method"},
	)

	r.RPCCallDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petasos_rpc_call_duration_seconds",
			Help:    "Outbound remote procedure call latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method"},
	)

	r.RPCServedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_rpc_served_total",
			Help: "Total number of inbound remote procedure calls handled",
		},
		[]string{"method", "status"}, // ok, error
	)

	r.RPCFrameBytes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_rpc_frame_bytes_total",
			Help: "Bytes moved over RPC sockets",
		},
		[]string{"direction"}, // sent, received
	)

	r.RPCAuthFailuresTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "petasos_rpc_auth_failures_total",
			Help: "Total number of inbound calls rejected for a missing or invalid token",
		},
	)
}
