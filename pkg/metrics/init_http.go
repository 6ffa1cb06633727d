package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// The status server answers health probes, scrapes and small JSON status
// documents, so its buckets stop well short of the RPC ones.
var (
	statusLatencyBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	statusSizeBuckets    = prometheus.ExponentialBuckets(64, 4, 7) // 64B .. 256KiB
)

func (r *Registry) initHTTPMetrics() {
	factory := promauto.With(r.registry)
	labels := []string{"method", "path", "status"}

	r.HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "petasos",
		Subsystem: "status",
		Name:      "requests_total",
		Help:      "Requests answered by the status server by route pattern and code",
	}, labels)

	r.HTTPRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "petasos",
		Subsystem: "status",
		Name:      "request_duration_seconds",
		Help:      "Time to answer a status server request, including health check execution",
		Buckets:   statusLatencyBuckets,
	}, labels)

	r.HTTPRequestsInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "petasos",
		Subsystem: "status",
		Name:      "requests_in_flight",
		Help:      "Status server requests currently being answered",
	})

	r.HTTPResponseSizeBytes = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "petasos",
		Subsystem: "status",
		Name:      "response_size_bytes",
		Help:      "Status server response body size",
		Buckets:   statusSizeBuckets,
	}, []string{"method", "path"})
}
