package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSubscriptionMetrics() {
	r.SubscriptionServices = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "petasos_subscription_services",
			Help: "Number of publisher services per subscription status",
		},
		[]string{"status"},
	)

	r.SubscriptionRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "petasos_subscription_requests_total",
			Help: "Total number of subscription requests sent to publisher instances",
		},
		[]string{"result"}, // accepted, refused, failed
	)
}
