package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a petasos process
type Registry struct {
	// HTTP Metrics (status server)
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// RPC Metrics
	RPCCallsTotal        *prometheus.CounterVec
	RPCFailuresTotal     *prometheus.CounterVec
	RPCCallDuration      *prometheus.HistogramVec
	RPCServedTotal       *prometheus.CounterVec
	RPCFrameBytes        *prometheus.CounterVec
	RPCAuthFailuresTotal prometheus.Counter

	// Cache & Watchdog Metrics
	CacheEntries         *prometheus.GaugeVec
	WatchdogLastActivity *prometheus.GaugeVec
	WatchdogRetiredTotal *prometheus.CounterVec

	// Task Metrics
	TaskTransitionsTotal *prometheus.CounterVec
	QueueOutcomesTotal   *prometheus.CounterVec
	ProxyDegraded        prometheus.Gauge

	// Endpoint Metrics
	EndpointsTotal      prometheus.Gauge
	EndpointsLive       prometheus.Gauge
	EndpointChecksTotal *prometheus.CounterVec

	// Subscription Metrics
	SubscriptionServices      *prometheus.GaugeVec
	SubscriptionRequestsTotal *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge
	GCCycles         prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
	mu        sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry:  reg,
		startTime: time.Now(),
	}

	r.initHTTPMetrics()
	r.initRPCMetrics()
	r.initCacheMetrics()
	r.initTaskMetrics()
	r.initEndpointMetrics()
	r.initSubscriptionMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
