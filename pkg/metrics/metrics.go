package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordResponseSize records the size of an HTTP response body
func (r *Registry) RecordResponseSize(method, path string, size float64) {
	r.HTTPResponseSizeBytes.WithLabelValues(method, path).Observe(size)
}

func (r *Registry) IncHTTPRequestsInFlight() { r.HTTPRequestsInFlight.Inc() }
func (r *Registry) DecHTTPRequestsInFlight() { r.HTTPRequestsInFlight.Dec() }

// ObserveRPCLatency records the round trip time of an outbound call
func (r *Registry) ObserveRPCLatency(method string, duration time.Duration) {
	r.RPCCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRPCServed records an inbound call and whether the handler succeeded
func (r *Registry) RecordRPCServed(method string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.RPCServedTotal.WithLabelValues(method, status).Inc()
}

// RecordRPCFrame records bytes moved over an RPC socket
func (r *Registry) RecordRPCFrame(direction string, size int) {
	r.RPCFrameBytes.WithLabelValues(direction).Add(float64(size))
}

// RecordAuthFailure counts a rejected inbound call
func (r *Registry) RecordAuthFailure() {
	r.RPCAuthFailuresTotal.Inc()
}

// RecordRetired counts entries removed from a cache by a watchdog pass
func (r *Registry) RecordRetired(cache string, count int) {
	if count > 0 {
		r.WatchdogRetiredTotal.WithLabelValues(cache).Add(float64(count))
	}
}

// RecordTransition counts a task status transition
func (r *Registry) RecordTransition(status string) {
	r.TaskTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordQueueOutcome counts the outcome of a queue attempt
func (r *Registry) RecordQueueOutcome(outcome string) {
	r.QueueOutcomesTotal.WithLabelValues(outcome).Inc()
}

// SetProxyDegraded flips the proxy mode gauge
func (r *Registry) SetProxyDegraded(degraded bool) {
	if degraded {
		r.ProxyDegraded.Set(1)
	} else {
		r.ProxyDegraded.Set(0)
	}
}

// UpdateEndpointMetrics updates endpoint registry gauges
func (r *Registry) UpdateEndpointMetrics(total, live int) {
	r.EndpointsTotal.Set(float64(total))
	r.EndpointsLive.Set(float64(live))
}

// RecordEndpointCheck counts a liveness probe result
func (r *Registry) RecordEndpointCheck(result string) {
	r.EndpointChecksTotal.WithLabelValues(result).Inc()
}

// UpdateSubscriptionStatus replaces the per-status service counts
func (r *Registry) UpdateSubscriptionStatus(counts map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.SubscriptionServices.Reset()
	for status, n := range counts {
		r.SubscriptionServices.WithLabelValues(status).Set(float64(n))
	}
}

// RecordSubscriptionRequest counts a subscription request result
func (r *Registry) RecordSubscriptionRequest(result string) {
	r.SubscriptionRequestsTotal.WithLabelValues(result).Inc()
}

// UpdateSystemMetrics samples the process gauges
func (r *Registry) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
	r.GCCycles.Set(float64(m.NumGC))
}
