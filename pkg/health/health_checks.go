package health

import (
	"context"
	"time"
)

// SimpleCheck creates a simple health check that always returns healthy
func SimpleCheck(name string) Check {
	return Check{
		Name:        name,
		Status:      StatusHealthy,
		LastChecked: time.Now(),
	}
}

// StoreCheck pings the durable task store. A failed ping is unhealthy.
func StoreCheck(ping func(ctx context.Context) error, timeout time.Duration) CheckFunc {
	return func() Check {
		check := Check{
			Name: "store",
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}

		return check
	}
}

// ProxyCheck reports the task grid proxy mode. A proxy that lost the
// repository keeps working autonomously, so it is degraded rather than
// unhealthy.
func ProxyCheck(mode func() string, degraded func() bool) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "task_grid_proxy",
			Details: map[string]any{"mode": mode()},
		}

		if degraded() {
			check.Status = StatusDegraded
			check.Message = "Repository unreachable, queueing autonomously"
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected to repository"
		}

		return check
	}
}

// SubscriptionCheck reports remote subscriptions still waiting for a
// provider.
func SubscriptionCheck(getState func() (pending, total int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "subscriptions",
			Details: make(map[string]any),
		}

		pending, total := getState()
		check.Details["pending_services"] = pending
		check.Details["total_services"] = total

		if pending > 0 {
			check.Status = StatusDegraded
			check.Message = "Subscriptions without providers"
		} else {
			check.Status = StatusHealthy
			check.Message = "All subscriptions active"
		}

		return check
	}
}

// EndpointCheck reports peer endpoint liveness
func EndpointCheck(getCounts func() (total, live int)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "endpoints",
			Details: make(map[string]any),
		}

		total, live := getCounts()
		check.Details["total_endpoints"] = total
		check.Details["live_endpoints"] = live

		switch {
		case total == 0:
			check.Status = StatusHealthy
			check.Message = "No peers known"
		case live < total:
			check.Status = StatusDegraded
			check.Message = "Some endpoints unreachable"
		default:
			check.Status = StatusHealthy
			check.Message = "All endpoints live"
		}

		return check
	}
}

// MemoryCheck creates a health check for memory usage
func MemoryCheck(getUsage func() (alloc, sys uint64)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		alloc, sys := getUsage()

		check.Details["alloc_bytes"] = alloc
		check.Details["sys_bytes"] = sys

		usagePercent := 0.0
		if sys > 0 {
			usagePercent = float64(alloc) / float64(sys) * 100
		}

		if usagePercent > 90 {
			check.Status = StatusDegraded
			check.Message = "High memory usage"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}
