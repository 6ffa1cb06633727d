// Package health runs named checks for the process's /health, /ready and
// /live probes. The overall status is the worst status of any check.
package health

import (
	"maps"
	"slices"
	"time"
)

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: map[Scope]map[string]CheckFunc{
			ScopeGeneral:   {},
			ScopeReadiness: {},
			ScopeLiveness:  {},
		},
		started: time.Now(),
		now:     time.Now,
	}
}

// Register adds or replaces the check called name in scope
func (hc *HealthChecker) Register(scope Scope, name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if hc.checks[scope] == nil {
		hc.checks[scope] = make(map[string]CheckFunc)
	}
	hc.checks[scope][name] = check
}

// RegisterCheck registers a health check
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.Register(ScopeGeneral, name, check)
}

// RegisterReadinessCheck registers a readiness check
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.Register(ScopeReadiness, name, check)
}

// RegisterLivenessCheck registers a liveness check
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.Register(ScopeLiveness, name, check)
}

// Check performs all health checks
func (hc *HealthChecker) Check() Response { return hc.Run(ScopeGeneral) }

// CheckReadiness performs readiness checks
func (hc *HealthChecker) CheckReadiness() Response { return hc.Run(ScopeReadiness) }

// CheckLiveness performs liveness checks
func (hc *HealthChecker) CheckLiveness() Response { return hc.Run(ScopeLiveness) }

// Run performs the checks of scope in name order
func (hc *HealthChecker) Run(scope Scope) Response {
	hc.mu.RLock()
	checks := maps.Clone(hc.checks[scope])
	hc.mu.RUnlock()

	now := hc.now()
	response := Response{
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    now.Sub(hc.started),
	}
	for _, name := range slices.Sorted(maps.Keys(checks)) {
		start := time.Now()
		check := checks[name]()
		if check.Name == "" {
			check.Name = name
		}
		check.Duration = time.Since(start)
		check.LastChecked = start

		response.Checks[name] = check
		response.Status = response.Status.Worse(check.Status)
	}
	return response
}
