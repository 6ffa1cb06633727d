package health

import (
	"encoding/json"
	"net/http"
)

// Handler serves the aggregate of scope's checks as JSON. Load balancers
// and orchestrators poll these endpoints, so responses are never cached.
func (hc *HealthChecker) Handler(scope Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response := hc.Run(scope)
		body, err := json.Marshal(response)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(statusCode(scope, response.Status))
		_, _ = w.Write(body)
	}
}

// statusCode maps an aggregate status to the HTTP answer for scope. The
// general endpoint still answers 200 when degraded so dashboards can read
// the detail; readiness and liveness are all or nothing.
func statusCode(scope Scope, status Status) int {
	switch {
	case status == StatusHealthy:
		return http.StatusOK
	case status == StatusDegraded && scope == ScopeGeneral:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}

func (hc *HealthChecker) HTTPHandler() http.HandlerFunc      { return hc.Handler(ScopeGeneral) }
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc { return hc.Handler(ScopeReadiness) }
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc  { return hc.Handler(ScopeLiveness) }
