// Package server hosts the node's HTTP status surface: health probes,
// Prometheus metrics and a JSON status snapshot.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dd0wney/cluso-petasos/pkg/health"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

// Routes is what the status router serves. Nil members are not mounted.
type Routes struct {
	Health  *health.HealthChecker
	Metrics http.Handler
	Status  func() any
	Logger  logging.Logger
	Record  MetricsRecorder
}

// NewRouter mounts /health, /ready, /live, /metrics and /status
func NewRouter(routes Routes) chi.Router {
	logger := logging.OrDefault(routes.Logger).With(logging.Component("http"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(PanicRecovery(logger))
	r.Use(RequestLogging(logger))
	r.Use(Metrics(routes.Record))

	if hc := routes.Health; hc != nil {
		r.Get("/health", hc.HTTPHandler())
		r.Get("/ready", hc.ReadinessHandler())
		r.Get("/live", hc.LivenessHandler())
	}
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}
	if routes.Status != nil {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(routes.Status()); err != nil {
				logger.Warn("failed to encode status", logging.Error(err))
			}
		})
	}
	return r
}
