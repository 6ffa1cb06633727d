package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-petasos/pkg/health"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
)

type recordedRequest struct {
	method, path, status string
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	inFlight int
}

func (m *recordingMetrics) RecordHTTPRequest(method, path, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, path, status})
}
func (m *recordingMetrics) RecordResponseSize(string, string, float64) {}
func (m *recordingMetrics) IncHTTPRequestsInFlight()                   { m.inFlight++ }
func (m *recordingMetrics) DecHTTPRequestsInFlight()                   { m.inFlight-- }

func TestRouter_Endpoints(t *testing.T) {
	hc := health.NewHealthChecker()
	hc.RegisterCheck("proxy", health.ProxyCheck(func() string { return "DEGRADED" }, func() bool { return true }))
	hc.RegisterReadinessCheck("proxy", health.ProxyCheck(func() string { return "DEGRADED" }, func() bool { return true }))
	hc.RegisterLivenessCheck("alive", func() health.Check { return health.SimpleCheck("alive") })

	reg := metrics.NewRegistry()
	rec := &recordingMetrics{}
	router := NewRouter(Routes{
		Health:  hc,
		Metrics: reg.Handler(),
		Status:  func() any { return map[string]int{"tasks": 3} },
		Logger:  logging.NewNopLogger(),
		Record:  rec,
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health").Code, "degraded is still served")
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready").Code)
	assert.Equal(t, http.StatusOK, get("/live").Code)

	w := get("/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]int
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, 3, status["tasks"])
	assert.NotEmpty(t, w.Header().Get("Content-Type"))

	reg.SetProxyDegraded(true)
	w = get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "petasos_"), "metrics are prefixed")

	assert.Equal(t, http.StatusNotFound, get("/nope").Code)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.requests, 6)
	assert.Equal(t, recordedRequest{"GET", "/health", "200"}, rec.requests[0])
	assert.Equal(t, recordedRequest{"GET", "/ready", "503"}, rec.requests[1])
	assert.Equal(t, 0, rec.inFlight)
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	router := NewRouter(Routes{
		Status: func() any { panic("boom") },
		Logger: logging.NewNopLogger(),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
