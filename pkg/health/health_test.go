package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegisterChecksAreSeparate(t *testing.T) {
	hc := NewHealthChecker()

	var health, ready, live int
	hc.RegisterCheck("general", func() Check { health++; return Check{Status: StatusHealthy} })
	hc.RegisterReadinessCheck("ready", func() Check { ready++; return Check{Status: StatusHealthy} })
	hc.RegisterLivenessCheck("live", func() Check { live++; return Check{Status: StatusHealthy} })

	hc.Check()
	hc.CheckReadiness()
	hc.CheckLiveness()
	hc.CheckLiveness()

	if health != 1 || ready != 1 || live != 2 {
		t.Errorf("calls = %d/%d/%d, want 1/1/2", health, ready, live)
	}
}

func TestCheckStatusAggregation(t *testing.T) {
	tests := []struct {
		name           string
		checkStatuses  []Status
		expectedStatus Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded, StatusHealthy}, StatusDegraded},
		{"one unhealthy", []Status{StatusHealthy, StatusUnhealthy}, StatusUnhealthy},
		{"degraded and unhealthy", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"no checks", nil, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for i, status := range tt.checkStatuses {
				hc.RegisterCheck(string(rune('a'+i)), func() Check {
					return Check{Status: status}
				})
			}

			resp := hc.Check()
			if resp.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, resp.Status)
			}
		})
	}
}

func TestCheckFillsNameAndTiming(t *testing.T) {
	hc := NewHealthChecker()
	hc.RegisterCheck("slow", func() Check {
		time.Sleep(5 * time.Millisecond)
		return Check{Status: StatusHealthy}
	})

	resp := hc.Check()
	check := resp.Checks["slow"]
	if check.Name != "slow" {
		t.Errorf("name = %q, want slow", check.Name)
	}
	if check.Duration < 5*time.Millisecond {
		t.Errorf("duration %v shorter than the check", check.Duration)
	}
	if check.LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}
	if resp.Uptime <= 0 {
		t.Errorf("uptime = %v, want positive", resp.Uptime)
	}
}

func TestStoreCheck(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		expectedStatus Status
		expectedMsg    string
	}{
		{"connected", nil, StatusHealthy, "Connected"},
		{"connection error", errors.New("connection refused"), StatusUnhealthy, "connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deadline bool
			check := StoreCheck(func(ctx context.Context) error {
				_, deadline = ctx.Deadline()
				return tt.pingErr
			}, time.Second)()

			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
			if check.Message != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, check.Message)
			}
			if !deadline {
				t.Error("ping context has no deadline")
			}
		})
	}
}

func TestProxyCheck(t *testing.T) {
	connected := ProxyCheck(func() string { return "CONNECTED" }, func() bool { return false })()
	if connected.Status != StatusHealthy {
		t.Errorf("connected proxy status = %s", connected.Status)
	}

	degraded := ProxyCheck(func() string { return "DEGRADED" }, func() bool { return true })()
	if degraded.Status != StatusDegraded {
		t.Errorf("degraded proxy status = %s", degraded.Status)
	}
	if degraded.Details["mode"] != "DEGRADED" {
		t.Errorf("mode detail = %v", degraded.Details["mode"])
	}
}

func TestSubscriptionCheck(t *testing.T) {
	tests := []struct {
		name           string
		pending, total int
		expectedStatus Status
	}{
		{"nothing subscribed", 0, 0, StatusHealthy},
		{"all active", 0, 3, StatusHealthy},
		{"waiting for providers", 1, 3, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := SubscriptionCheck(func() (int, int) { return tt.pending, tt.total })()
			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
			if check.Details["pending_services"] != tt.pending {
				t.Errorf("pending detail = %v", check.Details["pending_services"])
			}
		})
	}
}

func TestEndpointCheck(t *testing.T) {
	tests := []struct {
		name           string
		total, live    int
		expectedStatus Status
		expectedMsg    string
	}{
		{"no peers", 0, 0, StatusHealthy, "No peers known"},
		{"all live", 4, 4, StatusHealthy, "All endpoints live"},
		{"some unreachable", 4, 3, StatusDegraded, "Some endpoints unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := EndpointCheck(func() (int, int) { return tt.total, tt.live })()
			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
			if check.Message != tt.expectedMsg {
				t.Errorf("expected message %q, got %q", tt.expectedMsg, check.Message)
			}
		})
	}
}

func TestMemoryCheck(t *testing.T) {
	tests := []struct {
		name           string
		alloc, sys     uint64
		expectedStatus Status
	}{
		{"normal usage", 50, 100, StatusHealthy},
		{"at threshold", 90, 100, StatusHealthy},
		{"high usage", 91, 100, StatusDegraded},
		{"no samples", 0, 0, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := MemoryCheck(func() (uint64, uint64) { return tt.alloc, tt.sys })()
			if check.Status != tt.expectedStatus {
				t.Errorf("expected status %s, got %s", tt.expectedStatus, check.Status)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	tests := []struct {
		name       string
		status     Status
		healthCode int
		probeCode  int
	}{
		{"healthy", StatusHealthy, http.StatusOK, http.StatusOK},
		{"degraded", StatusDegraded, http.StatusOK, http.StatusServiceUnavailable},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			fn := func() Check { return Check{Status: tt.status} }
			hc.RegisterCheck("test", fn)
			hc.RegisterReadinessCheck("test", fn)
			hc.RegisterLivenessCheck("test", fn)

			rec := httptest.NewRecorder()
			hc.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.healthCode {
				t.Errorf("/health code = %d, want %d", rec.Code, tt.healthCode)
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Error("expected Content-Type application/json")
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("response status = %s, want %s", resp.Status, tt.status)
			}

			rec = httptest.NewRecorder()
			hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.probeCode {
				t.Errorf("/ready code = %d, want %d", rec.Code, tt.probeCode)
			}

			rec = httptest.NewRecorder()
			hc.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
			if rec.Code != tt.probeCode {
				t.Errorf("/live code = %d, want %d", rec.Code, tt.probeCode)
			}
		})
	}
}

func TestHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		scope  Scope
		status Status
		want   int
	}{
		{ScopeGeneral, StatusDegraded, http.StatusOK},
		{ScopeReadiness, StatusDegraded, http.StatusServiceUnavailable},
		{ScopeLiveness, StatusDegraded, http.StatusServiceUnavailable},
		{ScopeLiveness, StatusHealthy, http.StatusOK},
		{ScopeGeneral, StatusUnhealthy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := statusCode(tt.scope, tt.status); got != tt.want {
			t.Errorf("statusCode(%d, %s) = %d, want %d", tt.scope, tt.status, got, tt.want)
		}
	}
}

func TestHandler_NoChecksIsHealthyAndUncached(t *testing.T) {
	hc := NewHealthChecker()
	for _, scope := range []Scope{ScopeGeneral, ScopeReadiness, ScopeLiveness} {
		rec := httptest.NewRecorder()
		hc.Handler(scope)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("scope %d code = %d, want 200", scope, rec.Code)
		}
		if rec.Header().Get("Cache-Control") != "no-store" {
			t.Errorf("scope %d missing Cache-Control: no-store", scope)
		}
	}
}

func TestConcurrentCheckRegistration(t *testing.T) {
	hc := NewHealthChecker()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			hc.RegisterCheck(string(rune('a'+id)), func() Check {
				return Check{Status: StatusHealthy}
			})
			hc.Check()
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	resp := hc.Check()
	if len(resp.Checks) != 10 {
		t.Errorf("expected 10 checks, got %d", len(resp.Checks))
	}
}

func TestRunIsOrderedAndUnlocked(t *testing.T) {
	hc := NewHealthChecker()

	var order []string
	for _, name := range []string{"store", "endpoints", "memory"} {
		hc.Register(ScopeReadiness, name, func() Check {
			order = append(order, name)
			return Check{Status: StatusHealthy}
		})
	}
	// A check may register another without deadlocking
	hc.Register(ScopeGeneral, "late", func() Check {
		hc.RegisterLivenessCheck("added", func() Check { return Check{Status: StatusHealthy} })
		return Check{Status: StatusHealthy}
	})

	hc.Run(ScopeReadiness)
	want := []string{"endpoints", "memory", "store"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("ran %v, want %v", order, want)
			break
		}
	}

	hc.Check()
	if _, ok := hc.CheckLiveness().Checks["added"]; !ok {
		t.Error("check registered from within a check is missing")
	}
}

func TestStatusWorse(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusHealthy, StatusHealthy, StatusHealthy},
		{StatusHealthy, StatusDegraded, StatusDegraded},
		{StatusUnhealthy, StatusDegraded, StatusUnhealthy},
		{StatusDegraded, StatusHealthy, StatusDegraded},
		{StatusHealthy, "", StatusHealthy},
	}
	for _, tt := range tests {
		if got := tt.a.Worse(tt.b); got != tt.want {
			t.Errorf("%q.Worse(%q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
