package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

type staticSource struct {
	mu        sync.Mutex
	endpoints []EndpointSummary
	err       error
}

func (s *staticSource) ListEndpoints(context.Context) ([]EndpointSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EndpointSummary(nil), s.endpoints...), s.err
}

func (s *staticSource) set(eps ...EndpointSummary) {
	s.mu.Lock()
	s.endpoints = eps
	s.mu.Unlock()
}

func TestDiscovery_ReconcileAddsAndSchedules(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := &staticSource{}
	src.set(
		EndpointSummary{Name: "self", Address: "tcp://self:1", ServiceName: "local"},
		EndpointSummary{Name: "ep1", Address: "tcp://a:1", ServiceName: "svc"},
		EndpointSummary{Name: "ep2", Address: "tcp://b:1", ServiceName: "svc"},
	)
	d := NewDiscovery(r, src, "self", DefaultRegistryConfig(), logging.NewNopLogger())

	added, removed, err := d.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if added != 2 || removed != 0 {
		t.Errorf("Expected 2 added 0 removed, got %d/%d", added, removed)
	}
	if r.GetEndpoint("self") != nil {
		t.Error("Expected own endpoint to be skipped")
	}
	if r.PendingChecks() != 2 {
		t.Errorf("Expected 2 pending checks, got %d", r.PendingChecks())
	}

	// Second pass is a refresh only
	added, _, _ = d.Reconcile(context.Background())
	if added != 0 {
		t.Errorf("Expected no new endpoints, got %d", added)
	}
}

func TestDiscovery_ReconcileSchedulesRemoval(t *testing.T) {
	r, clock := newTestRegistry(t)
	src := &staticSource{}
	src.set(EndpointSummary{Name: "ep1", Address: "tcp://a:1", ServiceName: "svc"})
	d := NewDiscovery(r, src, "self", DefaultRegistryConfig(), logging.NewNopLogger())
	if _, _, err := d.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	clock.Advance(DefaultRegistryConfig().CheckDelay)
	r.GetEndpointsToCheck()

	src.set()
	_, removed, err := d.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Expected 1 removal, got %d", removed)
	}

	clock.Advance(DefaultRegistryConfig().CheckDelay)
	due := r.GetEndpointsToCheck()
	if len(due) != 1 || !due[0].Removed {
		t.Errorf("Expected a removal check, got %+v", due)
	}
}

func TestDiscovery_SourceError(t *testing.T) {
	r, _ := newTestRegistry(t)
	src := &staticSource{err: errors.New("repository unavailable")}
	d := NewDiscovery(r, src, "self", DefaultRegistryConfig(), logging.NewNopLogger())

	if _, _, err := d.Reconcile(context.Background()); err == nil {
		t.Error("Expected source error to be returned")
	}
	if r.PendingChecks() != 0 {
		t.Error("Expected nothing scheduled after a failed pull")
	}
}

// One discovery round followed by the watcher draining whatever is due
func discoveryRound(t *testing.T, d *Discovery, w *EndpointWatcher, clock *fakeClock) {
	t.Helper()
	if _, _, err := d.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	clock.Advance(DefaultRegistryConfig().CheckDelay)
	w.CheckDue(context.Background())
}

func TestDiscovery_LivePeerGoesDown(t *testing.T) {
	r, clock := newTestRegistry(t)
	src := &staticSource{}
	src.set(EndpointSummary{Name: "ep1", Address: "tcp://a:1", ServiceName: "svc"})
	prober := newStubProber()
	d := NewDiscovery(r, src, "self", DefaultRegistryConfig(), logging.NewNopLogger())
	w := NewEndpointWatcher(r, prober, DefaultRegistryConfig(), nil, logging.NewNopLogger())

	discoveryRound(t, d, w, clock)
	if !r.GetEndpoint("ep1").Live {
		t.Fatal("Expected endpoint to be live after the first round")
	}

	// The peer crashes without deregistering
	prober.setFail("tcp://a:1", true)
	discoveryRound(t, d, w, clock)

	if r.GetEndpoint("ep1").Live {
		t.Error("Expected crashed peer to be marked down")
	}
	if got := r.GetLiveServiceMembers("svc"); len(got) != 0 {
		t.Errorf("Expected no live members, got %v", got)
	}
	if prober.calls["tcp://a:1"] != 2 {
		t.Errorf("Expected 2 pings, got %d", prober.calls["tcp://a:1"])
	}
}

func TestDiscovery_AbandonedPeerComesBack(t *testing.T) {
	r, clock := newTestRegistry(t)
	cfg := DefaultRegistryConfig()
	src := &staticSource{}
	src.set(EndpointSummary{Name: "ep1", Address: "tcp://a:1", ServiceName: "svc"})
	prober := newStubProber()
	prober.setFail("tcp://a:1", true)
	d := NewDiscovery(r, src, "self", cfg, logging.NewNopLogger())
	w := NewEndpointWatcher(r, prober, cfg, nil, logging.NewNopLogger())

	// Initial check plus every retry fails; rounds in between must not reset
	// the retry count
	for i := 0; i <= cfg.MaxCheckRetries; i++ {
		discoveryRound(t, d, w, clock)
	}
	if r.GetEndpoint("ep1").Live {
		t.Fatal("Expected endpoint to be down")
	}
	if prober.calls["tcp://a:1"] != cfg.MaxCheckRetries+1 {
		t.Errorf("Expected %d pings, got %d", cfg.MaxCheckRetries+1, prober.calls["tcp://a:1"])
	}

	prober.setFail("tcp://a:1", false)
	discoveryRound(t, d, w, clock)
	discoveryRound(t, d, w, clock)

	if !r.GetEndpoint("ep1").Live {
		t.Error("Expected restarted peer to be live again")
	}
	if got := r.GetLiveServiceMembers("svc"); len(got) != 1 || got[0].Name != "ep1" {
		t.Errorf("Expected ep1 to be a live member of svc, got %v", got)
	}
}

func TestScheduleRecheck_KeepsPendingEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.ScheduleCheck("ep1", false, true, 2)

	if r.ScheduleRecheck("ep1") {
		t.Error("Expected pending entry to be kept")
	}
	if !r.ScheduleRecheck("ep2") {
		t.Error("Expected a new check for ep2")
	}
	if r.ScheduleRecheck("") {
		t.Error("Expected empty identifier to be ignored")
	}
	if r.PendingChecks() != 2 {
		t.Errorf("Expected 2 pending checks, got %d", r.PendingChecks())
	}
}
