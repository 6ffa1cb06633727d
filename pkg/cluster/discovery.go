package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

// EndpointSource lists the endpoints the authoritative registry knows about
type EndpointSource interface {
	ListEndpoints(ctx context.Context) ([]EndpointSummary, error)
}

// Discovery periodically pulls the registered endpoints and reconciles the
// local registry with them. New endpoints and vanished endpoints are
// scheduled for a check rather than trusted outright, and every listed
// endpoint is rechecked each round.
//
// Concurrent Safety:
// 1. Start/Stop guarded by runningMu
// 2. Background loop respects stopCh and is joined on Stop
type Discovery struct {
	registry *EndpointRegistry
	source   EndpointSource
	self     string
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewDiscovery creates a discovery service. self is this node's endpoint
// name and is never scheduled for checks.
func NewDiscovery(registry *EndpointRegistry, source EndpointSource, self string, config RegistryConfig, logger logging.Logger) *Discovery {
	return &Discovery{
		registry: registry,
		source:   source,
		self:     self,
		interval: config.DiscoveryInterval,
		timeout:  config.ProbeTimeout * 2,
		logger:   logging.OrDefault(logger).With(logging.Component("discovery")),
	}
}

// Start runs an initial reconciliation and then one per interval
func (d *Discovery) Start() error {
	d.runningMu.Lock()
	defer d.runningMu.Unlock()

	if d.running {
		return fmt.Errorf("discovery: %w", ErrAlreadyRunning)
	}
	d.stopCh = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.loop()

	d.logger.Info("discovery started", logging.Duration("interval", d.interval))
	return nil
}

// Stop halts the loop
func (d *Discovery) Stop() error {
	d.runningMu.Lock()
	if !d.running {
		d.runningMu.Unlock()
		return fmt.Errorf("discovery: %w", ErrNotRunning)
	}
	close(d.stopCh)
	d.running = false
	d.runningMu.Unlock()

	d.wg.Wait()
	d.logger.Info("discovery stopped")
	return nil
}

func (d *Discovery) loop() {
	defer d.wg.Done()

	d.runOnce()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.runOnce()
		}
	}
}

func (d *Discovery) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if _, _, err := d.Reconcile(ctx); err != nil {
		d.logger.Warn("endpoint discovery failed", logging.Error(err))
	}
}

// Reconcile pulls the endpoint list once. It returns how many endpoints
// were added and how many were scheduled for removal.
func (d *Discovery) Reconcile(ctx context.Context) (added, removed int, err error) {
	listed, err := d.source.ListEndpoints(ctx)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]struct{}, len(listed))
	for _, ep := range listed {
		if ep.Name == "" {
			continue
		}
		seen[ep.Name] = struct{}{}
		if ep.Name == d.self {
			continue
		}
		if d.registry.UpsertEndpoint(ep) {
			d.registry.ScheduleCheck(ep.Name, false, true, 0)
			added++
			continue
		}
		// Known endpoints are rechecked every round so crashes and restarts
		// are noticed, including peers abandoned after MaxCheckRetries
		d.registry.ScheduleRecheck(ep.Name)
	}

	for _, known := range d.registry.Endpoints() {
		if _, ok := seen[known.Name]; ok || known.Name == d.self {
			continue
		}
		d.registry.ScheduleCheck(known.Name, true, false, 0)
		removed++
	}

	if added > 0 || removed > 0 {
		d.logger.Info("endpoint discovery reconciled",
			logging.Int("added", added), logging.Int("removed", removed))
	}
	return added, removed, nil
}
