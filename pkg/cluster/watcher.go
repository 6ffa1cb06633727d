package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

// Prober checks whether the peer at address answers.
type Prober interface {
	Ping(ctx context.Context, address string) error
}

// CheckRecorder receives probe outcomes (live, unreachable, abandoned).
type CheckRecorder interface {
	RecordEndpointCheck(result string)
	UpdateEndpointMetrics(total, live int)
}

// EndpointWatcher drains due checks from the registry, probes the endpoints
// and records their liveness. Failed probes are rescheduled until
// MaxCheckRetries is reached, after which the endpoint is marked down and
// left for discovery to remove or revive.
type EndpointWatcher struct {
	registry *EndpointRegistry
	prober   Prober
	config   RegistryConfig
	recorder CheckRecorder
	logger   logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewEndpointWatcher creates a watcher. recorder may be nil.
func NewEndpointWatcher(registry *EndpointRegistry, prober Prober, config RegistryConfig, recorder CheckRecorder, logger logging.Logger) *EndpointWatcher {
	return &EndpointWatcher{
		registry: registry,
		prober:   prober,
		config:   config,
		recorder: recorder,
		logger:   logging.OrDefault(logger).With(logging.Component("endpoint-watcher")),
	}
}

// Start begins the polling loop
func (w *EndpointWatcher) Start() error {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()

	if w.running {
		return fmt.Errorf("endpoint watcher: %w", ErrAlreadyRunning)
	}
	w.stopCh = make(chan struct{})
	w.running = true

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("endpoint watcher started", logging.Duration("interval", w.config.WatchInterval))
	return nil
}

// Stop halts the loop and waits for an in-flight pass to finish
func (w *EndpointWatcher) Stop() error {
	w.runningMu.Lock()
	if !w.running {
		w.runningMu.Unlock()
		return fmt.Errorf("endpoint watcher: %w", ErrNotRunning)
	}
	close(w.stopCh)
	w.running = false
	w.runningMu.Unlock()

	w.wg.Wait()
	w.logger.Info("endpoint watcher stopped")
	return nil
}

func (w *EndpointWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.CheckDue(context.Background())
		}
	}
}

// CheckDue runs one pass over the due checks and returns how many endpoints
// were probed.
func (w *EndpointWatcher) CheckDue(ctx context.Context) int {
	due := w.registry.GetEndpointsToCheck()
	for _, entry := range due {
		w.check(ctx, entry)
	}
	if w.recorder != nil {
		w.recorder.UpdateEndpointMetrics(w.registry.Counts())
	}
	return len(due)
}

func (w *EndpointWatcher) check(ctx context.Context, entry CheckEntry) {
	if entry.Removed {
		w.registry.RemoveEndpoint(entry.Identifier)
		return
	}

	l := w.registry.Lock(entry.Identifier)
	l.Lock()
	ep := w.registry.GetEndpoint(entry.Identifier)
	l.Unlock()
	if ep == nil {
		w.logger.Debug("skipping check for unknown endpoint", logging.Endpoint(entry.Identifier))
		return
	}
	if ep.Address == "" {
		w.record("unreachable")
		w.logger.Warn("endpoint has no address", logging.Endpoint(ep.Name))
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, w.config.ProbeTimeout)
	err := w.prober.Ping(probeCtx, ep.Address)
	cancel()

	l = w.registry.Lock(entry.Identifier)
	l.Lock()
	defer l.Unlock()

	if err == nil {
		w.registry.SetLive(ep.Name, true)
		if ep.ServiceName != "" {
			w.registry.UpdateServiceNameMembership(ep.ServiceName, ep.Name)
		}
		w.record("live")
		return
	}

	w.registry.SetLive(ep.Name, false)
	if entry.RetryCount < w.config.MaxCheckRetries {
		w.registry.ScheduleCheck(ep.Name, false, entry.Added, entry.RetryCount+1)
		w.record("unreachable")
		w.logger.Debug("endpoint probe failed, rescheduled",
			logging.Endpoint(ep.Name), logging.Attempt(entry.RetryCount+1), logging.Error(err))
		return
	}
	w.record("abandoned")
	w.logger.Warn("endpoint unreachable after retries",
		logging.Endpoint(ep.Name), logging.Address(ep.Address), logging.Attempt(entry.RetryCount), logging.Error(err))
}

func (w *EndpointWatcher) record(result string) {
	if w.recorder != nil {
		w.recorder.RecordEndpointCheck(result)
	}
}
