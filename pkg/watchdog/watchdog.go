// Package watchdog reclaims finished entries from the node caches: retired
// actionable tasks, stale job cards and terminal fulfillment tasks.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/archive"
	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
)

var (
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
)

// Activity indicator names
const (
	TasksIndicator        = "ActionableTaskWatchdog"
	JobCardsIndicator     = "JobCardWatchdog"
	FulfillmentsIndicator = "FulfillmentTaskWatchdog"
)

// RetireRecorder counts reclaimed entries per cache. The Prometheus
// registry implements it alongside metrics.Agent.
type RetireRecorder interface {
	RecordRetired(cache string, count int)
}

// Watchdog runs three independent periodic passes over a cache set. Passes
// whose cache is nil are skipped, as on the repository where only the task
// grid exists.
type Watchdog struct {
	caches   cache.Set
	archiver archive.Archiver
	agent    metrics.Agent
	recorder RetireRecorder
	config   Config
	logger   logging.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// New creates a watchdog. archiver and agent may be nil.
func New(config Config, caches cache.Set, archiver archive.Archiver, agent metrics.Agent, logger logging.Logger) *Watchdog {
	w := &Watchdog{
		caches:   caches,
		archiver: archive.OrNop(archiver),
		agent:    metrics.OrNop(agent),
		config:   config,
		logger:   logging.OrDefault(logger).With(logging.Component("watchdog")),
	}
	if r, ok := agent.(RetireRecorder); ok {
		w.recorder = r
	}
	return w
}

// Start schedules the passes
func (w *Watchdog) Start() error {
	w.runningMu.Lock()
	defer w.runningMu.Unlock()

	if w.running {
		return fmt.Errorf("watchdog: %w", ErrAlreadyRunning)
	}
	w.stopCh = make(chan struct{})
	w.running = true

	if w.caches.Tasks != nil {
		w.schedule(w.SweepTasks)
	}
	if w.caches.JobCards != nil {
		w.schedule(w.SweepJobCards)
	}
	if w.caches.Fulfillments != nil {
		w.schedule(w.SweepFulfillmentTasks)
	}

	w.logger.Info("watchdog started",
		logging.Duration("initial_delay", w.config.InitialDelay),
		logging.Duration("period", w.config.Period))
	return nil
}

// Stop cancels the schedule and waits for in-flight passes
func (w *Watchdog) Stop() error {
	w.runningMu.Lock()
	if !w.running {
		w.runningMu.Unlock()
		return fmt.Errorf("watchdog: %w", ErrNotRunning)
	}
	close(w.stopCh)
	w.running = false
	w.runningMu.Unlock()

	w.wg.Wait()
	w.logger.Info("watchdog stopped")
	return nil
}

func (w *Watchdog) schedule(pass func(ctx context.Context, now time.Time) int) {
	stopCh := w.stopCh
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		timer := time.NewTimer(w.config.InitialDelay)
		defer timer.Stop()
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}

		ticker := time.NewTicker(w.config.Period)
		defer ticker.Stop()
		for {
			pass(context.Background(), time.Now())
			select {
			case <-stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// guard runs fn for one entry, turning a panic into a log line so the rest
// of the pass still runs.
func (w *Watchdog) guard(pass, key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("watchdog entry failed",
				logging.String("pass", pass),
				logging.String("key", key),
				logging.Any("panic", r))
		}
	}()
	fn()
}

func (w *Watchdog) retired(cacheName string, n int) {
	if n > 0 && w.recorder != nil {
		w.recorder.RecordRetired(cacheName, n)
	}
}
