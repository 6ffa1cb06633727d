package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
)

var (
	ErrAlreadyRunning = errors.New("subscription daemon already running")
	ErrNotRunning     = errors.New("subscription daemon not running")
)

// Daemon drives Manager.Reconcile. A pass is scheduled on Trigger; after a
// pass that leaves any service pending the daemon reschedules itself after
// RetryDelay, otherwise it goes idle until the next Trigger.
type Daemon struct {
	manager *Manager
	config  Config
	logger  logging.Logger

	trigger chan struct{}
	passes  chan int

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex
}

// NewDaemon creates a daemon and registers it as the manager's change hook
func NewDaemon(manager *Manager, config Config, logger logging.Logger) *Daemon {
	d := &Daemon{
		manager: manager,
		config:  config,
		logger:  logging.OrDefault(logger).With(logging.Component("subscription-daemon")),
		trigger: make(chan struct{}, 1),
	}
	manager.OnChange(d.Trigger)
	return d
}

// Trigger asks for a pass. Triggers while one is already queued coalesce.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Start launches the daemon and queues an initial pass
func (d *Daemon) Start() error {
	d.runningMu.Lock()
	defer d.runningMu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop(ctx)
	d.Trigger()

	d.logger.Info("subscription daemon started", logging.Duration("retry_delay", d.config.RetryDelay))
	return nil
}

// Stop cancels an in-flight pass and waits for the loop to exit
func (d *Daemon) Stop() error {
	d.runningMu.Lock()
	if !d.running {
		d.runningMu.Unlock()
		return ErrNotRunning
	}
	d.cancel()
	d.running = false
	d.runningMu.Unlock()

	d.wg.Wait()
	d.logger.Info("subscription daemon stopped")
	return nil
}

// ListenForLiveness reacts to endpoint liveness changes of publisher
// services: a member going down is marked unreachable, a member coming up
// triggers a pass.
func (d *Daemon) ListenForLiveness(ctx context.Context, bus *pubsub.PubSub) error {
	return bus.Listen(ctx, pubsub.TopicEndpointLiveness, func(msg any) {
		ev, ok := msg.(pubsub.EndpointEvent)
		if !ok {
			return
		}
		if !ev.Live || ev.Removed {
			d.manager.MarkUnreachable(ev.Name)
			return
		}
		if d.manager.HasService(ev.Service) {
			d.Trigger()
		}
	})
}

func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	scheduled := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.trigger:
			if !scheduled {
				timer.Reset(d.config.InitialDelay)
				scheduled = true
			}
		case <-timer.C:
			scheduled = false
			pending := d.runPass(ctx)
			if pending > 0 && ctx.Err() == nil {
				timer.Reset(d.config.RetryDelay)
				scheduled = true
			}
		}
	}
}

func (d *Daemon) runPass(ctx context.Context) (pending int) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscription pass panicked", logging.Any("panic", r))
			pending = 1
		}
	}()

	pending = d.manager.Reconcile(ctx)
	if pending > 0 {
		d.logger.Debug("subscriptions still pending, rescheduling",
			logging.Count(pending), logging.Duration("retry_delay", d.config.RetryDelay))
	}
	if d.passes != nil {
		select {
		case d.passes <- pending:
		default:
		}
	}
	return pending
}
