// Package proxy is the task grid proxy: it applies task lifecycle events to
// the node-local caches and forwards them to the authoritative repository,
// returning the directive the repository issues.
package proxy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// Repository is the remote side of the proxy. rpc.RepositoryClient
// implements it.
type Repository interface {
	RegisterActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	FulfillActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	UpdateActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	QueueTask(ctx context.Context, t *task.ActionableTask) (*task.TaskID, error)
	RetrieveNextPendingTask(ctx context.Context, performer string) (*task.ActionableTask, error)
}

// Recorder receives proxy metrics. The Prometheus registry implements it.
type Recorder interface {
	RecordTransition(status string)
	RecordQueueOutcome(outcome string)
	SetProxyDegraded(degraded bool)
}

// Mode says whether the repository answered the last call
type Mode string

const (
	ModeConnected Mode = "CONNECTED"
	ModeDegraded  Mode = "DEGRADED"
)

// TaskGridProxy applies lifecycle events locally, then remotely. Local
// writes happen under the per-task locks; repository calls are made after
// the locks are released.
type TaskGridProxy struct {
	config   Config
	caches   cache.Set
	repo     Repository
	events   pubsub.Publisher
	recorder Recorder
	logger   logging.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	degraded atomic.Bool
}

// New creates a proxy over caches. events and recorder may be nil.
func New(config Config, caches cache.Set, repo Repository, events pubsub.Publisher, recorder Recorder, logger logging.Logger) *TaskGridProxy {
	return &TaskGridProxy{
		config:   config,
		caches:   caches,
		repo:     repo,
		events:   pubsub.OrNop(events),
		recorder: recorder,
		logger:   logging.OrDefault(logger).With(logging.Component("task-grid-proxy")),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Mode reports DEGRADED after a failed repository call, until the next
// successful one.
func (p *TaskGridProxy) Mode() Mode {
	if p.degraded.Load() {
		return ModeDegraded
	}
	return ModeConnected
}

func (p *TaskGridProxy) setDegraded(degraded bool) {
	if p.degraded.Swap(degraded) == degraded {
		return
	}
	if p.recorder != nil {
		p.recorder.SetProxyDegraded(degraded)
	}
	if degraded {
		p.logger.Warn("repository unreachable, continuing autonomously")
	} else {
		p.logger.Info("repository reachable again")
	}
}

// call runs fn with the per-call timeout and tracks the proxy mode
func (p *TaskGridProxy) call(ctx context.Context, method rpc.Method, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	err := fn(cctx)
	switch {
	case err == nil:
		p.setDegraded(false)
	case rpc.KindOf(err) == rpc.KindInvalid:
		// The repository answered; it just refused the request.
		p.setDegraded(false)
	default:
		p.setDegraded(true)
		p.logger.Warn("repository call failed",
			logging.Method(method.String()), logging.Error(err))
	}
	return err
}

// withRetry repeats fn with a fixed delay until it succeeds, the request is
// refused or the attempts run out.
func (p *TaskGridProxy) withRetry(ctx context.Context, method rpc.Method, id task.TaskID, fn func(ctx context.Context) error) error {
	attempts := max(p.config.RetryAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = p.call(ctx, method, fn); err == nil || rpc.KindOf(err) == rpc.KindInvalid {
			return err
		}
		p.logger.Debug("repository call will be retried",
			logging.Method(method.String()),
			logging.TaskID(id.ID),
			logging.Attempt(attempt))
		if attempt < attempts {
			if serr := p.sleep(ctx, p.config.RetryDelay); serr != nil {
				return err
			}
		}
	}
	return err
}

func (p *TaskGridProxy) publish(t *task.ActionableTask) {
	p.events.Publish(pubsub.TopicTaskLifecycle, pubsub.TaskEvent{
		TaskID:        t.ID.ID,
		Status:        string(t.Status),
		Directive:     string(t.Directive),
		FulfillmentID: t.Fulfillment.FulfillmentTaskID,
		Instant:       t.UpdateInstant,
	})
	if p.recorder != nil {
		p.recorder.RecordTransition(string(t.Status))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
