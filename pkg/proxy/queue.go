package proxy

import (
	"context"

	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// QueueTask registers t locally as waiting and asks the repository to queue
// it. When the repository cannot be reached after the configured attempts
// the task stays queued locally and QUEUED_AUTONOMOUS is returned.
func (p *TaskGridProxy) QueueTask(ctx context.Context, t *task.ActionableTask) task.QueueOutcome {
	if t == nil || t.ID.IsZero() {
		p.logger.Debug("queueTask called without a task id")
		return task.QueueRejected
	}

	now := p.now()
	local := t.Clone()
	if err := local.Transition(task.StatusWaiting, nil, now); err != nil {
		p.logger.Warn("task cannot be queued", logging.TaskID(t.ID.ID), logging.Error(err))
		return p.queueOutcome(task.QueueRejected)
	}
	local.Record("queued", now)
	local.Directive = task.CommandWait

	shared := cache.NewSharedActionableTask(p.caches.Tasks, local)
	if shared == nil {
		return p.queueOutcome(task.QueueRejected)
	}
	snapshot := shared.Instance().Clone()
	p.publish(snapshot)

	err := p.withRetry(ctx, rpc.MethodQueueTask, snapshot.ID, func(ctx context.Context) error {
		id, err := p.repo.QueueTask(ctx, snapshot)
		if err == nil && id == nil {
			return errNoAnswer
		}
		return err
	})
	switch {
	case err == nil:
		return p.queueOutcome(task.QueueQueued)
	case rpc.KindOf(err) == rpc.KindInvalid:
		p.logger.Warn("repository refused task",
			logging.TaskID(snapshot.ID.ID), logging.Error(err))
		p.caches.Tasks.Remove(snapshot.ID)
		return p.queueOutcome(task.QueueRejected)
	default:
		p.setDegraded(true)
		p.logger.Warn("task queued autonomously",
			logging.TaskID(snapshot.ID.ID), logging.Error(err))
		return p.queueOutcome(task.QueueQueuedAutonomous)
	}
}

func (p *TaskGridProxy) queueOutcome(outcome task.QueueOutcome) task.QueueOutcome {
	if p.recorder != nil {
		p.recorder.RecordQueueOutcome(string(outcome))
	}
	return outcome
}

// RegisterTask registers a task this node created for itself, locally and
// with the repository, retrying like QueueTask. It returns the local copy,
// or nil when t has no id.
func (p *TaskGridProxy) RegisterTask(ctx context.Context, t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		p.logger.Debug("registerTask called without a task id")
		return nil
	}
	local := t.Clone()
	if local.Status == "" {
		if err := local.Transition(task.StatusWaiting, nil, p.now()); err != nil {
			return nil
		}
	}
	shared := cache.NewSharedActionableTask(p.caches.Tasks, local)
	if shared == nil {
		return nil
	}
	snapshot := shared.Instance().Clone()
	p.publish(snapshot)

	var answer *task.ActionableTask
	err := p.withRetry(ctx, rpc.MethodRegisterActionableTask, snapshot.ID, func(ctx context.Context) error {
		var err error
		answer, err = p.repo.RegisterActionableTask(ctx, snapshot)
		return err
	})
	if err == nil && answer != nil && answer.Directive != "" {
		if updated, aerr := shared.Apply(func(t *task.ActionableTask) error {
			t.Directive = answer.Directive
			return nil
		}); aerr == nil {
			snapshot = updated
		}
	}
	return snapshot
}

// Assignment is the lease handed to the executor by LoadNextTask
type Assignment struct {
	Task    *cache.SharedActionableTask
	JobCard *task.JobCard
}

// LoadNextTask fetches the next task pending for performer, caches it and
// issues a fresh job card. It returns nil when nothing is pending or the
// repository cannot be reached.
func (p *TaskGridProxy) LoadNextTask(ctx context.Context, performer string) *Assignment {
	if performer == "" {
		p.logger.Debug("loadNextTask called without a performer")
		return nil
	}

	var next *task.ActionableTask
	err := p.call(ctx, rpc.MethodRetrieveNextPendingTask, func(ctx context.Context) error {
		var err error
		next, err = p.repo.RetrieveNextPendingTask(ctx, performer)
		return err
	})
	if err != nil || next == nil || next.ID.IsZero() {
		return nil
	}

	shared := cache.NewSharedActionableTask(p.caches.Tasks, next)
	if shared == nil {
		return nil
	}

	now := p.now()
	card := task.NewJobCard(next.ID, p.config.Plant, performer, now)
	card.CurrentStatus = task.StatusAssigned
	card.RequestedStatus = task.StatusExecuting
	card.GrantedStatus = task.StatusWaiting

	l := p.caches.JobCards.Lock(next.ID)
	l.Lock()
	issued := p.caches.JobCards.Register(card)
	l.Unlock()

	p.publish(shared.Instance())
	p.logger.Debug("task loaded",
		logging.TaskID(next.ID.ID),
		logging.String("performer", performer))
	return &Assignment{Task: shared, JobCard: issued.Clone()}
}
