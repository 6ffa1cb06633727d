package proxy

import (
	"context"
	"errors"

	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// sender sends the updated task to the repository
type sender func(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)

// NotifyTaskStart moves the task to EXECUTING under fulfillment f
func (p *TaskGridProxy) NotifyTaskStart(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusExecuting, rpc.MethodFulfillActionableTask, p.repo.FulfillActionableTask)
}

// NotifyTaskFinish moves the task to FINISHED, taking f's egress as the
// task's egress.
func (p *TaskGridProxy) NotifyTaskFinish(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusFinished, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

func (p *TaskGridProxy) NotifyTaskFail(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusFailed, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

func (p *TaskGridProxy) NotifyTaskCancel(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusCancelled, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

// NotifyTaskWaiting hands the task back: it returns to WAITING and the
// lease is released.
func (p *TaskGridProxy) NotifyTaskWaiting(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusWaiting, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

func (p *TaskGridProxy) NotifyTaskFinalisation(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	return p.notify(ctx, id, f, task.StatusFinalised, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

// notify applies one state machine transition locally and forwards it.
// Unknown tasks and refused transitions yield NO_ACTION without touching
// any cache.
func (p *TaskGridProxy) notify(ctx context.Context, id task.TaskID, f *task.FulfillmentTask, to task.ExecutionStatus, method rpc.Method, send sender) task.ExecutionCommand {
	if id.IsZero() {
		p.logger.Debug("notification without a task id", logging.Status(string(to)))
		return task.CommandNoAction
	}
	shared := p.caches.Tasks.Share(id)
	if shared == nil {
		p.logger.Debug("notification for unknown task",
			logging.TaskID(id.ID), logging.Status(string(to)))
		return task.CommandNoAction
	}

	now := p.now()
	updated, err := shared.Apply(func(t *task.ActionableTask) error {
		return t.Transition(to, f, now)
	})
	if errors.Is(err, cache.ErrTaskNotCached) {
		p.logger.Debug("notification for retired task",
			logging.TaskID(id.ID), logging.Status(string(to)))
		return task.CommandNoAction
	}
	if err != nil {
		p.logger.Warn("refused task transition",
			logging.TaskID(id.ID), logging.Status(string(to)), logging.Error(err))
		return task.CommandNoAction
	}

	p.updateJobCard(id, f, to)
	p.updateFulfillment(id, f, to)
	p.publish(updated)

	return p.forward(ctx, shared, updated, method, send)
}

// NotifyTaskFulfillerChange copies the identity and progress of f into the
// task's fulfillment record when another attempt takes the task over.
func (p *TaskGridProxy) NotifyTaskFulfillerChange(ctx context.Context, id task.TaskID, f *task.FulfillmentTask) task.ExecutionCommand {
	if id.IsZero() || f == nil || f.ID == "" {
		p.logger.Debug("fulfiller change without a task or fulfillment id")
		return task.CommandNoAction
	}
	shared := p.caches.Tasks.Share(id)
	if shared == nil {
		p.logger.Debug("fulfiller change for unknown task", logging.TaskID(id.ID))
		return task.CommandNoAction
	}

	now := p.now()
	updated, err := shared.Apply(func(t *task.ActionableTask) error {
		rec := &t.Fulfillment
		rec.FulfillmentTaskID = f.ID
		rec.Fulfiller = f.Fulfiller
		if f.Status != "" {
			rec.Status = f.Status
		}
		if !f.RegistrationInstant.IsZero() {
			rec.RegistrationInstant = f.RegistrationInstant
		}
		if !f.StartInstant.IsZero() {
			rec.StartInstant = f.StartInstant
		}
		rec.UpdateInstant = now
		rec.LastCheckInstant = now
		t.Record("fulfiller-changed", now)
		t.UpdateInstant = now
		return nil
	})
	if err != nil {
		return task.CommandNoAction
	}

	p.withJobCard(id, f, func(card *task.JobCard) {
		card.Assign(f.ID, card.CurrentStatus)
		if f.Fulfiller.Component != "" {
			card.WorkUnitProcessor = f.Fulfiller.Component
		}
	})
	p.updateFulfillment(id, f, "")
	p.publish(updated)

	return p.forward(ctx, shared, updated, rpc.MethodUpdateActionableTask, p.repo.UpdateActionableTask)
}

// forward calls the repository outside every lock. The repository's
// directive is recorded on the task and returned; without an answer the
// caller gets the directive implied by the local status.
func (p *TaskGridProxy) forward(ctx context.Context, shared *cache.SharedActionableTask, updated *task.ActionableTask, method rpc.Method, send sender) task.ExecutionCommand {
	local := task.DirectiveFor(updated.Status)

	var answer *task.ActionableTask
	err := p.call(ctx, method, func(ctx context.Context) error {
		var err error
		answer, err = send(ctx, updated)
		return err
	})
	if err != nil || answer == nil {
		return local
	}

	directive := answer.Directive
	if directive == "" {
		directive = task.DirectiveFor(answer.Status)
	}
	if _, err := shared.Apply(func(t *task.ActionableTask) error {
		t.Directive = directive
		return nil
	}); err != nil {
		p.logger.Debug("could not record directive", logging.TaskID(updated.ID.ID), logging.Error(err))
	}
	return directive
}

func (p *TaskGridProxy) updateJobCard(id task.TaskID, f *task.FulfillmentTask, to task.ExecutionStatus) {
	p.withJobCard(id, f, func(card *task.JobCard) {
		if to.HoldsLease() && f != nil {
			card.Assign(f.ID, to)
		} else {
			card.SetStatus(to)
		}
		card.RequestedStatus = to
		card.GrantedStatus = to
	})
}

// withJobCard runs fn on the task's job card under its lock, creating the
// card when the task has none yet. A card created for a task the watchdog
// has meanwhile retired is dropped again.
func (p *TaskGridProxy) withJobCard(id task.TaskID, f *task.FulfillmentTask, fn func(card *task.JobCard)) {
	if p.caches.JobCards == nil {
		return
	}
	processor := ""
	if f != nil {
		processor = f.Fulfiller.Component
	}
	shared := cache.NewSharedJobCard(p.caches.JobCards, id, func() *task.JobCard {
		return task.NewJobCard(id, p.config.Plant, processor, p.now())
	})
	if shared == nil {
		return
	}
	shared.Lock()
	defer shared.Unlock()
	if !p.caches.Tasks.Contains(id) {
		p.caches.JobCards.RemoveByTaskID(id)
		return
	}
	card := shared.Instance()
	fn(card)
	card.UpdateInstant = p.now()
	shared.Update()
}

// updateFulfillment records f's progress in the fulfillment cache. An empty
// status keeps f's own.
func (p *TaskGridProxy) updateFulfillment(id task.TaskID, f *task.FulfillmentTask, to task.ExecutionStatus) {
	if f == nil || f.ID == "" || p.caches.Fulfillments == nil {
		return
	}
	now := p.now()
	stored := f.Clone()
	if stored.ActionableTaskID.IsZero() {
		stored.ActionableTaskID = id
	}
	if to != "" {
		stored.Status = task.FulfillmentStatusFor(to)
	}
	switch {
	case to == task.StatusExecuting && stored.StartInstant.IsZero():
		stored.StartInstant = now
	case to.IsTerminal() && to != task.StatusFinalised && stored.FinishInstant.IsZero():
		stored.FinishInstant = now
	}
	stored.UpdateInstant = now
	p.caches.Fulfillments.Update(stored)
}
