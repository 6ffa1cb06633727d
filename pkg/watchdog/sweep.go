package watchdog

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// SweepTasks retires every task that is finalised or whose fulfillment has
// ended, once it has been idle longer than the minimum retirement age. The
// task's job card goes with it and the task is handed to the archiver.
// It returns the number of tasks retired.
func (w *Watchdog) SweepTasks(ctx context.Context, now time.Time) int {
	grid := w.caches.Tasks
	if grid == nil {
		return 0
	}
	retired := 0
	for _, id := range grid.IDs() {
		w.guard("tasks", id.ID, func() {
			if w.retireTask(ctx, id, now) {
				retired++
			}
		})
	}

	w.agent.UpdateLocalCacheStatus(cache.TaskGridName, grid.Size())
	w.agent.TouchWatchDogActivityIndicator(TasksIndicator)
	w.retired(cache.TaskGridName, retired)
	if retired > 0 {
		w.logger.Debug("retired tasks", logging.Count(retired))
	}
	return retired
}

func (w *Watchdog) retireTask(ctx context.Context, id task.TaskID, now time.Time) bool {
	grid := w.caches.Tasks
	l := grid.Lock(id)
	l.Lock()
	t := grid.Get(id)
	if t == nil || !t.IsRetirable() || t.Age(now) <= w.config.MinRetirementAge {
		l.Unlock()
		return false
	}
	removed := grid.RemoveLocked(id)
	l.Unlock()
	if removed == nil {
		return false
	}

	if cards := w.caches.JobCards; cards != nil {
		cl := cards.Lock(id)
		cl.Lock()
		cards.RemoveByTaskID(id)
		cl.Unlock()
	}

	actx, cancel := context.WithTimeout(ctx, w.config.ArchiveTimeout)
	defer cancel()
	if err := w.archiver.Archive(actx, removed); err != nil {
		w.logger.Warn("failed to archive retired task",
			logging.TaskID(id.ID), logging.Error(err))
	}
	return true
}

// SweepJobCards removes cards idle longer than the minimum retirement age,
// unless the task they lease is still active in the grid.
func (w *Watchdog) SweepJobCards(_ context.Context, now time.Time) int {
	cards := w.caches.JobCards
	if cards == nil {
		return 0
	}
	removed := 0
	for _, id := range cards.IDs() {
		w.guard("job-cards", id.ID, func() {
			if w.removeCard(id, now) {
				removed++
			}
		})
	}

	w.agent.UpdateLocalCacheStatus(cache.JobCardCacheName, cards.Size())
	w.agent.TouchWatchDogActivityIndicator(JobCardsIndicator)
	w.retired(cache.JobCardCacheName, removed)
	return removed
}

func (w *Watchdog) removeCard(id task.TaskID, now time.Time) bool {
	cards := w.caches.JobCards
	l := cards.Lock(id)
	l.Lock()
	defer l.Unlock()

	card := cards.Get(id)
	if card == nil || card.Idle(now) <= w.config.MinRetirementAge {
		return false
	}
	if w.taskActive(id) {
		return false
	}
	return cards.RemoveByTaskID(id) != nil
}

func (w *Watchdog) taskActive(id task.TaskID) bool {
	if w.caches.Tasks == nil {
		return false
	}
	t := w.caches.Tasks.Get(id)
	return t != nil && !t.IsRetirable()
}

// SweepFulfillmentTasks removes terminal fulfillment tasks older than the
// minimum retirement age together with the job card they executed under.
func (w *Watchdog) SweepFulfillmentTasks(_ context.Context, now time.Time) int {
	fulfillments := w.caches.Fulfillments
	if fulfillments == nil {
		return 0
	}
	removed := 0
	for _, id := range fulfillments.IDs() {
		w.guard("fulfillments", id, func() {
			if w.removeFulfillment(id, now) {
				removed++
			}
		})
	}

	w.agent.UpdateLocalCacheStatus(cache.FulfillmentTaskName, fulfillments.Size())
	w.agent.TouchWatchDogActivityIndicator(FulfillmentsIndicator)
	w.retired(cache.FulfillmentTaskName, removed)
	return removed
}

func (w *Watchdog) removeFulfillment(id string, now time.Time) bool {
	fulfillments := w.caches.Fulfillments
	f := fulfillments.Get(id)
	if f == nil || !f.IsTerminal() || f.Age(now) <= w.config.MinRetirementAge {
		return false
	}
	if fulfillments.Remove(id) == nil {
		return false
	}

	if cards := w.caches.JobCards; cards != nil && !f.ActionableTaskID.IsZero() {
		l := cards.Lock(f.ActionableTaskID)
		l.Lock()
		card := cards.Get(f.ActionableTaskID)
		if card != nil && (card.ExecutingFulfillmentTaskID == f.ID || card.CurrentStatus.IsTerminal()) {
			cards.RemoveByTaskID(f.ActionableTaskID)
		}
		l.Unlock()
	}
	return true
}
