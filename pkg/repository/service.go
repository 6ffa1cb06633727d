package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// Cache names reported to the metrics agent
const (
	TasksCacheName = "repository.tasks"
	QueueCacheName = "repository.queue"
)

// Service is the authoritative repository. Tasks live in a TaskGrid whose
// per-task locks serialise updates from different nodes; the queues, the
// cancellation flags and the registrations sit behind mu. Lock order is
// per-task lock, then mu.
type Service struct {
	grid   *cache.TaskGrid
	store  Store
	agent  metrics.Agent
	events pubsub.Publisher
	logger logging.Logger
	now    func() time.Time

	mu            sync.Mutex
	queues        map[string][]task.TaskID
	queued        map[string]bool
	cancelled     map[string]bool
	registrations map[string]participant.Registration
	order         []string
}

// NewService creates a repository over store. A nil store selects a
// MemoryStore.
func NewService(store Store, agent metrics.Agent, events pubsub.Publisher, logger logging.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		grid:          cache.NewTaskGrid(),
		store:         store,
		agent:         metrics.OrNop(agent),
		events:        pubsub.OrNop(events),
		logger:        logging.OrDefault(logger).With(logging.Component("repository")),
		now:           time.Now,
		queues:        make(map[string][]task.TaskID),
		queued:        make(map[string]bool),
		cancelled:     make(map[string]bool),
		registrations: make(map[string]participant.Registration),
	}
}

// Load restores tasks and registrations from the store. Waiting tasks with
// a performer are queued again in creation order.
func (s *Service) Load(ctx context.Context) error {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	requeued := 0
	for _, t := range tasks {
		restored := s.grid.Register(t)
		if restored == nil {
			continue
		}
		if pending(restored) && restored.Performer != "" {
			s.enqueue(restored.Performer, restored.ID)
			requeued++
		}
	}

	regs, err := s.store.ListRegistrations(ctx)
	if err != nil {
		return fmt.Errorf("load registrations: %w", err)
	}
	sortRegistrations(regs)
	s.mu.Lock()
	for _, reg := range regs {
		s.putRegistrationLocked(reg)
	}
	s.mu.Unlock()

	s.report()
	s.logger.Info("repository loaded",
		logging.Int("tasks", len(tasks)),
		logging.Int("queued", requeued),
		logging.Int("registrations", len(regs)))
	return nil
}

// Grid exposes the authoritative task grid to the retirement watchdog
func (s *Service) Grid() *cache.TaskGrid { return s.grid }

// Ping checks the backing store
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

func (s *Service) RegisterActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return s.merge(ctx, t, "registered")
}

func (s *Service) FulfillActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return s.merge(ctx, t, "fulfilled")
}

func (s *Service) UpdateActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return s.merge(ctx, t, "updated")
}

// merge folds the caller's copy into the grid, stamps the directive the
// caller must obey and persists the result.
func (s *Service) merge(ctx context.Context, t *task.ActionableTask, change string) (*task.ActionableTask, error) {
	if t == nil {
		return nil, rpc.Invalid(task.ErrNilTask)
	}
	if t.ID.IsZero() {
		return nil, rpc.Invalid(task.ErrMissingTaskID)
	}

	l := s.grid.Lock(t.ID)
	l.Lock()
	previous := s.grid.Get(t.ID)
	merged := s.grid.SynchroniseLocked(t)
	merged.Directive = s.directiveFor(merged)
	merged = s.grid.SynchroniseLocked(merged)
	l.Unlock()

	// An executor handing a task back puts it at the end of its queue.
	if previous != nil && previous.Status.HoldsLease() && pending(merged) && merged.Performer != "" {
		s.enqueue(merged.Performer, merged.ID)
		s.report()
	}
	if err := s.persist(ctx, merged); err != nil {
		return nil, err
	}
	s.publish(merged)
	s.logger.Debug("task "+change,
		logging.TaskID(merged.ID.ID),
		logging.Status(string(merged.Status)),
		logging.String("directive", string(merged.Directive)))
	return merged, nil
}

// QueueTask registers t as waiting and appends it to its performer's queue.
// A task that has already progressed past waiting is merged but not queued
// again.
func (s *Service) QueueTask(ctx context.Context, t *task.ActionableTask) (*task.TaskID, error) {
	if t == nil {
		return nil, rpc.Invalid(task.ErrNilTask)
	}
	if t.ID.IsZero() {
		return nil, rpc.Invalid(task.ErrMissingTaskID)
	}
	if t.Performer == "" {
		return nil, rpc.Invalid(ErrMissingPerformer)
	}

	now := s.now()
	q := t.Clone()
	if q.Status == "" {
		q.Status = task.StatusWaiting
	}
	if q.Status == task.StatusWaiting && q.Fulfillment.Status == "" {
		q.Fulfillment.Status = task.FulfillmentRegistered
		q.Fulfillment.RegistrationInstant = now
		q.Fulfillment.UpdateInstant = now
	}

	l := s.grid.Lock(q.ID)
	l.Lock()
	merged := s.grid.SynchroniseLocked(q)
	merged.Directive = s.directiveFor(merged)
	merged = s.grid.SynchroniseLocked(merged)
	l.Unlock()

	if pending(merged) {
		s.enqueue(merged.Performer, merged.ID)
	}
	if err := s.persist(ctx, merged); err != nil {
		return nil, err
	}
	s.publish(merged)
	s.report()
	s.logger.Debug("task queued",
		logging.TaskID(merged.ID.ID),
		logging.String("performer", merged.Performer))
	id := merged.ID
	return &id, nil
}

// RetrieveNextPendingTask pops the oldest waiting task queued for
// performer and marks it assigned. Entries that were cancelled or picked up
// elsewhere are skipped. It returns nil when nothing is pending.
func (s *Service) RetrieveNextPendingTask(ctx context.Context, performer string) (*task.ActionableTask, error) {
	if performer == "" {
		return nil, nil
	}
	for {
		id, ok := s.dequeue(performer)
		if !ok {
			s.report()
			return nil, nil
		}
		assigned, err := s.assign(id)
		if err != nil {
			s.logger.Debug("skipping queued task",
				logging.TaskID(id.ID), logging.Error(err))
			continue
		}
		if err := s.persist(ctx, assigned); err != nil {
			return nil, err
		}
		s.publish(assigned)
		s.report()
		return assigned, nil
	}
}

func (s *Service) assign(id task.TaskID) (*task.ActionableTask, error) {
	shared := s.grid.Share(id)
	if shared == nil {
		return nil, fmt.Errorf("%w: %s was retired", ErrNotPending, id.ID)
	}
	assigned, err := shared.Apply(func(t *task.ActionableTask) error {
		if !pending(t) || s.isCancelled(t.ID) {
			return fmt.Errorf("%w: %s is %s", ErrNotPending, t.ID.ID, t.Status)
		}
		if err := t.Transition(task.StatusAssigned, nil, s.now()); err != nil {
			return err
		}
		t.Directive = task.CommandExecute
		return nil
	})
	if errors.Is(err, cache.ErrTaskNotCached) {
		return nil, fmt.Errorf("%w: %s was retired", ErrNotPending, id.ID)
	}
	return assigned, err
}

// CancelActionableTask flags a task so the next directive its executor
// receives is CANCEL. A task still waiting in a queue is cancelled outright.
// Unknown ids yield nil.
func (s *Service) CancelActionableTask(ctx context.Context, id task.TaskID) (*task.ActionableTask, error) {
	shared := s.grid.Share(id)
	if shared == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.cancelled[id.ID] = true
	s.mu.Unlock()

	out, err := shared.Apply(func(t *task.ActionableTask) error {
		if pending(t) {
			if err := t.Transition(task.StatusCancelled, nil, s.now()); err != nil {
				return err
			}
		}
		t.Directive = s.directiveFor(t)
		return nil
	})
	if errors.Is(err, cache.ErrTaskNotCached) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, out); err != nil {
		return nil, err
	}
	s.publish(out)
	s.logger.Info("task cancellation requested",
		logging.TaskID(id.ID),
		logging.Status(string(out.Status)),
		logging.String("directive", string(out.Directive)))
	return out, nil
}

// Archive drops a retired task from the durable store and forgets its
// queue and cancellation state. It is the retirement hook the watchdog calls
// after removing the task from the grid.
func (s *Service) Archive(ctx context.Context, t *task.ActionableTask) error {
	if t == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.cancelled, t.ID.ID)
	delete(s.queued, t.ID.ID)
	s.mu.Unlock()
	return s.store.DeleteTask(ctx, t.ID)
}

// directiveFor must be called with the task's lock held.
func (s *Service) directiveFor(t *task.ActionableTask) task.ExecutionCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled[t.ID.ID] {
		if !t.Status.IsTerminal() {
			return task.CommandCancel
		}
		delete(s.cancelled, t.ID.ID)
	}
	return task.DirectiveFor(t.Status)
}

func (s *Service) isCancelled(id task.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[id.ID]
}

func (s *Service) enqueue(performer string, id task.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queued[id.ID] {
		return
	}
	s.queued[id.ID] = true
	s.queues[performer] = append(s.queues[performer], id)
}

func (s *Service) dequeue(performer string) (task.TaskID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[performer]
	if len(q) == 0 {
		return task.TaskID{}, false
	}
	id := q[0]
	if len(q) == 1 {
		delete(s.queues, performer)
	} else {
		s.queues[performer] = q[1:]
	}
	delete(s.queued, id.ID)
	return id, true
}

// QueueLength returns the number of entries queued for performer
func (s *Service) QueueLength(performer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[performer])
}

func (s *Service) persist(ctx context.Context, t *task.ActionableTask) error {
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.logger.Error("failed to persist task", logging.TaskID(t.ID.ID), logging.Error(err))
		return fmt.Errorf("persist task %s: %w", t.ID.ID, err)
	}
	return nil
}

func (s *Service) publish(t *task.ActionableTask) {
	s.events.Publish(pubsub.TopicTaskLifecycle, pubsub.TaskEvent{
		TaskID:        t.ID.ID,
		Status:        string(t.Status),
		Directive:     string(t.Directive),
		FulfillmentID: t.Fulfillment.FulfillmentTaskID,
		Instant:       t.UpdateInstant,
	})
}

func (s *Service) report() {
	s.mu.Lock()
	queued := len(s.queued)
	s.mu.Unlock()
	s.agent.UpdateLocalCacheStatus(TasksCacheName, s.grid.Size())
	s.agent.UpdateLocalCacheStatus(QueueCacheName, queued)
}

// Stats summarises the repository for the status endpoint
type Stats struct {
	Tasks         int            `json:"tasks"`
	Queued        map[string]int `json:"queued"`
	Cancelling    int            `json:"cancelling"`
	Registrations int            `json:"registrations"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Tasks:         s.grid.Size(),
		Queued:        make(map[string]int, len(s.queues)),
		Cancelling:    len(s.cancelled),
		Registrations: len(s.registrations),
	}
	for performer, q := range s.queues {
		st.Queued[performer] = len(q)
	}
	return st
}

func pending(t *task.ActionableTask) bool {
	return t.Status == "" || t.Status == task.StatusWaiting
}

var _ rpc.RepositoryService = (*Service)(nil)
