package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/parcel"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

type countingAgent struct {
	sizes map[string]int
}

func (a *countingAgent) IncrementRemoteProcedureCallCount(string)        {}
func (a *countingAgent) IncrementRemoteProcedureCallFailureCount(string) {}
func (a *countingAgent) TouchWatchDogActivityIndicator(string)           {}
func (a *countingAgent) UpdateLocalCacheStatus(name string, size int) {
	a.sizes[name] = size
}

func newTestService(t *testing.T, store Store) (*Service, *countingAgent) {
	t.Helper()
	agent := &countingAgent{sizes: make(map[string]int)}
	s := NewService(store, agent, nil, logging.NewNopLogger())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return s, agent
}

func newQueuedTask(performer string) *task.ActionableTask {
	return task.NewActionableTask("lab.order", performer,
		[]parcel.Manifest{{Descriptor: parcel.TypeDescriptor{Domain: "clinical", Resource: "Order"}}},
		time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
}

func TestQueueAndRetrieve_FIFOPerPerformer(t *testing.T) {
	s, agent := newTestService(t, nil)
	ctx := context.Background()

	first := newQueuedTask("lab.results")
	second := newQueuedTask("lab.results")
	other := newQueuedTask("pas.admissions")

	for _, q := range []*task.ActionableTask{first, second, other} {
		id, err := s.QueueTask(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, q.ID, *id)
	}
	assert.Equal(t, 2, s.QueueLength("lab.results"))
	assert.Equal(t, 3, agent.sizes[QueueCacheName])

	// Queueing the same task twice does not duplicate it
	_, err := s.QueueTask(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 2, s.QueueLength("lab.results"))

	got, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Equal(t, task.CommandExecute, got.Directive)
	assert.Equal(t, task.FulfillmentInitiated, got.Fulfillment.Status)

	got, err = s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	got, err = s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.RetrieveNextPendingTask(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 1, agent.sizes[QueueCacheName])
	assert.Equal(t, 3, agent.sizes[TasksCacheName])
}

func TestQueueTask_RejectsIncompleteTasks(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := s.QueueTask(ctx, newQueuedTask(""))
	assert.True(t, errors.Is(err, ErrMissingPerformer))

	_, err = s.QueueTask(ctx, &task.ActionableTask{Performer: "lab.results"})
	assert.True(t, errors.Is(err, task.ErrMissingTaskID))

	_, err = s.QueueTask(ctx, nil)
	assert.True(t, errors.Is(err, task.ErrNilTask))
}

func TestUpdate_MergesAndStampsDirective(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)
	assigned, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)

	executing := assigned.Clone()
	require.NoError(t, executing.Transition(task.StatusExecuting, nil, time.Now()))
	answer, err := s.UpdateActionableTask(ctx, executing)
	require.NoError(t, err)
	assert.Equal(t, task.StatusExecuting, answer.Status)
	assert.Equal(t, task.CommandExecute, answer.Directive)

	finished := answer.Clone()
	require.NoError(t, finished.Transition(task.StatusFinished, nil, time.Now()))
	answer, err = s.UpdateActionableTask(ctx, finished)
	require.NoError(t, err)
	assert.Equal(t, task.CommandFinalise, answer.Directive)

	stored := s.Grid().Get(q.ID)
	require.NotNil(t, stored)
	assert.Equal(t, task.StatusFinished, stored.Status)
	assert.Equal(t, task.CommandFinalise, stored.Directive)
}

func TestUpdate_HandingBackRequeues(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)
	assigned, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Equal(t, 0, s.QueueLength("lab.results"))

	back := assigned.Clone()
	require.NoError(t, back.Transition(task.StatusWaiting, nil, time.Now()))
	answer, err := s.UpdateActionableTask(ctx, back)
	require.NoError(t, err)
	assert.Equal(t, task.CommandWait, answer.Directive)
	assert.Equal(t, 1, s.QueueLength("lab.results"))

	again, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, q.ID, again.ID)
}

func TestCancel_WaitingTaskIsCancelledInQueue(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)

	cancelled, err := s.CancelActionableTask(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, task.StatusCancelled, cancelled.Status)
	assert.Equal(t, task.CommandFinalise, cancelled.Directive)

	next, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Nil(t, next, "cancelled entries are skipped")
	assert.Equal(t, 0, s.Stats().Cancelling)
}

func TestCancel_ExecutingTaskGetsCancelDirective(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)
	assigned, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)

	cancelled, err := s.CancelActionableTask(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusAssigned, cancelled.Status)
	assert.Equal(t, task.CommandCancel, cancelled.Directive)

	// The executor's next update is answered with CANCEL until it stops
	executing := assigned.Clone()
	require.NoError(t, executing.Transition(task.StatusExecuting, nil, time.Now()))
	answer, err := s.UpdateActionableTask(ctx, executing)
	require.NoError(t, err)
	assert.Equal(t, task.CommandCancel, answer.Directive)

	stopped := answer.Clone()
	require.NoError(t, stopped.Transition(task.StatusCancelled, nil, time.Now()))
	answer, err = s.UpdateActionableTask(ctx, stopped)
	require.NoError(t, err)
	assert.Equal(t, task.CommandFinalise, answer.Directive)
	assert.Equal(t, 0, s.Stats().Cancelling)
}

func TestCancel_UnknownTask(t *testing.T) {
	s, _ := newTestService(t, nil)
	got, err := s.CancelActionableTask(context.Background(), task.NewTaskID(""))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRetrieve_RetiredQueueEntryIsSkipped(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)
	s.grid.Remove(q.ID)

	next, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.False(t, s.grid.Contains(q.ID), "retired task stays retired")

	cancelled, err := s.CancelActionableTask(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, cancelled)
	assert.False(t, s.grid.Contains(q.ID))
}

func TestLoad_RestoresQueuesAndRegistrations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first, _ := newTestService(t, store)

	waiting := newQueuedTask("lab.results")
	running := newQueuedTask("lab.results")
	running.CreationInstant = running.CreationInstant.Add(-time.Minute)
	for _, q := range []*task.ActionableTask{running, waiting} {
		_, err := first.QueueTask(ctx, q)
		require.NoError(t, err)
	}
	_, err := first.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	_, err = first.RegisterParticipant(ctx, plantRegistration("lab.plant-1", "inproc://lab-1"))
	require.NoError(t, err)

	second, _ := newTestService(t, store)
	require.NoError(t, second.Load(ctx))

	assert.Equal(t, 2, second.Grid().Size())
	assert.Equal(t, 1, second.QueueLength("lab.results"), "only the waiting task is queued again")
	next, err := second.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, waiting.ID, next.ID)

	regs, err := second.GetAllRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "inproc://lab-1", regs[0].Participant.Address)
}

func TestArchive_DropsDurableCopy(t *testing.T) {
	store := NewMemoryStore()
	s, _ := newTestService(t, store)
	ctx := context.Background()

	q := newQueuedTask("lab.results")
	_, err := s.QueueTask(ctx, q)
	require.NoError(t, err)

	removed := s.Grid().Remove(q.ID)
	require.NotNil(t, removed)
	require.NoError(t, s.Archive(ctx, removed))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	next, err := s.RetrieveNextPendingTask(ctx, "lab.results")
	require.NoError(t, err)
	assert.Nil(t, next, "retired tasks are skipped")
}

func TestClosedStore_FailsPersistence(t *testing.T) {
	store := NewMemoryStore()
	s, _ := newTestService(t, store)
	require.NoError(t, store.Close())

	_, err := s.QueueTask(context.Background(), newQueuedTask("lab.results"))
	assert.True(t, errors.Is(err, ErrStoreClosed))
	assert.True(t, errors.Is(s.Ping(context.Background()), ErrStoreClosed))
}

func plantRegistration(name, address string) participant.Registration {
	return participant.Registration{
		Participant: participant.Participant{
			Name:            name,
			Kind:            participant.KindProcessingPlant,
			ProcessingPlant: name,
			Service:         parcel.ServiceOf(name),
			Address:         address,
		},
		Status: participant.StatusActive,
	}
}

func componentRegistration(name, plant string) participant.Registration {
	return participant.Registration{
		Participant: participant.Participant{
			Name:            name,
			Kind:            participant.KindWorkUnitProcessor,
			ProcessingPlant: plant,
			Service:         parcel.ServiceOf(plant),
		},
		Status: participant.StatusRegistered,
	}
}
