// Package archive keeps a copy of tasks the watchdog retires from the task
// grid.
package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// Archiver receives retired tasks. Archiving is best effort: the watchdog
// logs a failure and carries on.
type Archiver interface {
	Archive(ctx context.Context, t *task.ActionableTask) error
}

// Nop discards retired tasks
type Nop struct{}

func (Nop) Archive(context.Context, *task.ActionableTask) error { return nil }

// OrNop returns a, or Nop when a is nil
func OrNop(a Archiver) Archiver {
	if a == nil {
		return Nop{}
	}
	return a
}

// Chain hands each task to every archiver in turn and joins their errors
type Chain []Archiver

func (c Chain) Archive(ctx context.Context, t *task.ActionableTask) error {
	var errs []error
	for _, a := range c {
		if a == nil {
			continue
		}
		if err := a.Archive(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps retired tasks in memory, keyed by task id
type Memory struct {
	mu    sync.RWMutex
	tasks map[string]*task.ActionableTask
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*task.ActionableTask)}
}

func (m *Memory) Archive(_ context.Context, t *task.ActionableTask) error {
	if t == nil || t.ID.IsZero() {
		return task.ErrMissingTaskID
	}
	m.mu.Lock()
	m.tasks[t.ID.ID] = t.Clone()
	m.mu.Unlock()
	return nil
}

// Get returns a copy of an archived task, or nil
func (m *Memory) Get(id task.TaskID) *task.ActionableTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id.ID].Clone()
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}
