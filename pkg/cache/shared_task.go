package cache

import (
	"errors"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// ErrTaskNotCached is returned by Apply when the task left the grid after it
// was shared, typically because the watchdog retired it.
var ErrTaskNotCached = errors.New("cache: task not cached")

// SharedActionableTask is a node-local, mutable copy of a grid task. Changes
// made through Instance are only visible to others after Update.
type SharedActionableTask struct {
	grid  *TaskGrid
	id    task.TaskID
	local *task.ActionableTask
}

// NewSharedActionableTask registers t in the grid and wraps the result.
func NewSharedActionableTask(grid *TaskGrid, t *task.ActionableTask) *SharedActionableTask {
	registered := grid.Register(t)
	if registered == nil {
		return nil
	}
	return &SharedActionableTask{grid: grid, id: registered.ID, local: registered}
}

// Share wraps the cached task id, or returns nil when it is not cached.
func (g *TaskGrid) Share(id task.TaskID) *SharedActionableTask {
	t := g.Get(id)
	if t == nil {
		return nil
	}
	return &SharedActionableTask{grid: g, id: id, local: t}
}

func (s *SharedActionableTask) ID() task.TaskID { return s.id }

// Instance returns the local copy for mutation.
func (s *SharedActionableTask) Instance() *task.ActionableTask { return s.local }

// Update writes the local copy back into the grid and reloads the merged
// result.
func (s *SharedActionableTask) Update() *task.ActionableTask {
	if merged := s.grid.Synchronise(s.local); merged != nil {
		s.local = merged
	}
	return s.local.Clone()
}

// Refresh discards local changes and reloads the cached state.
func (s *SharedActionableTask) Refresh() *task.ActionableTask {
	if fresh := s.grid.Refresh(s.local); fresh != nil {
		s.local = fresh
	}
	return s.local.Clone()
}

// Apply runs fn against the freshest cached state under the per-task lock
// and writes the result back in place of the cached state. When fn returns
// an error nothing is written and the local copy is left at the cached
// state. A task that is no longer cached is never written back.
func (s *SharedActionableTask) Apply(fn func(t *task.ActionableTask) error) (*task.ActionableTask, error) {
	l := s.grid.Lock(s.id)
	l.Lock()
	defer l.Unlock()

	current := s.grid.Get(s.id)
	if current == nil {
		return nil, ErrTaskNotCached
	}
	if err := fn(current); err != nil {
		s.local = s.grid.Get(s.id)
		if s.local == nil {
			s.local = current
		}
		return nil, err
	}
	s.local = s.grid.ReplaceLocked(current)
	return s.local.Clone(), nil
}
