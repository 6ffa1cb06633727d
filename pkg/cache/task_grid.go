package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// TaskGrid is the node-local task data grid. Stored tasks are immutable
// snapshots: every mutation clones, merges and swaps the pointer, and every
// read returns a deep copy.
type TaskGrid struct {
	mu    sync.RWMutex
	tasks map[string]*task.ActionableTask
	locks lockTable
	now   func() time.Time
}

func NewTaskGrid() *TaskGrid {
	g := &TaskGrid{
		tasks: make(map[string]*task.ActionableTask),
		now:   time.Now,
	}
	g.locks = newLockTable(&g.mu)
	return g
}

// Lock returns the per-task mutex for id. Grid methods take this mutex
// themselves; a caller holding it may only use the *Locked methods.
func (g *TaskGrid) Lock(id task.TaskID) *sync.Mutex {
	return g.locks.get(id.ID)
}

// Register inserts t, or merges it into the cached task when one already
// exists, and returns an isolated copy of the result.
func (g *TaskGrid) Register(t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		return nil
	}
	l := g.Lock(t.ID)
	l.Lock()
	defer l.Unlock()
	return g.SynchroniseLocked(t)
}

// Get returns a copy of the cached task, or nil.
func (g *TaskGrid) Get(id task.TaskID) *task.ActionableTask {
	if id.IsZero() {
		return nil
	}
	g.mu.RLock()
	snap := g.tasks[id.ID]
	g.mu.RUnlock()
	return snap.Clone()
}

// Remove deletes the task and its lock, returning the removed task or nil.
func (g *TaskGrid) Remove(id task.TaskID) *task.ActionableTask {
	if id.IsZero() {
		return nil
	}
	l := g.Lock(id)
	l.Lock()
	defer l.Unlock()
	return g.RemoveLocked(id)
}

// RemoveLocked is Remove for a caller already holding the per-task lock.
func (g *TaskGrid) RemoveLocked(id task.TaskID) *task.ActionableTask {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap, ok := g.tasks[id.ID]
	if !ok {
		return nil
	}
	delete(g.tasks, id.ID)
	return snap.Clone()
}

// Refresh returns a copy of the cached state of t so the caller can replace
// its local copy. When t is not cached it is inserted as-is.
func (g *TaskGrid) Refresh(t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		return nil
	}
	l := g.Lock(t.ID)
	l.Lock()
	defer l.Unlock()

	g.mu.Lock()
	defer g.mu.Unlock()
	if snap, ok := g.tasks[t.ID.ID]; ok {
		return snap.Clone()
	}
	snap := g.stamp(t.Clone())
	g.tasks[t.ID.ID] = snap
	return snap.Clone()
}

// Synchronise merges the caller's copy into the cached task using the
// ActionableTask merge rules and returns a fresh copy of the result.
func (g *TaskGrid) Synchronise(t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		return nil
	}
	l := g.Lock(t.ID)
	l.Lock()
	defer l.Unlock()
	return g.SynchroniseLocked(t)
}

// SynchroniseLocked is Synchronise for a caller already holding the
// per-task lock.
func (g *TaskGrid) SynchroniseLocked(t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		return nil
	}
	g.mu.RLock()
	current := g.tasks[t.ID.ID]
	g.mu.RUnlock()

	var next *task.ActionableTask
	if current == nil {
		next = g.stamp(t.Clone())
	} else {
		next = current.Clone()
		next.MergeFrom(t)
	}

	g.mu.Lock()
	g.tasks[t.ID.ID] = next
	g.mu.Unlock()
	return next.Clone()
}

// ReplaceLocked stores t as the cached state without merging. The caller
// must hold the per-task lock and must have derived t from the cached state.
func (g *TaskGrid) ReplaceLocked(t *task.ActionableTask) *task.ActionableTask {
	if t == nil || t.ID.IsZero() {
		return nil
	}
	next := g.stamp(t.Clone())
	g.mu.Lock()
	g.tasks[t.ID.ID] = next
	g.mu.Unlock()
	return next.Clone()
}

func (g *TaskGrid) stamp(t *task.ActionableTask) *task.ActionableTask {
	if t.CreationInstant.IsZero() {
		t.CreationInstant = g.now()
	}
	if t.UpdateInstant.IsZero() {
		t.UpdateInstant = t.CreationInstant
	}
	return t
}

// IDs returns the cached task ids in a stable order.
func (g *TaskGrid) IDs() []task.TaskID {
	g.mu.RLock()
	ids := make([]task.TaskID, 0, len(g.tasks))
	for _, t := range g.tasks {
		ids = append(ids, t.ID)
	}
	g.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].ID < ids[j].ID })
	return ids
}

func (g *TaskGrid) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Contains reports whether id is cached.
func (g *TaskGrid) Contains(id task.TaskID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.tasks[id.ID]
	return ok
}
