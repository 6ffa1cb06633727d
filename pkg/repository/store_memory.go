package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// MemoryStore keeps everything in process memory. It is the default store
// and the one used by tests.
type MemoryStore struct {
	mu            sync.RWMutex
	tasks         map[string]*task.ActionableTask
	registrations map[string]participant.Registration
	closed        bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:         make(map[string]*task.ActionableTask),
		registrations: make(map[string]participant.Registration),
	}
}

func (s *MemoryStore) SaveTask(_ context.Context, t *task.ActionableTask) error {
	if t == nil || t.ID.IsZero() {
		return task.ErrMissingTaskID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.tasks[t.ID.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id task.TaskID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.tasks, id.ID)
	return nil
}

// ListTasks returns copies of all stored tasks, oldest first
func (s *MemoryStore) ListTasks(context.Context) ([]*task.ActionableTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]*task.ActionableTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreationInstant.Equal(out[j].CreationInstant) {
			return out[i].ID.ID < out[j].ID.ID
		}
		return out[i].CreationInstant.Before(out[j].CreationInstant)
	})
	return out, nil
}

func (s *MemoryStore) SaveRegistration(_ context.Context, reg participant.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.registrations[reg.Name()] = reg.Clone()
	return nil
}

func (s *MemoryStore) DeleteRegistration(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.registrations, name)
	return nil
}

// ListRegistrations returns copies of all registrations in registration order
func (s *MemoryStore) ListRegistrations(context.Context) ([]participant.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]participant.Registration, 0, len(s.registrations))
	for _, reg := range s.registrations {
		out = append(out, reg.Clone())
	}
	sortRegistrations(out)
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortRegistrations(regs []participant.Registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].RegistrationInstant.Equal(regs[j].RegistrationInstant) {
			return regs[i].Name() < regs[j].Name()
		}
		return regs[i].RegistrationInstant.Before(regs[j].RegistrationInstant)
	})
}

var _ Store = (*MemoryStore)(nil)
