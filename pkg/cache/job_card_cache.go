package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// JobCardCache holds at most one JobCard per task id. Its methods take only
// the structural lock; callers doing read-modify-write hold Lock(id) around
// Get, the mutation and Update.
type JobCardCache struct {
	mu    sync.RWMutex
	cards map[string]*task.JobCard
	locks lockTable
	now   func() time.Time
}

func NewJobCardCache() *JobCardCache {
	c := &JobCardCache{
		cards: make(map[string]*task.JobCard),
		now:   time.Now,
	}
	c.locks = newLockTable(&c.mu)
	return c
}

// Lock returns the per-task mutex for id.
func (c *JobCardCache) Lock(id task.TaskID) *sync.Mutex {
	return c.locks.get(id.ID)
}

// Register stores card, replacing any card for the same task, and stamps
// its last activity check.
func (c *JobCardCache) Register(card *task.JobCard) *task.JobCard {
	if card == nil || card.ActionableTaskID.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(card, false)
}

// Update is Register that keeps the creation instant of the cached card.
func (c *JobCardCache) Update(card *task.JobCard) *task.JobCard {
	if card == nil || card.ActionableTaskID.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putLocked(card, true)
}

func (c *JobCardCache) putLocked(card *task.JobCard, keepCreation bool) *task.JobCard {
	now := c.now()
	stored := card.Clone()
	stored.SetStatus(stored.CurrentStatus)
	stored.LastActivityCheckInstant = now
	stored.UpdateInstant = now
	if existing, ok := c.cards[card.ActionableTaskID.ID]; ok && keepCreation {
		stored.CreationInstant = existing.CreationInstant
	}
	if stored.CreationInstant.IsZero() {
		stored.CreationInstant = now
	}
	c.cards[card.ActionableTaskID.ID] = stored
	return stored.Clone()
}

// Get returns a copy of the card for id, or nil.
func (c *JobCardCache) Get(id task.TaskID) *task.JobCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cards[id.ID].Clone()
}

// Remove deletes the card for card's task.
func (c *JobCardCache) Remove(card *task.JobCard) *task.JobCard {
	if card == nil {
		return nil
	}
	return c.RemoveByTaskID(card.ActionableTaskID)
}

// RemoveByTaskID deletes the card for id and returns it, or nil.
func (c *JobCardCache) RemoveByTaskID(id task.TaskID) *task.JobCard {
	c.mu.Lock()
	defer c.mu.Unlock()
	card, ok := c.cards[id.ID]
	if !ok {
		return nil
	}
	delete(c.cards, id.ID)
	return card
}

// IDs returns the task ids that hold a card, in a stable order.
func (c *JobCardCache) IDs() []task.TaskID {
	c.mu.RLock()
	ids := make([]task.TaskID, 0, len(c.cards))
	for _, card := range c.cards {
		ids = append(ids, card.ActionableTaskID)
	}
	c.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].ID < ids[j].ID })
	return ids
}

func (c *JobCardCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cards)
}

// SharedJobCard is a local copy of a job card obtained by atomic
// get-or-create.
type SharedJobCard struct {
	cache *JobCardCache
	local *task.JobCard
	held  *sync.Mutex
}

// NewSharedJobCard returns a copy of the cached card for id, or registers
// the card built by build when none exists. The check and insert happen
// under one structural lock.
func NewSharedJobCard(c *JobCardCache, id task.TaskID, build func() *task.JobCard) *SharedJobCard {
	if id.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.cards[id.ID]; ok {
		return &SharedJobCard{cache: c, local: existing.Clone()}
	}
	card := build()
	if card == nil {
		return nil
	}
	card.ActionableTaskID = id
	return &SharedJobCard{cache: c, local: c.putLocked(card, false)}
}

// Instance returns the local copy for mutation.
func (s *SharedJobCard) Instance() *task.JobCard { return s.local }

// Update writes the local copy back. It returns nil, and writes nothing,
// when the card was removed after it was obtained.
func (s *SharedJobCard) Update() *task.JobCard {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cards[s.local.ActionableTaskID.ID]; !ok {
		return nil
	}
	s.local = c.putLocked(s.local, true)
	return s.local.Clone()
}

// Lock acquires the card's per-task mutex and reloads the cached state, so a
// read-modify-write between Lock and Update sees the latest card.
func (s *SharedJobCard) Lock() {
	l := s.cache.Lock(s.local.ActionableTaskID)
	l.Lock()
	s.held = l
	if current := s.cache.Get(s.local.ActionableTaskID); current != nil {
		s.local = current
	}
}

// Unlock releases the mutex taken by Lock.
func (s *SharedJobCard) Unlock() {
	if l := s.held; l != nil {
		s.held = nil
		l.Unlock()
	}
}
