package cache

import (
	"sort"
	"sync"

	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// FulfillmentTaskCache holds the fulfillment attempts executing on this node,
// keyed by fulfillment id and indexed by actionable task id.
type FulfillmentTaskCache struct {
	mu     sync.RWMutex
	byID   map[string]*task.FulfillmentTask
	byTask map[string]string
}

func NewFulfillmentTaskCache() *FulfillmentTaskCache {
	return &FulfillmentTaskCache{
		byID:   make(map[string]*task.FulfillmentTask),
		byTask: make(map[string]string),
	}
}

// Register stores f, replacing any earlier attempt for the same actionable
// task.
func (c *FulfillmentTaskCache) Register(f *task.FulfillmentTask) *task.FulfillmentTask {
	if f == nil || f.ID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.byTask[f.ActionableTaskID.ID]; ok && prev != f.ID {
		delete(c.byID, prev)
	}
	stored := f.Clone()
	c.byID[f.ID] = stored
	if !f.ActionableTaskID.IsZero() {
		c.byTask[f.ActionableTaskID.ID] = f.ID
	}
	return stored.Clone()
}

// Update is Register under a clearer name for existing attempts.
func (c *FulfillmentTaskCache) Update(f *task.FulfillmentTask) *task.FulfillmentTask {
	return c.Register(f)
}

func (c *FulfillmentTaskCache) Get(id string) *task.FulfillmentTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id].Clone()
}

// GetByTaskID returns the current attempt for an actionable task, or nil.
func (c *FulfillmentTaskCache) GetByTaskID(id task.TaskID) *task.FulfillmentTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fid, ok := c.byTask[id.ID]
	if !ok {
		return nil
	}
	return c.byID[fid].Clone()
}

func (c *FulfillmentTaskCache) Remove(id string) *task.FulfillmentTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.byID[id]
	if !ok {
		return nil
	}
	delete(c.byID, id)
	if c.byTask[f.ActionableTaskID.ID] == id {
		delete(c.byTask, f.ActionableTaskID.ID)
	}
	return f
}

// IDs returns the fulfillment ids in a stable order.
func (c *FulfillmentTaskCache) IDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *FulfillmentTaskCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
