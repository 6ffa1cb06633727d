package cluster

import (
	"sort"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
)

// ScheduleCheck queues a reachability re-check for identifier, due after
// the configured check delay. Scheduling an identifier that is already
// pending only updates its retry count.
func (r *EndpointRegistry) ScheduleCheck(identifier string, removed, added bool, retryCount int) {
	if identifier == "" {
		r.logger.Debug("ignoring check for empty identifier")
		return
	}

	r.scheduleMu.Lock()
	defer r.scheduleMu.Unlock()

	if entry, ok := r.schedule[identifier]; ok {
		entry.RetryCount = retryCount
		return
	}
	r.schedule[identifier] = &CheckEntry{
		Identifier: identifier,
		Removed:    removed,
		Added:      added,
		RetryCount: retryCount,
		TargetTime: r.now().Add(r.checkDelay),
	}
	r.logger.Debug("endpoint check scheduled",
		logging.Endpoint(identifier), logging.Attempt(retryCount))
}

// ScheduleRecheck queues a fresh liveness check for identifier unless one is
// already pending, so an in-progress retry sequence keeps its count. It
// reports whether a check was queued.
func (r *EndpointRegistry) ScheduleRecheck(identifier string) bool {
	if identifier == "" {
		return false
	}

	r.scheduleMu.Lock()
	defer r.scheduleMu.Unlock()

	if _, ok := r.schedule[identifier]; ok {
		return false
	}
	r.schedule[identifier] = &CheckEntry{
		Identifier: identifier,
		TargetTime: r.now().Add(r.checkDelay),
	}
	return true
}

// GetEndpointsToCheck removes and returns every entry whose target time
// has passed, oldest first.
func (r *EndpointRegistry) GetEndpointsToCheck() []CheckEntry {
	now := r.now()

	r.scheduleMu.Lock()
	var due []CheckEntry
	for id, entry := range r.schedule {
		if !entry.TargetTime.After(now) {
			due = append(due, *entry)
			delete(r.schedule, id)
		}
	}
	r.scheduleMu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].TargetTime.Equal(due[j].TargetTime) {
			return due[i].Identifier < due[j].Identifier
		}
		return due[i].TargetTime.Before(due[j].TargetTime)
	})
	return due
}

// PendingChecks returns the number of scheduled checks
func (r *EndpointRegistry) PendingChecks() int {
	r.scheduleMu.Lock()
	defer r.scheduleMu.Unlock()
	return len(r.schedule)
}
