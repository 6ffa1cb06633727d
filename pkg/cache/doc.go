// Package cache holds the node-local caches behind task coordination: the
// task data grid, the job card lease cache and the fulfillment task cache.
//
// Locking: each cache has one structural RWMutex guarding its maps and a
// per-key mutex table. The per-key mutex is always acquired before the
// structural lock, never the other way round, and no cache method performs
// I/O while holding either.
package cache

// Names reported to the metrics agent.
const (
	TaskGridName        = "ActionableTaskCache"
	JobCardCacheName    = "JobCardCache"
	FulfillmentTaskName = "FulfillmentTaskCache"
)
