package cache

import "sync"

// lockTable hands out one mutex per key. The table itself is guarded by the
// owning cache's structural lock. Mutexes are never dropped: removing an
// entry while another goroutine waits on its mutex would let a later caller
// mint a second mutex for the same key.
type lockTable struct {
	mu    *sync.RWMutex
	locks map[string]*sync.Mutex
}

func newLockTable(mu *sync.RWMutex) lockTable {
	return lockTable{mu: mu, locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for key, creating it if needed. Concurrent callers
// for the same key always receive the same mutex.
func (lt lockTable) get(key string) *sync.Mutex {
	lt.mu.RLock()
	l, ok := lt.locks[key]
	lt.mu.RUnlock()
	if ok {
		return l
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	if l, ok = lt.locks[key]; !ok {
		l = &sync.Mutex{}
		lt.locks[key] = l
	}
	return l
}
