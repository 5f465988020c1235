package service

import "sync"

// keyLocks is a lazily-populated registry of per-cache-key mutexes. Holding
// the mutex for a key serializes upstream fetches for that coordinate while
// requests for other coordinates proceed independently. LoadOrStore makes
// first-time lock creation safe under concurrent callers for a new key.
// Growth is unbounded but tracks live-key cardinality, which the forecast
// cache bounds in practice.
type keyLocks struct {
	locks sync.Map // key -> *sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{}
}

// get returns the mutex for key, creating it atomically on first use.
func (k *keyLocks) get(key string) *sync.Mutex {
	if mu, ok := k.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
