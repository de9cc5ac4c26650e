package services

import "sync"

// keyedLock serializes purge and sweep work per submission id. Entries are
// reference counted and removed once the last holder unlocks, so the map
// never grows with the number of submissions ever seen.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: map[string]*lockEntry{}}
}

func (kl *keyedLock) Lock(key string) {
	kl.mu.Lock()
	entry, ok := kl.locks[key]
	if !ok {
		entry = &lockEntry{}
		kl.locks[key] = entry
	}
	entry.refs++
	kl.mu.Unlock()

	entry.mu.Lock()
}

func (kl *keyedLock) Unlock(key string) {
	kl.mu.Lock()
	entry := kl.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(kl.locks, key)
	}
	kl.mu.Unlock()

	entry.mu.Unlock()
}
