package utils

import "sync"

// KeyLock serializes work per string key. Entries are dropped once the
// last holder releases, so idle keys cost nothing.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyEntry)}
}

func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	entry := k.locks[key]
	if entry == nil {
		entry = &keyEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	entry := k.locks[key]
	if entry == nil {
		k.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
