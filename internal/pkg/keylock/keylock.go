// Package keylock provides a mutex per string key.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock serializes work that shares a key while letting different keys proceed in parallel.
// Entries are removed once no goroutine holds or waits for them.
type KeyLock struct {
	mu   sync.Mutex
	keys map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{keys: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held and returns the function that releases it.
func (l *KeyLock) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.keys, key)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or waited on.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
