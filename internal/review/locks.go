package review

import "sync"

// entityLocks hands out one mutex per entity key so mutations on the same
// detection or vote item are linearizable while different entities proceed
// in parallel. Locks are reference-counted and dropped once idle; no
// handler may hold one across anything but database I/O.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*entityLock)}
}

// acquire blocks until the key's lock is held and returns the release
// function.
func (e *entityLocks) acquire(key string) func() {
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &entityLock{}
		e.locks[key] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, key)
		}
		e.mu.Unlock()
	}
}
