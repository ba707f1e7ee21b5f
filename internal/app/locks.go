package app

import "sync"

// gameLocks serialises mutating operations per race id inside one process.
// Stores add an optimistic version check for writers in other processes.
type gameLocks struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	mu   sync.Mutex
	refs int
}

func newGameLocks() *gameLocks {
	return &gameLocks{locks: make(map[string]*gameLock)}
}

// lock blocks until id is free and returns the matching unlock function.
func (l *gameLocks) lock(id string) func() {
	l.mu.Lock()
	gl, ok := l.locks[id]
	if !ok {
		gl = &gameLock{}
		l.locks[id] = gl
	}
	gl.refs++
	l.mu.Unlock()

	gl.mu.Lock()
	return func() {
		gl.mu.Unlock()
		l.mu.Lock()
		gl.refs--
		if gl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
