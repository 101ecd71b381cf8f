package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// runLocks hands out one mutex per run identifier. Entries are dropped once
// nobody holds or waits for them.
type runLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[uuid.UUID]*runLock)}
}

// lock blocks until the run's lock is held and returns its release function
func (l *runLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &runLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *runLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
