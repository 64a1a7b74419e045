package workflow

import "sync"

// rideLocks hands out one mutex per ride ID so the read-decide-write critical
// section serializes per ride instead of behind a single global lock.
// Rides are never deleted, so entries are kept for the process lifetime.
type rideLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newRideLocks() *rideLocks {
	return &rideLocks{locks: make(map[int64]*sync.Mutex)}
}

func (l *rideLocks) forRide(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}
