package scheduler

import "sync"

// RecordLocks serializes read-modify-write cycles per scheduled post id within
// one process. Entries are dropped once no goroutine holds or waits on them.
type RecordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

func NewRecordLocks() *RecordLocks {
	return &RecordLocks{locks: make(map[string]*recordLock)}
}

// Lock acquires the lock for id and returns its release function.
func (l *RecordLocks) Lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &recordLock{}
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

func (l *RecordLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
