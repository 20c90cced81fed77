// Package lock provides named locks for single-writer sections: an in-process
// implementation and a Redis one shared by every replica.
package lock

import (
	"context"
	"sync"
)

// Local is an in-process Locker keyed by name.
type Local struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{sems: make(map[string]chan struct{})}
}

func (l *Local) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	s := l.sem(key)
	select {
	case s <- struct{}{}:
		return releaser(s), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock takes key only if nobody holds it.
func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	s := l.sem(key)
	select {
	case s <- struct{}{}:
		return releaser(s), true, nil
	default:
		return nil, false, nil
	}
}

func releaser(s chan struct{}) func() {
	var once sync.Once
	return func() { once.Do(func() { <-s }) }
}
