package memory

import (
	"context"
	"sync"
)

// rowLocks is a set of named exclusive locks. Each lock is a one-slot
// channel so waiters can give up when their context ends.
type rowLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{locks: make(map[string]chan struct{})}
}

func (l *rowLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *rowLocks) lock(ctx context.Context, key string) error {
	select {
	case l.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rowLocks) unlock(key string) {
	<-l.slot(key)
}
