package runlock

import (
	"context"
	"sync"
)

// InMemoryLocker implements Locker with a process-local mutex. Suitable
// for single-instance deployments and tests.
type InMemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewInMemoryLocker creates an in-memory locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{held: make(map[string]bool)}
}

// Acquire implements Locker
func (l *InMemoryLocker) Acquire(ctx context.Context, name string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, ErrHeld
	}
	l.held[name] = true
	return &memHandle{locker: l, name: name}, nil
}

type memHandle struct {
	locker *InMemoryLocker
	name   string
	once   sync.Once
}

// Release implements Handle
func (h *memHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.held, h.name)
		h.locker.mu.Unlock()
	})
	return nil
}
