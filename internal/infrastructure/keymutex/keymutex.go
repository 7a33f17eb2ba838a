// Package keymutex serializes work per string key so two goroutines
// never mutate the same order or product concurrently.
package keymutex

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// KeyMutex is a striped mutex keyed by string
type KeyMutex struct {
	stripes []sync.Mutex
}

// New creates a key mutex with the default stripe count
func New() *KeyMutex {
	return &KeyMutex{stripes: make([]sync.Mutex, defaultStripes)}
}

func (m *KeyMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.stripes[h.Sum32()%uint32(len(m.stripes))]
}

// Lock acquires the stripe for key
func (m *KeyMutex) Lock(key string) {
	m.stripe(key).Lock()
}

// Unlock releases the stripe for key
func (m *KeyMutex) Unlock(key string) {
	m.stripe(key).Unlock()
}

// WithLock runs fn while holding the stripe for key
func (m *KeyMutex) WithLock(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}
