package keymutex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithLock(t *testing.T) {
	t.Run("serializes writers on the same key", func(t *testing.T) {
		m := New()
		counter := 0
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = m.WithLock("order-1", func() error {
					counter++
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, counter)
	})

	t.Run("propagates fn error", func(t *testing.T) {
		m := New()
		err := m.WithLock("k", func() error { return assert.AnError })
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("lock released after fn", func(t *testing.T) {
		m := New()
		_ = m.WithLock("k", func() error { return nil })
		done := make(chan struct{})
		go func() {
			m.Lock("k")
			m.Unlock("k")
			close(done)
		}()
		<-done
	})
}
