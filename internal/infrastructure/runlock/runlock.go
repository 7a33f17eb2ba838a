// Package runlock provides a recoverable distributed lock that keeps
// exactly one invoice batch running at a time.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrHeld means another holder currently owns the lock
var ErrHeld = errors.New("runlock: lock already held")

// Locker acquires exclusive run locks
type Locker interface {
	// Acquire takes the lock, or returns ErrHeld. The returned handle
	// keeps the lock alive until Release is called.
	Acquire(ctx context.Context, name string) (Handle, error)
}

// Handle is an acquired lock
type Handle interface {
	Release(ctx context.Context) error
}

// RedisLocker implements Locker with a Redis SETNX key and a heartbeat
// that extends the TTL while the holder is alive. A crashed holder
// stops heartbeating and the key expires, so the lock recovers without
// manual cleanup.
type RedisLocker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisLocker creates a locker with the given lock TTL. Heartbeats
// run at a third of the TTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:    client,
		keyPrefix: "runlock:",
		ttl:       ttl,
		logger:    logger,
	}
}

// releaseScript deletes the key only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only if this holder still owns the key
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, name string) (Handle, error) {
	key := l.keyPrefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	h := &redisHandle{
		locker: l,
		key:    key,
		token:  token,
		done:   make(chan struct{}),
	}
	go h.heartbeat()
	return h, nil
}

type redisHandle struct {
	locker *RedisLocker
	key    string
	token  string
	done   chan struct{}
	once   sync.Once
}

func (h *redisHandle) heartbeat() {
	interval := h.locker.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			res, err := extendScript.Run(ctx, h.locker.client, []string{h.key}, h.token, h.locker.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				h.locker.logger.Warn("run lock heartbeat failed",
					zap.String("key", h.key), zap.Error(err))
				continue
			}
			if res == 0 {
				// Lost ownership, nothing more to keep alive
				h.locker.logger.Warn("run lock ownership lost", zap.String("key", h.key))
				return
			}
		}
	}
}

// Release stops the heartbeat and deletes the key if still owned
func (h *redisHandle) Release(ctx context.Context) error {
	var err error
	h.once.Do(func() {
		close(h.done)
		_, err = releaseScript.Run(ctx, h.locker.client, []string{h.key}, h.token).Int()
	})
	return err
}
