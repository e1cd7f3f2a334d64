// Package lock provides the single-writer discipline for read-modify-write
// cycles against the record store.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes mutations. The returned release func must be called once.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// Local is an in-process Locker. It honors ctx while waiting.
type Local struct {
	ch chan struct{}
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is free or ctx is done.
func (l *Local) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
	}
}

// Default tuning for the Redis locker.
const (
	DefaultTTL          = 10 * time.Second
	DefaultRetryBackoff = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Redis is a cross-process Locker built on SET NX PX.
// TTL bounds how long a crashed holder can block others.
type Redis struct {
	client  *redis.Client
	key     string
	ttl     time.Duration
	backoff time.Duration
}

// NewRedis creates a Redis-backed Locker on key.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{
		client:  client,
		key:     key,
		ttl:     ttl,
		backoff: DefaultRetryBackoff,
	}
}

// Lock polls until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}

	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			return func() {
				// Use a fresh context: the caller's may already be cancelled.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, r.client, []string{r.key}, token).Err()
			}, nil
		}

		timer := time.NewTimer(r.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, ctx.Err())
		case <-timer.C:
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
