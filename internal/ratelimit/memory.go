package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// Memory is an in-process Limiter. Idle buckets are evicted.
type Memory struct {
	cfg     Config
	buckets *gocache.Cache
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemory creates an in-process limiter.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		cfg:     cfg.normalized(),
		buckets: gocache.New(bucketTTL, time.Minute),
		now:     time.Now,
	}
}

// Allow consumes a token for key.
func (l *Memory) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rate := float64(l.cfg.RatePerSecond)
	burst := float64(l.cfg.Burst)
	k := hashKey(key)

	b := &bucket{tokens: burst, lastUpdate: now}
	if v, ok := l.buckets.Get(k); ok {
		b = v.(*bucket)
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(burst, b.tokens+elapsed*rate)
	}
	b.lastUpdate = now

	res := Result{
		Limit:   l.cfg.Burst,
		ResetAt: now.Add(time.Second / time.Duration(l.cfg.RatePerSecond)),
	}
	if b.tokens >= 1 {
		b.tokens--
		res.Allowed = true
	} else {
		res.RetryAfter = time.Duration(math.Ceil((1-b.tokens)/rate)) * time.Second
	}
	res.Remaining = int64(math.Floor(b.tokens))

	l.buckets.SetDefault(k, b)
	return res, nil
}
