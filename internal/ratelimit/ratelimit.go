// Package ratelimit provides per-client token bucket limiting.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter checks and consumes one token for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config is the bucket shape shared by every key.
type Config struct {
	RatePerSecond int
	Burst         int
}

func (c Config) normalized() Config {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = c.RatePerSecond
	}
	return c
}

// hashKey creates a truncated SHA256 hash so raw client IPs are never stored.
func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:8])
}
