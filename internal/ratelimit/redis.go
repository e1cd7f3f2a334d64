package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix is the Redis key prefix for client buckets.
	keyPrefix = "shortclick:ratelimit:"
	// bucketTTL expires idle buckets.
	bucketTTL = 10 * time.Second
)

// tokenBucketScript refills and consumes atomically.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// Redis is a Limiter shared by every process using the same Redis.
type Redis struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(client *redis.Client, cfg Config) *Redis {
	return &Redis{
		client: client,
		cfg:    cfg.normalized(),
		now:    time.Now,
	}
}

// Allow consumes a token for key. Redis errors fail open: the request is
// allowed and the error is returned for logging.
func (l *Redis) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()

	out, err := tokenBucketScript.Run(ctx, l.client,
		[]string{keyPrefix + hashKey(key)},
		l.cfg.RatePerSecond, l.cfg.Burst, now.Unix(), int(bucketTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return Result{
			Allowed:   true,
			Limit:     l.cfg.Burst,
			Remaining: int64(l.cfg.Burst),
			ResetAt:   now.Add(time.Second),
		}, fmt.Errorf("rate limit script: %w", err)
	}

	return Result{
		Allowed:    out[0] == 1,
		Limit:      l.cfg.Burst,
		Remaining:  out[2],
		ResetAt:    now.Add(time.Second / time.Duration(l.cfg.RatePerSecond)),
		RetryAfter: time.Duration(out[1]) * time.Second,
	}, nil
}
