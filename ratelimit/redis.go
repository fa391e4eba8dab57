package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a distributed token bucket shared across every process
// publishing to a topic, for deployments where LocalLimiter's per-process
// quota isn't enough. Grounded directly on
// rate-limiter/gateway/ratelimiter/token_bucket.go's Lua-script bucket:
// the read-modify-write happens atomically inside Redis, so concurrent
// publishers across processes never race on the same bucket state.
type RedisLimiter struct {
	client     redis.Cmdable
	key        string
	bucketSize int64
	refillRate float64 // tokens per second
}

var quotaScript = redis.NewScript(`
local key = KEYS[1]
local bucket_size = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))

if tokens == nil then
    tokens = bucket_size
    last_refill = now
end

local elapsed = now - last_refill
tokens = math.min(bucket_size, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, 3600)

return allowed
`)

// NewRedisLimiter builds a limiter keyed by topic, allowing refillRate
// messages per second up to a burst of bucketSize.
func NewRedisLimiter(client redis.Cmdable, topic string, bucketSize int64, refillRate float64) *RedisLimiter {
	return &RedisLimiter{
		client:     client,
		key:        "usrl:quota:" + topic,
		bucketSize: bucketSize,
		refillRate: refillRate,
	}
}

// Defer reports whether the caller should defer a publish. Unlike
// LocalLimiter, this makes a network round trip, so it's meant for
// publishers bottlenecked on something slower than the shared-memory ring
// anyway (e.g. rate-limiting an upstream feed before it enters the ring).
func (l *RedisLimiter) Defer(ctx context.Context) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	allowed, err := quotaScript.Run(ctx, l.client, []string{l.key}, l.bucketSize, l.refillRate, now).Int64()
	if err != nil {
		return false, err
	}
	return allowed == 0, nil
}
