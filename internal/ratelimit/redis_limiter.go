package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for per-actor request counters.
const keyPrefixActor = "rl:actor:"

// RedisLimiter coordinates request counting across server processes using
// Redis. It implements a fixed-window counter per actor key: horizontal
// scale-out does not multiply the effective limit the way an in-process
// limiter would.
type RedisLimiter struct {
	redis             redis.Cmdable
	requestsPerWindow int
	windowSize        time.Duration
	keyTTL            time.Duration
}

// RedisLimiterConfig holds configuration for the Redis-backed limiter.
type RedisLimiterConfig struct {
	// Redis is the Redis client for cross-process coordination. Required.
	Redis redis.Cmdable

	// RequestsPerWindow is the allowed request count per window. Default: 120.
	RequestsPerWindow int

	// WindowSize is the counting window duration. Default: 1m.
	WindowSize time.Duration
}

// NewRedisLimiter creates a new Redis-backed limiter.
func NewRedisLimiter(cfg *RedisLimiterConfig) (*RedisLimiter, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.RequestsPerWindow < 0 {
		return nil, errors.New("requests per window cannot be negative")
	}

	requests := cfg.RequestsPerWindow
	if requests == 0 {
		requests = DefaultRequestsPerWindow
	}

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}

	return &RedisLimiter{
		redis:             cfg.Redis,
		requestsPerWindow: requests,
		windowSize:        windowSize,
		keyTTL:            windowSize * 2,
	}, nil
}

// allowScript atomically checks and increments the actor's window counter.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used >= limit then
		return {0, used}
	end

	redis.call('INCR', key)
	redis.call('EXPIRE', key, ttl)
	return {1, used + 1}
`)

// Allow attempts to consume one request from the actor's window budget.
func (l *RedisLimiter) Allow(ctx context.Context, actorKey string) (bool, time.Duration) {
	if actorKey == "" {
		return true, 0
	}

	windowTS := time.Now().Truncate(l.windowSize).UnixMilli()
	key := fmt.Sprintf("%s%s:%d", keyPrefixActor, actorKey, windowTS)

	ttlSeconds := int(l.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := allowScript.Run(ctx, l.redis, []string{key},
		l.requestsPerWindow, ttlSeconds).Int64Slice()
	if err != nil {
		// On Redis error, deny the request to be safe
		return false, l.waitTime(windowTS)
	}

	if result[0] != 1 {
		return false, l.waitTime(windowTS)
	}

	return true, 0
}

// waitTime returns the time until the next window starts.
func (l *RedisLimiter) waitTime(windowTS int64) time.Duration {
	windowEnd := time.UnixMilli(windowTS).Add(l.windowSize)
	wait := time.Until(windowEnd)
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Usage returns the actor's request count in the current window.
func (l *RedisLimiter) Usage(ctx context.Context, actorKey string) (int, error) {
	windowTS := time.Now().Truncate(l.windowSize).UnixMilli()
	key := fmt.Sprintf("%s%s:%d", keyPrefixActor, actorKey, windowTS)

	val, err := l.redis.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}

	return val, nil
}
