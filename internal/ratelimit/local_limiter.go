package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per actor key, used when Redis
// is not configured. Each server process enforces the limit independently.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
	limit    rate.Limit
	burst    int
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-process limiter allowing requestsPerWindow
// requests per window with the given burst.
func NewLocalLimiter(requestsPerWindow int, window time.Duration, burst int) *LocalLimiter {
	if requestsPerWindow <= 0 {
		requestsPerWindow = DefaultRequestsPerWindow
	}
	if window <= 0 {
		window = DefaultWindowSize
	}
	if burst <= 0 {
		burst = DefaultBurst
	}

	l := &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:    burst,
	}

	go l.cleanup()

	return l
}

// Allow attempts to consume one request from the actor's bucket.
func (l *LocalLimiter) Allow(_ context.Context, actorKey string) (bool, time.Duration) {
	if actorKey == "" {
		return true, 0
	}

	l.mu.Lock()
	entry, ok := l.limiters[actorKey]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[actorKey] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	res := entry.limiter.Reserve()
	if !res.OK() {
		return false, DefaultWindowSize
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}

	return true, 0
}

// cleanup evicts actor buckets idle for more than ten minutes.
func (l *LocalLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		l.mu.Lock()
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.mu.Unlock()
	}
}
