// Package ratelimit provides actor-keyed request rate limiting for the
// portal and operator endpoints.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether an actor may perform another request right now.
// The actor key is whatever identity the caller has: an operator ID for
// authenticated routes, a token hash for portal routes, a remote address
// for everything else.
type Limiter interface {
	// Allow reports whether the request is allowed and, when it is not,
	// a suggested wait before retrying.
	Allow(ctx context.Context, actorKey string) (bool, time.Duration)
}

// Default limiter configuration values.
const (
	DefaultRequestsPerWindow = 120
	DefaultWindowSize        = time.Minute
	DefaultBurst             = 20
)
