package ratelimit

import "context"

// RateLimiter caps attempts per key within a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
