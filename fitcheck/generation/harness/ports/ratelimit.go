package harnessports

import "context"

// RateLimiter coordinates throughput against the model service.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
