package distlock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock creates a Redis-backed distributed lock, used by the
// Orchestrator to ensure only one worker pool runs a given campaign ID
// at a time across hosts.
func NewLock(redisClient *redis.Client, key string, ttl time.Duration) DistLock {
	return NewRedisLock(redisClient, key, ttl)
}
