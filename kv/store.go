// Package kv holds the small expiring key/value store shared by the rate
// limiter and the federated login handoff. Redis backs it in production and
// an in-process map backs it in tests and single instance deployments.
package kv

import (
	"context"
	"time"
)

// Store is an expiring key/value store.
type Store interface {
	// IncrWithExpire increments key and refreshes its expiry, returning the new value.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// GetDel returns the value of key and deletes it in one step.
	// ok is false when the key does not exist or expired.
	GetDel(ctx context.Context, key string) (value string, ok bool, err error)
	Close() error
}
