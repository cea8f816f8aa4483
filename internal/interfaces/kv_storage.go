package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist in storage
var ErrKeyNotFound = errors.New("key not found")

// KeyValueStorage provides durable key/value access with TTL and atomic
// counters. Backed by BadgerDB; any store with atomic increment and
// per-key expiration would do.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// IncrementWithTTL atomically increments the counter at key. The TTL is
	// applied when the counter is created and preserved on later increments,
	// so the expiry marks the end of the fixed window. Returns the new count
	// and the remaining window duration.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// GetCounter returns the current counter value, 0 when absent.
	GetCounter(ctx context.Context, key string) (int64, error)

	// ListKeys returns all keys with the given prefix in lexicographic order.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
