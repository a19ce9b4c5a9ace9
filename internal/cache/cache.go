// Package cache provides the key/value store the image engine keeps resolved
// URL sets in. Values are opaque bytes with a per-entry TTL.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when no live entry exists for the key.
var ErrMiss = errors.New("cache miss")

// Store is a key/value store with per-entry expiry.
// Implementations must be safe for concurrent use. Get, Set and Delete are
// atomic for a single key; there are no cross-key guarantees.
type Store interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value. The entry
	// is dropped once ttl has elapsed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
