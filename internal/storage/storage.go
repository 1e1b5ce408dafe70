// Package storage provides the durable key-value store abstraction shared by
// the credential store, rate limiter, and idempotency cache.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// ErrUnavailable indicates a transient backend failure. Callers may retry
// with backoff; it must never be swallowed or surfaced as a permission error.
var ErrUnavailable = errors.New("storage: backend unavailable")

// Store defines the operations the gateway core needs from a durable
// key-value backend. All mutating operations must be safe under arbitrary
// interleaving from other gateway instances: PutIfAbsent and IncrWindow are
// the atomic primitives the rate limiter and idempotency cache are built on,
// and must never be emulated with a separate read-then-write.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores value under key only if the key does not already
	// exist. It reports whether the write won.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrWindow atomically increments the counter under key, opening a
	// fixed window of the given length on the first increment. It returns
	// the post-increment count and the instant the window expires.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources.
	Close() error
}
