// Package dedup defines the deduplication store contract.
//
// A store remembers dedup keys until an absolute expiry, after which the
// backing service purges them on its own. Entries are never updated or
// deleted by the router.
package dedup

import (
	"context"
	"time"
)

// Store records which dedup keys have already been seen.
// All implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether key is present. Keys that were never inserted
	// return false without an error.
	Exists(ctx context.Context, key string) (bool, error)

	// Put inserts key with an absolute expiry.
	Put(ctx context.Context, key string, expiresAt time.Time) error

	// PutIfAbsent atomically inserts key unless it is already present and
	// reports whether it existed before the call.
	PutIfAbsent(ctx context.Context, key string, expiresAt time.Time) (existed bool, err error)

	// Close releases resources held by the store.
	Close() error
}

// Pinger is implemented by stores that can report their availability.
type Pinger interface {
	Ping(ctx context.Context) error
}
