package storage

import (
	"context"
)

// Store defines the interface for the persisted state store.
//
// The reconciliation core is a pure function of (persisted state, event,
// relation facts); everything that must survive a process restart goes
// through this interface: relation databags, the fact cache, the published
// config document and its version counter.
type Store interface {
	// Get retrieves a value by key. The second return is false when the key
	// is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a key-value pair, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int, error)

	// List returns all key-value pairs whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// DeletePrefix removes every key under prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Increment atomically adds delta to the integer stored at key (0 when
	// absent) and returns the new value.
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Close releases the underlying backend.
	Close() error
}
