package interfaces

import "context"

// Cache represents a keyed store with per-entry TTL, used by the Redis-backed
// imports registry.
type Cache[T any] interface {
	// WriteValue writes value in cache with the given TTL (ms); ttlMs <= 0
	// means no expiry.
	// Returns:
	// 1) nil on success;
	// 2) internal_error when marshalling fails or when the storage write fails.
	WriteValue(ctx context.Context, key string, item T, ttlMs int) error

	// ReadValue returns the value for the given key.
	// Returns:
	// 1) (item, nil) when the key exists;
	// 2) (zero, entity_not_found) when the key is absent or expired;
	// 3) (zero, internal_error) when the storage read or unmarshalling fails.
	ReadValue(ctx context.Context, key string) (T, error)

	// ListAllValues returns all values in the cache (lists keys then fetches
	// values for them). Unreadable entries are skipped.
	// Returns:
	// 1) (items, nil) — possibly empty;
	// 2) (nil, internal_error) when listing keys fails.
	ListAllValues(ctx context.Context) ([]T, error)

	// DeleteValue deletes the value for the given key from the cache.
	// Returns:
	// 1) nil on success;
	// 2) internal_error when the storage delete fails.
	DeleteValue(ctx context.Context, key string) error
}
