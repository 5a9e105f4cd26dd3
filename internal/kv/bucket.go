// Package kv provides key-value buckets with SQLite persistence and an in-memory option.
package kv

// Bucket is the interface for key-value storage operations.
// Values are JSON-encoded.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Store saves a value with the given key.
	Store(key string, value any) error

	// StoreMany saves several values atomically: either all are written or none.
	StoreMany(values map[string]any) error

	// Load decodes the value for key into dst.
	// Returns false if the key doesn't exist.
	Load(key string, dst any) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all keys in the bucket.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}
