// Package kvstore is the key-value persistence layer behind the audit log and
// campaign notes. It stands in for browser local storage: values are opaque
// strings addressed by namespaced keys, and every write replaces the whole
// value. Callers that need read-modify-write atomicity serialize it
// themselves; the backends only guarantee each single call.
package kvstore

import "context"

// Store is the contract every backend implements.
type Store interface {
	// Get returns the value stored at key. found is false when the key has
	// never been set or was deleted; that is not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set writes value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}
