// Package storage provides the shared object store the external analysis
// job writes shards into, plus a watcher that turns object writes into
// shard-arrival events for ingestion.
package storage

import "context"

// Store is the object-storage surface the coordination core depends on.
// Keys use forward-slash separators and must preserve numeric path
// segments exactly (no zero-padding, no re-encoding).
type Store interface {
	// List returns all object keys under prefix in lexicographic order.
	// Callers that need numeric shard order sort the result themselves.
	List(ctx context.Context, prefix string) ([]string, error)

	// Get returns the object's bytes.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object. contentType is advisory.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Event is one object-write notification: a shard (or any other object)
// landed in the store.
type Event struct {
	Container string
	Key       string
}
