// Package blob defines the interface and implementations for galleryd's
// blob store, which holds raw image bytes keyed by an opaque path.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Remove (and reads) when the key has no blob.
// Callers performing a compensating or idempotent delete treat it as
// "already absent" rather than a failure.
var ErrNotFound = errors.New("blob not found")

// Store defines the interface for reading and writing raw blob bytes.
// Implementations provide the underlying mechanism (local filesystem,
// cloud provider, memory). All methods must be safe for concurrent use.
type Store interface {
	// Put writes the data from the reader to the store at the given key
	// and returns the number of bytes written. Put is safe to retry:
	// a retry after an ambiguous failure must not corrupt the blob
	// (last-write-wins on the same key).
	Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error)

	// Remove deletes the blob at the given key. Returns ErrNotFound when
	// the key has no blob.
	Remove(ctx context.Context, key string) error

	// PublicURL returns the stable public URL for the given key. It is
	// pure and deterministic: derived from the key and static backend
	// facts alone, with no I/O.
	PublicURL(key string) string

	// Exists checks whether a blob exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// HealthCheck verifies that the backend is operational.
	HealthCheck(ctx context.Context) error
}
