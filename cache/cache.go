package cache

import (
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// Cache stores encoded indexes.
//
// Keys are digests computed by the caller from everything that determines
// the index: the source identifier, span, window size and format version.
// A stale or damaged entry is detected when the index is decoded, and the
// caller is expected to Delete it.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns an fs.File for reading a cached index.
	// Returns nil, false if nothing is stored under key.
	// Each call returns a new file handle.
	Get(key digest.Digest) (fs.File, bool)

	// Put stores an index by reading f to completion.
	// The caller still owns and closes f.
	Put(key digest.Digest, f fs.File) error

	// Delete removes the entry for key. Missing entries are a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
