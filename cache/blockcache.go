package cache

import "io"

// ByteSource provides random access to compressed data for block caching.
// It has the same method set as seekgz.ByteSource.
type ByteSource interface {
	io.ReaderAt

	// Size returns the total size of the data source in bytes.
	Size() int64

	// SourceID returns a unique identifier for this data source.
	// The ID is part of every block key, so it must be stable across calls
	// and change whenever the content does.
	SourceID() string
}

// RangeReader provides range reads for block fetches.
// When a wrapped source also implements RangeReader, a missing block is
// fetched with a single ReadRange call instead of ReadAt.
type RangeReader interface {
	// ReadRange returns a ReadCloser for reading length bytes starting at off.
	// The caller is responsible for closing the returned ReadCloser.
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// BlockCache wraps ByteSources with block-level caching.
//
// Reads resumed from nearby access points touch the same compressed blocks
// over and over, so a block cache turns repeated range requests into local
// reads. Long sequential scans, such as building an index, gain little;
// MaxBlocksPerRead lets large reads bypass the cache.
type BlockCache interface {
	// Wrap returns a ByteSource that caches reads from src in fixed-size
	// blocks. The returned ByteSource also implements RangeReader.
	Wrap(src ByteSource, opts ...WrapOption) (ByteSource, error)

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached blocks until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}

// DefaultBlockSize is the default block size used by block caches.
const DefaultBlockSize int64 = 64 << 10

// DefaultMaxBlocksPerRead caps cached blocks per ReadAt; larger reads go
// straight to the source.
const DefaultMaxBlocksPerRead = 4

// WrapConfig controls block cache wrapping behavior.
type WrapConfig struct {
	// BlockSize is the size in bytes of each cached block.
	BlockSize int64

	// MaxBlocksPerRead is the maximum number of blocks that will be cached
	// for a single ReadAt call. Reads spanning more blocks bypass the cache.
	// Use 0 to disable the limit.
	MaxBlocksPerRead int
}

// DefaultWrapConfig returns the default block cache configuration.
func DefaultWrapConfig() WrapConfig {
	return WrapConfig{
		BlockSize:        DefaultBlockSize,
		MaxBlocksPerRead: DefaultMaxBlocksPerRead,
	}
}

// WrapOption configures block cache wrapping behavior.
type WrapOption func(*WrapConfig)

// WithBlockSize sets the block size used for caching.
func WithBlockSize(n int64) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.BlockSize = n
	}
}

// WithMaxBlocksPerRead bypasses caching when a ReadAt spans more than n blocks.
// Values <= 0 disable the limit.
func WithMaxBlocksPerRead(n int) WrapOption {
	return func(cfg *WrapConfig) {
		cfg.MaxBlocksPerRead = n
	}
}
