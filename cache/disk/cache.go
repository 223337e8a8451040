// Package disk provides filesystem-backed caches for seekgz.
package disk

import (
	"io/fs"
	"os"

	"github.com/opencontainers/go-digest"
)

// Cache implements cache.Cache using the local filesystem.
//
// Each encoded index is one file, stored under the key's algorithm and
// sharded by the first hex characters of its encoded digest. The cache is
// safe for concurrent use.
type Cache struct {
	store
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk-backed index cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{}
	c.dir = dir
	c.shardPrefixLen = defaultShardPrefixLen
	c.dirPerm = defaultDirPerm
	for _, opt := range opts {
		opt(c)
	}
	if err := c.open("cache"); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns an fs.File for reading the index stored under key.
// Returns nil, false if nothing is cached.
func (c *Cache) Get(key digest.Digest) (fs.File, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return nil, false
	}
	return f, true
}

// Put stores an index by reading f to completion.
// The caller still owns and closes f.
func (c *Cache) Put(key digest.Digest, f fs.File) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	return c.write(path, f)
}

// Delete removes the entry for key.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	return c.remove(path)
}
