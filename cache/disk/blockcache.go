package disk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/seekgz/cache"
)

// BlockCache provides a disk-backed block cache for compressed sources.
// Blocks are stored as individual files keyed by a digest of the source
// identifier, block size and block number. The cache is safe for
// concurrent use.
type BlockCache struct {
	store
	fetchGroup singleflight.Group // deduplicates concurrent fetches for same block
}

// BlockCacheOption configures a disk-backed block cache.
type BlockCacheOption func(*BlockCache)

// WithBlockMaxBytes sets the maximum size in bytes for the block cache.
// Use 0 to disable the limit.
func WithBlockMaxBytes(n int64) BlockCacheOption {
	return func(c *BlockCache) {
		c.maxBytes = n
	}
}

// WithBlockShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithBlockShardPrefixLen(n int) BlockCacheOption {
	return func(c *BlockCache) {
		c.shardPrefixLen = n
	}
}

// WithBlockDirPerm sets the directory permissions used for cache directories.
func WithBlockDirPerm(mode os.FileMode) BlockCacheOption {
	return func(c *BlockCache) {
		c.dirPerm = mode
	}
}

// NewBlockCache creates a disk-backed block cache rooted at dir.
func NewBlockCache(dir string, opts ...BlockCacheOption) (*BlockCache, error) {
	c := &BlockCache{}
	c.dir = dir
	c.shardPrefixLen = defaultShardPrefixLen
	c.dirPerm = defaultDirPerm
	for _, opt := range opts {
		opt(c)
	}
	if err := c.open("block cache"); err != nil {
		return nil, err
	}
	return c, nil
}

// Wrap returns a ByteSource that caches reads in fixed-size blocks.
func (c *BlockCache) Wrap(src cache.ByteSource, opts ...cache.WrapOption) (cache.ByteSource, error) {
	if src == nil {
		return nil, errors.New("block cache: source is nil")
	}
	cfg := cache.DefaultWrapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BlockSize <= 0 {
		return nil, errors.New("block cache: block size must be > 0")
	}
	if cfg.BlockSize > math.MaxInt {
		return nil, errors.New("block cache: block size exceeds max int")
	}
	if cfg.MaxBlocksPerRead < 0 {
		return nil, errors.New("block cache: max blocks per read must be >= 0")
	}
	sourceID := src.SourceID()
	if sourceID == "" {
		return nil, errors.New("block cache: source id is empty")
	}
	return &cachedSource{
		src:              src,
		cache:            c,
		sourceID:         sourceID,
		blockSize:        cfg.BlockSize,
		maxBlocksPerRead: cfg.MaxBlocksPerRead,
	}, nil
}

// cachedSource wraps a ByteSource with block-level caching.
type cachedSource struct {
	src              cache.ByteSource
	cache            *BlockCache
	sourceID         string
	blockSize        int64
	maxBlocksPerRead int
}

func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	size := s.src.Size()
	if off >= size {
		return 0, io.EOF
	}

	expected := min(int64(len(p)), size-off)
	startBlock := off / s.blockSize
	endBlock := (off + expected - 1) / s.blockSize

	if s.maxBlocksPerRead > 0 && endBlock-startBlock+1 > int64(s.maxBlocksPerRead) {
		return s.src.ReadAt(p, off)
	}

	var n int64
	for block := startBlock; block <= endBlock; block++ {
		blockStart := block * s.blockSize
		blockEnd := min(blockStart+s.blockSize, size)

		data, err := s.cache.getBlock(s.sourceID, s.blockSize, block, blockEnd-blockStart, func() ([]byte, error) {
			return s.readBlock(blockStart, blockEnd-blockStart)
		})
		if err != nil {
			return int(n), err
		}

		copyStart := max(off, blockStart)
		copyEnd := min(off+expected, blockEnd)
		n += int64(copy(p[copyStart-off:copyEnd-off], data[copyStart-blockStart:copyEnd-blockStart]))
	}

	if expected < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// ReadRange serves the range from cached blocks. Short ranges at the end of
// the source are truncated to the source size.
func (s *cachedSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	if length < 0 {
		return nil, fmt.Errorf("read range length %d: negative length", length)
	}
	if off < 0 {
		return nil, fmt.Errorf("read range %d: negative offset", off)
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	size := s.src.Size()
	if off >= size {
		return nil, io.EOF
	}
	length = min(length, size-off)
	return io.NopCloser(io.NewSectionReader(s, off, length)), nil
}

func (s *cachedSource) Size() int64 {
	return s.src.Size()
}

func (s *cachedSource) SourceID() string {
	return s.sourceID
}

func (s *cachedSource) readBlock(off, length int64) ([]byte, error) {
	if rr, ok := s.src.(cache.RangeReader); ok {
		rc, err := rr.ReadRange(off, length)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != length {
			return nil, io.ErrUnexpectedEOF
		}
		return data, nil
	}

	buf := make([]byte, int(length))
	n, err := s.src.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) != length {
		return nil, io.ErrUnexpectedEOF
	}
	return buf, nil
}

func (c *BlockCache) getBlock(sourceID string, blockSize, block, blockLen int64, fetch func() ([]byte, error)) ([]byte, error) {
	key := blockKey(sourceID, blockSize, block)
	path, err := c.path(key)
	if err != nil {
		return nil, err
	}
	result, err, _ := c.fetchGroup.Do(key.String(), func() (any, error) {
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a validated digest
		switch {
		case err == nil && int64(len(data)) == blockLen:
			return data, nil
		case err == nil:
			// Truncated or stale block.
			_ = c.remove(path)
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}

		data, err = fetch()
		if err != nil {
			return nil, err
		}
		// Cache writes are best-effort; the fetched block is still returned.
		_ = c.write(path, bytes.NewReader(data)) //nolint:errcheck // best-effort
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// blockKey derives the key of one block of a source.
func blockKey(sourceID string, blockSize, block int64) digest.Digest {
	d := digest.Canonical.Digester()
	h := d.Hash()
	_, _ = h.Write([]byte(sourceID)) //nolint:errcheck // hash writes never fail

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(blockSize)) //nolint:gosec // blockSize validated > 0
	binary.BigEndian.PutUint64(buf[8:], uint64(block))     //nolint:gosec // block always >= 0
	_, _ = h.Write(buf[:])                                 //nolint:errcheck // hash writes never fail

	return d.Digest()
}
