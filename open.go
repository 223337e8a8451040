package seekgz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/seekgz/cache"
	"github.com/meigma/seekgz/internal/index"
)

// Open returns a Reader for src, building its index with one pass over the
// source.
//
// With WithIndexCache, Open first looks for an index built earlier for the
// same source and build parameters; entries that fail to decode or no longer
// fit the source are deleted and rebuilt. A freshly built index is stored in
// the cache before Open returns. Cache write failures are logged and do not
// fail Open.
func Open(ctx context.Context, src ByteSource, opts ...OpenOption) (*Reader, error) {
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	bcfg := newBuildConfig(cfg.build)
	if err := bcfg.validate(); err != nil {
		return nil, err
	}
	log := bcfg.log()

	var key digest.Digest
	useCache := cfg.cache != nil
	if useCache && src.SourceID() == "" {
		log.Debug("index cache skipped: source has no identifier")
		useCache = false
	}

	var idx *Index
	if useCache {
		key = indexKey(src.SourceID(), &bcfg)
		idx = loadCached(cfg.cache, key, src, &bcfg)
	}

	if idx == nil {
		var err error
		idx, err = buildFromSource(ctx, src, cfg.build)
		if err != nil {
			return nil, err
		}
		if useCache {
			storeCached(cfg.cache, key, idx, &bcfg)
		}
	}

	return NewReader(src, idx, cfg.reader...)
}

// indexKey derives the cache key for an index of sourceID built with cfg.
func indexKey(sourceID string, cfg *buildConfig) digest.Digest {
	return digest.FromString(fmt.Sprintf("seekgz-index|v%d|source:%s|span:%d|window:%d|multistream:%t",
		index.Version, sourceID, cfg.span, cfg.windowSize, cfg.multistream))
}

// buildFromSource scans src from its first byte.
func buildFromSource(ctx context.Context, src ByteSource, opts []BuildOption) (*Index, error) {
	if rr, ok := src.(RangeReader); ok && src.Size() > 0 {
		rc, err := rr.ReadRange(0, src.Size())
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return BuildIndex(ctx, rc, opts...)
	}
	return BuildIndex(ctx, io.NewSectionReader(src, 0, src.Size()), opts...)
}

// loadCached returns the cached index for key, or nil if there is no usable
// entry.
func loadCached(c cache.Cache, key digest.Digest, src ByteSource, cfg *buildConfig) *Index {
	f, ok := c.Get(key)
	if !ok {
		cfg.log().Debug("index cache miss", "key", key)
		return nil
	}
	defer f.Close()

	cfg.report(ProgressEvent{Stage: StageLoadingIndex})
	idx, err := readCached(f, src, cfg)
	if err != nil {
		cfg.log().Warn("discarding cached index", "key", key, "error", err)
		if err := c.Delete(key); err != nil {
			cfg.log().Warn("delete cached index", "key", key, "error", err)
		}
		return nil
	}

	cfg.log().Debug("index cache hit",
		"key", key,
		"points", idx.Len(),
		"uncompressed", idx.TotalLength())
	cfg.report(ProgressEvent{
		Stage:    StageDone,
		BytesIn:  idx.CompressedSize(),
		BytesOut: idx.TotalLength(),
		Points:   idx.Len(),
	})
	return idx
}

func readCached(f fs.File, src ByteSource, cfg *buildConfig) (*Index, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	idx, err := UnmarshalIndex(data)
	if err != nil {
		return nil, err
	}
	switch {
	case idx.Span() != cfg.span || idx.WindowSize() != cfg.windowSize:
		return nil, fmt.Errorf("%w: built with span %d window %d", ErrIndexMismatch, idx.Span(), idx.WindowSize())
	case idx.CompressedSize() > src.Size():
		return nil, fmt.Errorf("%w: index covers %d bytes, source has %d", ErrIndexMismatch, idx.CompressedSize(), src.Size())
	}
	return idx, nil
}

// storeCached writes idx to the cache. Failures are logged only.
func storeCached(c cache.Cache, key digest.Digest, idx *Index, cfg *buildConfig) {
	data, err := idx.MarshalBinary()
	if err != nil {
		cfg.log().Warn("encode index for cache", "error", err)
		return
	}
	cfg.report(ProgressEvent{
		Stage:    StageStoringIndex,
		BytesIn:  idx.CompressedSize(),
		BytesOut: idx.TotalLength(),
		Points:   idx.Len(),
	})
	if err := c.Put(key, newIndexFile(data)); err != nil {
		cfg.log().Warn("store index in cache", "key", key, "error", err)
		return
	}
	cfg.log().Debug("index stored in cache", "key", key, "bytes", len(data))
}

// indexFile presents an encoded index as an fs.File for Cache.Put.
type indexFile struct {
	*bytes.Reader
	size int64
}

func newIndexFile(data []byte) *indexFile {
	return &indexFile{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (f *indexFile) Stat() (fs.FileInfo, error) { return indexFileInfo{size: f.size}, nil }
func (f *indexFile) Close() error               { return nil }

type indexFileInfo struct {
	size int64
}

func (fi indexFileInfo) Name() string       { return "index" }
func (fi indexFileInfo) Size() int64        { return fi.size }
func (fi indexFileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi indexFileInfo) ModTime() time.Time { return time.Time{} }
func (fi indexFileInfo) IsDir() bool        { return false }
func (fi indexFileInfo) Sys() any           { return nil }
