package seekgz

import (
	"fmt"
	"log/slog"

	"github.com/meigma/seekgz/cache"
	"github.com/meigma/seekgz/internal/index"
)

const (
	// DefaultSpan is the default distance in uncompressed bytes between
	// access points (1 MiB).
	DefaultSpan int64 = 1 << 20

	// DefaultWindowSize is the default history stored with each access point.
	// It equals the largest back-reference distance deflate allows.
	DefaultWindowSize = index.MaxWindowSize

	// DefaultReadConcurrency is the default number of segments CopyRange
	// decodes in parallel.
	DefaultReadConcurrency = 4
)

// BuildOption configures BuildIndex.
type BuildOption func(*buildConfig)

type buildConfig struct {
	span        int64
	windowSize  int
	multistream bool
	logger      *slog.Logger
	progress    ProgressFunc
}

func newBuildConfig(opts []BuildOption) buildConfig {
	cfg := buildConfig{
		span:        DefaultSpan,
		windowSize:  DefaultWindowSize,
		multistream: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *buildConfig) validate() error {
	if c.span <= 0 {
		return fmt.Errorf("seekgz: span %d: must be positive", c.span)
	}
	if !index.ValidWindowSize(c.windowSize) {
		return fmt.Errorf("seekgz: window size %d: must be a power of two between %d and %d",
			c.windowSize, index.MinWindowSize, index.MaxWindowSize)
	}
	return nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *buildConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

func (c *buildConfig) report(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}

// WithSpan sets the target distance in uncompressed bytes between access
// points (default: DefaultSpan). Smaller spans make reads cheaper and the
// index larger.
func WithSpan(n int64) BuildOption {
	return func(c *buildConfig) {
		c.span = n
	}
}

// WithWindowSize sets how much history is stored with each access point
// (default: DefaultWindowSize). It must be a power of two between 256 and
// 32768. Streams whose back-references reach further fail to index with
// ErrWindowTooSmall.
func WithWindowSize(n int) BuildOption {
	return func(c *buildConfig) {
		c.windowSize = n
	}
}

// WithMultistream controls whether concatenated gzip members are indexed as
// one stream (default: true). When false, indexing stops after the first
// member and any following data is ignored.
func WithMultistream(enabled bool) BuildOption {
	return func(c *buildConfig) {
		c.multistream = enabled
	}
}

// WithBuildLogger sets the logger used while building an index.
// If not set, logging is disabled.
func WithBuildLogger(logger *slog.Logger) BuildOption {
	return func(c *buildConfig) {
		c.logger = logger
	}
}

// WithProgress sets a callback for index construction progress.
func WithProgress(fn ProgressFunc) BuildOption {
	return func(c *buildConfig) {
		c.progress = fn
	}
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLogger sets the logger used by a Reader.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithReadConcurrency sets how many segments CopyRange decodes in parallel
// (default: DefaultReadConcurrency). Values < 1 are treated as 1.
func WithReadConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		r.concurrency = max(n, 1)
	}
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

type openConfig struct {
	build  []BuildOption
	reader []ReaderOption
	cache  cache.Cache
}

// WithBuildOptions sets the options used when Open has to build an index.
// Span and window size also select the cache entry.
func WithBuildOptions(opts ...BuildOption) OpenOption {
	return func(c *openConfig) {
		c.build = append(c.build, opts...)
	}
}

// WithReaderOptions sets the options of the Reader returned by Open.
func WithReaderOptions(opts ...ReaderOption) OpenOption {
	return func(c *openConfig) {
		c.reader = append(c.reader, opts...)
	}
}

// WithIndexCache stores built indexes in c, keyed by the source identifier
// and the build parameters, and reuses them on later opens.
func WithIndexCache(c cache.Cache) OpenOption {
	return func(cfg *openConfig) {
		cfg.cache = c
	}
}
