package disk

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/meigma/seekgz/cache"
)

type countingSource struct {
	data     []byte
	sourceID string
	reads    atomic.Int64
}

func (s *countingSource) ReadAt(p []byte, off int64) (int, error) {
	s.reads.Add(1)
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *countingSource) Size() int64 {
	return int64(len(s.data))
}

func (s *countingSource) SourceID() string {
	return s.sourceID
}

func (s *countingSource) Reads() int64 {
	return s.reads.Load()
}

// rangeSource also serves ReadRange, counting range requests separately.
type rangeSource struct {
	countingSource
	ranges atomic.Int64
}

func (s *rangeSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	s.ranges.Add(1)
	return io.NopCloser(bytes.NewReader(s.data[off : off+length])), nil
}

func TestBlockCacheReadAtReuse(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}

	src := &countingSource{
		data:     []byte("abcdefghijklmnopqrstuvwxyz"),
		sourceID: "source:test",
	}
	cached, err := bc.Wrap(src, cache.WithBlockSize(8))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	buf := make([]byte, 4)
	n, err := cached.ReadAt(buf, 2)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != 4 || string(buf) != "cdef" {
		t.Fatalf("ReadAt() got %q (n=%d), want %q", string(buf), n, "cdef")
	}
	if reads := src.Reads(); reads != 1 {
		t.Fatalf("source reads = %d, want 1", reads)
	}

	buf = make([]byte, 3)
	n, err = cached.ReadAt(buf, 5)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != 3 || string(buf) != "fgh" {
		t.Fatalf("ReadAt() got %q (n=%d), want %q", string(buf), n, "fgh")
	}
	if reads := src.Reads(); reads != 1 {
		t.Fatalf("source reads = %d, want 1 (cache hit)", reads)
	}

	buf = make([]byte, 2)
	n, err = cached.ReadAt(buf, 9)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != 2 || string(buf) != "jk" {
		t.Fatalf("ReadAt() got %q (n=%d), want %q", string(buf), n, "jk")
	}
	if reads := src.Reads(); reads != 2 {
		t.Fatalf("source reads = %d, want 2", reads)
	}
}

func TestBlockCacheSharedAcrossWraps(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}
	data := []byte("0123456789abcdef")

	first := &countingSource{data: data, sourceID: "shared"}
	a, err := bc.Wrap(first, cache.WithBlockSize(4))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	buf := make([]byte, 4)
	if _, err := a.ReadAt(buf, 4); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}

	second := &countingSource{data: data, sourceID: "shared"}
	b, err := bc.Wrap(second, cache.WithBlockSize(4))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}
	if _, err := b.ReadAt(buf, 4); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "4567" {
		t.Fatalf("ReadAt() = %q, want %q", buf, "4567")
	}
	if second.Reads() != 0 {
		t.Fatalf("second source reads = %d, want 0", second.Reads())
	}
}

func TestBlockCacheReadAtEnd(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}
	src := &countingSource{data: []byte("abcdefghij"), sourceID: "end"}
	cached, err := bc.Wrap(src, cache.WithBlockSize(4))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	buf := make([]byte, 5)
	n, err := cached.ReadAt(buf, 7)
	if err != io.EOF {
		t.Fatalf("ReadAt() error = %v, want io.EOF", err)
	}
	if n != 3 || string(buf[:n]) != "hij" {
		t.Fatalf("ReadAt() got %q (n=%d), want %q", buf[:n], n, "hij")
	}
	if _, err := cached.ReadAt(buf, 10); err != io.EOF {
		t.Fatalf("ReadAt(size) error = %v, want io.EOF", err)
	}
}

func TestBlockCacheBypassLargeReads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bc, err := NewBlockCache(dir)
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}
	src := &countingSource{data: bytes.Repeat([]byte("z"), 64), sourceID: "bypass"}
	cached, err := bc.Wrap(src, cache.WithBlockSize(4), cache.WithMaxBlocksPerRead(2))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	buf := make([]byte, 16)
	if _, err := cached.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := bc.SizeBytes(); got != 0 {
		t.Fatalf("SizeBytes() = %d, want 0 for bypassed read", got)
	}
}

func TestBlockCacheUsesRangeReader(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}
	src := &rangeSource{countingSource: countingSource{data: []byte("range-backed data!"), sourceID: "range"}}
	cached, err := bc.Wrap(src, cache.WithBlockSize(8))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	rr, ok := cached.(cache.RangeReader)
	if !ok {
		t.Fatal("wrapped source does not implement RangeReader")
	}
	rc, err := rr.ReadRange(6, 100)
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "backed data!" {
		t.Fatalf("ReadRange() = %q, want %q", got, "backed data!")
	}
	if src.Reads() != 0 {
		t.Fatalf("ReadAt calls = %d, want 0", src.Reads())
	}
	if src.ranges.Load() == 0 {
		t.Fatal("range requests = 0, want > 0")
	}
}

func TestBlockCacheConcurrentFetch(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}
	src := &countingSource{data: bytes.Repeat([]byte("q"), 32), sourceID: "concurrent"}
	cached, err := bc.Wrap(src, cache.WithBlockSize(32))
	if err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			buf := make([]byte, 8)
			if _, err := cached.ReadAt(buf, 4); err != nil {
				t.Errorf("ReadAt() error = %v", err)
			}
		})
	}
	wg.Wait()
	if got := bc.SizeBytes(); got != 32 {
		t.Fatalf("SizeBytes() = %d, want 32", got)
	}
}

func TestBlockCacheWrapInvalid(t *testing.T) {
	t.Parallel()

	bc, err := NewBlockCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlockCache() error = %v", err)
	}

	if _, err := bc.Wrap(&countingSource{data: []byte("data")}); err == nil {
		t.Fatal("Wrap() with empty source id error = nil, want error")
	}
	if _, err := bc.Wrap(&countingSource{data: []byte("data"), sourceID: "x"}, cache.WithBlockSize(0)); err == nil {
		t.Fatal("Wrap() with zero block size error = nil, want error")
	}
	if _, err := bc.Wrap(nil); err == nil {
		t.Fatal("Wrap(nil) error = nil, want error")
	}
}
