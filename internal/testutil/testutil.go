// Package testutil provides in-memory sources, caches and gzip fixtures
// shared by the seekgz tests.
package testutil

import (
	"bytes"
	"io"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing/fstest"

	"github.com/opencontainers/go-digest"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
	reads    atomic.Int64
}

// NewMockByteSource returns a byte source backed by the provided data.
// Its source identifier is the digest of data.
func NewMockByteSource(data []byte) *MockByteSource {
	return &MockByteSource{data: data, sourceID: digest.FromBytes(data).String()}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	m.reads.Add(1)
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns the digest of the backing data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// ReadCount returns the number of ReadAt calls made so far.
func (m *MockByteSource) ReadCount() int64 {
	return m.reads.Load()
}

// MockRangeSource is a MockByteSource that also serves ReadRange and
// records every requested range.
type MockRangeSource struct {
	*MockByteSource

	mu     sync.Mutex
	ranges [][2]int64
}

// NewMockRangeSource returns a range-capable byte source backed by data.
func NewMockRangeSource(data []byte) *MockRangeSource {
	return &MockRangeSource{MockByteSource: NewMockByteSource(data)}
}

// ReadRange returns the bytes [off, off+length) clipped to the data.
func (m *MockRangeSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	m.ranges = append(m.ranges, [2]int64{off, length})
	m.mu.Unlock()
	if off >= int64(len(m.data)) {
		return nil, io.EOF
	}
	end := min(off+length, int64(len(m.data)))
	return io.NopCloser(bytes.NewReader(m.data[off:end])), nil
}

// Ranges returns the (offset, length) pairs requested so far.
func (m *MockRangeSource) Ranges() [][2]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][2]int64(nil), m.ranges...)
}

// MockCache implements cache.Cache in memory for tests.
type MockCache struct {
	mu      sync.RWMutex
	data    map[digest.Digest][]byte
	gets    atomic.Int64
	puts    atomic.Int64
	deletes atomic.Int64
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns the entry for key as an fs.File.
func (c *MockCache) Get(key digest.Digest) (fs.File, bool) {
	c.gets.Add(1)
	c.mu.RLock()
	data, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	f, err := fstest.MapFS{"entry": &fstest.MapFile{Data: data}}.Open("entry")
	if err != nil {
		return nil, false
	}
	return f, true
}

// Put reads f to completion and stores it under key.
func (c *MockCache) Put(key digest.Digest, f fs.File) error {
	c.puts.Add(1)
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

// Delete removes the entry for key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.deletes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Set stores raw data under key, bypassing Put accounting.
func (c *MockCache) Set(key digest.Digest, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
}

// Keys returns the stored keys.
func (c *MockCache) Keys() []digest.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]digest.Digest, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Puts returns the number of Put calls.
func (c *MockCache) Puts() int64 { return c.puts.Load() }

// Deletes returns the number of Delete calls.
func (c *MockCache) Deletes() int64 { return c.deletes.Load() }

// MaxBytes returns 0 (unlimited).
func (c *MockCache) MaxBytes() int64 { return 0 }

// SizeBytes returns the total size of stored entries.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, v := range c.data {
		n += int64(len(v))
	}
	return n
}

// Prune drops every entry when the cache is above targetBytes.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	size := c.SizeBytes()
	if size <= targetBytes {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data)
	return size, nil
}
