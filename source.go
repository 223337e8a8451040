package seekgz

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// ByteSource provides random access to compressed data.
//
// Implementations exist for local files (FileSource) and HTTP range
// requests (http.Source). SourceID must return a stable identifier for the
// underlying content; it keys block and index caches.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// RangeReader is implemented by sources that can stream a byte range more
// efficiently than repeated ReadAt calls. Reader uses it when available.
type RangeReader interface {
	// ReadRange returns a ReadCloser for reading length bytes starting at off.
	// The caller is responsible for closing the returned ReadCloser.
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// FileSource is a ByteSource backed by a local file.
// os.File has ReadAt but not Size, so the size is cached at open.
type FileSource struct {
	file     *os.File
	size     int64
	sourceID string
}

// OpenFileSource opens the file at path as a ByteSource.
//
// The source identifier is a digest of the absolute path, size, and
// modification time, so a rewritten file gets a new identifier.
// The caller must Close the source.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id := digest.FromString(fmt.Sprintf("file:%s|size:%d|mtime:%d", abs, info.Size(), info.ModTime().UnixNano()))
	return &FileSource{file: f, size: info.Size(), sourceID: id.String()}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the size of the file when it was opened.
func (s *FileSource) Size() int64 {
	return s.size
}

// SourceID returns a stable identifier for the file content.
func (s *FileSource) SourceID() string {
	return s.sourceID
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
