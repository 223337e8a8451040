package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	// tmpPrefix marks files that are still being written. They are
	// excluded from size accounting and pruning.
	tmpPrefix = ".tmp-"
)

// store is a size-bounded directory of files named by digest.
// Cache and BlockCache are both built on it.
type store struct {
	dir            string       // root directory for cached files
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune operations
}

func (s *store) open(kind string) error {
	if s.dir == "" {
		return fmt.Errorf("%s dir is empty", kind)
	}
	if s.shardPrefixLen < 0 {
		return fmt.Errorf("%s shard prefix length must be >= 0", kind)
	}
	if s.maxBytes < 0 {
		return fmt.Errorf("%s max bytes must be >= 0", kind)
	}
	if err := os.MkdirAll(s.dir, s.dirPerm); err != nil {
		return err
	}
	size, err := dirSize(s.dir)
	if err != nil {
		return err
	}
	s.bytes.Store(size)
	return nil
}

// path returns the file for key: <dir>/<algorithm>/<shard>/<encoded>.
func (s *store) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("cache key %q: %w", key, err)
	}
	enc := key.Encoded()
	if s.shardPrefixLen <= 0 {
		return filepath.Join(s.dir, key.Algorithm().String(), enc), nil
	}
	prefixLen := min(s.shardPrefixLen, len(enc))
	return filepath.Join(s.dir, key.Algorithm().String(), enc[:prefixLen], enc), nil
}

// write stores the contents of r at path through a temporary file and
// rename. It does nothing if path already exists or the data cannot fit.
func (s *store) write(path string, r io.Reader) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if ok, err := s.ensureCapacity(written); err != nil || !ok {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	s.bytes.Add(written)
	return nil
}

// remove deletes path, treating a missing file as success.
func (s *store) remove(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	s.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (s *store) MaxBytes() int64 {
	return s.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (s *store) SizeBytes() int64 {
	return s.bytes.Load()
}

// Prune removes the oldest entries until the cache is at or below
// targetBytes and returns the number of bytes freed.
func (s *store) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	freed, remaining, err := pruneDir(s.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	s.bytes.Store(remaining)
	return freed, nil
}

func (s *store) ensureCapacity(need int64) (bool, error) {
	if s.maxBytes <= 0 {
		return true, nil
	}
	if need > s.maxBytes {
		return false, nil
	}
	if s.SizeBytes()+need <= s.maxBytes {
		return true, nil
	}
	if _, err := s.Prune(s.maxBytes - need); err != nil {
		return false, err
	}
	return s.SizeBytes()+need <= s.maxBytes, nil
}
