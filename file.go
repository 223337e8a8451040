package seekgz

import (
	"errors"
	"fmt"
	"io"
)

// File is a seekable cursor over the uncompressed stream.
//
// Sequential reads continue on a live decoder; a Seek to another position
// drops it and the next Read resumes from the nearest access point. File is
// not safe for concurrent use. Use Reader.ReadAt for concurrent access.
type File struct {
	r   *Reader
	pos int64
	dec *decodeState
}

// Read reads up to len(p) bytes at the current position and advances it.
// It returns io.EOF at the end of the stream and ErrOutOfRange when the
// position has been moved past the end.
func (f *File) Read(p []byte) (int, error) {
	if f.r == nil {
		return 0, errors.New("seekgz: read on closed file")
	}
	total := f.r.TotalLength()
	if f.pos > total {
		return 0, fmt.Errorf("%w: offset %d, stream length %d", ErrOutOfRange, f.pos, total)
	}
	if f.pos == total {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if f.dec == nil || f.dec.pos != f.pos {
		if err := f.resume(); err != nil {
			return 0, err
		}
	}

	p = p[:min(int64(len(p)), total-f.pos)]
	n, err := f.dec.read(p)
	f.pos += int64(n)
	if err != nil {
		f.drop()
		return n, err
	}
	return n, nil
}

// resume replaces the live decoder with one positioned at f.pos.
func (f *File) resume() error {
	f.drop()
	i := f.r.idx.ix.Find(f.pos)
	d, err := f.r.resume(i, f.r.idx.CompressedSize(), false)
	if err != nil {
		return err
	}
	if err := d.skip(f.pos - d.pos); err != nil {
		d.close()
		return err
	}
	f.dec = d
	return nil
}

func (f *File) drop() {
	if f.dec != nil {
		f.dec.close()
		f.dec = nil
	}
}

// Seek implements io.Seeker. Seeking past the end is allowed; a following
// Read reports ErrOutOfRange.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.r == nil {
		return 0, errors.New("seekgz: seek on closed file")
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.r.TotalLength() + offset
	default:
		return 0, fmt.Errorf("seekgz: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("%w: negative position %d", ErrOutOfRange, abs)
	}
	f.pos = abs
	return abs, nil
}

// Tell returns the current position.
func (f *File) Tell() int64 {
	return f.pos
}

// ReadAt implements io.ReaderAt. It does not move the position or disturb
// the live decoder.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.r == nil {
		return 0, errors.New("seekgz: read on closed file")
	}
	return f.r.ReadAt(p, off)
}

// Close releases the live decoder. The underlying source is not closed.
func (f *File) Close() error {
	f.drop()
	f.r = nil
	return nil
}
