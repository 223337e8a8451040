package seekgz

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/seekgz/internal/flate"
	"github.com/meigma/seekgz/internal/sizing"
)

// sourceBufferSize is the read-ahead applied to compressed sources.
const sourceBufferSize = 32 << 10

// Reader serves uncompressed byte ranges of a gzip stream using its index.
//
// Each read resumes decompression at the nearest access point before the
// requested offset, so its cost is bounded by the index span rather than the
// offset. Reader methods are safe for concurrent use; the source is only
// accessed through ReadAt and ReadRange.
type Reader struct {
	src         ByteSource
	idx         *Index
	pool        *flate.Pool
	logger      *slog.Logger
	concurrency int
}

// NewReader creates a Reader for src using idx.
//
// It returns ErrIndexMismatch if src is smaller than the compressed data the
// index covers. The source is borrowed; NewReader never closes it.
func NewReader(src ByteSource, idx *Index, opts ...ReaderOption) (*Reader, error) {
	if src.Size() < idx.CompressedSize() {
		return nil, fmt.Errorf("%w: source has %d bytes, index covers %d",
			ErrIndexMismatch, src.Size(), idx.CompressedSize())
	}
	r := &Reader{
		src:         src,
		idx:         idx,
		pool:        flate.NewPool(),
		concurrency: DefaultReadConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (r *Reader) log() *slog.Logger {
	if r.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.logger
}

// Index returns the index used by the reader.
func (r *Reader) Index() *Index {
	return r.idx
}

// TotalLength returns the uncompressed length of the stream.
func (r *Reader) TotalLength() int64 {
	return r.idx.TotalLength()
}

// ReadRange returns up to length uncompressed bytes starting at offset.
//
// The result is shorter than length only when the range passes the end of
// the stream; ReadRange(TotalLength(), n) returns an empty slice. It returns
// ErrOutOfRange if offset or length is negative or offset is past the end.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	n, err := r.clamp(offset, length)
	if err != nil {
		return nil, err
	}
	size, err := sizing.ToInt(n, fmt.Errorf("%w: length %d does not fit in memory", ErrOutOfRange, n))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if err := r.readInto(buf, offset); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAt implements io.ReaderAt over the uncompressed stream. It returns
// io.EOF when fewer than len(p) bytes remain.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.clamp(off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := r.readInto(p[:n], off); err != nil {
			return 0, err
		}
	}
	if int(n) < len(p) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// CopyRange writes up to length uncompressed bytes starting at offset to w
// and returns the number of bytes written.
//
// The range is split at access points and the pieces are decoded in
// parallel (see WithReadConcurrency), then written to w in order. At most
// the read concurrency's worth of pieces is held in memory at once.
func (r *Reader) CopyRange(ctx context.Context, w io.Writer, offset, length int64) (int64, error) {
	n, err := r.clamp(offset, length)
	if err != nil {
		return 0, err
	}

	type piece struct {
		off, end int64
		buf      []byte
	}
	var pieces []piece
	cut, end := offset, offset+n
	for p := range r.idx.Points() {
		if p.UncompressedOffset <= cut {
			continue
		}
		if p.UncompressedOffset >= end {
			break
		}
		pieces = append(pieces, piece{off: cut, end: p.UncompressedOffset})
		cut = p.UncompressedOffset
	}
	if cut < end {
		pieces = append(pieces, piece{off: cut, end: end})
	}

	var written int64
	for len(pieces) > 0 {
		batch := pieces[:min(r.concurrency, len(pieces))]
		pieces = pieces[len(batch):]

		g, gctx := errgroup.WithContext(ctx)
		for i := range batch {
			pc := &batch[i]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				pc.buf = make([]byte, pc.end-pc.off)
				return r.readInto(pc.buf, pc.off)
			})
		}
		if err := g.Wait(); err != nil {
			return written, err
		}

		for i := range batch {
			m, err := w.Write(batch[i].buf)
			written += int64(m)
			if err != nil {
				return written, err
			}
			batch[i].buf = nil
		}
	}
	return written, nil
}

// Open returns a File reading the uncompressed stream from the start.
func (r *Reader) Open() *File {
	return &File{r: r}
}

// clamp validates a request and returns how many bytes it covers.
func (r *Reader) clamp(offset, length int64) (int64, error) {
	total := r.idx.TotalLength()
	if offset < 0 || offset > total {
		return 0, fmt.Errorf("%w: offset %d, stream length %d", ErrOutOfRange, offset, total)
	}
	if length < 0 {
		return 0, fmt.Errorf("%w: negative length %d", ErrOutOfRange, length)
	}
	return sizing.Clamp(offset, length, total), nil
}

// readInto fills p with the uncompressed bytes at off. The range must lie
// inside the stream.
func (r *Reader) readInto(p []byte, off int64) error {
	start, stop := r.idx.segment(off, off+int64(len(p)))
	limit := r.idx.CompressedSize()
	if stop < r.idx.Len() {
		limit = r.idx.Point(stop).CompressedOffset
	}

	d, err := r.resume(start, limit, true)
	if err != nil {
		return err
	}
	defer d.close()

	r.log().Debug("read range",
		"offset", off,
		"length", len(p),
		"point", start,
		"gap", off-d.pos)

	if err := d.skip(off - d.pos); err != nil {
		return err
	}
	_, err = d.read(p)
	return err
}

// resume starts decoding at access point i with the compressed input limited
// to [point offset, limit). Range sources are used when ranged is set and the
// source supports them.
func (r *Reader) resume(i int, limit int64, ranged bool) (*decodeState, error) {
	p := r.idx.Point(i)
	length := limit - p.CompressedOffset

	var in io.Reader
	var closer io.Closer
	if rr, ok := r.src.(RangeReader); ok && ranged {
		rc, err := rr.ReadRange(p.CompressedOffset, length)
		if err != nil {
			return nil, err
		}
		in, closer = rc, rc
	} else {
		in = io.NewSectionReader(r.src, p.CompressedOffset, length)
	}

	br, err := flate.NewBitReader(bufio.NewReaderSize(in, sourceBufferSize), flate.Cursor{
		Offset: p.CompressedOffset,
		Bits:   p.Bits,
		Value:  p.BitValue,
	})
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("%w: point %d: %w", ErrInvalidIndex, i, err)
	}

	dec, release := r.pool.Get(br, p.Window)
	return &decodeState{
		s: &memberStream{
			br:          br,
			dec:         dec,
			multistream: true,
		},
		pos:     p.UncompressedOffset,
		total:   r.idx.TotalLength(),
		release: release,
		closer:  closer,
	}, nil
}

// decodeState is a live decoder positioned at an uncompressed offset.
type decodeState struct {
	s       *memberStream
	pos     int64
	total   int64
	release func()
	closer  io.Closer
}

// skip decodes and discards n bytes.
func (d *decodeState) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	m, err := io.CopyN(io.Discard, d.s, n)
	d.pos += m
	if err != nil {
		return d.mapErr(err)
	}
	return nil
}

// read fills p, which must not extend past the end of the stream.
func (d *decodeState) read(p []byte) (int, error) {
	n, err := io.ReadFull(d.s, p)
	d.pos += int64(n)
	if err != nil {
		return n, d.mapErr(err)
	}
	return n, nil
}

// mapErr reports decode failures before the indexed end as an index
// mismatch. Source I/O errors are returned unchanged.
func (d *decodeState) mapErr(err error) error {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: stream ends at offset %d, index expects %d", ErrIndexMismatch, d.pos, d.total)
	case errors.Is(err, ErrCorruptStream), errors.Is(err, ErrIncompleteStream):
		return fmt.Errorf("%w: at offset %d: %w", ErrIndexMismatch, d.pos, err)
	default:
		return err
	}
}

func (d *decodeState) close() {
	if d.release != nil {
		d.release()
		d.release = nil
	}
	if d.closer != nil {
		_ = d.closer.Close()
		d.closer = nil
	}
}
