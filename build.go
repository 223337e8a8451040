package seekgz

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/meigma/seekgz/internal/flate"
	"github.com/meigma/seekgz/internal/gzip"
	"github.com/meigma/seekgz/internal/index"
)

// buildBufferSize is the read size used while scanning a stream.
const buildBufferSize = 64 << 10

// BuildIndex reads a complete gzip stream from r and returns its index.
//
// Every gzip member header and trailer is validated. Access points are placed
// on deflate block boundaries so that consecutive points are at most span
// bytes apart whenever the stream has a boundary inside that distance.
// The first access point is always at offset 0.
//
// BuildIndex returns ErrCorruptStream for invalid data, ErrIncompleteStream
// when r ends early (including an empty r), and ErrWindowTooSmall when the
// configured window cannot cover the stream's back-references. Read errors
// from r are returned unchanged. The context is checked between blocks.
func BuildIndex(ctx context.Context, r io.Reader, opts ...BuildOption) (*Index, error) {
	cfg := newBuildConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	br, err := flate.NewBitReader(bufio.NewReaderSize(r, buildBufferSize), flate.Cursor{})
	if err != nil {
		return nil, err
	}
	b := &builder{ctx: ctx, cfg: cfg, br: br, started: time.Now()}
	return b.run()
}

// BuildIndexFile builds the index of the gzip file at path.
func BuildIndexFile(ctx context.Context, path string, opts ...BuildOption) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := BuildIndex(ctx, f, opts...)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return idx, nil
}

// builder holds the state of one indexing pass.
type builder struct {
	ctx     context.Context
	cfg     buildConfig
	br      *flate.BitReader
	dec     *flate.Decompressor
	started time.Time

	points []AccessPoint
	last   int64 // uncompressed offset of the last recorded point

	// cand is the latest boundary past last that has not been recorded.
	cand *AccessPoint
}

func (b *builder) run() (*Index, error) {
	log := b.cfg.log()

	if _, err := gzip.ReadHeader(b.br); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrIncompleteStream)
		}
		return nil, err
	}

	b.dec = flate.NewDecompressor(b.br, nil)
	b.dec.OnBoundary(func(bd flate.Boundary) error {
		return b.boundary(bd.Cursor, bd.Out)
	})
	b.record(b.snapshot(b.br.Cursor(), 0))

	s := &memberStream{
		br:          b.br,
		dec:         b.dec,
		multistream: b.cfg.multistream,
		verify:      true,
		onMember: func(gzip.Header) error {
			return b.boundary(b.br.Cursor(), b.dec.Written())
		},
	}
	buf := make([]byte, buildBufferSize)
	for {
		_, err := s.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	total := b.dec.Written()
	if b.cand != nil && total-b.last > b.cfg.span {
		b.record(*b.cand)
	}
	if d := b.dec.MaxDistance(); d > b.cfg.windowSize {
		return nil, fmt.Errorf("%w: distance %d, window %d", ErrWindowTooSmall, d, b.cfg.windowSize)
	}

	idx := &index.Index{
		Version:        index.Version,
		TotalLength:    total,
		CompressedSize: b.br.Cursor().Offset,
		Span:           b.cfg.span,
		WindowSize:     b.cfg.windowSize,
		Points:         b.points,
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	log.Info("index built",
		"members", s.members,
		"compressed", idx.CompressedSize,
		"uncompressed", idx.TotalLength,
		"points", len(idx.Points),
		"elapsed", time.Since(b.started))
	b.cfg.report(ProgressEvent{
		Stage:    StageDone,
		BytesIn:  idx.CompressedSize,
		BytesOut: idx.TotalLength,
		Points:   len(idx.Points),
	})
	return &Index{ix: idx}, nil
}

// boundary handles a position where decoding can resume: a deflate block
// boundary or the start of a following member.
//
// The latest boundary is kept as a candidate. Once the data since the last
// point exceeds the span, the candidate (which is still within the span) is
// recorded; if there is none, the current boundary is.
func (b *builder) boundary(c flate.Cursor, out int64) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	if out == b.last {
		return nil
	}
	if out-b.last > b.cfg.span && b.cand != nil {
		b.record(*b.cand)
	}
	if out-b.last > b.cfg.span {
		b.record(b.snapshot(c, out))
		return nil
	}
	p := b.snapshot(c, out)
	b.cand = &p
	return nil
}

func (b *builder) snapshot(c flate.Cursor, out int64) AccessPoint {
	p := AccessPoint{
		CompressedOffset:   c.Offset,
		Bits:               c.Bits,
		BitValue:           c.Value,
		UncompressedOffset: out,
	}
	if out > 0 {
		p.Window = b.dec.Window(b.cfg.windowSize)
	}
	return p
}

func (b *builder) record(p AccessPoint) {
	b.points = append(b.points, p)
	b.last = p.UncompressedOffset
	b.cand = nil

	b.cfg.log().Debug("access point",
		"index", len(b.points)-1,
		"uncompressed", p.UncompressedOffset,
		"bit_offset", p.BitOffset())
	b.cfg.report(ProgressEvent{
		Stage:    StageBuilding,
		BytesIn:  p.CompressedOffset,
		BytesOut: p.UncompressedOffset,
		Points:   len(b.points),
	})
}
