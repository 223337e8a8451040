package index

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/seekgz/internal/fb"
	"github.com/meigma/seekgz/internal/gztype"
)

// Version is the encoding version written by Encode.
const Version = 1

const (
	// MinWindowSize and MaxWindowSize bound the configurable window size.
	MinWindowSize = 256
	MaxWindowSize = 1 << 15

	// maxDecodedWindow caps zstd output while decoding a single window.
	maxDecodedWindow = 1 << 20
)

// AccessPoint is a position in a gzip stream where decompression can resume.
type AccessPoint struct {
	// CompressedOffset is the first compressed byte not yet consumed.
	CompressedOffset int64

	// Bits is the number of unconsumed bits (0-7) of byte CompressedOffset-1
	// and BitValue holds them, first stream bit lowest.
	Bits     uint8
	BitValue uint8

	// UncompressedOffset is the number of output bytes preceding the point.
	UncompressedOffset int64

	// Window is the output history preceding the point. Its length is
	// min(window size, UncompressedOffset).
	Window []byte
}

// BitOffset returns the absolute position of the point in bits.
func (p AccessPoint) BitOffset() int64 {
	return p.CompressedOffset*8 - int64(p.Bits)
}

// Index is an ordered set of access points over one gzip stream.
type Index struct {
	Version        uint32
	TotalLength    int64
	CompressedSize int64
	Span           int64
	WindowSize     int
	Points         []AccessPoint
}

// Find returns the position of the last point at or before offset.
// The caller must ensure 0 <= offset.
func (idx *Index) Find(offset int64) int {
	i := sort.Search(len(idx.Points), func(i int) bool {
		return idx.Points[i].UncompressedOffset > offset
	})
	return i - 1
}

// ValidWindowSize reports whether n is a power of two within the supported
// window range.
func ValidWindowSize(n int) bool {
	return n >= MinWindowSize && n <= MaxWindowSize && n&(n-1) == 0
}

// Validate checks the structural invariants of idx.
func (idx *Index) Validate() error {
	switch {
	case idx.Version != Version:
		return invalid("unsupported version %d", idx.Version)
	case !ValidWindowSize(idx.WindowSize):
		return invalid("window size %d", idx.WindowSize)
	case idx.Span <= 0:
		return invalid("span %d", idx.Span)
	case idx.TotalLength < 0 || idx.CompressedSize < 0:
		return invalid("negative stream length")
	case len(idx.Points) == 0:
		return invalid("no access points")
	case idx.Points[0].UncompressedOffset != 0:
		return invalid("first access point at offset %d", idx.Points[0].UncompressedOffset)
	}

	prev := AccessPoint{UncompressedOffset: -1}
	for i, p := range idx.Points {
		switch {
		case p.UncompressedOffset <= prev.UncompressedOffset:
			return invalid("point %d: offsets not strictly increasing", i)
		case p.UncompressedOffset > idx.TotalLength:
			return invalid("point %d: offset %d past end of stream", i, p.UncompressedOffset)
		case p.Bits > 7 || int(p.BitValue)>>p.Bits != 0:
			return invalid("point %d: bad carried bits", i)
		case p.CompressedOffset < 0 || p.CompressedOffset > idx.CompressedSize:
			return invalid("point %d: compressed offset %d out of range", i, p.CompressedOffset)
		case p.CompressedOffset == 0 && p.Bits > 0:
			return invalid("point %d: carried bits before the first byte", i)
		case i > 0 && p.BitOffset() <= prev.BitOffset():
			return invalid("point %d: compressed position does not advance", i)
		case int64(len(p.Window)) != min(int64(idx.WindowSize), p.UncompressedOffset):
			return invalid("point %d: window length %d", i, len(p.Window))
		}
		prev = p
	}
	return nil
}

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecodedWindow))
	})
)

// Encode serializes idx. Windows are compressed with zstd.
func Encode(idx *Index) ([]byte, error) {
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	enc, err := encoder()
	if err != nil {
		return nil, fmt.Errorf("create window encoder: %w", err)
	}

	builder := flatbuffers.NewBuilder(1024 + len(idx.Points)*idx.WindowSize/2)

	// Build points in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(idx.Points))
	var scratch []byte
	for i := len(idx.Points) - 1; i >= 0; i-- {
		p := idx.Points[i]

		var window flatbuffers.UOffsetT
		if len(p.Window) > 0 {
			scratch = enc.EncodeAll(p.Window, scratch[:0])
			window = builder.CreateByteVector(scratch)
		}

		fb.AccessPointStart(builder)
		fb.AccessPointAddUncompressedOffset(builder, p.UncompressedOffset)
		fb.AccessPointAddCompressedOffset(builder, p.CompressedOffset)
		fb.AccessPointAddBits(builder, p.Bits)
		fb.AccessPointAddBitValue(builder, p.BitValue)
		if len(p.Window) > 0 {
			fb.AccessPointAddWindow(builder, window)
		}
		fb.AccessPointAddRawWindowSize(builder, uint32(len(p.Window))) //nolint:gosec // bounded by MaxWindowSize
		offsets[i] = fb.AccessPointEnd(builder)
	}

	fb.IndexStartPointsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	points := builder.EndVector(len(offsets))

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, idx.Version)
	fb.IndexAddTotalLength(builder, idx.TotalLength)
	fb.IndexAddCompressedSize(builder, idx.CompressedSize)
	fb.IndexAddSpan(builder, idx.Span)
	fb.IndexAddWindowSize(builder, uint32(idx.WindowSize)) //nolint:gosec // validated above
	fb.IndexAddPoints(builder, points)
	fb.FinishIndexBuffer(builder, fb.IndexEnd(builder))

	return builder.FinishedBytes(), nil
}

// Load parses an encoded index and validates it.
//
// Unlike the encoded form, the returned index does not retain data.
func Load(data []byte) (idx *Index, err error) {
	if len(data) < 8 {
		return nil, invalid("%d bytes is too short", len(data))
	}
	if !bytes.Equal(data[4:8], []byte(fb.IndexIdentifier)) {
		return nil, invalid("missing %q identifier", fb.IndexIdentifier)
	}

	// Malformed offsets make the FlatBuffers accessors index out of range.
	defer func() {
		if r := recover(); r != nil {
			idx, err = nil, invalid("malformed encoding: %v", r)
		}
	}()

	root := fb.GetRootAsIndex(data, 0)
	idx = &Index{
		Version:        root.Version(),
		TotalLength:    root.TotalLength(),
		CompressedSize: root.CompressedSize(),
		Span:           root.Span(),
		WindowSize:     int(root.WindowSize()),
	}
	if idx.Version != Version {
		return nil, invalid("unsupported version %d", idx.Version)
	}
	// Each point costs at least a 4-byte offset in the vector.
	n := root.PointsLength()
	if n < 0 || n > len(data)/4 {
		return nil, invalid("%d access points in %d bytes", n, len(data))
	}

	dec, err := decoder()
	if err != nil {
		return nil, fmt.Errorf("create window decoder: %w", err)
	}

	var p fb.AccessPoint
	for i := range n {
		if !root.Points(&p, i) {
			return nil, invalid("point %d unreadable", i)
		}
		ap := AccessPoint{
			CompressedOffset:   p.CompressedOffset(),
			Bits:               p.Bits(),
			BitValue:           p.BitValue(),
			UncompressedOffset: p.UncompressedOffset(),
		}
		if raw := int(p.RawWindowSize()); raw > 0 {
			if raw > MaxWindowSize {
				return nil, invalid("point %d: window length %d", i, raw)
			}
			ap.Window, err = dec.DecodeAll(p.WindowBytes(), make([]byte, 0, raw))
			if err != nil {
				return nil, invalid("point %d: window: %v", i, err)
			}
			if len(ap.Window) != raw {
				return nil, invalid("point %d: window decodes to %d bytes, want %d", i, len(ap.Window), raw)
			}
		}
		idx.Points = append(idx.Points, ap)
	}

	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", gztype.ErrInvalidIndex, fmt.Sprintf(format, args...))
}
