package seekgz

import (
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/meigma/seekgz/internal/index"
)

// AccessPoint is a position in a gzip stream where decompression can resume.
//
// Window is shared with the index and must not be modified.
type AccessPoint = index.AccessPoint

// Index is an immutable set of access points over one gzip stream, ordered
// by uncompressed offset. It is safe for concurrent use.
type Index struct {
	ix *index.Index
}

// FindAccessPoint returns the access point with the greatest uncompressed
// offset at or before offset. It returns ErrOutOfRange when offset is
// negative or past TotalLength.
func (x *Index) FindAccessPoint(offset int64) (AccessPoint, error) {
	if offset < 0 || offset > x.ix.TotalLength {
		return AccessPoint{}, fmt.Errorf("%w: offset %d, stream length %d", ErrOutOfRange, offset, x.ix.TotalLength)
	}
	return x.ix.Points[x.ix.Find(offset)], nil
}

// Len returns the number of access points.
func (x *Index) Len() int {
	return len(x.ix.Points)
}

// Point returns the i'th access point. It panics if i is out of range.
func (x *Index) Point(i int) AccessPoint {
	return x.ix.Points[i]
}

// Points returns an iterator over all access points in offset order.
func (x *Index) Points() iter.Seq[AccessPoint] {
	return func(yield func(AccessPoint) bool) {
		for _, p := range x.ix.Points {
			if !yield(p) {
				return
			}
		}
	}
}

// TotalLength returns the uncompressed length of the stream.
func (x *Index) TotalLength() int64 {
	return x.ix.TotalLength
}

// CompressedSize returns the number of compressed bytes the index covers.
func (x *Index) CompressedSize() int64 {
	return x.ix.CompressedSize
}

// Span returns the access point spacing the index was built with.
func (x *Index) Span() int64 {
	return x.ix.Span
}

// WindowSize returns the history size stored with each access point.
func (x *Index) WindowSize() int {
	return x.ix.WindowSize
}

// Version returns the format version of the index.
func (x *Index) Version() uint32 {
	return x.ix.Version
}

// MarshalBinary encodes the index. It implements encoding.BinaryMarshaler.
func (x *Index) MarshalBinary() ([]byte, error) {
	return index.Encode(x.ix)
}

// UnmarshalIndex decodes an index produced by MarshalBinary. It returns
// ErrInvalidIndex if data is malformed or violates index invariants.
func UnmarshalIndex(data []byte) (*Index, error) {
	ix, err := index.Load(data)
	if err != nil {
		return nil, err
	}
	return &Index{ix: ix}, nil
}

// LoadIndexFile reads an index saved with Save.
func LoadIndexFile(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx, err := UnmarshalIndex(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return idx, nil
}

// IndexPath returns the conventional index location for a gzip file.
func IndexPath(gzPath string) string {
	return gzPath + ".idx"
}

// segment returns the positions of the access points to start and stop
// decoding at for the uncompressed range [off, end). The stop point is the
// first point at or past end, or len(Points) if there is none.
func (x *Index) segment(off, end int64) (start, stop int) {
	pts := x.ix.Points
	start = x.ix.Find(off)
	stop = sort.Search(len(pts), func(i int) bool {
		return pts[i].UncompressedOffset >= end
	})
	return start, max(stop, start+1)
}
