package index

import (
	"bytes"
	"encoding/binary"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/seekgz/internal/fb"
	"github.com/meigma/seekgz/internal/gztype"
)

func window(n int, seed byte) []byte {
	w := make([]byte, n)
	for i := range w {
		w[i] = seed + byte(i%17)
	}
	return w
}

func sampleIndex() *Index {
	return &Index{
		Version:        Version,
		TotalLength:    3 << 20,
		CompressedSize: 1 << 20,
		Span:           1 << 20,
		WindowSize:     MaxWindowSize,
		Points: []AccessPoint{
			{CompressedOffset: 10, UncompressedOffset: 0},
			{CompressedOffset: 300_000, Bits: 3, BitValue: 0x5, UncompressedOffset: 1 << 20, Window: window(MaxWindowSize, 'a')},
			{CompressedOffset: 650_000, Bits: 7, BitValue: 0x7f, UncompressedOffset: 2 << 20, Window: window(MaxWindowSize, 'k')},
		},
	}
}

func TestEncodeLoad(t *testing.T) {
	t.Parallel()

	idx := sampleIndex()
	data, err := Encode(idx)
	require.NoError(t, err)
	assert.Equal(t, []byte("SGZI"), data[4:8])
	assert.Less(t, len(data), 2*MaxWindowSize, "windows should be compressed")

	got, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, idx, got)
}

func TestEncodeDeterministic(t *testing.T) {
	t.Parallel()

	a, err := Encode(sampleIndex())
	require.NoError(t, err)
	b, err := Encode(sampleIndex())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

// withPointCount returns a copy of data whose points vector claims n entries.
func withPointCount(t *testing.T, data []byte, n uint32) []byte {
	t.Helper()
	out := bytes.Clone(data)
	tab := fb.GetRootAsIndex(out, 0).Table()
	o := flatbuffers.UOffsetT(tab.Offset(14))
	require.NotZero(t, o, "points field missing")
	start := tab.Vector(o)
	binary.LittleEndian.PutUint32(out[start-4:], n)
	return out
}

func TestLoadInvalid(t *testing.T) {
	t.Parallel()

	valid, err := Encode(sampleIndex())
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 2, 3}},
		{"wrong identifier", append(append([]byte{}, valid[:4]...), append([]byte("XXXX"), valid[8:]...)...)},
		{"truncated", bytes.Clone(valid[:len(valid)/3])},
		{"garbage", append([]byte{0xff, 0xff, 0xff, 0x7f, 'S', 'G', 'Z', 'I'}, make([]byte, 32)...)},
		{"huge point count", withPointCount(t, valid, 0x7fffffff)},
		{"point count past buffer", withPointCount(t, valid, uint32(len(valid)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(tt.data)
			assert.ErrorIs(t, err, gztype.ErrInvalidIndex)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Index)
	}{
		{"version", func(idx *Index) { idx.Version = 2 }},
		{"window size not power of two", func(idx *Index) { idx.WindowSize = 1000 }},
		{"window size too small", func(idx *Index) { idx.WindowSize = 128 }},
		{"span", func(idx *Index) { idx.Span = 0 }},
		{"no points", func(idx *Index) { idx.Points = nil }},
		{"first point not at zero", func(idx *Index) { idx.Points = idx.Points[1:] }},
		{"unordered", func(idx *Index) { idx.Points[1], idx.Points[2] = idx.Points[2], idx.Points[1] }},
		{"carried bits", func(idx *Index) { idx.Points[1].Bits = 8 }},
		{"bit value exceeds bits", func(idx *Index) { idx.Points[1].BitValue = 0xff }},
		{"window length", func(idx *Index) { idx.Points[1].Window = idx.Points[1].Window[:100] }},
		{"past end", func(idx *Index) { idx.TotalLength = 1 << 20 }},
		{"compressed offset", func(idx *Index) { idx.CompressedSize = 100 }},
		{"bits before first byte", func(idx *Index) {
			idx.Points[0].CompressedOffset = 0
			idx.Points[0].Bits = 2
			idx.Points[0].BitValue = 1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			idx := sampleIndex()
			tt.mutate(idx)
			assert.ErrorIs(t, idx.Validate(), gztype.ErrInvalidIndex)
			_, err := Encode(idx)
			assert.ErrorIs(t, err, gztype.ErrInvalidIndex)
		})
	}

	require.NoError(t, sampleIndex().Validate())
}

func TestFind(t *testing.T) {
	t.Parallel()

	idx := sampleIndex()
	tests := []struct {
		offset int64
		want   int
	}{
		{0, 0},
		{1, 0},
		{1<<20 - 1, 0},
		{1 << 20, 1},
		{2<<20 + 5, 2},
		{3 << 20, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, idx.Find(tt.offset), "offset %d", tt.offset)
	}
}

func TestBitOffset(t *testing.T) {
	t.Parallel()

	p := AccessPoint{CompressedOffset: 100, Bits: 3}
	assert.Equal(t, int64(797), p.BitOffset())
}
