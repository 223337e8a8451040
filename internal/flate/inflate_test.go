package flate

import (
	"bytes"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	kflate "github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/seekgz/internal/gztype"
)

var words = strings.Fields(`lorem ipsum dolor sit amet consectetur adipiscing elit sed do
	eiusmod tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis
	nostrud exercitation ullamco laboris nisi aliquip ex ea commodo consequat`)

// sampleText returns n bytes of compressible text that is stable across runs.
func sampleText(n int) []byte {
	rng := rand.New(rand.NewPCG(1, 2))
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString(words[rng.IntN(len(words))])
		if rng.IntN(12) == 0 {
			buf.WriteByte('\n')
		} else {
			buf.WriteByte(' ')
		}
	}
	return buf.Bytes()[:n]
}

// deflate compresses data as raw deflate, flushing every flushEvery bytes so
// the stream has block boundaries at predictable places.
func deflate(t *testing.T, data []byte, level, flushEvery int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := kflate.NewWriter(&buf, level)
	require.NoError(t, err)
	for len(data) > 0 {
		n := min(flushEvery, len(data))
		_, err := w.Write(data[:n])
		require.NoError(t, err)
		require.NoError(t, w.Flush())
		data = data[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func inflate(t *testing.T, comp []byte, c Cursor, dict []byte) ([]byte, error) {
	t.Helper()
	br, err := NewBitReader(bytes.NewReader(comp[c.Offset:]), c)
	require.NoError(t, err)
	return io.ReadAll(NewDecompressor(br, dict))
}

func TestDecompressorRoundTrip(t *testing.T) {
	t.Parallel()

	data := sampleText(300 << 10)
	levels := map[string]int{
		"stored":       kflate.NoCompression,
		"best speed":   kflate.BestSpeed,
		"default":      kflate.DefaultCompression,
		"best":         kflate.BestCompression,
		"huffman only": kflate.HuffmanOnly,
	}
	for name, level := range levels {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			comp := deflate(t, data, level, 48<<10)
			got, err := inflate(t, comp, Cursor{}, nil)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got), "output mismatch")
		})
	}
}

func TestDecompressorEmpty(t *testing.T) {
	t.Parallel()

	comp := deflate(t, nil, kflate.DefaultCompression, 1)
	got, err := inflate(t, comp, Cursor{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecompressorResumeAtBoundary(t *testing.T) {
	t.Parallel()

	data := sampleText(400 << 10)
	comp := deflate(t, data, kflate.BestCompression, 40<<10)

	type saved struct {
		cursor Cursor
		out    int64
		window []byte
	}
	var boundaries []saved

	br, err := NewBitReader(bytes.NewReader(comp), Cursor{})
	require.NoError(t, err)
	d := NewDecompressor(br, nil)
	d.OnBoundary(func(b Boundary) error {
		boundaries = append(boundaries, saved{b.Cursor, b.Out, b.Window(WindowSize)})
		return nil
	})
	got, err := io.ReadAll(d)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.GreaterOrEqual(t, len(boundaries), 9)
	assert.LessOrEqual(t, d.MaxDistance(), WindowSize)
	assert.Positive(t, d.MaxDistance())

	prev := int64(-1)
	for _, b := range boundaries {
		assert.GreaterOrEqual(t, b.out, prev, "boundaries must not go backwards")
		prev = b.out

		require.LessOrEqual(t, b.cursor.Bits, uint8(7))
		wantWin := data[max(0, b.out-WindowSize):b.out]
		require.Equal(t, wantWin, b.window)

		rest, err := inflate(t, comp, b.cursor, b.window)
		require.NoError(t, err, "resume at bit %d", b.cursor.BitOffset())
		require.True(t, bytes.Equal(data[b.out:], rest), "resume at out %d", b.out)
	}
}

func TestDecompressorResumeWithoutHistory(t *testing.T) {
	t.Parallel()

	data := sampleText(200 << 10)
	comp := deflate(t, data, kflate.BestCompression, 64<<10)

	var at *Cursor
	br, err := NewBitReader(bytes.NewReader(comp), Cursor{})
	require.NoError(t, err)
	d := NewDecompressor(br, nil)
	d.OnBoundary(func(b Boundary) error {
		if at == nil {
			c := b.Cursor
			at = &c
		}
		return nil
	})
	_, err = io.ReadAll(d)
	require.NoError(t, err)
	require.NotNil(t, at)

	_, err = inflate(t, comp, *at, nil)
	assert.ErrorIs(t, err, gztype.ErrCorruptStream)
}

func TestDecompressorErrors(t *testing.T) {
	t.Parallel()

	t.Run("reserved block type", func(t *testing.T) {
		t.Parallel()
		_, err := inflate(t, []byte{0x07}, Cursor{}, nil)
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})

	t.Run("stored length check", func(t *testing.T) {
		t.Parallel()
		_, err := inflate(t, []byte{0x01, 0x05, 0x00, 0x00, 0x00}, Cursor{}, nil)
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		comp := deflate(t, sampleText(64<<10), kflate.DefaultCompression, 64<<10)
		_, err := inflate(t, comp[:len(comp)/2], Cursor{}, nil)
		assert.ErrorIs(t, err, gztype.ErrIncompleteStream)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		_, err := inflate(t, nil, Cursor{}, nil)
		assert.ErrorIs(t, err, gztype.ErrIncompleteStream)
	})

	t.Run("boundary callback error", func(t *testing.T) {
		t.Parallel()
		comp := deflate(t, sampleText(64<<10), kflate.DefaultCompression, 16<<10)
		br, err := NewBitReader(bytes.NewReader(comp), Cursor{})
		require.NoError(t, err)
		d := NewDecompressor(br, nil)
		d.OnBoundary(func(Boundary) error { return io.ErrShortWrite })
		_, err = io.ReadAll(d)
		assert.ErrorIs(t, err, io.ErrShortWrite)
	})
}

func TestBitReaderCursor(t *testing.T) {
	t.Parallel()

	br, err := NewBitReader(bytes.NewReader([]byte{0xAB, 0xCD, 0xEF}), Cursor{})
	require.NoError(t, err)

	v, err := br.bits(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAB&7), v)

	c := br.Cursor()
	assert.Equal(t, Cursor{Offset: 1, Bits: 5, Value: 0xAB >> 3}, c)
	assert.Equal(t, int64(3), c.BitOffset())

	// Resume from the cursor and read the same bits again.
	br2, err := NewBitReader(bytes.NewReader([]byte{0xCD, 0xEF}), c)
	require.NoError(t, err)
	a, err := br.bits(13)
	require.NoError(t, err)
	b, err := br2.bits(13)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = NewBitReader(bytes.NewReader(nil), Cursor{Bits: 8})
	assert.Error(t, err)
}

func TestPoolReuse(t *testing.T) {
	t.Parallel()

	data := sampleText(100 << 10)
	comp := deflate(t, data, kflate.DefaultCompression, 32<<10)
	p := NewPool()

	for range 3 {
		br, err := NewBitReader(bytes.NewReader(comp), Cursor{})
		require.NoError(t, err)
		d, release := p.Get(br, nil)
		got, err := io.ReadAll(d)
		release()
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, got))
	}
}
