package testutil

import (
	"bytes"
	"io"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var words = strings.Fields(`the quick brown fox jumps over a lazy dog while seven
	wizards quietly hex jumbo pies and a small sphinx of black quartz judges vows
	pack my box with five dozen liquor jugs`)

// Text returns n bytes of compressible text. The same seed always yields
// the same bytes.
func Text(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	var buf bytes.Buffer
	buf.Grow(n + 16)
	for buf.Len() < n {
		buf.WriteString(words[rng.IntN(len(words))])
		if rng.IntN(10) == 0 {
			buf.WriteByte('\n')
		} else {
			buf.WriteByte(' ')
		}
	}
	return buf.Bytes()[:n]
}

// Random returns n incompressible bytes. The same seed always yields the
// same bytes.
func Random(n int, seed uint64) []byte {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Uint32())
	}
	return out
}

// GzipOptions controls how fixtures are compressed.
type GzipOptions struct {
	// Level is the compression level; 0 means gzip.DefaultCompression.
	Level int
	// FlushEvery forces a block boundary after this many input bytes.
	// 0 leaves block placement to the compressor.
	FlushEvery int
	// Name and Comment are written to the member header.
	Name    string
	Comment string
}

// Gzip compresses data as a single gzip member.
func Gzip(tb testing.TB, data []byte, opts GzipOptions) []byte {
	tb.Helper()
	var buf bytes.Buffer
	writeMember(tb, &buf, data, opts)
	return buf.Bytes()
}

// GzipMembers compresses each part as its own member and concatenates them.
func GzipMembers(tb testing.TB, opts GzipOptions, parts ...[]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	for _, p := range parts {
		writeMember(tb, &buf, p, opts)
	}
	return buf.Bytes()
}

func writeMember(tb testing.TB, w io.Writer, data []byte, opts GzipOptions) {
	tb.Helper()
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	zw, err := gzip.NewWriterLevel(w, level)
	require.NoError(tb, err)
	zw.Name = opts.Name
	zw.Comment = opts.Comment

	if opts.FlushEvery <= 0 {
		_, err = zw.Write(data)
		require.NoError(tb, err)
	}
	for opts.FlushEvery > 0 && len(data) > 0 {
		n := min(opts.FlushEvery, len(data))
		_, err = zw.Write(data[:n])
		require.NoError(tb, err)
		require.NoError(tb, zw.Flush())
		data = data[n:]
	}
	require.NoError(tb, zw.Close())
}

// Gunzip fully decodes a (possibly multi-member) gzip stream. Tests use it
// as the reference decode.
func Gunzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(tb, err)
	out, err := io.ReadAll(zr)
	require.NoError(tb, err)
	require.NoError(tb, zr.Close())
	return out
}
