package gzip

import (
	"bufio"
	"bytes"
	"hash/crc32"
	"io"
	"testing"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/seekgz/internal/gztype"
)

func TestReadHeader(t *testing.T) {
	t.Parallel()

	t.Run("minimal", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := kgzip.NewWriter(&buf)
		require.NoError(t, w.Close())

		h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 10, h.Len)
		assert.Empty(t, h.Name)
		assert.True(t, h.ModTime.IsZero())
	})

	t.Run("optional fields", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		w := kgzip.NewWriter(&buf)
		w.Name = "café.txt"
		w.Comment = "a comment"
		w.Extra = []byte{'S', 'Z', 2, 0, 1, 2}
		w.ModTime = time.Unix(1700000000, 0)
		require.NoError(t, w.Close())

		h, err := ReadHeader(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, "café.txt", h.Name)
		assert.Equal(t, "a comment", h.Comment)
		assert.Equal(t, []byte{'S', 'Z', 2, 0, 1, 2}, h.Extra)
		assert.Equal(t, int64(1700000000), h.ModTime.Unix())
		assert.Equal(t, 10+2+6+len("café.txt")+len("a comment")+2-1, h.Len)
	})

	t.Run("header crc", func(t *testing.T) {
		t.Parallel()
		hdr := []byte{gzipID1, gzipID2, gzipDeflate, flagHdrCrc, 0, 0, 0, 0, 0, 255}
		sum := uint16(crc32.ChecksumIEEE(hdr))
		good := append(append([]byte{}, hdr...), byte(sum), byte(sum>>8))
		h, err := ReadHeader(bytes.NewReader(good))
		require.NoError(t, err)
		assert.Equal(t, 12, h.Len)

		bad := append(append([]byte{}, hdr...), byte(sum)^1, byte(sum>>8))
		_, err = ReadHeader(bytes.NewReader(bad))
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})

	t.Run("clean end", func(t *testing.T) {
		t.Parallel()
		_, err := ReadHeader(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := ReadHeader(bytes.NewReader([]byte{gzipID1, gzipID2, gzipDeflate}))
		assert.ErrorIs(t, err, gztype.ErrIncompleteStream)
	})

	t.Run("bad magic", func(t *testing.T) {
		t.Parallel()
		_, err := ReadHeader(bytes.NewReader([]byte("PK\x03\x04 not a gzip")))
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})

	t.Run("bad method", func(t *testing.T) {
		t.Parallel()
		_, err := ReadHeader(bytes.NewReader([]byte{gzipID1, gzipID2, 7, 0, 0, 0, 0, 0, 0, 255}))
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})

	t.Run("reserved flags", func(t *testing.T) {
		t.Parallel()
		_, err := ReadHeader(bytes.NewReader([]byte{gzipID1, gzipID2, gzipDeflate, 0x20, 0, 0, 0, 0, 0, 255}))
		assert.ErrorIs(t, err, gztype.ErrCorruptStream)
	})
}

func TestTrailer(t *testing.T) {
	t.Parallel()

	payload := []byte("hello, trailer")
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw := buf.Bytes()
	tr, err := ReadTrailer(bufio.NewReader(bytes.NewReader(raw[len(raw)-TrailerSize:])))
	require.NoError(t, err)
	require.NoError(t, tr.Verify(crc32.ChecksumIEEE(payload), int64(len(payload))))

	assert.ErrorIs(t, tr.Verify(0, int64(len(payload))), gztype.ErrCorruptStream)
	assert.ErrorIs(t, tr.Verify(crc32.ChecksumIEEE(payload), 1), gztype.ErrCorruptStream)

	_, err = ReadTrailer(bytes.NewReader(raw[len(raw)-3:]))
	assert.ErrorIs(t, err, gztype.ErrIncompleteStream)
}
