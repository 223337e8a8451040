// Package gzip reads gzip member framing (RFC 1952) around deflate data.
//
// Decompression itself is left to internal/flate; this package only parses
// member headers and checks member trailers.
package gzip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"time"

	"github.com/meigma/seekgz/internal/gztype"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText    = 1 << 0
	flagHdrCrc  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
	flagReserve = 0xe0

	// TrailerSize is the length of the CRC-32 and ISIZE trailer.
	TrailerSize = 8
)

// Header is the metadata of one gzip member.
type Header struct {
	Text    bool
	Comment string
	Extra   []byte
	ModTime time.Time
	Name    string
	OS      byte

	// Len is the encoded length of the header in bytes.
	Len int
}

// ReadHeader parses a member header from r. It returns io.EOF unwrapped when
// r is exhausted before the first byte, which marks a clean end of a
// multistream input.
func ReadHeader(r io.ByteReader) (Header, error) {
	hr := &headerReader{r: r, crc: crc32.NewIEEE()}

	var fixed [10]byte
	for i := range fixed {
		c, err := r.ReadByte()
		if err != nil {
			if i == 0 && err == io.EOF {
				return Header{}, io.EOF
			}
			return Header{}, incomplete(err)
		}
		fixed[i] = c
	}
	_, _ = hr.crc.Write(fixed[:])
	hr.n = len(fixed)

	if fixed[0] != gzipID1 || fixed[1] != gzipID2 {
		return Header{}, fmt.Errorf("%w: bad gzip magic %#02x %#02x", gztype.ErrCorruptStream, fixed[0], fixed[1])
	}
	if fixed[2] != gzipDeflate {
		return Header{}, fmt.Errorf("%w: unsupported compression method %d", gztype.ErrCorruptStream, fixed[2])
	}
	flg := fixed[3]
	if flg&flagReserve != 0 {
		return Header{}, fmt.Errorf("%w: reserved header flags %#02x", gztype.ErrCorruptStream, flg)
	}

	h := Header{Text: flg&flagText != 0, OS: fixed[9]}
	if t := int64(binary.LittleEndian.Uint32(fixed[4:8])); t > 0 {
		// Section 2.3.1, the zero value for MTIME means that the
		// modified time is not set.
		h.ModTime = time.Unix(t, 0)
	}

	if flg&flagExtra != 0 {
		n, err := hr.readUint16()
		if err != nil {
			return Header{}, err
		}
		h.Extra = make([]byte, n)
		if err := hr.full(h.Extra); err != nil {
			return Header{}, err
		}
	}

	var err error
	if flg&flagName != 0 {
		if h.Name, err = hr.cstring(); err != nil {
			return Header{}, err
		}
	}
	if flg&flagComment != 0 {
		if h.Comment, err = hr.cstring(); err != nil {
			return Header{}, err
		}
	}

	if flg&flagHdrCrc != 0 {
		want := uint16(hr.crc.Sum32())
		got, err := hr.readUint16()
		if err != nil {
			return Header{}, err
		}
		if got != want {
			return Header{}, fmt.Errorf("%w: header checksum mismatch", gztype.ErrCorruptStream)
		}
	}

	h.Len = hr.n
	return h, nil
}

// Trailer is the CRC-32 and uncompressed length (mod 2^32) ending a member.
type Trailer struct {
	CRC32 uint32
	Size  uint32
}

// ReadTrailer reads a member trailer from r.
func ReadTrailer(r io.ByteReader) (Trailer, error) {
	var buf [TrailerSize]byte
	for i := range buf {
		c, err := r.ReadByte()
		if err != nil {
			return Trailer{}, incomplete(err)
		}
		buf[i] = c
	}
	return Trailer{
		CRC32: binary.LittleEndian.Uint32(buf[:4]),
		Size:  binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// Verify checks the trailer against the digest and length of the member's
// uncompressed data.
func (t Trailer) Verify(crc uint32, size int64) error {
	if t.CRC32 != crc {
		return fmt.Errorf("%w: checksum mismatch (have %08x, want %08x)", gztype.ErrCorruptStream, crc, t.CRC32)
	}
	if t.Size != uint32(size) {
		return fmt.Errorf("%w: length mismatch (have %d, want %d mod 2^32)", gztype.ErrCorruptStream, size, t.Size)
	}
	return nil
}

type headerReader struct {
	r   io.ByteReader
	crc hash.Hash32
	n   int
}

func (hr *headerReader) readByte() (byte, error) {
	c, err := hr.r.ReadByte()
	if err != nil {
		return 0, incomplete(err)
	}
	_, _ = hr.crc.Write([]byte{c})
	hr.n++
	return c, nil
}

func (hr *headerReader) readUint16() (uint16, error) {
	lo, err := hr.readByte()
	if err != nil {
		return 0, err
	}
	hi, err := hr.readByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (hr *headerReader) full(p []byte) error {
	for i := range p {
		c, err := hr.readByte()
		if err != nil {
			return err
		}
		p[i] = c
	}
	return nil
}

// cstring reads a NUL-terminated ISO 8859-1 (Latin-1) string.
func (hr *headerReader) cstring() (string, error) {
	var s []rune
	for {
		c, err := hr.readByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(s), nil
		}
		s = append(s, rune(c))
	}
}

func incomplete(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated gzip framing", gztype.ErrIncompleteStream)
	}
	return err
}
