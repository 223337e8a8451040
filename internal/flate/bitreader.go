// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/seekgz/internal/gztype"
)

// Reader is the input required by BitReader. Inputs that do not implement
// io.ByteReader are wrapped in a bufio.Reader.
type Reader interface {
	io.Reader
	io.ByteReader
}

// Cursor is a resumable position in a deflate stream.
//
// Offset is the first input byte not yet consumed. When the position is not
// byte aligned, Bits holds the number of unconsumed high bits of byte
// Offset-1 and Value holds those bits, first stream bit in the least
// significant position.
type Cursor struct {
	Offset int64
	Bits   uint8
	Value  uint8
}

// BitOffset returns the absolute bit position of c.
func (c Cursor) BitOffset() int64 {
	return c.Offset*8 - int64(c.Bits)
}

// BitReader reads a deflate stream least significant bit first and tracks
// its position in the input. On a byte boundary it is also a plain reader,
// so gzip framing is read through the same cursor as the deflate data.
type BitReader struct {
	r   Reader
	off int64  // bytes consumed from r
	b   uint64 // pending bits, next stream bit in the low position
	nb  uint
	err error // read error deferred by fill
}

// NewBitReader returns a BitReader positioned at c. The caller must have
// positioned r at c.Offset.
func NewBitReader(r io.Reader, c Cursor) (*BitReader, error) {
	if c.Bits > 7 {
		return nil, fmt.Errorf("cursor carries %d bits: want at most 7", c.Bits)
	}
	if c.Offset < 0 {
		return nil, fmt.Errorf("cursor offset %d: negative offset", c.Offset)
	}
	rr, ok := r.(Reader)
	if !ok {
		rr = bufio.NewReader(r)
	}
	return &BitReader{
		r:   rr,
		off: c.Offset,
		b:   uint64(c.Value) & (1<<c.Bits - 1),
		nb:  uint(c.Bits),
	}, nil
}

// Cursor returns the current position.
func (br *BitReader) Cursor() Cursor {
	partial := br.nb % 8
	return Cursor{
		Offset: br.off - int64(br.nb/8),
		Bits:   uint8(partial),
		Value:  uint8(br.b & (1<<partial - 1)),
	}
}

// Align discards bits up to the next byte boundary.
func (br *BitReader) Align() {
	k := br.nb % 8
	br.b >>= k
	br.nb -= k
}

// ReadByte aligns the reader and returns the next whole byte. A clean end of
// input is reported as io.EOF.
func (br *BitReader) ReadByte() (byte, error) {
	br.Align()
	if br.nb > 0 {
		c := byte(br.b)
		br.b >>= 8
		br.nb -= 8
		return c, nil
	}
	if br.err != nil {
		return 0, br.err
	}
	c, err := br.r.ReadByte()
	if err != nil {
		return 0, err
	}
	br.off++
	return c, nil
}

// Read aligns the reader and reads whole bytes into p.
func (br *BitReader) Read(p []byte) (int, error) {
	br.Align()
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(p) && br.nb > 0 {
		p[n] = byte(br.b)
		br.b >>= 8
		br.nb -= 8
		n++
	}
	if n > 0 {
		return n, nil
	}
	if br.err != nil {
		return 0, br.err
	}
	m, err := br.r.Read(p)
	br.off += int64(m)
	return m, err
}

// need buffers at least n bits.
func (br *BitReader) need(n uint) error {
	for br.nb < n {
		if br.err != nil {
			return br.fail()
		}
		c, err := br.r.ReadByte()
		if err != nil {
			br.err = err
			return br.fail()
		}
		br.off++
		br.b |= uint64(c) << br.nb
		br.nb += 8
	}
	return nil
}

// fill buffers up to n bits without reporting errors. A read error is kept
// and surfaces on the next need or ReadByte that cannot be served.
func (br *BitReader) fill(n uint) {
	for br.nb < n && br.err == nil {
		c, err := br.r.ReadByte()
		if err != nil {
			br.err = err
			return
		}
		br.off++
		br.b |= uint64(c) << br.nb
		br.nb += 8
	}
}

// bits consumes and returns the next n bits (n <= 32).
func (br *BitReader) bits(n uint) (uint32, error) {
	if err := br.need(n); err != nil {
		return 0, err
	}
	v := uint32(br.b & (1<<n - 1))
	br.b >>= n
	br.nb -= n
	return v, nil
}

func (br *BitReader) fail() error {
	if errors.Is(br.err, io.EOF) || errors.Is(br.err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: input ends at byte %d", gztype.ErrIncompleteStream, br.off)
	}
	return br.err
}
