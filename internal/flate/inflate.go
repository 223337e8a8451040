// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flate implements a raw DEFLATE (RFC 1951) decompressor that can
// stop at block boundaries, report its exact bit position, and resume from a
// saved bit position with a preset dictionary.
//
// The decoding state machine follows compress/flate. Unlike compress/flate,
// the input cursor is explicit (BitReader) so that a position captured at a
// block boundary can be stored and restored verbatim.
package flate

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/meigma/seekgz/internal/gztype"
)

// The length code order of the code length alphabet (RFC 1951 section 3.2.7).
var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Boundary describes the position between two deflate blocks of a stream.
// It is only valid during the callback it is passed to.
type Boundary struct {
	// Cursor is the input position of the next block header.
	Cursor Cursor

	// Out is the number of bytes produced since the decompressor was reset.
	Out int64

	d *Decompressor
}

// Window returns a copy of the last n bytes of output, or fewer if less
// history exists.
func (b Boundary) Window(n int) []byte {
	return b.d.Window(n)
}

// BoundaryFunc is called at every boundary between two blocks of a stream.
// The end of a stream's final block is not a boundary. A non-nil error stops
// decompression and is returned by Read.
type BoundaryFunc func(Boundary) error

// Decompressor inflates raw deflate data read through a BitReader.
type Decompressor struct {
	br *BitReader

	// Output history.
	win window

	// Huffman decoders for literal/length and distance of dynamic blocks.
	h1, h2 huffman

	// Length arrays used to define Huffman codes.
	bits     [maxNumLit + maxNumDist]uint8
	codebits [numCodes]uint8

	// Next step in the decompression and its resumable state.
	step      func(*Decompressor)
	stepState int
	final     bool
	err       error
	toRead    []byte
	hl, hd    *huffman
	copyLen   int
	copyDist  int

	base       int64 // win.total at which the current stream's history starts
	maxDist    int
	onBoundary BoundaryFunc
}

// NewDecompressor returns a decompressor reading from br with dict as preset
// history. Only the last WindowSize bytes of dict are used.
func NewDecompressor(br *BitReader, dict []byte) *Decompressor {
	d := new(Decompressor)
	d.Reset(br, dict)
	return d
}

// Reset discards all state and starts a new stream read from br.
// The history buffer is retained.
func (f *Decompressor) Reset(br *BitReader, dict []byte) {
	*f = Decompressor{
		br:       br,
		win:      f.win,
		h1:       f.h1,
		h2:       f.h2,
		bits:     f.bits,
		codebits: f.codebits,
		step:     (*Decompressor).nextBlock,
	}
	f.win.init(WindowSize, dict)
	f.base = -int64(f.win.histSize())
}

// NextStream starts decoding a new deflate stream on the same input, as
// happens at the start of each gzip member. History is kept for Boundary
// windows but is not addressable by the new stream.
func (f *Decompressor) NextStream() {
	f.step = (*Decompressor).nextBlock
	f.stepState = 0
	f.final = false
	f.err = nil
	f.toRead = nil
	f.base = f.win.total
}

// OnBoundary registers fn to be called at every block boundary.
func (f *Decompressor) OnBoundary(fn BoundaryFunc) {
	f.onBoundary = fn
}

// Written returns the number of bytes produced since Reset.
func (f *Decompressor) Written() int64 {
	return f.win.total
}

// Window returns a copy of the last n bytes of output in order, or fewer if
// less history exists. History from before a NextStream call is included.
func (f *Decompressor) Window(n int) []byte {
	return f.win.tail(n)
}

// MaxDistance returns the longest back-reference distance decoded so far.
func (f *Decompressor) MaxDistance() int {
	return f.maxDist
}

// Read implements io.Reader. It returns io.EOF after the final block of the
// current stream.
func (f *Decompressor) Read(b []byte) (int, error) {
	for {
		if len(f.toRead) > 0 {
			n := copy(b, f.toRead)
			f.toRead = f.toRead[n:]
			if len(f.toRead) == 0 {
				return n, f.err
			}
			return n, nil
		}
		if f.err != nil {
			return 0, f.err
		}
		f.step(f)
		if f.err != nil && len(f.toRead) == 0 {
			f.toRead = f.win.readFlush() // flush what's left in case of error
		}
	}
}

func (f *Decompressor) corrupt(format string, args ...any) {
	f.err = fmt.Errorf("%w: %s at bit %d", gztype.ErrCorruptStream,
		fmt.Sprintf(format, args...), f.br.Cursor().BitOffset())
}

func (f *Decompressor) nextBlock() {
	v, err := f.br.bits(3)
	if err != nil {
		f.err = err
		return
	}
	f.final = v&1 == 1
	switch v >> 1 {
	case 0:
		f.storedBlock()
	case 1:
		f.hl = fixedLiteral()
		f.hd = nil
		f.huffmanBlock()
	case 2:
		if err := f.readHuffman(); err != nil {
			if f.err == nil {
				f.err = err
			}
			return
		}
		f.hl = &f.h1
		f.hd = &f.h2
		f.huffmanBlock()
	default:
		f.corrupt("invalid block type %d", v>>1)
	}
}

func (f *Decompressor) readHuffman() error {
	v, err := f.br.bits(14)
	if err != nil {
		return err
	}
	nlit := int(v&0x1F) + 257
	if nlit > maxNumLit {
		f.corrupt("too many literal/length codes (%d)", nlit)
		return f.err
	}
	ndist := int(v>>5&0x1F) + 1
	if ndist > maxNumDist {
		f.corrupt("too many distance codes (%d)", ndist)
		return f.err
	}
	nclen := int(v>>10) + 4

	for i := range nclen {
		c, err := f.br.bits(3)
		if err != nil {
			return err
		}
		f.codebits[codeOrder[i]] = uint8(c)
	}
	for i := nclen; i < len(codeOrder); i++ {
		f.codebits[codeOrder[i]] = 0
	}
	if !f.h1.init(f.codebits[:], true) {
		f.corrupt("invalid code length code")
		return f.err
	}

	for i, n := 0, nlit+ndist; i < n; {
		x, err := f.huffSym(&f.h1)
		if err != nil {
			return err
		}
		if x < 16 {
			f.bits[i] = uint8(x)
			i++
			continue
		}
		var rep int
		var nb uint
		var b uint8
		switch x {
		case 16:
			if i == 0 {
				f.corrupt("repeat with no previous length")
				return f.err
			}
			rep, nb, b = 3, 2, f.bits[i-1]
		case 17:
			rep, nb = 3, 3
		case 18:
			rep, nb = 11, 7
		default:
			f.corrupt("invalid code length symbol %d", x)
			return f.err
		}
		extra, err := f.br.bits(nb)
		if err != nil {
			return err
		}
		rep += int(extra)
		if i+rep > n {
			f.corrupt("code length repeat overflows")
			return f.err
		}
		for range rep {
			f.bits[i] = b
			i++
		}
	}

	if f.bits[256] == 0 {
		f.corrupt("missing end-of-block code")
		return f.err
	}
	if !f.h1.init(f.bits[:nlit], false) {
		f.corrupt("invalid literal/length code lengths")
		return f.err
	}
	if !f.h2.init(f.bits[nlit:nlit+ndist], false) {
		f.corrupt("invalid distance code lengths")
		return f.err
	}
	return nil
}

// huffmanBlock decodes a block of Huffman codes. It returns when the window
// is full (with stepState set so the next call resumes) or when the block
// ends.
func (f *Decompressor) huffmanBlock() {
	const (
		stateInit = iota // zero value
		stateDict
	)

	switch f.stepState {
	case stateInit:
		goto readLiteral
	case stateDict:
		goto copyHistory
	}

readLiteral:
	{
		v, err := f.huffSym(f.hl)
		if err != nil {
			f.err = err
			return
		}
		var n uint
		var length int
		switch {
		case v < 256:
			f.win.writeByte(byte(v))
			if f.win.availWrite() == 0 {
				f.toRead = f.win.readFlush()
				f.step = (*Decompressor).huffmanBlock
				f.stepState = stateInit
				return
			}
			goto readLiteral
		case v == 256:
			f.finishBlock()
			return
		case v < 265:
			length = v - (257 - 3)
			n = 0
		case v < 269:
			length = v*2 - (265*2 - 11)
			n = 1
		case v < 273:
			length = v*4 - (269*4 - 19)
			n = 2
		case v < 277:
			length = v*8 - (273*8 - 35)
			n = 3
		case v < 281:
			length = v*16 - (277*16 - 67)
			n = 4
		case v < 285:
			length = v*32 - (281*32 - 131)
			n = 5
		case v < maxNumLit:
			length = 258
			n = 0
		default:
			f.corrupt("invalid literal/length symbol %d", v)
			return
		}
		if n > 0 {
			extra, err := f.br.bits(n)
			if err != nil {
				f.err = err
				return
			}
			length += int(extra)
		}

		var dist int
		if f.hd == nil {
			b, err := f.br.bits(5)
			if err != nil {
				f.err = err
				return
			}
			dist = int(bits.Reverse8(uint8(b) << 3))
		} else {
			dist, err = f.huffSym(f.hd)
			if err != nil {
				f.err = err
				return
			}
		}

		switch {
		case dist < 4:
			dist++
		case dist < maxNumDist:
			nb := uint(dist-2) >> 1
			// have 1 bit in bottom of dist, need nb more.
			extra := (dist & 1) << nb
			x, err := f.br.bits(nb)
			if err != nil {
				f.err = err
				return
			}
			extra |= int(x)
			dist = 1<<(nb+1) + 1 + extra
		default:
			f.corrupt("invalid distance symbol %d", dist)
			return
		}

		if dist > f.win.histSize() || int64(dist) > f.win.total-f.base {
			f.corrupt("distance %d too far back", dist)
			return
		}
		f.maxDist = max(f.maxDist, dist)

		f.copyLen, f.copyDist = length, dist
		goto copyHistory
	}

copyHistory:
	// Perform a backwards copy according to RFC section 3.2.3.
	{
		cnt := f.win.tryWriteCopy(f.copyDist, f.copyLen)
		if cnt == 0 {
			cnt = f.win.writeCopy(f.copyDist, f.copyLen)
		}
		f.copyLen -= cnt

		if f.win.availWrite() == 0 || f.copyLen > 0 {
			f.toRead = f.win.readFlush()
			f.step = (*Decompressor).huffmanBlock
			f.stepState = stateDict
			return
		}
		goto readLiteral
	}
}

// storedBlock reads the header of an uncompressed block.
func (f *Decompressor) storedBlock() {
	var hdr [4]byte
	for i := range hdr {
		c, err := f.br.ReadByte()
		if err != nil {
			f.err = noEOF(err, f.br)
			return
		}
		hdr[i] = c
	}
	n := int(hdr[0]) | int(hdr[1])<<8
	nn := int(hdr[2]) | int(hdr[3])<<8
	if uint16(nn) != uint16(^n) {
		f.corrupt("stored block length check failed")
		return
	}
	if n == 0 {
		f.toRead = f.win.readFlush()
		f.finishBlock()
		return
	}
	f.copyLen = n
	f.copyData()
}

// copyData copies the body of an uncompressed block into the window.
func (f *Decompressor) copyData() {
	buf := f.win.writeSlice()
	if len(buf) > f.copyLen {
		buf = buf[:f.copyLen]
	}

	cnt, err := io.ReadFull(f.br, buf)
	f.win.writeMark(cnt)
	f.copyLen -= cnt

	if err != nil {
		f.toRead = f.win.readFlush()
		f.err = noEOF(err, f.br)
		return
	}

	if f.win.availWrite() == 0 || f.copyLen > 0 {
		f.toRead = f.win.readFlush()
		f.step = (*Decompressor).copyData
		return
	}
	f.finishBlock()
}

func (f *Decompressor) finishBlock() {
	f.stepState = 0
	if f.final {
		if f.win.availRead() > 0 {
			f.toRead = f.win.readFlush()
		}
		f.err = io.EOF
		return
	}
	f.step = (*Decompressor).nextBlock
	if f.win.availRead() > 0 {
		f.toRead = f.win.readFlush()
	}
	if f.onBoundary != nil {
		if err := f.onBoundary(Boundary{Cursor: f.br.Cursor(), Out: f.win.total, d: f}); err != nil {
			f.err = err
		}
	}
}

// huffSym reads the next Huffman-encoded symbol.
func (f *Decompressor) huffSym(h *huffman) (int, error) {
	f.br.fill(fastBits)
	if e := h.fast[f.br.b&fastMask]; e != 0 {
		if n := uint(e & 15); n <= f.br.nb {
			f.br.b >>= n
			f.br.nb -= n
			return int(e >> 4), nil
		}
	}
	sym, ok, err := h.slowDecode(f.br)
	if err != nil {
		return 0, err
	}
	if !ok {
		f.corrupt("invalid Huffman code")
		return 0, f.err
	}
	return sym, nil
}

// noEOF reports an end of input inside a block as an incomplete stream.
func noEOF(err error, br *BitReader) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: input ends at byte %d", gztype.ErrIncompleteStream, br.off)
	}
	return err
}
