// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

// WindowSize is the deflate history size.
const WindowSize = 1 << 15

// window implements the LZ77 sliding dictionary used during decompression.
// It is a fixed ring of WindowSize bytes; output is written in place and
// handed to the reader through readFlush.
type window struct {
	hist []byte

	// Invariant: 0 <= rdPos <= wrPos <= len(hist)
	wrPos int  // current output position in hist
	rdPos int  // hist[:rdPos] has been emitted
	full  bool // hist has wrapped at least once

	total int64 // bytes written since init, excluding the preset dictionary
}

// init resets the window and seeds it with the tail of dict.
func (w *window) init(size int, dict []byte) {
	*w = window{hist: w.hist}

	if cap(w.hist) < size {
		w.hist = make([]byte, size)
	}
	w.hist = w.hist[:size]

	if len(dict) > len(w.hist) {
		dict = dict[len(dict)-len(w.hist):]
	}
	w.wrPos = copy(w.hist, dict)
	if w.wrPos == len(w.hist) {
		w.wrPos = 0
		w.full = true
	}
	w.rdPos = w.wrPos
}

// histSize reports the number of history bytes available for back-references.
func (w *window) histSize() int {
	if w.full {
		return len(w.hist)
	}
	return w.wrPos
}

func (w *window) availRead() int {
	return w.wrPos - w.rdPos
}

func (w *window) availWrite() int {
	return len(w.hist) - w.wrPos
}

func (w *window) writeSlice() []byte {
	return w.hist[w.wrPos:]
}

func (w *window) writeMark(cnt int) {
	w.wrPos += cnt
	w.total += int64(cnt)
}

func (w *window) writeByte(c byte) {
	w.hist[w.wrPos] = c
	w.wrPos++
	w.total++
}

// writeCopy copies length bytes from dist bytes back and returns how many
// were written before the end of the ring was reached.
func (w *window) writeCopy(dist, length int) int {
	dstBase := w.wrPos
	dstPos := dstBase
	srcPos := dstPos - dist
	endPos := min(dstPos+length, len(w.hist))

	if srcPos < 0 {
		srcPos += len(w.hist)
		dstPos += copy(w.hist[dstPos:endPos], w.hist[srcPos:])
		srcPos = 0
	}

	for dstPos < endPos {
		dstPos += copy(w.hist[dstPos:endPos], w.hist[srcPos:dstPos])
	}

	w.wrPos = dstPos
	written := dstPos - dstBase
	w.total += int64(written)
	return written
}

// tryWriteCopy is the fast path of writeCopy for copies that neither wrap
// the source nor the destination. It returns 0 when it cannot apply.
func (w *window) tryWriteCopy(dist, length int) int {
	dstPos := w.wrPos
	endPos := dstPos + length
	if dstPos < dist || endPos > len(w.hist) {
		return 0
	}
	dstBase := dstPos
	srcPos := dstPos - dist

	for dstPos < endPos {
		dstPos += copy(w.hist[dstPos:endPos], w.hist[srcPos:dstPos])
	}

	w.wrPos = dstPos
	written := dstPos - dstBase
	w.total += int64(written)
	return written
}

// readFlush returns the bytes written since the last flush.
func (w *window) readFlush() []byte {
	toRead := w.hist[w.rdPos:w.wrPos]
	w.rdPos = w.wrPos
	if w.wrPos == len(w.hist) {
		w.wrPos, w.rdPos = 0, 0
		w.full = true
	}
	return toRead
}

// tail returns a copy of the last n history bytes in decompression order.
// Fewer bytes are returned when less history exists.
func (w *window) tail(n int) []byte {
	n = min(n, w.histSize())
	out := make([]byte, n)
	if n <= w.wrPos {
		copy(out, w.hist[w.wrPos-n:w.wrPos])
		return out
	}
	// The ring has wrapped; the oldest requested bytes sit at the end of hist.
	k := n - w.wrPos
	copy(out, w.hist[len(w.hist)-k:])
	copy(out[k:], w.hist[:w.wrPos])
	return out
}
