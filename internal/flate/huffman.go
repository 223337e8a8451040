// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flate

import (
	"math/bits"
	"sync"
)

const (
	maxCodeLen = 15  // maximum length of a Huffman code
	maxNumLit  = 286 // literal/length symbols usable in a block
	maxNumDist = 30  // distance symbols usable in a block
	numCodes   = 19  // code length code symbols

	fastBits = 9 // width of the direct lookup table
	fastMask = 1<<fastBits - 1
)

// huffman is a canonical Huffman decoder. Codes up to fastBits long are
// resolved with one table lookup; longer codes walk the canonical ordering
// one bit at a time.
type huffman struct {
	count  [maxCodeLen + 1]uint16 // number of codes of each length
	symbol []uint16               // symbols ordered by code
	fast   [1 << fastBits]uint16  // symbol<<4 | length, 0 when not resolvable
}

// init builds the decoder from per-symbol code lengths. Incomplete codes are
// accepted only when complete is false and the code is a single one-bit
// code, matching zlib.
func (h *huffman) init(lengths []uint8, complete bool) bool {
	h.count = [maxCodeLen + 1]uint16{}
	for _, l := range lengths {
		h.count[l]++
	}
	clear(h.fast[:])
	if int(h.count[0]) == len(lengths) {
		// No codes at all; any attempt to decode fails.
		h.symbol = h.symbol[:0]
		return true
	}

	left, longest := 1, 0
	for l := 1; l <= maxCodeLen; l++ {
		left <<= 1
		left -= int(h.count[l])
		if left < 0 {
			return false
		}
		if h.count[l] > 0 {
			longest = l
		}
	}
	if left > 0 && (complete || longest != 1) {
		return false
	}

	var offs [maxCodeLen + 1]int
	for l := 1; l < maxCodeLen; l++ {
		offs[l+1] = offs[l] + int(h.count[l])
	}
	n := len(lengths) - int(h.count[0])
	if cap(h.symbol) < n {
		h.symbol = make([]uint16, n)
	}
	h.symbol = h.symbol[:n]
	for sym, l := range lengths {
		if l != 0 {
			h.symbol[offs[l]] = uint16(sym)
			offs[l]++
		}
	}

	code, idx := 0, 0
	for l := 1; l <= fastBits; l++ {
		for range int(h.count[l]) {
			rev := int(bits.Reverse16(uint16(code)) >> (16 - l))
			entry := h.symbol[idx]<<4 | uint16(l)
			for i := rev; i < 1<<fastBits; i += 1 << l {
				h.fast[i] = entry
			}
			code++
			idx++
		}
		code <<= 1
	}
	return true
}

// slowDecode decodes one symbol bit by bit.
func (h *huffman) slowDecode(br *BitReader) (int, bool, error) {
	code, first, index := 0, 0, 0
	for l := 1; l <= maxCodeLen; l++ {
		bit, err := br.bits(1)
		if err != nil {
			return 0, false, err
		}
		code |= int(bit)
		count := int(h.count[l])
		if code-count < first {
			return int(h.symbol[index+(code-first)]), true, nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, false, nil
}

var (
	fixedOnce    sync.Once
	fixedHuffman huffman
)

// fixedLiteral returns the literal/length decoder of RFC 1951 section 3.2.6.
func fixedLiteral() *huffman {
	fixedOnce.Do(func() {
		var lengths [288]uint8
		for i := range lengths {
			switch {
			case i < 144:
				lengths[i] = 8
			case i < 256:
				lengths[i] = 9
			case i < 280:
				lengths[i] = 7
			default:
				lengths[i] = 8
			}
		}
		fixedHuffman.init(lengths[:], true)
	})
	return &fixedHuffman
}
