package flate

import "sync"

// Pool manages reusable decompressors. Each Decompressor carries a 32 KiB
// history ring and Huffman tables, so reusing them keeps random reads from
// allocating per request.
type Pool struct {
	pool sync.Pool
}

// NewPool creates an empty decompressor pool.
func NewPool() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any { return new(Decompressor) },
		},
	}
}

// Get returns a decompressor reset to read from br with dict as history.
// The caller must call the returned release function when done.
func (p *Pool) Get(br *BitReader, dict []byte) (*Decompressor, func()) {
	if p == nil {
		return NewDecompressor(br, dict), func() {}
	}

	d, ok := p.pool.Get().(*Decompressor)
	if !ok {
		d = new(Decompressor)
	}
	d.Reset(br, dict)

	return d, func() {
		d.br = nil
		d.onBoundary = nil
		d.toRead = nil
		p.pool.Put(d)
	}
}
