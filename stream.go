package seekgz

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/meigma/seekgz/internal/flate"
	"github.com/meigma/seekgz/internal/gzip"
)

// memberStream reads the uncompressed data of consecutive gzip members as one
// stream. Trailers and the headers of following members are consumed through
// the same bit reader as the deflate data, so the reader's cursor always
// reflects the true compressed position.
type memberStream struct {
	br  *flate.BitReader
	dec *flate.Decompressor

	multistream bool

	// verify enables trailer checks. It requires reading each member from its
	// first byte.
	verify bool
	crc    uint32
	size   int64

	// onMember is called after the header of each member but the first.
	onMember func(hdr gzip.Header) error

	members int
	err     error
}

func (s *memberStream) Read(p []byte) (int, error) {
	for {
		if s.err != nil {
			return 0, s.err
		}
		n, err := s.dec.Read(p)
		if s.verify {
			s.crc = crc32.Update(s.crc, crc32.IEEETable, p[:n])
		}
		s.size += int64(n)

		switch {
		case err == io.EOF:
			s.err = s.endMember()
		case err != nil:
			s.err = err
		}
		if n > 0 {
			return n, nil
		}
	}
}

// endMember consumes a member trailer and, for multistream input, the next
// member header. It returns io.EOF at the clean end of input.
func (s *memberStream) endMember() error {
	tr, err := gzip.ReadTrailer(s.br)
	if err != nil {
		return err
	}
	if s.verify {
		if err := tr.Verify(s.crc, s.size); err != nil {
			return fmt.Errorf("member %d: %w", s.members, err)
		}
	}
	s.members++
	if !s.multistream {
		return io.EOF
	}

	hdr, err := gzip.ReadHeader(s.br)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("member %d: %w", s.members, err)
	}
	s.dec.NextStream()
	s.crc, s.size = 0, 0
	if s.onMember != nil {
		return s.onMember(hdr)
	}
	return nil
}
