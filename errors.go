package seekgz

import "github.com/meigma/seekgz/internal/gztype"

// Errors re-exported from gztype.
var (
	// ErrCorruptStream is returned when gzip framing or deflate data is invalid,
	// including checksum and length mismatches in a member trailer.
	ErrCorruptStream = gztype.ErrCorruptStream

	// ErrIncompleteStream is returned when the input ends inside a gzip header,
	// a deflate block, or a member trailer.
	ErrIncompleteStream = gztype.ErrIncompleteStream

	// ErrOutOfRange is returned when a requested offset or length falls outside
	// the uncompressed stream.
	ErrOutOfRange = gztype.ErrOutOfRange

	// ErrIndexMismatch is returned when a compressed source does not match the
	// index it is being read with.
	ErrIndexMismatch = gztype.ErrIndexMismatch

	// ErrInvalidIndex is returned when an encoded index cannot be decoded or
	// violates index invariants.
	ErrInvalidIndex = gztype.ErrInvalidIndex

	// ErrWindowTooSmall is returned when the stream references data further
	// back than the configured window size.
	ErrWindowTooSmall = gztype.ErrWindowTooSmall
)
