// Package gztype holds types shared by the seekgz packages.
package gztype

import "errors"

// Sentinel errors for seekgz operations.
var (
	// ErrCorruptStream is returned when gzip framing or deflate data is invalid,
	// including checksum and length mismatches in a member trailer.
	ErrCorruptStream = errors.New("seekgz: corrupt stream")

	// ErrIncompleteStream is returned when the input ends inside a gzip header,
	// a deflate block, or a member trailer.
	ErrIncompleteStream = errors.New("seekgz: incomplete stream")

	// ErrOutOfRange is returned when a requested offset or length falls outside
	// the uncompressed stream.
	ErrOutOfRange = errors.New("seekgz: offset out of range")

	// ErrIndexMismatch is returned when a compressed source does not match the
	// index it is being read with.
	ErrIndexMismatch = errors.New("seekgz: index does not match source")

	// ErrInvalidIndex is returned when an encoded index cannot be decoded or
	// violates index invariants.
	ErrInvalidIndex = errors.New("seekgz: invalid index")

	// ErrWindowTooSmall is returned when the stream references data further
	// back than the configured window size.
	ErrWindowTooSmall = errors.New("seekgz: back-reference exceeds window size")
)
