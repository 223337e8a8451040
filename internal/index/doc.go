// Package index holds the in-memory access point index and its FlatBuffers
// encoding.
//
// Access points are sorted by uncompressed offset. Each carries the bit
// position of a deflate block boundary and the history preceding it, stored
// zstd-compressed in the encoded form.
package index
