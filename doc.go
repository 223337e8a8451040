//go:generate flatc --go --go-namespace fb -o internal schema/index.fbs

// Package seekgz provides random access to gzip-compressed data.
//
// A gzip stream can normally only be decoded from the start. seekgz makes one
// sequential pass over the stream and records access points: deflate block
// boundaries together with their exact bit position and the 32 KiB of output
// preceding them. Later reads resume decompression at the nearest access point
// before the requested offset, using the saved history as a preset
// dictionary, so any byte range can be served by decoding at most one span of
// data.
//
// # Quick Start
//
// Build an index once and keep it next to the compressed file:
//
//	idx, err := seekgz.BuildIndexFile(ctx, "access.log.gz")
//	if err != nil {
//	    return err
//	}
//	err = idx.Save(seekgz.IndexPath("access.log.gz"))
//
// Read any range later:
//
//	src, err := seekgz.OpenFileSource("access.log.gz")
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//	idx, err := seekgz.LoadIndexFile(seekgz.IndexPath("access.log.gz"))
//	if err != nil {
//	    return err
//	}
//	r, err := seekgz.NewReader(src, idx)
//	if err != nil {
//	    return err
//	}
//	data, err := r.ReadRange(5<<20, 4096)
//
// # Remote Sources
//
// Any [ByteSource] can be read, including the HTTP range source in the http
// subpackage. Wrap remote sources with a block cache from cache/disk to avoid
// refetching compressed data, and use [Open] with [WithIndexCache] to persist
// built indexes between runs.
//
// Indexes are immutable and safe to share between readers and goroutines.
// [Reader] methods are safe for concurrent use; [File] is not.
package seekgz
