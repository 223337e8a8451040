// Package cache defines the caches seekgz can use to avoid repeating work.
//
// Two kinds of cache exist. A Cache stores encoded indexes so that a gzip
// source only has to be scanned once; entries are keyed by a digest of the
// source identifier and the build parameters. A BlockCache wraps a
// ByteSource and keeps fixed-size blocks of the compressed data, which pays
// off for remote sources where every range request is expensive.
//
// The disk subpackage provides filesystem-backed implementations of both.
package cache
