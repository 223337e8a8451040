package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/meigma/seekgz"
	"github.com/meigma/seekgz/cache/disk"
	seekhttp "github.com/meigma/seekgz/http"
)

var (
	cmdCat = &cobra.Command{
		Use:   "cat FILE RANGE",
		Short: "Write a byte range of the decompressed data to stdout",
		Long: `Write bytes [BEGIN, END) of the decompressed content of FILE to stdout.

RANGE is one of:
  B     the single byte at offset B
  B-E   bytes B up to but not including E
  -E    bytes 0 up to E
  B-    bytes B up to the end of the data

A RANGE starting with "-" must follow "--" so it is not read as a flag.

FILE may be a local path or an http(s) URL served with range support. The
index is read from --index, then FILE.idx for local files, and is otherwise
built on the fly (and cached under --cache-dir when set).`,
		Args: cobra.ExactArgs(2),
		RunE: runCat,

		SilenceUsage: true,
	}
	catIndex    string
	catCacheDir string
)

func init() {
	root.AddCommand(cmdCat)
	cmdCat.Flags().StringVarP(&catIndex, "index", "i", "", "index file (default FILE.idx when present)")
	cmdCat.Flags().StringVar(&catCacheDir, "cache-dir", "", "directory for cached indexes and source blocks")
}

// byteRange is a half-open range; end < 0 means the end of the data.
type byteRange struct {
	begin, end int64
}

func parseRange(s string) (byteRange, error) {
	parseOff := func(v string) (int64, error) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid range %q", s)
		}
		return n, nil
	}

	lo, hi, found := strings.Cut(s, "-")
	switch {
	case !found:
		b, err := parseOff(lo)
		if err != nil {
			return byteRange{}, err
		}
		return byteRange{begin: b, end: b + 1}, nil
	case lo == "" && hi == "":
		return byteRange{}, fmt.Errorf("invalid range %q", s)
	case lo == "":
		e, err := parseOff(hi)
		return byteRange{end: e}, err
	case hi == "":
		b, err := parseOff(lo)
		return byteRange{begin: b, end: -1}, err
	}

	b, err := parseOff(lo)
	if err != nil {
		return byteRange{}, err
	}
	e, err := parseOff(hi)
	if err != nil {
		return byteRange{}, err
	}
	if e < b {
		return byteRange{}, fmt.Errorf("invalid range %q: end before begin", s)
	}
	return byteRange{begin: b, end: e}, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func runCat(cmd *cobra.Command, args []string) error {
	target := args[0]
	rng, err := parseRange(args[1])
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(cmd, target)
	if err != nil {
		return err
	}
	defer closeSrc()

	r, err := openReader(cmd, target, src)
	if err != nil {
		return err
	}

	if rng.begin > r.TotalLength() {
		return fmt.Errorf("offset %d is past the end of the data (%d bytes): %w", rng.begin, r.TotalLength(), seekgz.ErrOutOfRange)
	}
	end := rng.end
	if end < 0 || end > r.TotalLength() {
		end = r.TotalLength()
	}
	_, err = r.CopyRange(cmd.Context(), cmd.OutOrStdout(), rng.begin, end-rng.begin)
	return err
}

func openSource(cmd *cobra.Command, target string) (seekgz.ByteSource, func(), error) {
	var src seekgz.ByteSource
	closeSrc := func() {}
	if isURL(target) {
		hs, err := seekhttp.NewSource(cmd.Context(), target, seekhttp.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		src = hs
	} else {
		fsrc, err := seekgz.OpenFileSource(target)
		if err != nil {
			return nil, nil, err
		}
		src = fsrc
		closeSrc = func() { _ = fsrc.Close() }
	}

	if catCacheDir == "" {
		return src, closeSrc, nil
	}
	blocks, err := disk.NewBlockCache(filepath.Join(catCacheDir, "blocks"))
	if err != nil {
		closeSrc()
		return nil, nil, err
	}
	wrapped, err := blocks.Wrap(src)
	if err != nil {
		closeSrc()
		return nil, nil, err
	}
	return wrapped, closeSrc, nil
}

func openReader(cmd *cobra.Command, target string, src seekgz.ByteSource) (*seekgz.Reader, error) {
	readerOpts := []seekgz.ReaderOption{seekgz.WithLogger(logger)}

	indexPath := catIndex
	if indexPath == "" && !isURL(target) {
		indexPath = seekgz.IndexPath(target)
		if _, err := os.Stat(indexPath); errors.Is(err, fs.ErrNotExist) {
			indexPath = ""
		}
	}
	if indexPath != "" {
		idx, err := seekgz.LoadIndexFile(indexPath)
		if err != nil {
			return nil, fmt.Errorf("loading index: %w", err)
		}
		logger.Debug("using index file", "path", indexPath, "points", idx.Len())
		return seekgz.NewReader(src, idx, readerOpts...)
	}

	opts := []seekgz.OpenOption{
		seekgz.WithBuildOptions(seekgz.WithBuildLogger(logger)),
		seekgz.WithReaderOptions(readerOpts...),
	}
	if catCacheDir != "" {
		indexes, err := disk.New(filepath.Join(catCacheDir, "indexes"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, seekgz.WithIndexCache(indexes))
	}
	return seekgz.Open(cmd.Context(), src, opts...)
}
