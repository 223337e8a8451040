package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // intentional use for reproducible benchmarks
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"time"

	"github.com/felixge/fgprof"
	"github.com/klauspost/compress/gzip"

	"github.com/meigma/seekgz"
	"github.com/meigma/seekgz/cache"
	"github.com/meigma/seekgz/cache/disk"
	"github.com/meigma/seekgz/internal/testutil"
)

const cacheNone = "none"

type config struct {
	mode            string
	input           string
	size            int
	level           int
	flushEvery      int
	pattern         string
	span            int64
	window          int
	readSize        int64
	concurrency     int
	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	fgProfile       string
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	cache           string
	cacheDir        string
	blockSize       int64
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkIndex *seekgz.Index
	sinkPoint seekgz.AccessPoint
)

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if cleanup != nil {
		defer cleanup() //nolint:errcheck // cleanup errors are non-fatal in profiler
	}

	data, err := loadData(cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	src, fetch, cleanupSource, err := newSource(cfg, data, dir)
	if err != nil {
		log.Fatal(err)
	}
	if cleanupSource != nil {
		defer cleanupSource()
	}

	var stopFG func() error
	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG = fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(cfg, src, data, fetch)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
	fetch.report(os.Stdout, stats)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, src seekgz.ByteSource, data []byte, fetch *fetchStats) (profileStats, error) {
	ctx := context.Background()
	buildOpts := []seekgz.BuildOption{seekgz.WithSpan(cfg.span), seekgz.WithWindowSize(cfg.window)}

	start := time.Now()
	ops := 0
	var byteCount int64

	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	// Setup reads such as the index build are excluded from fetch counts.
	begin := func() {
		fetch.reset()
		start = time.Now()
	}
	begin()

	switch cfg.mode {
	case "build":
		for shouldContinue() {
			idx, err := seekgz.BuildIndex(ctx, bytes.NewReader(data), buildOpts...)
			if err != nil {
				return profileStats{}, err
			}
			sinkIndex = idx
			byteCount += idx.TotalLength()
			ops++
		}

	case "open-cached":
		c := testutil.NewMockCache()
		opts := []seekgz.OpenOption{seekgz.WithIndexCache(c), seekgz.WithBuildOptions(buildOpts...)}
		if _, err := seekgz.Open(ctx, src, opts...); err != nil {
			return profileStats{}, err
		}

		begin()
		for shouldContinue() {
			r, err := seekgz.Open(ctx, src, opts...)
			if err != nil {
				return profileStats{}, err
			}
			sinkIndex = r.Index()
			ops++
		}

	case "find-point":
		idx, err := seekgz.BuildIndex(ctx, bytes.NewReader(data), buildOpts...)
		if err != nil {
			return profileStats{}, err
		}
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		begin()
		for shouldContinue() {
			p, err := idx.FindAccessPoint(rng.Int63n(idx.TotalLength() + 1))
			if err != nil {
				return profileStats{}, err
			}
			sinkPoint = p
			ops++
		}

	case "readrange":
		r, err := seekgz.Open(ctx, src, seekgz.WithBuildOptions(buildOpts...))
		if err != nil {
			return profileStats{}, err
		}
		total := r.TotalLength()
		rng := rand.New(rand.NewSource(cfg.randomSeed)) //nolint:gosec // intentional for reproducible benchmarks
		begin()
		for shouldContinue() {
			content, err := r.ReadRange(rng.Int63n(total+1), cfg.readSize)
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			byteCount += int64(len(content))
			ops++
		}

	case "copyrange":
		r, err := seekgz.Open(ctx, src,
			seekgz.WithBuildOptions(buildOpts...),
			seekgz.WithReaderOptions(seekgz.WithReadConcurrency(cfg.concurrency)))
		if err != nil {
			return profileStats{}, err
		}
		begin()
		for shouldContinue() {
			n, err := r.CopyRange(ctx, io.Discard, 0, r.TotalLength())
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "sequential":
		r, err := seekgz.Open(ctx, src, seekgz.WithBuildOptions(buildOpts...))
		if err != nil {
			return profileStats{}, err
		}
		buf := make([]byte, 32<<10)
		begin()
		for shouldContinue() {
			f := r.Open()
			n, err := io.CopyBuffer(io.Discard, f, buf)
			_ = f.Close()
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	case "gunzip":
		for shouldContinue() {
			zr, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return profileStats{}, err
			}
			n, err := io.Copy(io.Discard, zr)
			if err != nil {
				return profileStats{}, err
			}
			byteCount += n
			ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return profileStats{
		ops:     ops,
		bytes:   byteCount,
		elapsed: time.Since(start),
	}, nil
}

func parseFlags() config {
	var cfg config
	var dataHTTPBPS string
	flag.StringVar(&cfg.mode, "mode", "readrange", "mode: build, open-cached, find-point, readrange, copyrange, sequential, gunzip")
	flag.StringVar(&cfg.input, "input", "", "gzip file to profile (generated when empty)")
	flag.IntVar(&cfg.size, "size", 64<<20, "uncompressed size of generated data")
	flag.IntVar(&cfg.level, "level", gzip.DefaultCompression, "gzip level for generated data")
	flag.IntVar(&cfg.flushEvery, "flush-every", 0, "sync flush generated data every N bytes (0 disables)")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.Int64Var(&cfg.span, "span", seekgz.DefaultSpan, "index span in bytes")
	flag.IntVar(&cfg.window, "window", seekgz.DefaultWindowSize, "index window size in bytes")
	flag.Int64Var(&cfg.readSize, "read-size", 64<<10, "bytes per readrange operation")
	flag.IntVar(&cfg.concurrency, "concurrency", seekgz.DefaultReadConcurrency, "copyrange workers")
	flag.StringVar(&cfg.dataURL, "data-url", "", "HTTP data source URL (use \"local\" to serve generated data)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for HTTP data source")
	flag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for HTTP data source (e.g. 10MBps)")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cache, "cache", cacheNone, "block cache for the data source: disk, none")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "", "block cache directory (disk cache only)")
	flag.Int64Var(&cfg.blockSize, "block-size", cache.DefaultBlockSize, "block cache block size")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for the block cache")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	if dataHTTPBPS != "" {
		bps, err := parseBytesPerSecond(dataHTTPBPS)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = bps
	}
	return cfg
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func() error, error) {
	if cfg.tempDir != "" {
		return cfg.tempDir, nil, os.MkdirAll(cfg.tempDir, 0o755) //nolint:gosec // 0o755 is intentional for profiler temp dirs
	}
	dir, err := os.MkdirTemp("", "seekgz-profiler-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() error {
		if cfg.keepTemp {
			return nil
		}
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// loadData returns the compressed stream under test, reading -input or
// generating one.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func loadData(cfg config) ([]byte, error) {
	if cfg.input != "" {
		return os.ReadFile(cfg.input)
	}

	var plain []byte
	switch cfg.pattern {
	case "random":
		plain = testutil.Random(cfg.size, uint64(cfg.randomSeed)) //nolint:gosec // seed sign is irrelevant
	case "compressible":
		plain = testutil.Text(cfg.size, uint64(cfg.randomSeed)) //nolint:gosec // seed sign is irrelevant
	default:
		return nil, fmt.Errorf("unknown pattern: %s", cfg.pattern)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, cfg.level)
	if err != nil {
		return nil, err
	}
	step := len(plain)
	if cfg.flushEvery > 0 {
		step = cfg.flushEvery
	}
	for rest := plain; len(rest) > 0; {
		n := min(step, len(rest))
		if _, err := zw.Write(rest[:n]); err != nil {
			return nil, err
		}
		if cfg.flushEvery > 0 {
			if err := zw.Flush(); err != nil {
				return nil, err
			}
		}
		rest = rest[n:]
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newSource(cfg config, data []byte, rootDir string) (seekgz.ByteSource, *fetchStats, func(), error) {
	var src seekgz.ByteSource = testutil.NewMockByteSource(data)
	var fetch *fetchStats
	var cleanup func()
	if cfg.dataURL != "" {
		httpSrc, httpFetch, httpCleanup, err := newHTTPSource(cfg, data)
		if err != nil {
			return nil, nil, nil, err
		}
		src, fetch, cleanup = httpSrc, httpFetch, httpCleanup
	}

	switch cfg.cache {
	case cacheNone:
		return src, fetch, cleanup, nil
	case "disk":
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(rootDir, "blocks")
		}
		blocks, err := disk.NewBlockCache(cacheDir)
		if err != nil {
			return nil, nil, cleanup, err
		}
		wrapped, err := blocks.Wrap(src, cache.WithBlockSize(cfg.blockSize))
		if err != nil {
			return nil, nil, cleanup, err
		}
		return wrapped, fetch, cleanup, nil
	default:
		return nil, nil, cleanup, errors.New("unknown cache: " + cfg.cache)
	}
}
