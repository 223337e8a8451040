package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/meigma/seekgz"
	seekhttp "github.com/meigma/seekgz/http"
)

// fetchStats counts the range requests a profile run issues against the
// compressed stream and the bytes they transfer.
type fetchStats struct {
	requests atomic.Int64
	fetched  atomic.Int64
}

func (s *fetchStats) reset() {
	if s == nil {
		return
	}
	s.requests.Store(0)
	s.fetched.Store(0)
}

// report prints fetch volume relative to the uncompressed bytes produced.
// A ratio well above the compression ratio means reads decode far more
// than they return, usually because access points are sparse.
func (s *fetchStats) report(w io.Writer, stats profileStats) {
	if s == nil {
		return
	}
	requests, fetched := s.requests.Load(), s.fetched.Load()
	perOp, ratio := int64(0), 0.0
	if stats.ops > 0 {
		perOp = fetched / int64(stats.ops)
	}
	if stats.bytes > 0 {
		ratio = float64(fetched) / float64(stats.bytes)
	}
	fmt.Fprintf(w, "fetch requests=%d fetched=%d fetched/op=%d fetched/produced=%.3f\n",
		requests, fetched, perOp, ratio)
}

//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func newHTTPSource(cfg config, data []byte) (seekgz.ByteSource, *fetchStats, func(), error) {
	if cfg.dataURL == "" {
		return nil, nil, nil, errors.New("data-url is required for HTTP source")
	}

	url := cfg.dataURL
	var cleanup func()
	if cfg.dataURL == "local" {
		server := serveCompressed(data)
		url = server.URL
		cleanup = server.Close
	}

	stats := &fetchStats{}
	client := &nethttp.Client{Transport: &meteredTransport{
		base:    nethttp.DefaultTransport,
		stats:   stats,
		latency: cfg.dataHTTPLatency,
		rate:    cfg.dataHTTPBPS,
	}}
	source, err := seekhttp.NewSource(context.Background(), url, seekhttp.WithClient(client))
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, nil, err
	}
	return source, stats, cleanup, nil
}

// serveCompressed serves data as a gzip file with a content-derived ETag,
// so the source ID and any cached index stay stable across runs.
func serveCompressed(data []byte) *httptest.Server {
	etag := fmt.Sprintf(`"%08x-%x"`, crc32.ChecksumIEEE(data), len(data))
	return httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Content-Type", "application/gzip")
		nethttp.ServeContent(w, r, "data.gz", time.Time{}, bytes.NewReader(data))
	}))
}

// meteredTransport records every body-carrying response and optionally
// delays requests and paces bodies to simulate a remote store.
type meteredTransport struct {
	base    nethttp.RoundTripper
	stats   *fetchStats
	latency time.Duration
	rate    int64
}

func (m *meteredTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if m.latency > 0 {
		time.Sleep(m.latency)
	}
	resp, err := m.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if req.Method == nethttp.MethodHead || resp.Body == nil {
		return resp, nil
	}
	m.stats.requests.Add(1)
	resp.Body = &meteredBody{ReadCloser: resp.Body, stats: m.stats, rate: m.rate, start: time.Now()}
	return resp, nil
}

type meteredBody struct {
	io.ReadCloser
	stats *fetchStats
	rate  int64
	start time.Time
	read  int64
}

func (b *meteredBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n == 0 {
		return n, err
	}
	b.stats.fetched.Add(int64(n))
	if b.rate > 0 {
		b.read += int64(n)
		due := time.Duration(float64(b.read) / float64(b.rate) * float64(time.Second))
		if wait := due - time.Since(b.start); wait > 0 {
			time.Sleep(wait)
		}
	}
	return n, err
}

var rateUnits = []struct {
	suffix string
	scale  int64
}{
	{"kb", 1 << 10}, {"k", 1 << 10},
	{"mb", 1 << 20}, {"m", 1 << 20},
	{"gb", 1 << 30}, {"g", 1 << 30},
}

// parseBytesPerSecond accepts values like 500k, 10MBps or 1gb/s. Units are
// binary.
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	text = strings.TrimSuffix(strings.TrimSuffix(text, "/s"), "bps")
	scale := int64(1)
	for _, u := range rateUnits {
		if strings.HasSuffix(text, u.suffix) {
			scale = u.scale
			text = strings.TrimSuffix(text, u.suffix)
			break
		}
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * scale, nil
}
