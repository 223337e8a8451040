package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meigma/seekgz"
	seekhttp "github.com/meigma/seekgz/http"
	"github.com/meigma/seekgz/internal/testutil"
)

func serve(t *testing.T, data []byte, etag string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		nethttp.ServeContent(w, r, "data.gz", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serve(t, data, "")

	src, err := seekhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.Size() != int64(len(data)) {
		t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("ReadAt() n = %d, want %d", n, len(buf))
	}
	if string(buf) != "world" {
		t.Fatalf("ReadAt() got %q, want %q", string(buf), "world")
	}

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	if err != io.EOF {
		t.Fatalf("ReadAt() error = %v, want io.EOF", err)
	}
	if n != 3 {
		t.Fatalf("ReadAt() n = %d, want 3", n)
	}
	if string(edge[:n]) != "rld" {
		t.Fatalf("ReadAt() got %q, want %q", string(edge[:n]), "rld")
	}

	if n, err = src.ReadAt(buf, int64(len(data))); n != 0 || err != io.EOF {
		t.Fatalf("ReadAt(end) = %d, %v, want 0, io.EOF", n, err)
	}
	if _, err = src.ReadAt(buf, -1); err == nil {
		t.Fatal("ReadAt(-1) expected error")
	}
}

func TestSourceReadRange(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdef")
	server := serve(t, data, "")
	src, err := seekhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	tests := []struct {
		name   string
		off    int64
		length int64
		want   string
	}{
		{name: "middle", off: 3, length: 5, want: "34567"},
		{name: "clamped at end", off: 12, length: 100, want: "cdef"},
		{name: "empty", off: 4, length: 0, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc, err := src.ReadRange(tt.off, tt.length)
			if err != nil {
				t.Fatalf("ReadRange() error = %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("ReadRange() got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := src.ReadRange(int64(len(data)), 1); err != io.EOF {
		t.Fatalf("ReadRange(end) error = %v, want io.EOF", err)
	}
	if _, err := src.ReadRange(-1, 1); err == nil {
		t.Fatal("ReadRange(-1) expected error")
	}
	if _, err := src.ReadRange(0, -1); err == nil {
		t.Fatal("ReadRange(length -1) expected error")
	}
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := seekhttp.NewSource(context.Background(), server.URL)
	if !errors.Is(err, seekhttp.ErrRangeUnsupported) {
		t.Fatalf("NewSource() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestSourceRejectsContentEncoding(t *testing.T) {
	t.Parallel()

	data := []byte("already compressed bytes")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	if _, err := seekhttp.NewSource(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for encoded response")
	}
}

func TestSourceRequestHeaders(t *testing.T) {
	t.Parallel()

	data := []byte("headers")
	var badAuth, badEncoding atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			badAuth.Add(1)
		}
		if r.Header.Get("Accept-Encoding") != "identity" {
			badEncoding.Add(1)
		}
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := seekhttp.NewSource(context.Background(), server.URL,
		seekhttp.WithHeader("Authorization", "Bearer token"))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if _, err := src.ReadAt(make([]byte, 3), 2); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if badAuth.Load() != 0 || badEncoding.Load() != 0 {
		t.Fatalf("requests with wrong headers: auth=%d encoding=%d", badAuth.Load(), badEncoding.Load())
	}
}

func TestSourceConditionalRetry(t *testing.T) {
	t.Parallel()

	data := []byte("conditional data")
	var rejected atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("If-Match") != "" {
			rejected.Add(1)
			w.WriteHeader(nethttp.StatusPreconditionFailed)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := seekhttp.NewSource(context.Background(), server.URL, seekhttp.WithConditionalHeaders())
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	buf := make([]byte, 4)
	if _, err := src.ReadAt(buf, 12); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != "data" {
		t.Fatalf("ReadAt() got %q, want %q", buf, "data")
	}
	if rejected.Load() != 1 {
		t.Fatalf("conditional requests = %d, want 1", rejected.Load())
	}
}

func TestSourceID(t *testing.T) {
	t.Parallel()

	data := []byte("identity")
	v1 := serve(t, data, `"v1"`)
	v2 := serve(t, data, `"v2"`)

	open := func(url string, opts ...seekhttp.Option) string {
		t.Helper()
		src, err := seekhttp.NewSource(context.Background(), url, opts...)
		if err != nil {
			t.Fatalf("NewSource() error = %v", err)
		}
		return src.SourceID()
	}

	a, b := open(v1.URL), open(v1.URL)
	if a == "" || a != b {
		t.Fatalf("SourceID() not stable: %q vs %q", a, b)
	}
	if c := open(v2.URL); c == a {
		t.Fatalf("SourceID() = %q for different content", c)
	}
	if got := open(v1.URL, seekhttp.WithSourceID("custom")); got != "custom" {
		t.Fatalf("SourceID() = %q, want %q", got, "custom")
	}
}

func TestSourceSeekgzReader(t *testing.T) {
	t.Parallel()

	plain := testutil.Text(400<<10, 11)
	gz := testutil.Gzip(t, plain, testutil.GzipOptions{FlushEvery: 16 << 10})
	server := serve(t, gz, `"gz"`)

	src, err := seekhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	r, err := seekgz.Open(context.Background(), src, seekgz.WithBuildOptions(seekgz.WithSpan(64<<10)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for _, off := range []int64{0, 70_000, 250_000, int64(len(plain)) - 10} {
		got, err := r.ReadRange(off, 5000)
		if err != nil {
			t.Fatalf("ReadRange(%d) error = %v", off, err)
		}
		want := plain[off:min(off+5000, int64(len(plain)))]
		if !bytes.Equal(got, want) {
			t.Fatalf("ReadRange(%d) returned %d bytes that differ from the source", off, len(got))
		}
	}
}
