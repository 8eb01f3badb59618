package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(options ...FetcherBuilderOption) (Fetcher, *metrics.Metrics) {
	m := metrics.New(nil)
	options = append([]FetcherBuilderOption{WithLogger(logging.Discard()), WithMetrics(m), WithCacheSize(512 * 1024)}, options...)
	return NewFetcher(options...), m
}

func TestHTTPFetchServesRepeatsFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, "mesh-bytes")
	}))
	defer srv.Close()

	f, m := newTestFetcher()
	for range 3 {
		data, err := f.Fetch(context.Background(), srv.URL+"/a.vtp")
		require.NoError(t, err)
		assert.Equal(t, "mesh-bytes", string(data))
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FetchCache.WithLabelValues("hit")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.FetchRequests.WithLabelValues("http", "ok")))
}

func TestHTTPFetchRevalidatesWithETag(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, "volume")
	}))
	defer srv.Close()

	f, m := newTestFetcher(WithRevalidate(true))
	for range 2 {
		data, err := f.Fetch(context.Background(), srv.URL+"/ct.vti")
		require.NoError(t, err)
		assert.Equal(t, "volume", string(data))
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchCache.WithLabelValues("revalidated")))
}

func TestHTTPFetchOversizedBodyIsNotCached(t *testing.T) {
	var hits atomic.Int32
	big := bytes.Repeat([]byte{7}, 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(big)
	}))
	defer srv.Close()

	f, m := newTestFetcher()
	for range 2 {
		data, err := f.Fetch(context.Background(), srv.URL+"/big.vti")
		require.NoError(t, err)
		assert.Len(t, data, len(big))
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FetchCache.WithLabelValues("skipped")))
}

func TestHTTPFetchCachesVolumeSizedBodies(t *testing.T) {
	var hits atomic.Int32
	volume := bytes.Repeat([]byte{3}, 4<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(volume)
	}))
	defer srv.Close()

	f := NewFetcher(WithLogger(logging.Discard()), WithMetrics(metrics.New(nil)))
	for range 3 {
		data, err := f.Fetch(context.Background(), srv.URL+"/ct.vti")
		require.NoError(t, err)
		assert.Len(t, data, len(volume))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetchEvictsLeastRecentlyUsedLargeBodies(t *testing.T) {
	hits := make(map[string]int)
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Write(bytes.Repeat([]byte{1}, 3<<20))
	}))
	defer srv.Close()

	// 8 MiB leaves a 6 MiB budget for large bodies: two of the three fit.
	f, _ := newTestFetcher(WithCacheSize(8 << 20))
	for _, p := range []string{"/a.vti", "/b.vti", "/a.vti", "/c.vti", "/a.vti", "/b.vti"} {
		_, err := f.Fetch(context.Background(), srv.URL+p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, hits["/a.vti"])
	assert.Equal(t, 2, hits["/b.vti"])
	assert.Equal(t, 1, hits["/c.vti"])
}

func TestHTTPFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, m := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL+"/missing.vtp")
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.True(t, te.NotFound())
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchRequests.WithLabelValues("http", "error")))
}

func TestHTTPFetchFailuresAreNotCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	f, _ := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL+"/x")
	require.Error(t, err)
	data, err := f.Fetch(context.Background(), srv.URL+"/x")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestHTTPFetchCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f, _ := newTestFetcher()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL+"/slow.vti")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestFileFetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "liver.stl")
	require.NoError(t, os.WriteFile(path, []byte("solid"), 0o644))

	f, _ := newTestFetcher()
	data, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "solid", string(data))

	data, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "solid", string(data))

	_, err = f.Fetch(context.Background(), filepath.Join(dir, "absent.stl"))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.NotFound())
}

func TestUnsupportedSchemeAndMissingS3(t *testing.T) {
	f, _ := newTestFetcher()

	_, err := f.Fetch(context.Background(), "ftp://host/a.vti")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "unsupported url scheme")

	_, err = f.Fetch(context.Background(), "s3://bucket/a.vti")
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "no s3 backend")
}

type fakeS3 struct {
	objects map[string]string
	calls   atomic.Int32
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return "api error" }
func (e *statusErr) HTTPStatusCode() int { return e.code }

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls.Add(1)
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &statusErr{code: 404}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{}, nil
}

func TestS3Fetch(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"cases/c1/ct.vti": "voxels"}}
	f, m := newTestFetcher(WithS3Client(client))

	bt, err := f.Backend("s3://cases/c1/ct.vti")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeS3, bt)

	data, err := f.Fetch(context.Background(), "s3://cases/c1/ct.vti")
	require.NoError(t, err)
	assert.Equal(t, "voxels", string(data))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.FetchBytes.WithLabelValues("s3")))

	_, err = f.Fetch(context.Background(), "s3://cases/c1/absent.vti")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 404, te.StatusCode)

	_, err = f.Fetch(context.Background(), "s3://cases")
	require.Error(t, err)
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestParseS3URL(t *testing.T) {
	b, k, err := ParseS3URL("s3://bucket/a/b/c.vtp")
	require.NoError(t, err)
	assert.Equal(t, "bucket", b)
	assert.Equal(t, "a/b/c.vtp", k)
	assert.Equal(t, "s3://bucket/a/b/c.vtp", S3URL(b, "/"+k))

	_, _, err = ParseS3URL("https://bucket/a")
	assert.Error(t, err)
}
