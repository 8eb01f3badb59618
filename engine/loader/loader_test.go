package loader

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedFetcher serves one payload per url, blocking every fetch until release is closed.
type gatedFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	payload map[string][]byte
	fail    map[string]error
	release chan struct{}
	started chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		calls:   make(map[string]int),
		payload: make(map[string][]byte),
		fail:    make(map[string]error),
		release: make(chan struct{}),
		started: make(chan string, 16),
	}
}

func (g *gatedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	g.mu.Lock()
	g.calls[url]++
	data, err := g.payload[url], g.fail[url]
	g.mu.Unlock()
	g.started <- url

	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (g *gatedFetcher) Backend(string) (fetcher.FetcherBackendType, error) {
	return fetcher.BackendTypeHTTP, nil
}

func (g *gatedFetcher) callCount(url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[url]
}

func triangleSTL(t *testing.T) []byte {
	t.Helper()
	mesh := &model.Mesh{
		Positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:   []uint32{0, 1, 2},
	}
	var buf bytes.Buffer
	require.NoError(t, decoder.EncodeSTL(&buf, mesh, "tri"))
	return buf.Bytes()
}

func newTestCache(f fetcher.Fetcher) (MeshCache, *metrics.Metrics) {
	m := metrics.New(nil)
	return NewMeshCache(f, WithLogger(logging.Discard()), WithMetrics(m)), m
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	const url = "https://assets/case/liver.stl"
	f := newGatedFetcher()
	f.payload[url] = triangleSTL(t)
	cache, m := newTestCache(f)

	const callers = 5
	results := make([]*model.Mesh, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mesh, err := cache.Load(context.Background(), url)
			assert.NoError(t, err)
			results[i] = mesh
		}()
	}

	<-f.started
	assert.Eventually(t, func() bool { return cache.InFlight() == 1 }, time.Second, time.Millisecond)
	close(f.release)
	wg.Wait()

	assert.Equal(t, 1, f.callCount(url))
	require.NotNil(t, results[0])
	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, 1, results[0].TriangleCount())
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 0, cache.InFlight())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MeshCacheEntries))

	again, err := cache.Load(context.Background(), url)
	require.NoError(t, err)
	assert.Same(t, results[0], again)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MeshCacheLookups.WithLabelValues("hit")))
}

func TestFailedLoadIsRetried(t *testing.T) {
	const url = "https://assets/case/kidney.stl"
	f := newGatedFetcher()
	f.fail[url] = errors.New("connection reset")
	close(f.release)
	cache, m := newTestCache(f)

	_, err := cache.Load(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	_, ok := cache.Peek(url)
	assert.False(t, ok)

	f.mu.Lock()
	delete(f.fail, url)
	f.payload[url] = triangleSTL(t)
	f.mu.Unlock()

	mesh, err := cache.Load(context.Background(), url)
	require.NoError(t, err)
	assert.NotNil(t, mesh)
	assert.Equal(t, 2, f.callCount(url))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MeshCacheLookups.WithLabelValues("error")))
}

func TestCanceledCallerDoesNotFailOthers(t *testing.T) {
	const url = "https://assets/case/spleen.stl"
	f := newGatedFetcher()
	f.payload[url] = triangleSTL(t)
	cache, _ := newTestCache(f)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Load(ctx, url)
		firstErr <- err
	}()
	<-f.started

	second := make(chan *model.Mesh, 1)
	go func() {
		mesh, err := cache.Load(context.Background(), url)
		assert.NoError(t, err)
		second <- mesh
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.release)
	select {
	case mesh := <-second:
		assert.NotNil(t, mesh)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never completed")
	}
	assert.Equal(t, 1, f.callCount(url))
	_, ok := cache.Peek(url)
	assert.True(t, ok)
}

func TestUnsupportedMeshExtension(t *testing.T) {
	f := newGatedFetcher()
	close(f.release)
	cache, _ := newTestCache(f)

	_, err := cache.Load(context.Background(), "https://assets/case/lung.obj")
	require.Error(t, err)
	assert.ErrorIs(t, err, decoder.ErrUnsupportedFormat)
	assert.Equal(t, 0, f.callCount("https://assets/case/lung.obj"))
}

func TestEvictAndPrepopulate(t *testing.T) {
	const url = "https://assets/case/heart.vtp"
	seeded := &model.Mesh{Positions: []float32{0, 0, 0}, Indices: nil}
	f := newGatedFetcher()
	cache := NewMeshCache(f, WithLogger(logging.Discard()), WithMesh(url, seeded))

	mesh, err := cache.Load(context.Background(), url)
	require.NoError(t, err)
	assert.Same(t, seeded, mesh)
	assert.Equal(t, 0, f.callCount(url))

	assert.True(t, cache.Evict(url))
	assert.False(t, cache.Evict(url))
	assert.Equal(t, 0, cache.Len())
}

func TestEvictDuringLoadIsNotReStored(t *testing.T) {
	const url = "https://assets/case/pancreas.stl"
	f := newGatedFetcher()
	f.payload[url] = triangleSTL(t)
	cache, m := newTestCache(f)

	done := make(chan *model.Mesh, 1)
	go func() {
		mesh, err := cache.Load(context.Background(), url)
		assert.NoError(t, err)
		done <- mesh
	}()
	<-f.started
	assert.Eventually(t, func() bool { return cache.InFlight() == 1 }, time.Second, time.Millisecond)

	assert.False(t, cache.Evict(url))
	close(f.release)

	select {
	case mesh := <-done:
		require.NotNil(t, mesh)
		assert.Equal(t, 1, mesh.TriangleCount())
	case <-time.After(2 * time.Second):
		t.Fatal("load never completed")
	}
	_, ok := cache.Peek(url)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.MeshCacheEntries))

	// the next load fetches again and keeps its result
	_, err := cache.Load(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount(url))
	assert.Equal(t, 1, cache.Len())
}

// panickingFetcher stands in for a backend or decoder that crashes mid-load.
type panickingFetcher struct {
	calls atomic.Int32
}

func (p *panickingFetcher) Fetch(context.Context, string) ([]byte, error) {
	p.calls.Add(1)
	panic("index out of range [9] with length 4")
}

func (p *panickingFetcher) Backend(string) (fetcher.FetcherBackendType, error) {
	return fetcher.BackendTypeHTTP, nil
}

func TestPanickingLoadBecomesDecodeError(t *testing.T) {
	const url = "https://assets/case/aorta.vtp"
	f := &panickingFetcher{}
	cache, m := newTestCache(f)

	var err error
	require.NotPanics(t, func() { _, err = cache.Load(context.Background(), url) })
	require.Error(t, err)
	var de *decoder.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "vtp", de.Format)
	assert.Contains(t, de.Reason, "index out of range")
	assert.Equal(t, 0, cache.InFlight())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MeshCacheLookups.WithLabelValues("error")))

	_, err = cache.Load(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}
