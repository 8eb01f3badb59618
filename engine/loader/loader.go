package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"

	"golang.org/x/sync/singleflight"
)

// meshCache is the implementation of the MeshCache interface.
type meshCache struct {
	mu *sync.RWMutex

	fetcher fetcher.Fetcher
	group   singleflight.Group

	resolved map[string]*model.Mesh
	// inflight maps each URL being fetched to its eviction epoch; Evict during a flight bumps it
	// so the flight does not store its result.
	inflight map[string]uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// MeshCache loads structure meshes by URL and keeps every successfully decoded mesh.
// Concurrent loads of one URL share a single fetch and decode; a failed load is not remembered,
// so the next Load of that URL tries again.
type MeshCache interface {
	// Load returns the mesh at url, fetching and decoding it on first use.
	// The decoder is selected from the URL extension (.vtp or .stl).
	// The shared fetch is not bound to any one caller: canceling ctx abandons this caller's wait
	// without failing the other callers waiting on the same URL.
	//
	// Parameters:
	//   - ctx: bounds this caller's wait
	//   - url: the mesh location
	//
	// Returns:
	//   - *model.Mesh: the shared, immutable mesh
	//   - error: a fetch, decode or unsupported-format error, or ctx.Err()
	Load(ctx context.Context, url string) (*model.Mesh, error)

	// Peek returns the resolved mesh for url without loading.
	//
	// Parameters:
	//   - url: the mesh location
	//
	// Returns:
	//   - *model.Mesh: the mesh, or nil
	//   - bool: true if the mesh is resolved
	Peek(url string) (*model.Mesh, bool)

	// Evict drops the resolved mesh for url. A load of url already in flight still answers its
	// callers but is not kept.
	//
	// Parameters:
	//   - url: the mesh location
	//
	// Returns:
	//   - bool: true if an entry was removed
	Evict(url string) bool

	// Len returns the number of resolved meshes.
	//
	// Returns:
	//   - int: the entry count
	Len() int

	// InFlight returns the number of URLs currently being fetched.
	//
	// Returns:
	//   - int: the in-flight count
	InFlight() int
}

var _ MeshCache = &meshCache{}

// NewMeshCache creates a MeshCache reading through f.
//
// Parameters:
//   - f: the asset fetcher
//   - options: a variadic list of MeshCacheBuilderOption functions
//
// Returns:
//   - MeshCache: the cache
func NewMeshCache(f fetcher.Fetcher, options ...MeshCacheBuilderOption) MeshCache {
	c := &meshCache{
		mu:       &sync.RWMutex{},
		fetcher:  f,
		resolved: make(map[string]*model.Mesh),
		inflight: make(map[string]uint64),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.Component(c.logger, "mesh_cache")
	c.metrics = metrics.Coalesce(c.metrics)
	c.metrics.MeshCacheEntries.Set(float64(len(c.resolved)))
	return c
}

func (c *meshCache) Load(ctx context.Context, url string) (*model.Mesh, error) {
	if m, ok := c.Peek(url); ok {
		c.metrics.MeshCacheLookups.WithLabelValues("hit").Inc()
		return m, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (v any, err error) {
		// DoChan re-panics on its own goroutine, which no caller could recover
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("mesh load panicked", "url", url, "panic", r)
				err = fmt.Errorf("failed to load %s: %w", url,
					&decoder.DecodeError{Format: decoder.FormatFromURL(url), Reason: fmt.Sprintf("panic: %v", r)})
			}
		}()
		// a flight that started after another one resolved the url finds it here
		if m, ok := c.Peek(url); ok {
			return m, nil
		}
		return c.fetchAndDecode(flightCtx, url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.metrics.MeshCacheLookups.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		if res.Shared {
			c.metrics.MeshCacheLookups.WithLabelValues("shared").Inc()
		} else {
			c.metrics.MeshCacheLookups.WithLabelValues("miss").Inc()
		}
		return res.Val.(*model.Mesh), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *meshCache) fetchAndDecode(ctx context.Context, url string) (*model.Mesh, error) {
	c.mu.Lock()
	c.inflight[url] = 0
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, url)
		c.mu.Unlock()
	}()

	dec, err := resolveBackend(url)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	start := time.Now()
	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		c.logger.Warn("mesh fetch failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}
	mesh, err := dec.Decode(data)
	if err != nil {
		c.logger.Warn("mesh decode failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	c.mu.Lock()
	evicted := c.inflight[url] != 0
	if !evicted {
		c.resolved[url] = mesh
	}
	n := len(c.resolved)
	c.mu.Unlock()
	if evicted {
		c.logger.Debug("mesh evicted while loading; not kept", "url", url)
		return mesh, nil
	}
	c.metrics.MeshCacheEntries.Set(float64(n))

	c.logger.Debug("mesh resolved", "url", url, "triangles", mesh.TriangleCount(), "elapsed", time.Since(start))
	return mesh, nil
}

func (c *meshCache) Peek(url string) (*model.Mesh, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.resolved[url]
	return m, ok
}

func (c *meshCache) Evict(url string) bool {
	c.mu.Lock()
	_, ok := c.resolved[url]
	delete(c.resolved, url)
	if epoch, loading := c.inflight[url]; loading {
		c.inflight[url] = epoch + 1
	}
	n := len(c.resolved)
	c.mu.Unlock()
	if ok {
		c.metrics.MeshCacheEntries.Set(float64(n))
	}
	return ok
}

func (c *meshCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resolved)
}

func (c *meshCache) InFlight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.inflight)
}

// resolveBackend selects the mesh decoder from the URL extension.
func resolveBackend(url string) (decoder.MeshDecoder, error) {
	return decoder.NewMeshDecoder(decoder.FormatFromURL(url))
}
