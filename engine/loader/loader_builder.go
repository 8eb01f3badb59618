package loader

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// MeshCacheBuilderOption is a functional option for configuring a MeshCache via NewMeshCache.
type MeshCacheBuilderOption func(*meshCache)

// WithMesh is an option builder that pre-populates the cache with a resolved mesh.
//
// Parameters:
//   - url: the cache key
//   - mesh: the mesh to cache
//
// Returns:
//   - MeshCacheBuilderOption: a function that applies the mesh option to a cache
func WithMesh(url string, mesh *model.Mesh) MeshCacheBuilderOption {
	return func(c *meshCache) {
		c.resolved[url] = mesh
	}
}

// WithLogger is an option builder that sets the logger.
func WithLogger(l *slog.Logger) MeshCacheBuilderOption {
	return func(c *meshCache) {
		c.logger = l
	}
}

// WithMetrics is an option builder that sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) MeshCacheBuilderOption {
	return func(c *meshCache) {
		c.metrics = m
	}
}
