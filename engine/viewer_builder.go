package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/loader"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice_pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume_pipeline"
)

// ViewerBuilderOption is a functional option used to configure a Viewer during construction.
type ViewerBuilderOption func(*viewer)

// WithImagingEnabled turns imaging on or off. A disabled viewer never fetches or renders
// and reports every imaging control as unavailable.
//
// Parameters:
//   - enabled: whether imaging is enabled
//
// Returns:
//   - ViewerBuilderOption: a function that sets the flag
func WithImagingEnabled(enabled bool) ViewerBuilderOption {
	return func(v *viewer) {
		v.imagingEnabled = enabled
	}
}

// WithFetcher sets the fetcher shared by the volume controller and the mesh cache.
//
// Parameters:
//   - f: the asset fetcher
//
// Returns:
//   - ViewerBuilderOption: a function that sets the fetcher
func WithFetcher(f fetcher.Fetcher) ViewerBuilderOption {
	return func(v *viewer) {
		v.fetcher = f
	}
}

// WithMeshCache sets the structure mesh cache.
//
// Parameters:
//   - c: the mesh cache
//
// Returns:
//   - ViewerBuilderOption: a function that sets the cache
func WithMeshCache(c loader.MeshCache) ViewerBuilderOption {
	return func(v *viewer) {
		v.meshCache = c
	}
}

// WithScheduler sets the scheduler. The caller keeps ownership and closes it.
//
// Parameters:
//   - s: the scheduler
//
// Returns:
//   - ViewerBuilderOption: a function that sets the scheduler
func WithScheduler(s scheduler.Scheduler) ViewerBuilderOption {
	return func(v *viewer) {
		v.scheduler = s
	}
}

// WithExportHandler sets the function invoked by ExportStructure. Without one, export is unavailable.
//
// Parameters:
//   - fn: receives the structure id
//
// Returns:
//   - ViewerBuilderOption: a function that sets the handler
func WithExportHandler(fn func(structureID string) error) ViewerBuilderOption {
	return func(v *viewer) {
		v.exportHandler = fn
	}
}

// WithAlertHandler sets the function that surfaces alerts such as volume load failures.
//
// Parameters:
//   - fn: receives the alert text
//
// Returns:
//   - ViewerBuilderOption: a function that sets the handler
func WithAlertHandler(fn func(msg string)) ViewerBuilderOption {
	return func(v *viewer) {
		v.alertHandler = fn
	}
}

// WithTheme sets the initial 3D theme.
func WithTheme(theme volume_pipeline.Theme) ViewerBuilderOption {
	return func(v *viewer) {
		v.theme = theme
	}
}

// WithRendererBackend selects the backend of both pipelines, plus options forwarded to each renderer.
//
// Parameters:
//   - backend: the renderer backend
//   - options: renderer builder options
//
// Returns:
//   - ViewerBuilderOption: a function that sets the backend
func WithRendererBackend(backend renderer.RendererBackendType, options ...renderer.RendererBuilderOption) ViewerBuilderOption {
	return func(v *viewer) {
		v.backend = backend
		v.rendererOptions = append(v.rendererOptions, options...)
	}
}

// WithVolumePipelineOptions forwards options to the 3D pipeline.
func WithVolumePipelineOptions(options ...volume_pipeline.VolumePipelineBuilderOption) ViewerBuilderOption {
	return func(v *viewer) {
		v.volumeOptions = append(v.volumeOptions, options...)
	}
}

// WithSlicePipelineOptions forwards options to the 2D pipeline.
func WithSlicePipelineOptions(options ...slice_pipeline.SlicePipelineBuilderOption) ViewerBuilderOption {
	return func(v *viewer) {
		v.sliceOptions = append(v.sliceOptions, options...)
	}
}

func WithLogger(l *slog.Logger) ViewerBuilderOption {
	return func(v *viewer) {
		v.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) ViewerBuilderOption {
	return func(v *viewer) {
		v.metrics = m
	}
}
