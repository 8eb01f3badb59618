package slice_pipeline

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
)

// SlicePipelineBuilderOption is a functional option used to configure a SlicePipeline during construction.
type SlicePipelineBuilderOption func(*slicePipeline)

// WithBackend selects the renderer backend created on Mount.
//
// Parameters:
//   - backend: the backend type
//
// Returns:
//   - SlicePipelineBuilderOption: a function that sets the backend
func WithBackend(backend renderer.RendererBackendType) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.backend = backend
	}
}

// WithRendererOptions forwards options to the renderer created on Mount.
func WithRendererOptions(options ...renderer.RendererBuilderOption) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.rendererOptions = append(p.rendererOptions, options...)
	}
}

// WithBackground overrides the dark slice background.
func WithBackground(rgb [3]float32) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.background = rgb
	}
}

// WithColorWindow sets the display window width in scalar units. Non-positive values are ignored.
//
// Parameters:
//   - window: the window width
//
// Returns:
//   - SlicePipelineBuilderOption: a function that sets the window
func WithColorWindow(window float32) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		if window > 0 {
			p.colorWindow = window
		}
	}
}

// WithColorLevel sets the display window center in scalar units.
func WithColorLevel(level float32) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.colorLevel = level
	}
}

// WithAutoWindowLevel derives window and level from the statistics of each new volume, falling
// back to the configured values when the statistics are flat.
func WithAutoWindowLevel(auto bool) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.autoWindowLevel = auto
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) SlicePipelineBuilderOption {
	return func(p *slicePipeline) {
		p.metrics = m
	}
}
