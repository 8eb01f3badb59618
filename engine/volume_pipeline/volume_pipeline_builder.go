package volume_pipeline

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
)

// VolumePipelineBuilderOption is a functional option used to configure a VolumePipeline during construction.
type VolumePipelineBuilderOption func(*volumePipeline)

// WithBackend selects the renderer backend created on Mount.
//
// Parameters:
//   - backend: the backend type
//
// Returns:
//   - VolumePipelineBuilderOption: a function that sets the backend
func WithBackend(backend renderer.RendererBackendType) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.backend = backend
	}
}

// WithRendererOptions forwards options to the renderer created on Mount.
//
// Parameters:
//   - options: renderer builder options such as MSAA or present mode
//
// Returns:
//   - VolumePipelineBuilderOption: a function that appends the options
func WithRendererOptions(options ...renderer.RendererBuilderOption) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.rendererOptions = append(p.rendererOptions, options...)
	}
}

// WithTheme sets the initial theme.
//
// Parameters:
//   - theme: the theme
//
// Returns:
//   - VolumePipelineBuilderOption: a function that sets the theme
func WithTheme(theme Theme) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.theme = theme
	}
}

// WithTransferFunction replaces the default CT transfer function of the volume actor.
//
// Parameters:
//   - tf: the transfer function
//
// Returns:
//   - VolumePipelineBuilderOption: a function that sets the transfer function
func WithTransferFunction(tf renderer.TransferFunction) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.transferFunction = &tf
	}
}

// WithSampleDistance sets the ray step of the volume actor.
//
// Parameters:
//   - d: the step in world units
//
// Returns:
//   - VolumePipelineBuilderOption: a function that sets the sample distance
func WithSampleDistance(d float32) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.sampleDistance = d
	}
}

// WithShade sets whether the volume is shaded by its gradient.
//
// Parameters:
//   - shade: true to enable shading
//
// Returns:
//   - VolumePipelineBuilderOption: a function that sets the shading flag
func WithShade(shade bool) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.shade = shade
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.logger = l
	}
}

// WithMetrics sets the metrics handed to the renderer.
func WithMetrics(m *metrics.Metrics) VolumePipelineBuilderOption {
	return func(p *volumePipeline) {
		p.metrics = m
	}
}
