package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithBackground sets the initial clear color.
//
// Parameters:
//   - rgb: the color, each component in [0, 1]
//
// Returns:
//   - RendererBuilderOption: a function that applies the background option to a renderer
func WithBackground(rgb [3]float32) RendererBuilderOption {
	return func(r *renderer) {
		r.background = rgb
	}
}

// WithLight sets the light of mesh and volume shading. The default is a headlight.
//
// Parameters:
//   - l: the light, read once per frame
//
// Returns:
//   - RendererBuilderOption: a function that sets the light
func WithLight(l light.Light) RendererBuilderOption {
	return func(r *renderer) {
		r.light = l
	}
}

// WithLogger sets the logger used by the renderer.
func WithLogger(l *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.logger = l
	}
}

// WithMetrics sets the collectors that receive the live resource gauge.
func WithMetrics(m *metrics.Metrics) RendererBuilderOption {
	return func(r *renderer) {
		r.metrics = m
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the multisample anti-aliasing sample count for the renderer.
// When not specified, the default is MSAA4x. Use MSAAOff to disable MSAA entirely.
// Only the WGPU backend uses it.
//
// Parameters:
//   - count: the MSAASampleCount to use (MSAAOff or MSAA4x)
//
// Returns:
//   - RendererBuilderOption: a function that applies the MSAA option to a renderer
func WithMSAA(count MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful for benchmarking CPU vs GPU rendering performance.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
