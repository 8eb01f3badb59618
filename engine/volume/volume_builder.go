package volume

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// ControllerBuilderOption is a functional option for configuring a Controller via NewController.
type ControllerBuilderOption func(*controller)

// WithLogger is an option builder that sets the logger.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - ControllerBuilderOption: a function that applies the logger option to a controller
func WithLogger(l *slog.Logger) ControllerBuilderOption {
	return func(c *controller) {
		c.logger = l
	}
}

// WithMetrics is an option builder that sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) ControllerBuilderOption {
	return func(c *controller) {
		c.metrics = m
	}
}
