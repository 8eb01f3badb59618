package scheduler

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// SchedulerBuilderOption is a functional option for configuring a Scheduler via NewScheduler.
type SchedulerBuilderOption func(*scheduler)

// WithWorkers is an option builder that sets the maximum number of pool workers.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the worker count option to a scheduler
func WithWorkers(n int) SchedulerBuilderOption {
	return func(s *scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize is an option builder that sets the pool task queue capacity.
func WithQueueSize(n int) SchedulerBuilderOption {
	return func(s *scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithIdleTimeout is an option builder that sets the pool worker idle timeout.
func WithIdleTimeout(d time.Duration) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.idleTimeout = d
	}
}

// WithPool is an option builder that runs work on an existing pool. The scheduler will not stop it on Close.
//
// Parameters:
//   - p: the shared worker pool
//
// Returns:
//   - SchedulerBuilderOption: a function that applies the pool option to a scheduler
func WithPool(p worker.DynamicWorkerPool) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.pool = p
	}
}

// WithLogger is an option builder that sets the logger.
func WithLogger(l *slog.Logger) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.logger = l
	}
}

// WithMetrics is an option builder that sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) SchedulerBuilderOption {
	return func(s *scheduler) {
		s.metrics = m
	}
}
