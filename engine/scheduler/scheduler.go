// Package scheduler runs background work on a worker pool and hands completions back to the
// single thread that owns viewer state. Nothing posted here runs until the owner calls Drain.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
)

// ErrClosed is passed to completions of work submitted after Close.
var ErrClosed = errors.New("scheduler closed")

// scheduler is the implementation of the Scheduler interface.
type scheduler struct {
	mu *sync.Mutex

	pool        worker.DynamicWorkerPool
	ownsPool    bool
	workers     int
	queueSize   int
	idleTimeout time.Duration

	queue    []func()
	inflight int
	nextID   int
	closed   bool
	notify   chan struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Scheduler splits work between a background pool and the owner thread.
// Work functions run concurrently on pool workers; their completion callbacks and anything passed
// to Post run only inside Drain, on whichever goroutine calls it.
type Scheduler interface {
	// Go runs work on the pool and queues done(result, err) for the owner thread.
	// A panic inside work is recovered and reported to done as an error.
	//
	// Parameters:
	//   - label: names the task in logs and metrics
	//   - work: the background function
	//   - done: the completion, run inside Drain; may be nil
	Go(label string, work func() (any, error), done func(any, error))

	// Post queues fn for the owner thread.
	//
	// Parameters:
	//   - fn: the callback to run inside the next Drain
	Post(fn func())

	// Drain runs every queued callback on the calling goroutine, in submission order.
	// Callbacks queued while draining run in the next call.
	//
	// Returns:
	//   - int: the number of callbacks run
	Drain() int

	// Flush drains repeatedly until no work is in flight and nothing is queued.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//
	// Returns:
	//   - error: ctx.Err() if the context ends first
	Flush(ctx context.Context) error

	// Pending reports queued callbacks plus work still running.
	//
	// Returns:
	//   - int: the pending count
	Pending() int

	// Close stops the pool if the scheduler created it. Later Go calls complete with ErrClosed.
	Close()
}

var _ Scheduler = &scheduler{}

// NewScheduler creates a Scheduler backed by a dynamic worker pool.
//
// Parameters:
//   - options: a variadic list of SchedulerBuilderOption functions
//
// Returns:
//   - Scheduler: the scheduler
func NewScheduler(options ...SchedulerBuilderOption) Scheduler {
	s := &scheduler{
		mu:          &sync.Mutex{},
		workers:     4,
		queueSize:   256,
		idleTimeout: time.Second,
		notify:      make(chan struct{}, 1),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = logging.Component(s.logger, "scheduler")
	s.metrics = metrics.Coalesce(s.metrics)
	if s.pool == nil {
		s.pool = worker.NewDynamicWorkerPool(s.workers, s.queueSize, s.idleTimeout)
		s.ownsPool = true
	}
	return s
}

func (s *scheduler) Go(label string, work func() (any, error), done func(any, error)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.Post(func() {
			if done != nil {
				done(nil, ErrClosed)
			}
		})
		return
	}
	s.inflight++
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	s.pool.SubmitTask(worker.Task{
		ID:      id,
		Payload: label,
		Do: func() (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %s panicked: %v", label, r)
					s.logger.Error("task panicked", "label", label, "panic", r)
					s.metrics.SchedulerTasks.WithLabelValues(label, "panic").Inc()
				} else if err != nil {
					s.metrics.SchedulerTasks.WithLabelValues(label, "error").Inc()
				} else {
					s.metrics.SchedulerTasks.WithLabelValues(label, "ok").Inc()
				}
				res, resErr := result, err
				s.complete(func() {
					if done != nil {
						done(res, resErr)
					}
				})
			}()
			return work()
		},
	})
}

// complete queues a completion and retires one in-flight task in the same critical section
// so Flush never observes the gap between them.
func (s *scheduler) complete(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.inflight--
	s.mu.Unlock()
	s.signal()
}

func (s *scheduler) Post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	s.signal()
}

func (s *scheduler) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *scheduler) Drain() int {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, fn := range queued {
		fn()
	}
	return len(queued)
}

func (s *scheduler) Flush(ctx context.Context) error {
	for {
		s.Drain()

		s.mu.Lock()
		idle := s.inflight == 0 && len(s.queue) == 0
		s.mu.Unlock()
		if idle {
			return nil
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) + s.inflight
}

func (s *scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.ownsPool {
		s.pool.Stop()
	}
}
