package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (Scheduler, *metrics.Metrics) {
	m := metrics.New(nil)
	s := NewScheduler(WithWorkers(2), WithLogger(logging.Discard()), WithMetrics(m))
	t.Cleanup(s.Close)
	return s, m
}

func flush(t *testing.T, s Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func TestCompletionsRunOnlyInDrain(t *testing.T) {
	s, _ := newTestScheduler(t)

	worked := make(chan struct{})
	var completed atomic.Bool
	s.Go("load", func() (any, error) {
		close(worked)
		return 42, nil
	}, func(v any, err error) {
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
		completed.Store(true)
	})

	<-worked
	time.Sleep(10 * time.Millisecond)
	assert.False(t, completed.Load(), "completion must wait for Drain")

	flush(t, s)
	assert.True(t, completed.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestPostPreservesOrder(t *testing.T) {
	s, _ := newTestScheduler(t)
	var order []int
	for i := range 5 {
		s.Post(func() { order = append(order, i) })
	}
	assert.Equal(t, 5, s.Pending())
	assert.Equal(t, 5, s.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 0, s.Drain())
}

func TestCallbacksPostedWhileDrainingRunNextTime(t *testing.T) {
	s, _ := newTestScheduler(t)
	ran := 0
	s.Post(func() {
		ran++
		s.Post(func() { ran++ })
	})
	assert.Equal(t, 1, s.Drain())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, s.Drain())
	assert.Equal(t, 2, ran)
}

func TestPanicBecomesError(t *testing.T) {
	s, m := newTestScheduler(t)
	var got error
	s.Go("decode", func() (any, error) {
		panic("bad voxel")
	}, func(_ any, err error) {
		got = err
	})
	flush(t, s)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "bad voxel")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SchedulerTasks.WithLabelValues("decode", "panic")))
}

func TestErrorsAreCounted(t *testing.T) {
	s, m := newTestScheduler(t)
	boom := errors.New("boom")
	var got error
	s.Go("fetch", func() (any, error) { return nil, boom }, func(_ any, err error) { got = err })
	flush(t, s)
	assert.ErrorIs(t, got, boom)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SchedulerTasks.WithLabelValues("fetch", "error")))
}

func TestFlushHonoursContext(t *testing.T) {
	s, _ := newTestScheduler(t)
	release := make(chan struct{})
	defer close(release)
	s.Go("slow", func() (any, error) {
		<-release
		return nil, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, s.Pending())
}

func TestGoAfterClose(t *testing.T) {
	s := NewScheduler(WithLogger(logging.Discard()))
	s.Close()
	s.Close()

	var got error
	s.Go("late", func() (any, error) {
		t.Fatal("work must not run after Close")
		return nil, nil
	}, func(_ any, err error) { got = err })
	s.Drain()
	assert.ErrorIs(t, got, ErrClosed)
}
