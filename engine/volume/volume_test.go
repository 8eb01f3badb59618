package volume

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/internal/fixture"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	urlA = "https://assets/case-a/ct_volume.vti"
	urlB = "https://assets/case-b/ct_volume.vti"
)

type harness struct {
	fetcher *fixture.Fetcher
	sched   scheduler.Scheduler
	ctrl    Controller
	metrics *metrics.Metrics
	seen    []Handle
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fetcher: fixture.NewFetcher(),
		metrics: metrics.New(nil),
	}
	h.sched = scheduler.NewScheduler(scheduler.WithWorkers(2), scheduler.WithLogger(logging.Discard()))
	h.ctrl = NewController(h.fetcher, h.sched, WithLogger(logging.Discard()), WithMetrics(h.metrics))
	h.ctrl.Subscribe(func(hd Handle) { h.seen = append(h.seen, hd) })
	t.Cleanup(func() {
		h.ctrl.Close()
		h.sched.Close()
	})
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sched.Flush(ctx))
}

func TestLoadPublishesVolume(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 3, 0, 2, 0, 1}, [3]float32{1, 1, 2}, 0))

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA, Format: "vti"})
	loading := h.ctrl.Handle()
	assert.Equal(t, StateLoading, loading.State)
	assert.Equal(t, LoadingMessage, loading.LoadingMessage)
	assert.Equal(t, uint64(0), loading.Version)

	h.flush(t)
	ready := h.ctrl.Handle()
	require.Equal(t, StateReady, ready.State)
	require.NotNil(t, ready.Volume)
	assert.Equal(t, model.Extent{0, 3, 0, 2, 0, 1}, ready.Extent())
	assert.Equal(t, uint64(1), ready.Version)
	assert.Empty(t, ready.LoadingMessage)
	assert.Empty(t, ready.ErrorMessage)
	assert.Len(t, h.seen, 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.VolumeLoads.WithLabelValues("ready")))
}

func TestSupersededLoadNeverPublishes(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 1, 0, 1, 0, 1}, [3]float32{1, 1, 1}, 0)).Delay(urlA, 500*time.Millisecond)
	h.fetcher.Serve(urlB, fixture.VTI(model.Extent{0, 4, 0, 4, 0, 4}, [3]float32{1, 1, 1}, 100)).Delay(urlB, 10*time.Millisecond)

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlB})
	h.flush(t)

	final := h.ctrl.Handle()
	require.Equal(t, StateReady, final.State)
	assert.Equal(t, urlB, final.Descriptor.URL)
	assert.Equal(t, model.Extent{0, 4, 0, 4, 0, 4}, final.Extent())
	assert.Equal(t, uint64(1), final.Version)
	for _, hd := range h.seen {
		if hd.Volume != nil {
			assert.Equal(t, urlB, hd.Descriptor.URL)
		}
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.VolumeLoads.WithLabelValues("superseded")))
}

func TestSameDescriptorDoesNotRefetch(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 1, 0, 1, 0, 0}, [3]float32{1, 1, 1}, 0))

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA, Format: "VTI"})
	h.flush(t)
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.flush(t)

	assert.Equal(t, 1, h.fetcher.Calls(urlA))
	assert.Equal(t, uint64(1), h.ctrl.Handle().Version)
}

func TestUnsupportedFormatFailsWithoutFetch(t *testing.T) {
	h := newHarness(t)

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: "https://assets/case/ct.nrrd", Format: "nrrd"})
	hd := h.ctrl.Handle()
	assert.Equal(t, StateFailed, hd.State)
	assert.Equal(t, `Unsupported volume format "nrrd". Expected .vti`, hd.ErrorMessage)
	assert.ErrorIs(t, hd.Err, decoder.ErrUnsupportedFormat)
	assert.Equal(t, uint64(1), hd.Version)
	assert.Equal(t, 0, h.fetcher.Total())
	assert.Equal(t, 0, h.sched.Pending())
}

func TestFailureClearsVolumeAndRetries(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 1, 0, 1, 0, 1}, [3]float32{1, 1, 1}, 0))
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.flush(t)
	require.NotNil(t, h.ctrl.Handle().Volume)

	h.fetcher.Fail(urlB, &fetcher.TransportError{URL: urlB, StatusCode: 503, Status: "503 Service Unavailable"})
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlB})
	assert.NotNil(t, h.ctrl.Handle().Volume, "previous volume stays visible while loading")
	h.flush(t)

	failed := h.ctrl.Handle()
	assert.Equal(t, StateFailed, failed.State)
	assert.Nil(t, failed.Volume)
	assert.Equal(t, FailureMessage, failed.ErrorMessage)
	assert.Empty(t, failed.LoadingMessage)
	assert.Equal(t, uint64(2), failed.Version)
	var te *fetcher.TransportError
	require.True(t, errors.As(failed.Err, &te))
	assert.Equal(t, 503, te.StatusCode)

	h.fetcher.Serve(urlB, fixture.VTI(model.Extent{0, 2, 0, 2, 0, 2}, [3]float32{1, 1, 1}, 0))
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlB})
	h.flush(t)
	assert.Equal(t, StateReady, h.ctrl.Handle().State)
	assert.Equal(t, 2, h.fetcher.Calls(urlB))
	assert.Equal(t, uint64(3), h.ctrl.Handle().Version)
}

func TestDecodeErrorIsReportedAsFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, []byte("<VTKFile"))
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.flush(t)

	hd := h.ctrl.Handle()
	assert.Equal(t, StateFailed, hd.State)
	assert.Equal(t, FailureMessage, hd.ErrorMessage)
	var de *decoder.DecodeError
	assert.True(t, errors.As(hd.Err, &de))
}

// panickingFetcher crashes on every request.
type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, string) ([]byte, error) {
	panic("slice bounds out of range [:-8]")
}

func (panickingFetcher) Backend(string) (fetcher.FetcherBackendType, error) {
	return fetcher.BackendTypeHTTP, nil
}

func TestPanickingLoadIsReportedAsDecodeError(t *testing.T) {
	sched := scheduler.NewScheduler(scheduler.WithWorkers(1), scheduler.WithLogger(logging.Discard()))
	ctrl := NewController(panickingFetcher{}, sched, WithLogger(logging.Discard()))
	t.Cleanup(func() {
		ctrl.Close()
		sched.Close()
	})

	ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sched.Flush(ctx))

	hd := ctrl.Handle()
	assert.Equal(t, StateFailed, hd.State)
	assert.Nil(t, hd.Volume)
	var de *decoder.DecodeError
	require.ErrorAs(t, hd.Err, &de)
	assert.Equal(t, "vti", de.Format)
	assert.Contains(t, de.Reason, "slice bounds out of range")
}

func TestNilDescriptorPublishesNoVolume(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 1, 0, 1, 0, 1}, [3]float32{1, 1, 1}, 0)).Delay(urlA, 50*time.Millisecond)

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.ctrl.SetDescriptor(nil)
	cleared := h.ctrl.Handle()
	assert.Equal(t, StateIdle, cleared.State)
	assert.Nil(t, cleared.Volume)
	assert.True(t, cleared.Extent().IsZero())
	assert.Empty(t, cleared.ErrorMessage)
	assert.Equal(t, uint64(1), cleared.Version)

	h.flush(t)
	assert.Equal(t, uint64(1), h.ctrl.Handle().Version)
	assert.Nil(t, h.ctrl.Handle().Volume)

	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: "   "})
	assert.Equal(t, uint64(2), h.ctrl.Handle().Version)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	h := newHarness(t)
	count := 0
	unsubscribe := h.ctrl.Subscribe(func(Handle) { count++ })
	h.ctrl.SetDescriptor(nil)
	unsubscribe()
	h.ctrl.SetDescriptor(nil)
	assert.Equal(t, 1, count)
}

func TestClosedControllerIgnoresRequests(t *testing.T) {
	h := newHarness(t)
	h.fetcher.Serve(urlA, fixture.VTI(model.Extent{0, 1, 0, 1, 0, 1}, [3]float32{1, 1, 1}, 0))
	h.ctrl.Close()
	h.ctrl.SetDescriptor(&model.VolumeDescriptor{URL: urlA})
	h.flush(t)
	assert.Equal(t, StateIdle, h.ctrl.Handle().State)
	assert.Equal(t, 0, h.fetcher.Total())
}
