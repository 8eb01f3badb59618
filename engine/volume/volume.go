// Package volume owns the lifecycle of the currently loaded imaging volume.
package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/decoder"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
)

// User-facing status text published on the Handle.
const (
	LoadingMessage = "Loading volume data…"
	FailureMessage = "Unable to load the imaging volume. Verify the asset URL and format."
)

// State is the phase of the controller's state machine.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is a snapshot of the current volume. Consumers compare Version to detect new data,
// never the identity of the snapshot.
type Handle struct {
	// Volume is the current decoded volume, or nil.
	Volume *model.Volume
	// Version increments each time a volume or an explicit absence of one is published.
	Version uint64
	// State is the controller phase.
	State State
	// Descriptor is the requested descriptor, nil when none was requested.
	Descriptor *model.VolumeDescriptor
	// LoadingMessage is non-empty while a load is in flight.
	LoadingMessage string
	// ErrorMessage is non-empty after a failed load.
	ErrorMessage string
	// Err is the underlying failure behind ErrorMessage.
	Err error
}

// Extent returns the extent of the current volume, zero when there is none.
func (h Handle) Extent() model.Extent {
	if h.Volume == nil {
		return model.Extent{}
	}
	return h.Volume.Extent
}

// controller is the implementation of the Controller interface.
type controller struct {
	mu *sync.Mutex

	fetcher   fetcher.Fetcher
	scheduler scheduler.Scheduler

	handle     Handle
	generation uint64
	cancel     context.CancelFunc
	closed     bool

	subscribers map[int]func(Handle)
	nextSubID   int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Controller loads the volume named by a descriptor and publishes it exactly once per descriptor change.
// A newer descriptor always wins: results of superseded loads are discarded even when they finish last.
// Every method must be called from the goroutine that drains the scheduler; subscribers run there too.
type Controller interface {
	// SetDescriptor requests the volume named by d. A nil or URL-less descriptor publishes
	// "no volume". The same descriptor while loading or ready is ignored; after a failure it retries.
	// Formats other than vti fail immediately without a fetch.
	//
	// Parameters:
	//   - d: the descriptor, or nil
	SetDescriptor(d *model.VolumeDescriptor)

	// Handle returns the current snapshot.
	//
	// Returns:
	//   - Handle: the snapshot
	Handle() Handle

	// Subscribe registers fn to receive every new snapshot.
	//
	// Parameters:
	//   - fn: the listener
	//
	// Returns:
	//   - func(): removes the listener
	Subscribe(fn func(Handle)) func()

	// Close abandons any in-flight load and ignores later requests.
	Close()
}

var _ Controller = &controller{}

// NewController creates a Controller that fetches through f and runs loads on s.
//
// Parameters:
//   - f: the asset fetcher
//   - s: the scheduler whose Drain applies results
//   - options: a variadic list of ControllerBuilderOption functions
//
// Returns:
//   - Controller: the controller
func NewController(f fetcher.Fetcher, s scheduler.Scheduler, options ...ControllerBuilderOption) Controller {
	c := &controller{
		mu:          &sync.Mutex{},
		fetcher:     f,
		scheduler:   s,
		subscribers: make(map[int]func(Handle)),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.Component(c.logger, "volume")
	c.metrics = metrics.Coalesce(c.metrics)
	return c
}

func (c *controller) SetDescriptor(d *model.VolumeDescriptor) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if d == nil || d.Empty() {
		c.supersede()
		c.handle = Handle{
			Version: c.handle.Version + 1,
			State:   StateIdle,
		}
		snapshot := c.handle
		c.mu.Unlock()
		c.metrics.VolumeLoads.WithLabelValues("cleared").Inc()
		c.publish(snapshot)
		return
	}

	desc := d.Normalized()
	if cur := c.handle.Descriptor; cur != nil && cur.Key() == desc.Key() &&
		(c.handle.State == StateLoading || c.handle.State == StateReady) {
		c.mu.Unlock()
		return
	}

	c.supersede()
	if _, err := decoder.NewVolumeDecoder(desc.Format); err != nil {
		c.handle = Handle{
			Version:      c.handle.Version + 1,
			State:        StateFailed,
			Descriptor:   &desc,
			ErrorMessage: err.Error(),
			Err:          err,
		}
		snapshot := c.handle
		c.mu.Unlock()
		c.logger.Warn("unsupported volume format", "format", desc.Format, "url", desc.URL)
		c.metrics.VolumeLoads.WithLabelValues("unsupported").Inc()
		c.publish(snapshot)
		return
	}

	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.handle = Handle{
		Volume:         c.handle.Volume,
		Version:        c.handle.Version,
		State:          StateLoading,
		Descriptor:     &desc,
		LoadingMessage: LoadingMessage,
	}
	snapshot := c.handle
	c.mu.Unlock()

	c.logger.Info("loading volume", "url", desc.URL, "format", desc.Format, "generation", gen)
	c.publish(snapshot)

	start := time.Now()
	c.scheduler.Go("volume_load", func() (any, error) {
		return c.load(ctx, desc)
	}, func(result any, err error) {
		c.finish(gen, desc, start, result, err)
	})
}

// supersede advances the generation and abandons the running load. Callers hold mu.
func (c *controller) supersede() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// load fetches and decodes one descriptor. A panic in either step surfaces as a DecodeError.
func (c *controller) load(ctx context.Context, desc model.VolumeDescriptor) (vol *model.Volume, err error) {
	defer func() {
		if r := recover(); r != nil {
			vol = nil
			err = &decoder.DecodeError{Format: desc.Format, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()
	data, err := c.fetcher.Fetch(ctx, desc.URL)
	if err != nil {
		return nil, err
	}
	return decoder.DecodeVolume(desc.Format, data)
}

func (c *controller) finish(gen uint64, desc model.VolumeDescriptor, start time.Time, result any, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded volume load", "url", desc.URL, "generation", gen)
		c.metrics.VolumeLoads.WithLabelValues("superseded").Inc()
		return
	}
	c.cancel = nil

	vol, _ := result.(*model.Volume)
	if err == nil && vol == nil {
		err = errors.New("loader returned no volume")
	}
	if err != nil {
		c.handle = Handle{
			Version:      c.handle.Version + 1,
			State:        StateFailed,
			Descriptor:   &desc,
			ErrorMessage: FailureMessage,
			Err:          err,
		}
	} else {
		c.handle = Handle{
			Volume:     vol,
			Version:    c.handle.Version + 1,
			State:      StateReady,
			Descriptor: &desc,
		}
	}
	snapshot := c.handle
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("volume load failed", "url", desc.URL, "error", err)
		c.metrics.VolumeLoads.WithLabelValues("failed").Inc()
	} else {
		c.logger.Info("volume ready", "url", desc.URL, "dimensions", vol.Dimensions(), "elapsed", time.Since(start))
		c.metrics.VolumeLoads.WithLabelValues("ready").Inc()
		c.metrics.VolumeLoadSeconds.Observe(time.Since(start).Seconds())
	}
	c.publish(snapshot)
}

func (c *controller) publish(h Handle) {
	c.mu.Lock()
	subs := make([]func(Handle), 0, len(c.subscribers))
	for id := 0; id < c.nextSubID; id++ {
		if fn, ok := c.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(h)
	}
}

func (c *controller) Handle() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

func (c *controller) Subscribe(fn func(Handle)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.supersede()
	c.closed = true
}
