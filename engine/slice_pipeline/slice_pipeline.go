// Package slice_pipeline renders the 2D view: one axis-aligned slice of the volume under a
// parallel camera looking along the slice normal.
package slice_pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume"
	"github.com/chewxy/math32"
)

// ErrAlreadyMounted is returned by Mount on a pipeline that is already bound to a container.
var ErrAlreadyMounted = errors.New("slice pipeline already mounted")

// ErrNotMounted is returned by operations that need a renderer before Mount.
var ErrNotMounted = errors.New("slice pipeline not mounted")

// DefaultBackground is the slice view background.
var DefaultBackground = [3]float32{0.07, 0.09, 0.12}

const sliceActorID = "slice"

// slicePipeline is the implementation of the SlicePipeline interface.
type slicePipeline struct {
	mu *sync.Mutex

	backend         renderer.RendererBackendType
	rendererOptions []renderer.RendererBuilderOption
	background      [3]float32
	colorWindow     float32
	colorLevel      float32
	autoWindowLevel bool

	renderer renderer.Renderer
	camera   camera.Camera
	actor    renderer.SliceActor

	vol         *model.Volume
	version     uint64
	axis        slice.Axis
	index       int
	orientation *slice.Orientation
	resets      uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// SlicePipeline owns the 2D scene of one container: a single slice actor and a parallel camera.
// Every method must be called from the owner goroutine.
type SlicePipeline interface {
	// Mount creates the renderer, camera and slice actor for container and frames the current
	// slice if a volume is already bound.
	//
	// Parameters:
	//   - container: the render target
	//
	// Returns:
	//   - error: ErrAlreadyMounted, or an error if the renderer could not be created
	Mount(container renderer.Container) error

	// Unmount releases the renderer and every GPU resource it owns. It is a no-op when unmounted.
	Unmount()

	// Mounted reports whether a renderer is live.
	//
	// Returns:
	//   - bool: true between Mount and Unmount
	Mounted() bool

	// Reset re-applies the current slice and resets the camera framing.
	Reset()

	// OnVersionChanged rebinds the slice actor to the handle's volume and resets the camera. A handle
	// without a volume hides the slice.
	//
	// Parameters:
	//   - h: the volume handle
	OnVersionChanged(h volume.Handle)

	// OnAxisChanged switches the slicing axis, positions the slice at index and resets the camera.
	//
	// Parameters:
	//   - axis: the new axis
	//   - index: the slice index along axis
	OnAxisChanged(axis slice.Axis, index int)

	// SetSlice moves the slice plane along the current axis without resetting the camera.
	//
	// Parameters:
	//   - index: the slice index
	SetSlice(index int)

	// SetOrientation replaces the orientation hint and recomputes the camera without a reset.
	// Nil restores the default framing of the axis.
	//
	// Parameters:
	//   - o: the hint or nil
	SetOrientation(o *slice.Orientation)

	// SetWindowLevel sets the grayscale display window and level.
	//
	// Parameters:
	//   - window: the window width, ignored when not positive
	//   - level: the window center
	SetWindowLevel(window, level float32)

	// WindowLevel returns the display window and level in effect.
	//
	// Returns:
	//   - float32: the window width
	//   - float32: the window center
	WindowLevel() (float32, float32)

	// Render draws one frame.
	//
	// Returns:
	//   - error: ErrNotMounted or a renderer error
	Render() error

	// Camera returns the camera, nil before Mount.
	Camera() camera.Camera

	// Renderer returns the renderer, nil before Mount.
	Renderer() renderer.Renderer

	// Axis returns the current slicing axis.
	Axis() slice.Axis

	// Index returns the current slice index.
	Index() int

	// Resets counts camera resets since construction.
	//
	// Returns:
	//   - uint64: the counter
	Resets() uint64
}

var _ SlicePipeline = &slicePipeline{}

// NewSlicePipeline creates an unmounted SlicePipeline on the axial axis.
//
// Parameters:
//   - options: a variadic list of SlicePipelineBuilderOption functions
//
// Returns:
//   - SlicePipeline: the pipeline
func NewSlicePipeline(options ...SlicePipelineBuilderOption) SlicePipeline {
	p := &slicePipeline{
		mu:          &sync.Mutex{},
		backend:     renderer.BackendTypeWGPU,
		background:  DefaultBackground,
		colorWindow: renderer.DefaultColorWindow,
		colorLevel:  renderer.DefaultColorLevel,
		axis:        slice.AxisK,
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = logging.Component(p.logger, "slice_pipeline")
	p.metrics = metrics.Coalesce(p.metrics)
	return p
}

func (p *slicePipeline) Mount(container renderer.Container) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer != nil {
		return ErrAlreadyMounted
	}

	options := append([]renderer.RendererBuilderOption{
		renderer.WithBackground(p.background),
		renderer.WithLogger(p.logger),
		renderer.WithMetrics(p.metrics),
	}, p.rendererOptions...)
	r, err := renderer.NewRenderer(p.backend, container, options...)
	if err != nil {
		return fmt.Errorf("mount 2D view: %w", err)
	}
	a, err := r.NewSliceActor(sliceActorID)
	if err != nil {
		r.Release()
		return fmt.Errorf("mount 2D view: %w", err)
	}
	a.SetColorWindow(p.colorWindow)
	a.SetColorLevel(p.colorLevel)
	a.SetSlice(p.axis, p.index)

	p.renderer = r
	p.actor = a
	p.camera = camera.NewCamera(camera.WithParallelProjection(true))
	p.bindLocked()
	p.applySliceLocked(true)
	p.logger.Debug("mounted", "backend", p.backend.String())
	return nil
}

func (p *slicePipeline) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return
	}
	p.renderer.Release()
	p.renderer = nil
	p.actor = nil
	p.camera = nil
	p.logger.Debug("unmounted")
}

func (p *slicePipeline) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderer != nil
}

func (p *slicePipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applySliceLocked(true)
}

func (p *slicePipeline) OnVersionChanged(h volume.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := h.Volume != p.vol
	p.vol = h.Volume
	p.version = h.Version
	if changed && p.vol != nil && p.autoWindowLevel {
		if window, level, ok := p.vol.Stats.WindowLevel(); ok {
			p.colorWindow, p.colorLevel = window, level
			p.logger.Debug("auto window/level", "window", window, "level", level)
		}
	}
	if p.renderer == nil {
		return
	}
	p.bindLocked()
	p.applySliceLocked(true)
}

func (p *slicePipeline) OnAxisChanged(axis slice.Axis, index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if axis.Valid() {
		p.axis = axis
	}
	p.index = index
	p.applySliceLocked(true)
}

func (p *slicePipeline) SetSlice(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = index
	p.applySliceLocked(false)
}

func (p *slicePipeline) SetOrientation(o *slice.Orientation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o != nil {
		hint := *o
		o = &hint
	}
	p.orientation = o
	p.configureCameraLocked(false)
}

func (p *slicePipeline) SetWindowLevel(window, level float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if window > 0 {
		p.colorWindow = window
	}
	p.colorLevel = level
	if p.actor != nil {
		p.actor.SetColorWindow(p.colorWindow)
		p.actor.SetColorLevel(p.colorLevel)
	}
}

func (p *slicePipeline) WindowLevel() (float32, float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.colorWindow, p.colorLevel
}

func (p *slicePipeline) Render() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return ErrNotMounted
	}
	start := time.Now()
	if err := p.renderer.Render(p.camera); err != nil {
		return err
	}
	p.metrics.FrameSeconds.WithLabelValues("2d").Observe(time.Since(start).Seconds())
	return nil
}

func (p *slicePipeline) Camera() camera.Camera {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera
}

func (p *slicePipeline) Renderer() renderer.Renderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderer
}

func (p *slicePipeline) Axis() slice.Axis {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.axis
}

func (p *slicePipeline) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *slicePipeline) Resets() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// bindLocked uploads p.vol to the slice actor, or hides the actor when there is none.
func (p *slicePipeline) bindLocked() {
	if p.vol == nil {
		if err := p.actor.SetInput(nil); err != nil {
			p.logger.Warn("slice release failed", "error", err)
		}
		p.actor.SetVisible(false)
		return
	}
	if p.actor.Input() != p.vol {
		if err := p.actor.SetInput(p.vol); err != nil {
			p.logger.Error("slice upload failed", "error", err)
			p.actor.SetVisible(false)
			return
		}
	}
	p.actor.SetColorWindow(p.colorWindow)
	p.actor.SetColorLevel(p.colorLevel)
	p.actor.SetVisible(true)
}

func (p *slicePipeline) applySliceLocked(reset bool) {
	if p.renderer == nil || p.vol == nil {
		return
	}
	p.actor.SetSlice(p.axis, p.index)
	p.configureCameraLocked(reset)
}

// configureCameraLocked frames the slice: the focal point sits at the slice center and the eye
// backs off along the axis direction, keeping the current distance unless it is unusable.
func (p *slicePipeline) configureCameraLocked(reset bool) {
	if p.renderer == nil || p.vol == nil {
		return
	}
	cam := p.camera
	cam.SetParallelProjection(true)
	if reset {
		cam.ResetCamera(p.renderer.VisibleBounds())
		p.resets++
	}

	orientation := slice.DefaultOrientation(p.axis)
	if p.orientation != nil {
		if p.orientation.Direction != ([3]float32{}) {
			orientation.Direction = p.orientation.Direction
		}
		if p.orientation.ViewUp != ([3]float32{}) {
			orientation.ViewUp = p.orientation.ViewUp
		}
		orientation.FocalPoint = p.orientation.FocalPoint
		orientation.Position = p.orientation.Position
	}

	center := p.vol.Bounds().Center()
	span := [3]float32{1, 1, 1}
	if b := p.actor.Bounds(); boundsFinite(b) {
		center = b.Center()
		size := b.Size()
		span = [3]float32{math32.Abs(size[0]), math32.Abs(size[1]), math32.Abs(size[2])}
	}

	target := center
	if orientation.FocalPoint != nil {
		target = *orientation.FocalPoint
	}

	distance := cam.Distance()
	if distance == 0 || math32.IsNaN(distance) || math32.IsInf(distance, 0) {
		distance = max(span[0], span[1], span[2], 1) * 1.5
	}

	position := common.Sub3(target, common.Scale3(unitOrZ(orientation.Direction), distance))
	if orientation.Position != nil {
		position = *orientation.Position
	}

	cam.SetFocalPoint(target)
	cam.SetPosition(position)
	cam.SetViewUp(orientation.ViewUp)
	cam.OrthogonalizeViewUp()
	cam.ResetClippingRange(p.renderer.VisibleBounds())
}

func boundsFinite(b model.Bounds) bool {
	if !b.Valid() {
		return false
	}
	for _, v := range b {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// unitOrZ normalizes d, treating a zero vector as +z.
func unitOrZ(d [3]float32) [3]float32 {
	if n := common.Normalize3(d); n != ([3]float32{}) {
		return n
	}
	return [3]float32{0, 0, 1}
}
