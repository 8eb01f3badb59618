package renderer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrReleased is returned by every operation on a released renderer or a removed actor.
	ErrReleased = errors.New("renderer: released")
	// ErrCaptureUnsupported is returned by Capture on backends that cannot read frames back.
	ErrCaptureUnsupported = errors.New("renderer: capture not supported by backend")
	// ErrDuplicateActor is returned when an actor id is already in use.
	ErrDuplicateActor = errors.New("renderer: duplicate actor id")
)

// Container is the drawable area a renderer is attached to.
type Container interface {
	Width() int
	Height() int
}

// SurfaceContainer is a Container backed by a native window surface, required by the WGPU backend.
type SurfaceContainer interface {
	Container
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
}

// FixedSize is a Container of constant size, used for off-screen rendering.
type FixedSize struct {
	W, H int
}

func (s FixedSize) Width() int  { return s.W }
func (s FixedSize) Height() int { return s.H }

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend

	width, height int
	background    [3]float32
	light         light.Light

	order  []string
	actors map[string]actorImpl
	live   int

	released bool

	logger  *slog.Logger
	metrics *metrics.Metrics

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	pendingMSAA          *MSAASampleCount
}

// Renderer draws volume, mesh and slice actors for one view.
//
// Actors own backend resources for their current input. Replacing an input releases the old
// resources before the new ones are counted, and removing an actor or releasing the renderer
// frees everything, so LiveResources returns to zero when every actor is gone.
type Renderer interface {
	// BackendType returns the backend this renderer draws with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	BackendType() RendererBackendType

	// Resize reconfigures the render target for a new container size.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: ErrReleased, or a backend error
	Resize(width, height int) error

	// Size returns the current render target size.
	//
	// Returns:
	//   - int: width in pixels
	//   - int: height in pixels
	Size() (int, int)

	// SetBackground sets the clear color.
	//
	// Parameters:
	//   - rgb: the color, each component in [0, 1]
	SetBackground(rgb [3]float32)

	// Background returns the clear color.
	//
	// Returns:
	//   - [3]float32: the color
	Background() [3]float32

	// NewVolumeActor adds an empty volume actor.
	//
	// Parameters:
	//   - id: unique actor id
	//
	// Returns:
	//   - VolumeActor: the actor
	//   - error: ErrReleased or ErrDuplicateActor
	NewVolumeActor(id string) (VolumeActor, error)

	// NewMeshActor adds an empty mesh actor.
	//
	// Parameters:
	//   - id: unique actor id
	//
	// Returns:
	//   - MeshActor: the actor
	//   - error: ErrReleased or ErrDuplicateActor
	NewMeshActor(id string) (MeshActor, error)

	// NewSliceActor adds an empty slice actor.
	//
	// Parameters:
	//   - id: unique actor id
	//
	// Returns:
	//   - SliceActor: the actor
	//   - error: ErrReleased or ErrDuplicateActor
	NewSliceActor(id string) (SliceActor, error)

	// Actor looks an actor up by id.
	//
	// Parameters:
	//   - id: the actor id
	//
	// Returns:
	//   - Actor: the actor, or nil
	Actor(id string) Actor

	// RemoveActor releases an actor's resources and removes it. Removing an unknown or
	// already removed actor is a no-op.
	//
	// Parameters:
	//   - a: the actor to remove
	RemoveActor(a Actor)

	// Actors returns the actors in creation order.
	//
	// Returns:
	//   - []Actor: the actors
	Actors() []Actor

	// VisibleBounds returns the union of the bounds of visible actors that have input.
	//
	// Returns:
	//   - model.Bounds: the union, invalid when nothing is visible
	VisibleBounds() model.Bounds

	// LiveResources returns the number of actor inputs currently held by the backend.
	//
	// Returns:
	//   - int: the count
	LiveResources() int

	// Render draws one frame from cam. The camera aspect is set from the render target size.
	//
	// Parameters:
	//   - cam: the view camera
	//
	// Returns:
	//   - error: ErrReleased, or a backend error
	Render(cam camera.Camera) error

	// Capture returns the pixels of the last rendered frame.
	//
	// Returns:
	//   - *image.RGBA: a copy of the frame
	//   - error: ErrReleased or ErrCaptureUnsupported
	Capture() (*image.RGBA, error)

	// Release frees every actor and the backend. It is safe to call more than once.
	Release()

	// Released reports whether Release has been called.
	//
	// Returns:
	//   - bool: true after Release
	Released() bool
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on the given backend. The WGPU backend requires a
// SurfaceContainer; the headless backend accepts any Container.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - container: the drawable area
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if the backend could not be created
func NewRenderer(backendType RendererBackendType, container Container, options ...RendererBuilderOption) (Renderer, error) {
	if container == nil {
		return nil, errors.New("renderer: nil container")
	}
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
		actors:      make(map[string]actorImpl),
		width:       container.Width(),
		height:      container.Height(),
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = logging.Component(r.logger, "renderer").With("backend", backendType.String())
	r.metrics = metrics.Coalesce(r.metrics)
	if r.light == nil {
		r.light = light.NewLight()
	}

	msaa := MSAA4x // default
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}
	presentMode := PresentModeVSync
	if r.pendingPresentMode != nil {
		presentMode = *r.pendingPresentMode
	}

	switch backendType {
	case BackendTypeHeadless:
		r.backend = newHeadlessRendererBackend()
	case BackendTypeWGPU:
		sc, ok := container.(SurfaceContainer)
		if !ok {
			return nil, errors.New("renderer: wgpu backend requires a surface container")
		}
		b, err := newWGPURendererBackend(sc.SurfaceDescriptor(), r.forceFallbackAdapter, msaa, presentMode)
		if err != nil {
			return nil, fmt.Errorf("create wgpu backend: %w", err)
		}
		r.backend = b
	default:
		return nil, fmt.Errorf("renderer: unknown backend %s", backendType)
	}

	if err := r.backend.Configure(r.width, r.height); err != nil {
		r.backend.Release()
		return nil, fmt.Errorf("configure %dx%d: %w", r.width, r.height, err)
	}
	r.logger.Debug("renderer created", "width", r.width, "height", r.height)
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	if width == r.width && height == r.height {
		return nil
	}
	if err := r.backend.Configure(width, height); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	r.width, r.height = width, height
	return nil
}

func (r *renderer) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) SetBackground(rgb [3]float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.background = rgb
}

func (r *renderer) Background() [3]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.background
}

func (r *renderer) NewVolumeActor(id string) (VolumeActor, error) {
	a := &volumeActor{
		actorBase:        newActorBase(r, id, ActorKindVolume),
		transferFunction: DefaultTransferFunction(),
		sampleDistance:   DefaultSampleDistance,
		shade:            true,
	}
	if err := r.add(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *renderer) NewMeshActor(id string) (MeshActor, error) {
	a := &meshActor{
		actorBase: newActorBase(r, id, ActorKindMesh),
		color:     [3]float32{1, 1, 1},
		opacity:   DefaultMeshOpacity,
	}
	if err := r.add(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *renderer) NewSliceActor(id string) (SliceActor, error) {
	a := &sliceActor{
		actorBase:   newActorBase(r, id, ActorKindSlice),
		axis:        slice.AxisK,
		colorWindow: DefaultColorWindow,
		colorLevel:  DefaultColorLevel,
	}
	if err := r.add(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *renderer) add(a actorImpl) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	id := a.base().id
	if _, exists := r.actors[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateActor, id)
	}
	r.actors[id] = a
	r.order = append(r.order, id)
	return nil
}

func (r *renderer) Actor(id string) Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return nil
	}
	return a
}

func (r *renderer) RemoveActor(a Actor) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(a.ID(), a)
}

// removeLocked removes the actor registered under id when it is a (nil matches any).
func (r *renderer) removeLocked(id string, a Actor) {
	cur, ok := r.actors[id]
	if !ok || (a != nil && Actor(cur) != a) {
		return
	}
	b := cur.base()
	r.setResourceLocked(b, nil)
	b.removed = true
	delete(r.actors, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *renderer) Actors() []Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Actor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.actors[id])
	}
	return out
}

func (r *renderer) VisibleBounds() model.Bounds {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := model.EmptyBounds()
	for _, id := range r.order {
		a := r.actors[id]
		if a.base().visible {
			b = b.Union(a.boundsLocked())
		}
	}
	return b
}

func (r *renderer) LiveResources() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *renderer) Render(cam camera.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	if r.width > 0 && r.height > 0 {
		cam.SetAspect(float32(r.width) / float32(r.height))
	}
	f := &frame{
		camera:     cam.Uniform(),
		background: r.background,
	}
	for _, id := range r.order {
		a := r.actors[id]
		if a.base().visible && a.base().resource != nil {
			a.appendDraw(f)
		}
	}
	lp := r.light.Uniform()
	for i := range f.meshes {
		f.meshes[i].params.Light = lp
	}
	for i := range f.volumes {
		f.volumes[i].params.Light = lp
	}
	if err := r.backend.Draw(f); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	return nil
}

func (r *renderer) Capture() (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil, ErrReleased
	}
	return r.backend.Capture()
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	for len(r.order) > 0 {
		r.removeLocked(r.order[0], nil)
	}
	r.backend.Release()
	r.released = true
	r.logger.Debug("renderer released")
}

func (r *renderer) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// setResourceLocked swaps the resource held by b, releasing the previous one.
func (r *renderer) setResourceLocked(b *actorBase, res gpuResource) {
	gauge := r.metrics.GPUResources.WithLabelValues(r.backendType.String())
	if b.resource != nil {
		b.resource.Release()
		r.live--
		gauge.Dec()
	}
	b.resource = res
	if res != nil {
		r.live++
		gauge.Inc()
	}
}
