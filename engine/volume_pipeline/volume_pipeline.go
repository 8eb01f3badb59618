// Package volume_pipeline renders the 3D view: a ray-marched volume plus one surface actor per
// anatomical structure, framed by a perspective camera.
package volume_pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/loader"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume"
)

// ErrAlreadyMounted is returned by Mount on a pipeline that is already bound to a container.
var ErrAlreadyMounted = errors.New("volume pipeline already mounted")

// ErrNotMounted is returned by operations that need a renderer before Mount.
var ErrNotMounted = errors.New("volume pipeline not mounted")

const volumeActorID = "volume"

// structureActorID keeps structure ids apart from the volume actor.
func structureActorID(id string) string {
	return "structure:" + id
}

// volumePipeline is the implementation of the VolumePipeline interface.
type volumePipeline struct {
	mu *sync.Mutex

	meshCache loader.MeshCache
	scheduler scheduler.Scheduler

	backend          renderer.RendererBackendType
	rendererOptions  []renderer.RendererBuilderOption
	theme            Theme
	transferFunction *renderer.TransferFunction
	sampleDistance   float32
	shade            bool

	renderer    renderer.Renderer
	camera      camera.Camera
	volumeActor renderer.VolumeActor
	ctx         context.Context
	cancel      context.CancelFunc

	vol        *model.Volume
	version    uint64
	showVolume bool
	structures []model.Structure
	visibility map[string]bool

	actors     map[string]renderer.MeshActor
	actorURLs  map[string]string
	meshErrors map[string]error

	// reconcile generation; mesh results from an older generation are dropped
	generation uint64
	pending    int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// VolumePipeline owns the 3D scene of one container. Every method must be called from the
// goroutine that drains the scheduler, which is also where asynchronous mesh results land.
type VolumePipeline interface {
	// Mount creates the renderer, camera and volume actor for container. A pipeline mounts once
	// per container lifetime; Unmount must be called before mounting again.
	//
	// Parameters:
	//   - container: the drawable area
	//
	// Returns:
	//   - error: ErrAlreadyMounted, or an error if the renderer could not be created
	Mount(container renderer.Container) error

	// Unmount releases every GPU object the pipeline owns and drops in-flight mesh results.
	Unmount()

	// Mounted reports whether a renderer is bound.
	//
	// Returns:
	//   - bool: true between Mount and Unmount
	Mounted() bool

	// OnVersionChanged rebinds the volume actor to the volume of h, frames the new data and
	// reconciles the structures again. A handle without a volume hides the volume actor.
	//
	// Parameters:
	//   - h: the published volume snapshot
	OnVersionChanged(h volume.Handle)

	// SetStructures reconciles the structure actors against structures. Actors for vanished ids
	// are removed; cached meshes are applied at once, updating an existing actor in place;
	// other meshes load through the mesh cache and create their actor on arrival unless the
	// structure list changed in the meantime.
	//
	// Parameters:
	//   - structures: the structures of the current case
	//   - visibility: per-id visibility; missing ids are visible
	SetStructures(structures []model.Structure, visibility map[string]bool)

	// SetVisibility applies per-structure visibility without reconciling.
	//
	// Parameters:
	//   - visibility: per-id visibility; missing ids are left unchanged
	SetVisibility(visibility map[string]bool)

	// SetShowVolume shows or hides the volume. The actor is only visible when data is present.
	//
	// Parameters:
	//   - show: the requested visibility
	SetShowVolume(show bool)

	// SetTheme changes the background.
	//
	// Parameters:
	//   - theme: the theme
	SetTheme(theme Theme)

	// Theme returns the current theme.
	//
	// Returns:
	//   - Theme: the theme
	Theme() Theme

	// ResetCamera frames every visible actor.
	ResetCamera()

	// Render draws one frame.
	//
	// Returns:
	//   - error: ErrNotMounted, or the renderer's error
	Render() error

	// Camera returns the camera, nil before Mount.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// Renderer returns the renderer, nil before Mount.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// StructureActor returns the mesh actor of a structure id, or nil when none exists yet.
	//
	// Parameters:
	//   - id: the structure id
	//
	// Returns:
	//   - renderer.MeshActor: the actor or nil
	StructureActor(id string) renderer.MeshActor

	// StructureError returns the last mesh failure of a structure id, or nil.
	//
	// Parameters:
	//   - id: the structure id
	//
	// Returns:
	//   - error: the failure or nil
	StructureError(id string) error

	// PendingMeshes reports mesh loads of the current reconcile still in flight.
	//
	// Returns:
	//   - int: the number of loads
	PendingMeshes() int
}

var _ VolumePipeline = &volumePipeline{}

// NewVolumePipeline creates an unmounted VolumePipeline.
//
// Parameters:
//   - meshCache: the shared mesh cache
//   - s: the scheduler that runs mesh loads and applies their results
//   - options: a variadic list of VolumePipelineBuilderOption functions
//
// Returns:
//   - VolumePipeline: the pipeline
func NewVolumePipeline(meshCache loader.MeshCache, s scheduler.Scheduler, options ...VolumePipelineBuilderOption) VolumePipeline {
	p := &volumePipeline{
		mu:             &sync.Mutex{},
		meshCache:      meshCache,
		scheduler:      s,
		backend:        renderer.BackendTypeWGPU,
		sampleDistance: renderer.DefaultSampleDistance,
		shade:          true,
		showVolume:     true,
		visibility:     make(map[string]bool),
		actors:         make(map[string]renderer.MeshActor),
		actorURLs:      make(map[string]string),
		meshErrors:     make(map[string]error),
	}
	for _, option := range options {
		option(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = logging.Component(p.logger, "volume_pipeline")
	p.metrics = metrics.Coalesce(p.metrics)
	return p
}

func (p *volumePipeline) Mount(container renderer.Container) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer != nil {
		return ErrAlreadyMounted
	}

	options := append([]renderer.RendererBuilderOption{
		renderer.WithBackground(p.theme.Background()),
		renderer.WithLogger(p.logger),
		renderer.WithMetrics(p.metrics),
	}, p.rendererOptions...)
	r, err := renderer.NewRenderer(p.backend, container, options...)
	if err != nil {
		return fmt.Errorf("mount 3D view: %w", err)
	}
	va, err := r.NewVolumeActor(volumeActorID)
	if err != nil {
		r.Release()
		return fmt.Errorf("mount 3D view: %w", err)
	}
	if p.transferFunction != nil {
		if err := va.SetTransferFunction(*p.transferFunction); err != nil {
			r.Release()
			return fmt.Errorf("mount 3D view: %w", err)
		}
	}
	va.SetSampleDistance(p.sampleDistance)
	va.SetShade(p.shade)

	p.renderer = r
	p.volumeActor = va
	p.camera = camera.NewCamera(camera.WithParallelProjection(false))
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if p.vol != nil {
		if err := va.SetInput(p.vol); err != nil {
			p.logger.Error("volume upload failed", "error", err)
		}
	}
	// visible bounds only count the volume once its actor is shown
	p.applyVolumeVisibilityLocked()
	if p.vol != nil {
		p.camera.ResetCamera(r.VisibleBounds())
	}
	p.reconcileLocked()
	p.logger.Debug("mounted", "backend", p.backend.String())
	return nil
}

func (p *volumePipeline) Unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return
	}
	p.cancel()
	p.generation++
	p.pending = 0
	// releasing the renderer releases every actor it owns
	p.renderer.Release()
	p.renderer = nil
	p.volumeActor = nil
	p.camera = nil
	clear(p.actors)
	clear(p.actorURLs)
	p.logger.Debug("unmounted")
}

func (p *volumePipeline) Mounted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderer != nil
}

func (p *volumePipeline) OnVersionChanged(h volume.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h.Version != 0 && h.Version == p.version && h.Volume == p.vol {
		return
	}
	p.version = h.Version
	p.vol = h.Volume
	if p.renderer == nil {
		return
	}

	if p.vol == nil {
		if err := p.volumeActor.SetInput(nil); err != nil {
			p.logger.Warn("volume release failed", "error", err)
		}
	} else {
		if err := p.volumeActor.SetInput(p.vol); err != nil {
			p.logger.Error("volume upload failed", "error", err)
		}
	}
	p.applyVolumeVisibilityLocked()
	if p.vol != nil {
		p.camera.ResetCamera(p.renderer.VisibleBounds())
	}
	p.reconcileLocked()
}

func (p *volumePipeline) SetStructures(structures []model.Structure, visibility map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.structures = append([]model.Structure(nil), structures...)
	p.visibility = make(map[string]bool, len(visibility))
	for id, v := range visibility {
		p.visibility[id] = v
	}
	p.reconcileLocked()
}

func (p *volumePipeline) SetVisibility(visibility map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, v := range visibility {
		p.visibility[id] = v
		if a, ok := p.actors[id]; ok {
			a.SetVisible(v)
		}
	}
}

func (p *volumePipeline) SetShowVolume(show bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showVolume = show
	p.applyVolumeVisibilityLocked()
}

func (p *volumePipeline) SetTheme(theme Theme) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.theme = theme
	if p.renderer != nil {
		p.renderer.SetBackground(theme.Background())
	}
}

func (p *volumePipeline) Theme() Theme {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.theme
}

func (p *volumePipeline) ResetCamera() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer != nil {
		p.camera.ResetCamera(p.renderer.VisibleBounds())
	}
}

func (p *volumePipeline) Render() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		return ErrNotMounted
	}
	start := time.Now()
	if err := p.renderer.Render(p.camera); err != nil {
		return err
	}
	p.metrics.FrameSeconds.WithLabelValues("3d").Observe(time.Since(start).Seconds())
	return nil
}

func (p *volumePipeline) Camera() camera.Camera {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera
}

func (p *volumePipeline) Renderer() renderer.Renderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderer
}

func (p *volumePipeline) StructureActor(id string) renderer.MeshActor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actors[id]
}

func (p *volumePipeline) StructureError(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meshErrors[id]
}

func (p *volumePipeline) PendingMeshes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *volumePipeline) applyVolumeVisibilityLocked() {
	if p.volumeActor != nil {
		p.volumeActor.SetVisible(p.showVolume && p.vol != nil)
	}
}

// reconcileLocked brings the structure actors in line with p.structures.
func (p *volumePipeline) reconcileLocked() {
	if p.renderer == nil {
		return
	}
	p.generation++
	gen := p.generation
	p.pending = 0

	active := make(map[string]model.Structure, len(p.structures))
	referenced := make(map[string]bool, len(p.structures))
	for _, s := range p.structures {
		active[s.ID] = s
		if s.HasMesh() {
			referenced[s.MeshURL] = true
		}
	}
	for id, a := range p.actors {
		s, ok := active[id]
		if ok && s.HasMesh() {
			continue
		}
		p.renderer.RemoveActor(a)
		delete(p.actors, id)
		delete(p.actorURLs, id)
	}
	for id := range p.meshErrors {
		if _, ok := active[id]; !ok {
			delete(p.meshErrors, id)
		}
	}

	for _, s := range p.structures {
		if !s.HasMesh() {
			continue
		}
		if old, ok := p.actorURLs[s.ID]; ok && old != s.MeshURL && !referenced[old] {
			p.meshCache.Evict(old)
		}
		if mesh, ok := p.meshCache.Peek(s.MeshURL); ok {
			p.applyMeshLocked(s, mesh)
			continue
		}
		p.pending++
		structure := s
		ctx := p.ctx
		p.scheduler.Go("mesh", func() (any, error) {
			return p.meshCache.Load(ctx, structure.MeshURL)
		}, func(result any, err error) {
			p.meshLoaded(gen, structure, result, err)
		})
	}
	p.finishReconcileLocked()
}

func (p *volumePipeline) meshLoaded(gen uint64, s model.Structure, result any, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation || p.renderer == nil {
		// the structure list changed or the view unmounted while loading
		return
	}
	p.pending--
	if err != nil {
		p.meshErrors[s.ID] = err
		p.logger.Warn("structure mesh failed", "structure", s.Name, "url", s.MeshURL, "error", err)
	} else if mesh, ok := result.(*model.Mesh); ok {
		p.applyMeshLocked(s, mesh)
	}
	p.finishReconcileLocked()
}

// applyMeshLocked creates the actor of s or swaps its geometry in place.
func (p *volumePipeline) applyMeshLocked(s model.Structure, mesh *model.Mesh) {
	a, ok := p.actors[s.ID]
	if !ok {
		created, err := p.renderer.NewMeshActor(structureActorID(s.ID))
		if err != nil {
			p.meshErrors[s.ID] = err
			p.logger.Error("structure actor failed", "structure", s.ID, "error", err)
			return
		}
		a = created
	}
	if err := a.SetGeometry(mesh); err != nil {
		if !ok {
			p.renderer.RemoveActor(a)
		}
		p.meshErrors[s.ID] = err
		p.logger.Error("structure upload failed", "structure", s.ID, "error", err)
		return
	}
	p.actors[s.ID] = a
	p.actorURLs[s.ID] = s.MeshURL
	delete(p.meshErrors, s.ID)

	a.SetColor(s.RGB())
	a.SetOpacity(renderer.DefaultMeshOpacity)
	visible, set := p.visibility[s.ID]
	a.SetVisible(visible || !set)
}

// finishReconcileLocked frames the structures once every mesh has arrived and no volume is loaded.
func (p *volumePipeline) finishReconcileLocked() {
	if p.pending > 0 {
		return
	}
	if p.vol == nil && len(p.structures) > 0 {
		p.camera.ResetCamera(p.renderer.VisibleBounds())
	}
}
