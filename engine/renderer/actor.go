package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
)

const (
	// DefaultSampleDistance is the ray-march step of a new volume actor, in world units.
	DefaultSampleDistance float32 = 0.7
	// DefaultMeshOpacity is the opacity of a new mesh actor.
	DefaultMeshOpacity float32 = 0.92
	// DefaultColorWindow and DefaultColorLevel are the window/level of a new slice actor.
	DefaultColorWindow float32 = 1500
	DefaultColorLevel  float32 = -500
)

// ActorKind distinguishes the three actor types.
type ActorKind int

const (
	ActorKindVolume ActorKind = iota
	ActorKindMesh
	ActorKindSlice
)

func (k ActorKind) String() string {
	switch k {
	case ActorKindVolume:
		return "volume"
	case ActorKindMesh:
		return "mesh"
	case ActorKindSlice:
		return "slice"
	default:
		return fmt.Sprintf("ActorKind(%d)", int(k))
	}
}

// Actor is a drawable owned by one Renderer.
type Actor interface {
	// ID returns the id the actor was created with.
	ID() string

	// Kind returns the actor type.
	Kind() ActorKind

	// Visible reports whether the actor is drawn. Actors start visible.
	Visible() bool

	// SetVisible shows or hides the actor without touching its resources.
	SetVisible(visible bool)

	// HasInput reports whether the actor holds backend resources for an input.
	HasInput() bool

	// Bounds returns the world-space box of the current input, invalid when there is none.
	Bounds() model.Bounds

	// Release frees the actor's resources and removes it from its renderer.
	Release()
}

// VolumeActor ray-marches a scalar volume through a transfer function.
type VolumeActor interface {
	Actor

	// SetInput uploads vol, replacing the previous input. A nil volume clears the input.
	//
	// Parameters:
	//   - vol: the volume, or nil
	//
	// Returns:
	//   - error: ErrReleased, or an upload error
	SetInput(vol *model.Volume) error

	// Input returns the current volume, or nil.
	Input() *model.Volume

	// SetTransferFunction replaces the color and opacity mapping, re-uploading the input if present.
	//
	// Parameters:
	//   - tf: the transfer function
	//
	// Returns:
	//   - error: ErrReleased, or an upload error
	SetTransferFunction(tf TransferFunction) error

	// TransferFunction returns the current mapping.
	TransferFunction() TransferFunction

	// SetSampleDistance sets the ray-march step in world units. Non-positive values are ignored.
	SetSampleDistance(d float32)

	// SampleDistance returns the ray-march step.
	SampleDistance() float32

	// SetShade toggles gradient shading.
	SetShade(shade bool)

	// Shade reports whether gradient shading is on.
	Shade() bool
}

// MeshActor draws a triangle surface with a flat color.
type MeshActor interface {
	Actor

	// SetGeometry swaps the surface in place, keeping the actor's identity and appearance.
	// A nil mesh clears the geometry.
	//
	// Parameters:
	//   - mesh: the surface, or nil
	//
	// Returns:
	//   - error: ErrReleased, or an upload error
	SetGeometry(mesh *model.Mesh) error

	// Geometry returns the current surface, or nil.
	Geometry() *model.Mesh

	// SetColor sets the surface color.
	SetColor(rgb [3]float32)

	// Color returns the surface color.
	Color() [3]float32

	// SetOpacity sets the surface opacity, clamped to [0, 1].
	SetOpacity(opacity float32)

	// Opacity returns the surface opacity.
	Opacity() float32
}

// SliceActor draws one axis-aligned slice of a volume in grayscale.
type SliceActor interface {
	Actor

	// SetInput uploads vol, replacing the previous input. A nil volume clears the input.
	//
	// Parameters:
	//   - vol: the volume, or nil
	//
	// Returns:
	//   - error: ErrReleased, or an upload error
	SetInput(vol *model.Volume) error

	// Input returns the current volume, or nil.
	Input() *model.Volume

	// SetSlice selects the axis and extent index to draw. The index is clamped to the extent at draw time.
	SetSlice(axis slice.Axis, index int)

	// Axis returns the slicing axis.
	Axis() slice.Axis

	// Index returns the requested slice index.
	Index() int

	// SetColorWindow sets the width of the displayed scalar range.
	SetColorWindow(window float32)

	// ColorWindow returns the window.
	ColorWindow() float32

	// SetColorLevel sets the center of the displayed scalar range.
	SetColorLevel(level float32)

	// ColorLevel returns the level.
	ColorLevel() float32
}

// actorImpl is implemented by the concrete actors. Every method runs with the renderer lock held.
type actorImpl interface {
	Actor
	base() *actorBase
	boundsLocked() model.Bounds
	appendDraw(f *frame)
}

type actorBase struct {
	r        *renderer
	id       string
	kind     ActorKind
	visible  bool
	resource gpuResource
	removed  bool
}

func newActorBase(r *renderer, id string, kind ActorKind) *actorBase {
	return &actorBase{r: r, id: id, kind: kind, visible: true}
}

func (b *actorBase) base() *actorBase {
	return b
}

func (b *actorBase) ID() string {
	return b.id
}

func (b *actorBase) Kind() ActorKind {
	return b.kind
}

func (b *actorBase) Visible() bool {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	return b.visible
}

func (b *actorBase) SetVisible(visible bool) {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	b.visible = visible
}

func (b *actorBase) HasInput() bool {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	return b.resource != nil
}

func (b *actorBase) Release() {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()
	if !b.removed {
		b.r.removeLocked(b.id, nil)
	}
}

// usable returns ErrReleased when the actor or its renderer is gone. The lock must be held.
func (b *actorBase) usable() error {
	if b.removed || b.r.released {
		return ErrReleased
	}
	return nil
}

func (b *actorBase) label() string {
	return b.kind.String() + ":" + b.id
}

type volumeActor struct {
	*actorBase
	input            *model.Volume
	transferFunction TransferFunction
	sampleDistance   float32
	shade            bool
}

var _ VolumeActor = &volumeActor{}

func (a *volumeActor) Bounds() model.Bounds {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.boundsLocked()
}

func (a *volumeActor) boundsLocked() model.Bounds {
	if a.input == nil {
		return model.EmptyBounds()
	}
	return a.input.Bounds()
}

func (a *volumeActor) SetInput(vol *model.Volume) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}
	if err := a.uploadLocked(vol); err != nil {
		return err
	}
	a.input = vol
	return nil
}

func (a *volumeActor) uploadLocked(vol *model.Volume) error {
	if vol == nil {
		a.r.setResourceLocked(a.actorBase, nil)
		return nil
	}
	res, err := a.r.backend.UploadVolume(a.label(), vol, a.transferFunction.LUT(vol.ScalarRange))
	if err != nil {
		return fmt.Errorf("upload volume %q: %w", a.id, err)
	}
	a.r.setResourceLocked(a.actorBase, res)
	return nil
}

func (a *volumeActor) Input() *model.Volume {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.input
}

func (a *volumeActor) SetTransferFunction(tf TransferFunction) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}
	a.transferFunction = tf
	if a.input == nil {
		return nil
	}
	return a.uploadLocked(a.input)
}

func (a *volumeActor) TransferFunction() TransferFunction {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.transferFunction
}

func (a *volumeActor) SetSampleDistance(d float32) {
	if d <= 0 {
		return
	}
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.sampleDistance = d
}

func (a *volumeActor) SampleDistance() float32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.sampleDistance
}

func (a *volumeActor) SetShade(shade bool) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.shade = shade
}

func (a *volumeActor) Shade() bool {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.shade
}

func (a *volumeActor) appendDraw(f *frame) {
	var shade float32
	if a.shade {
		shade = 1
	}
	f.volumes = append(f.volumes, volumeDraw{
		resource: a.resource,
		params: GPUVolumeParams{
			Origin:         gridOrigin(a.input),
			SampleDistance: a.sampleDistance,
			Spacing:        a.input.Spacing,
			ScalarMin:      a.input.ScalarRange[0],
			Dimensions:     gridDimensions(a.input),
			ScalarMax:      a.input.ScalarRange[1],
			GradientRange:  a.transferFunction.GradientRange,
			Shade:          shade,
		},
	})
}

type meshActor struct {
	*actorBase
	geometry *model.Mesh
	bounds   model.Bounds
	color    [3]float32
	opacity  float32
}

var _ MeshActor = &meshActor{}

func (a *meshActor) Bounds() model.Bounds {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.boundsLocked()
}

func (a *meshActor) boundsLocked() model.Bounds {
	if a.geometry == nil {
		return model.EmptyBounds()
	}
	return a.bounds
}

func (a *meshActor) SetGeometry(mesh *model.Mesh) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}
	if mesh == nil {
		a.r.setResourceLocked(a.actorBase, nil)
		a.geometry = nil
		return nil
	}
	res, err := a.r.backend.UploadMesh(a.label(), mesh)
	if err != nil {
		return fmt.Errorf("upload mesh %q: %w", a.id, err)
	}
	a.r.setResourceLocked(a.actorBase, res)
	a.geometry = mesh
	a.bounds = mesh.Bounds()
	return nil
}

func (a *meshActor) Geometry() *model.Mesh {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.geometry
}

func (a *meshActor) SetColor(rgb [3]float32) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.color = rgb
}

func (a *meshActor) Color() [3]float32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.color
}

func (a *meshActor) SetOpacity(opacity float32) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.opacity = max(0, min(1, opacity))
}

func (a *meshActor) Opacity() float32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.opacity
}

func (a *meshActor) appendDraw(f *frame) {
	f.meshes = append(f.meshes, meshDraw{
		resource: a.resource,
		params:   GPUMeshParams{Color: a.color, Opacity: a.opacity},
	})
}

type sliceActor struct {
	*actorBase
	input       *model.Volume
	axis        slice.Axis
	index       int
	colorWindow float32
	colorLevel  float32
}

var _ SliceActor = &sliceActor{}

func (a *sliceActor) Bounds() model.Bounds {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.boundsLocked()
}

func (a *sliceActor) boundsLocked() model.Bounds {
	if a.input == nil {
		return model.EmptyBounds()
	}
	return a.input.SliceBounds(int(a.axis), a.index)
}

func (a *sliceActor) SetInput(vol *model.Volume) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}
	if vol == nil {
		a.r.setResourceLocked(a.actorBase, nil)
		a.input = nil
		return nil
	}
	res, err := a.r.backend.UploadSlice(a.label(), vol)
	if err != nil {
		return fmt.Errorf("upload slice %q: %w", a.id, err)
	}
	a.r.setResourceLocked(a.actorBase, res)
	a.input = vol
	return nil
}

func (a *sliceActor) Input() *model.Volume {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.input
}

func (a *sliceActor) SetSlice(axis slice.Axis, index int) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	if axis.Valid() {
		a.axis = axis
	}
	a.index = index
}

func (a *sliceActor) Axis() slice.Axis {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.axis
}

func (a *sliceActor) Index() int {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.index
}

func (a *sliceActor) SetColorWindow(window float32) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.colorWindow = window
}

func (a *sliceActor) ColorWindow() float32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.colorWindow
}

func (a *sliceActor) SetColorLevel(level float32) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	a.colorLevel = level
}

func (a *sliceActor) ColorLevel() float32 {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.colorLevel
}

func (a *sliceActor) appendDraw(f *frame) {
	lo, hi := a.input.Extent.Axis(int(a.axis))
	index := max(lo, min(hi, a.index))
	f.slices = append(f.slices, sliceDraw{
		resource: a.resource,
		params: GPUSliceParams{
			Origin:     gridOrigin(a.input),
			Axis:       uint32(a.axis),
			Spacing:    a.input.Spacing,
			Layer:      float32(index - lo),
			Dimensions: gridDimensions(a.input),
			Window:     a.colorWindow,
			Level:      a.colorLevel,
		},
	})
}
