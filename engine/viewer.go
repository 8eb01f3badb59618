package engine

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/catalog"
	"github.com/Carmen-Shannon/oxy-imaging/engine/fetcher"
	"github.com/Carmen-Shannon/oxy-imaging/engine/loader"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer"
	"github.com/Carmen-Shannon/oxy-imaging/engine/scheduler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice_pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume_pipeline"
)

// User-facing viewer messages.
const (
	ImagingDisabledMessage = "Imaging disabled in lightweight mode."
	NoVolumeMessage        = "Provide a volume URL and format to visualise data."
	PreparingMessage       = "Preparing viewer…"
)

var (
	// ErrImagingDisabled is returned by operations that need imaging while it is turned off.
	ErrImagingDisabled = errors.New("imaging is disabled")
	// ErrNoCase is returned by operations that need a selected case.
	ErrNoCase = errors.New("no case selected")
	// ErrNoVolume is returned when the 2D view is requested for a case without a volume.
	ErrNoVolume = errors.New("case has no volume")
	// ErrUnknownStructure is returned for a structure id outside the current case.
	ErrUnknownStructure = errors.New("unknown structure")
	// ErrExportUnavailable is returned when a structure cannot be exported.
	ErrExportUnavailable = errors.New("structure export unavailable")
)

// ViewMode selects which pipeline is live.
type ViewMode int

const (
	ViewMode3D ViewMode = iota
	ViewMode2D
)

func (m ViewMode) String() string {
	if m == ViewMode2D {
		return "2d"
	}
	return "3d"
}

// ParseViewMode maps "3d" or "2d" to a ViewMode.
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "3d":
		return ViewMode3D, nil
	case "2d":
		return ViewMode2D, nil
	default:
		return ViewMode3D, fmt.Errorf("unknown view mode %q", s)
	}
}

// ViewerState is a snapshot of everything the controls display.
type ViewerState struct {
	CaseID     string
	CaseLabel  string
	ViewMode   ViewMode
	Axis       slice.Axis
	Indices    slice.Indices
	Ranges     slice.Ranges
	Visibility map[string]bool
	// ExportEnabled tells, per structure id, whether the export action is available.
	ExportEnabled map[string]bool
	ShowVolume    bool
	Theme         volume_pipeline.Theme

	// Status is the placeholder message of the live view, empty when it shows data.
	Status string
	// Error is the volume failure message, empty unless the last load failed.
	Error string
	// Alert is the last alert raised to the user.
	Alert string

	HasVolume     bool
	VolumeState   volume.State
	VolumeVersion uint64
	// VolumeRequested reports whether the deferred volume load has been triggered for this case.
	VolumeRequested bool
	// SliceResets counts rebuilds of the 2D scene forced by case changes.
	SliceResets uint64

	// SliceEnabled reports whether the slice index can be changed on the active axis.
	SliceEnabled bool
	// ViewToggleEnabled reports whether the view mode can be switched.
	ViewToggleEnabled bool
	ImagingEnabled    bool
}

// viewer is the implementation of the Viewer interface.
type viewer struct {
	mu *sync.Mutex

	imagingEnabled bool
	fetcher        fetcher.Fetcher
	meshCache      loader.MeshCache
	scheduler      scheduler.Scheduler
	ownsScheduler  bool
	volumes        volume.Controller
	unsubscribe    func()

	exportHandler func(structureID string) error
	alertHandler  func(msg string)

	backend         renderer.RendererBackendType
	rendererOptions []renderer.RendererBuilderOption
	volumeOptions   []volume_pipeline.VolumePipelineBuilderOption
	sliceOptions    []slice_pipeline.SlicePipelineBuilderOption
	volumePipeline  volume_pipeline.VolumePipeline
	slicePipeline   slice_pipeline.SlicePipeline
	container3D     renderer.Container
	container2D     renderer.Container

	current         *catalog.Case
	viewMode        ViewMode
	axis            slice.Axis
	indices         slice.Indices
	ranges          slice.Ranges
	visibility      map[string]bool
	showVolume      bool
	theme           volume_pipeline.Theme
	handle          volume.Handle
	volumeRequested bool
	sliceResets     uint64
	alert           string

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Viewer coordinates the volume loader, the slice coordinates and the two render pipelines of
// one case view. Exactly one pipeline is mounted at a time. Every method must be called from
// the owner goroutine, which also calls Update to apply asynchronous results.
type Viewer interface {
	// SelectCase shows c. A different case resets the view to 3D, clears volume errors, releases the
	// previous volume and structure actors and defers the new volume until it is needed. Selecting
	// the current case again only refreshes its structure list.
	//
	// Parameters:
	//   - c: the case
	SelectCase(c catalog.Case)

	// Case returns the selected case, or false when none is selected.
	//
	// Returns:
	//   - catalog.Case: the case
	//   - bool: whether a case is selected
	Case() (catalog.Case, bool)

	// SetViewMode switches between the 3D and 2D views. Switching to 2D triggers the deferred
	// volume load, or retries it after a failure.
	//
	// Parameters:
	//   - mode: the view mode
	//
	// Returns:
	//   - error: ErrImagingDisabled, ErrNoCase, ErrNoVolume or a mount error
	SetViewMode(mode ViewMode) error

	// ToggleViewMode switches to the other view mode.
	//
	// Returns:
	//   - error: see SetViewMode
	ToggleViewMode() error

	// LoadVolume triggers the deferred volume load without changing the view.
	//
	// Returns:
	//   - error: ErrImagingDisabled, ErrNoCase or ErrNoVolume
	LoadVolume() error

	// SetAxis makes axis active, keeping its slice index and resetting the 2D framing.
	//
	// Parameters:
	//   - axis: the slicing axis
	SetAxis(axis slice.Axis)

	// SetSliceIndex moves the active axis to index, clamped to its range.
	//
	// Parameters:
	//   - index: the requested index
	//
	// Returns:
	//   - int: the index in effect
	SetSliceIndex(index int) int

	// StepSlice moves the active axis by delta slices, clamped to its range.
	//
	// Parameters:
	//   - delta: the step, negative to go back
	//
	// Returns:
	//   - int: the index in effect
	StepSlice(delta int) int

	// ToggleStructure flips the visibility of one structure.
	//
	// Parameters:
	//   - id: the structure id
	//
	// Returns:
	//   - error: ErrUnknownStructure or ErrImagingDisabled
	ToggleStructure(id string) error

	// SetStructureVisible sets the visibility of one structure without touching any other.
	//
	// Parameters:
	//   - id: the structure id
	//   - visible: the visibility
	//
	// Returns:
	//   - error: ErrUnknownStructure or ErrImagingDisabled
	SetStructureVisible(id string, visible bool) error

	// SetShowVolume shows or hides the volume in the 3D view. Ignored while imaging is disabled.
	SetShowVolume(show bool)

	// ToggleTheme switches the 3D background between light and dark. Ignored while imaging is disabled.
	ToggleTheme()

	// ResetCamera re-frames the live view.
	ResetCamera()

	// ExportStructure forwards id to the export handler.
	//
	// Parameters:
	//   - id: the structure id
	//
	// Returns:
	//   - error: ErrExportUnavailable when the structure has no mesh or imaging is disabled,
	//     ErrUnknownStructure, or the handler's error
	ExportStructure(id string) error

	// MountViews binds the 3D and 2D containers and mounts the pipeline of the current view mode.
	//
	// Parameters:
	//   - container3D: the render target of the 3D view
	//   - container2D: the render target of the 2D view
	//
	// Returns:
	//   - error: an error if the live pipeline could not be mounted
	MountViews(container3D, container2D renderer.Container) error

	// Resize propagates a container size change to the live pipeline.
	//
	// Parameters:
	//   - width, height: the new size in pixels
	//
	// Returns:
	//   - error: a renderer error
	Resize(width, height int) error

	// Update applies completed asynchronous work.
	//
	// Returns:
	//   - int: the number of results applied
	Update() int

	// Render draws one frame of the live view. It is a no-op while nothing is mounted.
	//
	// Returns:
	//   - error: a renderer error
	Render() error

	// Capture returns the last rendered frame of the live view.
	//
	// Returns:
	//   - *image.RGBA: the frame
	//   - error: an error if nothing is mounted or the backend cannot capture
	Capture() (*image.RGBA, error)

	// Camera returns the camera of the live view, nil when nothing is mounted.
	Camera() camera.Camera

	// Structures returns the structures of the selected case.
	Structures() []model.Structure

	// State returns a snapshot of the view state.
	//
	// Returns:
	//   - ViewerState: the snapshot
	State() ViewerState

	// Close releases both pipelines and stops the volume controller.
	Close()
}

var _ Viewer = &viewer{}

// NewViewer creates a Viewer. Missing collaborators get defaults: an HTTP fetcher, a mesh cache
// over it and a scheduler owned by the viewer.
//
// Parameters:
//   - options: a variadic list of ViewerBuilderOption functions
//
// Returns:
//   - Viewer: the viewer
func NewViewer(options ...ViewerBuilderOption) Viewer {
	v := &viewer{
		mu:             &sync.Mutex{},
		imagingEnabled: true,
		backend:        renderer.BackendTypeWGPU,
		axis:           slice.AxisK,
		visibility:     make(map[string]bool),
		showVolume:     true,
	}
	for _, option := range options {
		option(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	v.logger = logging.Component(v.logger, "viewer")
	v.metrics = metrics.Coalesce(v.metrics)

	if v.fetcher == nil {
		v.fetcher = fetcher.NewFetcher(fetcher.WithLogger(v.logger), fetcher.WithMetrics(v.metrics))
	}
	if v.scheduler == nil {
		v.scheduler = scheduler.NewScheduler(scheduler.WithLogger(v.logger), scheduler.WithMetrics(v.metrics))
		v.ownsScheduler = true
	}
	if v.meshCache == nil {
		v.meshCache = loader.NewMeshCache(v.fetcher, loader.WithLogger(v.logger), loader.WithMetrics(v.metrics))
	}
	v.volumes = volume.NewController(v.fetcher, v.scheduler, volume.WithLogger(v.logger), volume.WithMetrics(v.metrics))
	v.unsubscribe = v.volumes.Subscribe(v.onVolume)

	v.volumePipeline = volume_pipeline.NewVolumePipeline(v.meshCache, v.scheduler, append([]volume_pipeline.VolumePipelineBuilderOption{
		volume_pipeline.WithBackend(v.backend),
		volume_pipeline.WithRendererOptions(v.rendererOptions...),
		volume_pipeline.WithTheme(v.theme),
		volume_pipeline.WithLogger(v.logger),
		volume_pipeline.WithMetrics(v.metrics),
	}, v.volumeOptions...)...)
	v.slicePipeline = slice_pipeline.NewSlicePipeline(append([]slice_pipeline.SlicePipelineBuilderOption{
		slice_pipeline.WithBackend(v.backend),
		slice_pipeline.WithRendererOptions(v.rendererOptions...),
		slice_pipeline.WithLogger(v.logger),
		slice_pipeline.WithMetrics(v.metrics),
	}, v.sliceOptions...)...)
	v.slicePipeline.SetOrientation(slice.MainViewOrientation(v.axis))
	return v
}

func (v *viewer) SelectCase(c catalog.Case) {
	v.mu.Lock()
	same := v.current != nil && v.current.ID == c.ID && descriptorKey(v.current.Volume) == descriptorKey(c.Volume)
	selected := c
	v.current = &selected
	v.visibility = mergeVisibility(v.visibility, c.Structures)
	if same {
		if v.imagingEnabled {
			v.volumePipeline.SetStructures(c.Structures, v.visibility)
		}
		v.mu.Unlock()
		return
	}

	v.logger.Info("case selected", "case", c.ID, "structures", len(c.Structures))
	v.alert = ""
	v.volumeRequested = false
	v.sliceResets++
	if err := v.switchViewLocked(ViewMode3D); err != nil {
		v.logger.Error("3D view mount failed", "error", err)
	}
	imaging := v.imagingEnabled
	if imaging {
		v.volumePipeline.SetStructures(c.Structures, v.visibility)
	}
	v.mu.Unlock()

	if imaging {
		v.volumes.SetDescriptor(nil)
	}
}

func (v *viewer) Case() (catalog.Case, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return catalog.Case{}, false
	}
	return *v.current, true
}

func (v *viewer) SetViewMode(mode ViewMode) error {
	v.mu.Lock()
	if !v.imagingEnabled {
		v.mu.Unlock()
		return ErrImagingDisabled
	}
	if mode == v.viewMode {
		v.mu.Unlock()
		return nil
	}
	var desc *model.VolumeDescriptor
	if mode == ViewMode2D {
		d, err := v.volumeDescriptorLocked()
		if err != nil {
			v.mu.Unlock()
			return err
		}
		desc = d
		v.volumeRequested = true
	}
	err := v.switchViewLocked(mode)
	v.mu.Unlock()

	if desc != nil {
		v.volumes.SetDescriptor(desc)
	}
	return err
}

func (v *viewer) ToggleViewMode() error {
	v.mu.Lock()
	next := ViewMode2D
	if v.viewMode == ViewMode2D {
		next = ViewMode3D
	}
	v.mu.Unlock()
	return v.SetViewMode(next)
}

func (v *viewer) LoadVolume() error {
	v.mu.Lock()
	if !v.imagingEnabled {
		v.mu.Unlock()
		return ErrImagingDisabled
	}
	desc, err := v.volumeDescriptorLocked()
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.volumeRequested = true
	v.mu.Unlock()

	v.volumes.SetDescriptor(desc)
	return nil
}

func (v *viewer) SetAxis(axis slice.Axis) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !axis.Valid() {
		return
	}
	v.axis = axis
	v.indices[axis] = v.ranges.Clamp(axis, v.indices[axis])
	v.slicePipeline.SetOrientation(slice.MainViewOrientation(axis))
	v.slicePipeline.OnAxisChanged(axis, v.indices[axis])
}

func (v *viewer) SetSliceIndex(index int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setSliceIndexLocked(index)
}

func (v *viewer) StepSlice(delta int) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setSliceIndexLocked(v.indices[v.axis] + delta)
}

func (v *viewer) setSliceIndexLocked(index int) int {
	if !v.sliceEnabledLocked() {
		return v.indices[v.axis]
	}
	index = v.ranges.Clamp(v.axis, index)
	if index != v.indices[v.axis] {
		v.indices[v.axis] = index
		v.slicePipeline.SetSlice(index)
	}
	return index
}

func (v *viewer) ToggleStructure(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	visible, ok := v.visibility[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStructure, id)
	}
	return v.setVisibleLocked(id, !visible)
}

func (v *viewer) SetStructureVisible(id string, visible bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.visibility[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStructure, id)
	}
	return v.setVisibleLocked(id, visible)
}

func (v *viewer) setVisibleLocked(id string, visible bool) error {
	if !v.imagingEnabled {
		return ErrImagingDisabled
	}
	v.visibility[id] = visible
	v.volumePipeline.SetVisibility(map[string]bool{id: visible})
	return nil
}

func (v *viewer) SetShowVolume(show bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.imagingEnabled {
		return
	}
	v.showVolume = show
	v.volumePipeline.SetShowVolume(show)
}

func (v *viewer) ToggleTheme() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.imagingEnabled {
		return
	}
	v.theme = v.theme.Toggle()
	v.volumePipeline.SetTheme(v.theme)
}

func (v *viewer) ResetCamera() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.imagingEnabled {
		return
	}
	if v.viewMode == ViewMode2D {
		v.slicePipeline.Reset()
		return
	}
	v.volumePipeline.ResetCamera()
}

func (v *viewer) ExportStructure(id string) error {
	v.mu.Lock()
	if v.current == nil {
		v.mu.Unlock()
		return ErrNoCase
	}
	s, ok := v.current.Structure(id)
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStructure, id)
	}
	if !v.imagingEnabled || !s.HasMesh() || v.exportHandler == nil {
		v.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrExportUnavailable, id)
	}
	handler := v.exportHandler
	v.mu.Unlock()

	v.logger.Info("exporting structure", "structure", id)
	if err := handler(id); err != nil {
		return fmt.Errorf("export %q: %w", id, err)
	}
	return nil
}

func (v *viewer) MountViews(container3D, container2D renderer.Container) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.container3D = container3D
	v.container2D = container2D
	if !v.imagingEnabled {
		return nil
	}
	return v.mountLocked(v.viewMode)
}

func (v *viewer) Resize(width, height int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, cam := v.liveLocked()
	if r == nil {
		return nil
	}
	if err := r.Resize(width, height); err != nil {
		return err
	}
	if height > 0 {
		cam.SetAspect(float32(width) / float32(height))
	}
	return nil
}

func (v *viewer) Update() int {
	return v.scheduler.Drain()
}

func (v *viewer) Render() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.imagingEnabled {
		return nil
	}
	if v.viewMode == ViewMode2D {
		if !v.slicePipeline.Mounted() {
			return nil
		}
		return v.slicePipeline.Render()
	}
	if !v.volumePipeline.Mounted() {
		return nil
	}
	return v.volumePipeline.Render()
}

func (v *viewer) Capture() (*image.RGBA, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, _ := v.liveLocked()
	if r == nil {
		return nil, errors.New("no view mounted")
	}
	return r.Capture()
}

func (v *viewer) Camera() camera.Camera {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, cam := v.liveLocked()
	return cam
}

func (v *viewer) Structures() []model.Structure {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return nil
	}
	return append([]model.Structure(nil), v.current.Structures...)
}

func (v *viewer) State() ViewerState {
	v.mu.Lock()
	defer v.mu.Unlock()

	st := ViewerState{
		ViewMode:        v.viewMode,
		Axis:            v.axis,
		Indices:         v.indices,
		Ranges:          v.ranges,
		Visibility:      make(map[string]bool, len(v.visibility)),
		ExportEnabled:   make(map[string]bool),
		ShowVolume:      v.showVolume,
		Theme:           v.theme,
		Error:           v.handle.ErrorMessage,
		Alert:           v.alert,
		HasVolume:       v.handle.Volume != nil,
		VolumeState:     v.handle.State,
		VolumeVersion:   v.handle.Version,
		VolumeRequested: v.volumeRequested,
		SliceResets:     v.sliceResets,
		ImagingEnabled:  v.imagingEnabled,
	}
	for id, visible := range v.visibility {
		st.Visibility[id] = visible
	}
	if v.current != nil {
		st.CaseID = v.current.ID
		st.CaseLabel = v.current.Label
		for _, s := range v.current.Structures {
			st.ExportEnabled[s.ID] = v.imagingEnabled && s.HasMesh() && v.exportHandler != nil
		}
	}
	st.SliceEnabled = v.sliceEnabledLocked()
	st.ViewToggleEnabled = v.imagingEnabled && v.current != nil && v.current.Volume != nil
	st.Status = v.statusLocked()
	return st
}

func (v *viewer) Close() {
	v.mu.Lock()
	v.volumePipeline.Unmount()
	v.slicePipeline.Unmount()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	v.volumes.Close()
	if v.ownsScheduler {
		v.scheduler.Close()
	}
}

// onVolume applies a published volume handle. It runs on the owner goroutine.
func (v *viewer) onVolume(h volume.Handle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	previous := v.handle.Version
	v.handle = h
	if h.Version != previous {
		v.ranges = slice.RangesFromExtent(h.Extent())
		v.indices = v.ranges.Defaults()
		v.volumePipeline.OnVersionChanged(h)
		v.slicePipeline.OnVersionChanged(h)
		v.slicePipeline.SetSlice(v.indices[v.axis])
	}

	if h.State == volume.StateFailed {
		v.alertLocked(h.ErrorMessage)
		// back to 3D; switching to 2D again retries the load
		if err := v.switchViewLocked(ViewMode3D); err != nil {
			v.logger.Error("3D view mount failed", "error", err)
		}
	}
}

func (v *viewer) alertLocked(msg string) {
	v.alert = msg
	v.logger.Warn("alert", "message", msg)
	if v.alertHandler != nil {
		v.alertHandler(msg)
	}
}

func (v *viewer) volumeDescriptorLocked() (*model.VolumeDescriptor, error) {
	if v.current == nil {
		return nil, ErrNoCase
	}
	if v.current.Volume == nil || v.current.Volume.Empty() {
		return nil, ErrNoVolume
	}
	d := *v.current.Volume
	return &d, nil
}

// switchViewLocked makes mode the live view, unmounting the other pipeline first.
func (v *viewer) switchViewLocked(mode ViewMode) error {
	if mode == v.viewMode {
		return nil
	}
	v.viewMode = mode
	if mode == ViewMode2D {
		v.volumePipeline.Unmount()
	} else {
		v.slicePipeline.Unmount()
	}
	if !v.imagingEnabled {
		return nil
	}
	return v.mountLocked(mode)
}

func (v *viewer) mountLocked(mode ViewMode) error {
	if mode == ViewMode2D {
		if v.container2D == nil || v.slicePipeline.Mounted() {
			return nil
		}
		v.slicePipeline.OnAxisChanged(v.axis, v.indices[v.axis])
		return v.slicePipeline.Mount(v.container2D)
	}
	if v.container3D == nil || v.volumePipeline.Mounted() {
		return nil
	}
	return v.volumePipeline.Mount(v.container3D)
}

func (v *viewer) liveLocked() (renderer.Renderer, camera.Camera) {
	if v.viewMode == ViewMode2D {
		if !v.slicePipeline.Mounted() {
			return nil, nil
		}
		return v.slicePipeline.Renderer(), v.slicePipeline.Camera()
	}
	if !v.volumePipeline.Mounted() {
		return nil, nil
	}
	return v.volumePipeline.Renderer(), v.volumePipeline.Camera()
}

func (v *viewer) sliceEnabledLocked() bool {
	return v.imagingEnabled && v.handle.Volume != nil && !v.ranges.Range(v.axis).Degenerate()
}

// statusLocked returns the placeholder message of the live view.
func (v *viewer) statusLocked() string {
	if !v.imagingEnabled {
		return ImagingDisabledMessage
	}
	hasURL := v.current != nil && v.current.Volume != nil && !v.current.Volume.Empty()
	if v.viewMode == ViewMode2D {
		switch {
		case v.handle.LoadingMessage != "":
			return v.handle.LoadingMessage
		case v.handle.ErrorMessage != "":
			return v.handle.ErrorMessage
		case !hasURL:
			return NoVolumeMessage
		}
		return ""
	}
	switch {
	case !hasURL:
		return NoVolumeMessage
	case v.volumeRequested && v.handle.Volume == nil && v.handle.LoadingMessage == "" && v.handle.ErrorMessage == "":
		return PreparingMessage
	case v.handle.LoadingMessage != "":
		return v.handle.LoadingMessage
	}
	return v.handle.ErrorMessage
}

// mergeVisibility keeps the visibility of ids that persist and defaults new ids to visible.
func mergeVisibility(previous map[string]bool, structures []model.Structure) map[string]bool {
	next := make(map[string]bool, len(structures))
	for _, s := range structures {
		visible, ok := previous[s.ID]
		next[s.ID] = visible || !ok
	}
	return next
}

func descriptorKey(d *model.VolumeDescriptor) string {
	if d == nil {
		return ""
	}
	return d.Key()
}
