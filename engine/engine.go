package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/profiler"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/engine/window"
)

// ErrNoViewer is returned by Run when the engine has no viewer or no window.
var ErrNoViewer = errors.New("engine needs a viewer and a window")

// engine implements the Engine interface.
// Coordinates the viewer, render and window threads.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	// commands carries input from the window thread to the tick goroutine, which owns the viewer.
	commands chan func()

	window window.Window
	viewer Viewer

	controllers map[camera.Camera]camera.CameraController

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	dragButton window.MouseButton
	dragging   bool
	lastX      int32
	lastY      int32
	title      string

	logger *slog.Logger
}

// Engine is the interactive entry point. It runs the viewer's update loop on one goroutine,
// renders the live view on another and feeds window input to both.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Viewer returns the driven viewer.
	//
	// Returns:
	//   - Viewer: the viewer
	Viewer() Viewer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the update rate in ticks per second.
	// Asynchronous results and queued input are applied once per tick.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick after the viewer is updated.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run mounts the viewer on the window and blocks until the window closes.
	//
	// Returns:
	//   - error: ErrNoViewer, or an error if the views could not be mounted
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Window input callbacks are registered immediately when a window is given.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		commands:        make(chan func(), 256),
		controllers:     make(map[camera.Camera]camera.CameraController),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = logging.Component(e.logger, "engine")
	e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))

	if e.window != nil {
		e.bindWindow()
	}
	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Viewer() Viewer {
	return e.viewer
}

func (e *engine) Run() error {
	if e.viewer == nil || e.window == nil {
		return ErrNoViewer
	}
	if err := e.viewer.MountViews(e.window, e.window); err != nil {
		return fmt.Errorf("mount views: %w", err)
	}
	e.running = true
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	return nil
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate tick loop: queued input, then completed async work.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.step(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// step applies queued input and completed asynchronous work. It runs on the viewer's owner goroutine.
func (e *engine) step(dt float32) {
	for drained := false; !drained; {
		select {
		case cmd := <-e.commands:
			cmd()
		default:
			drained = true
		}
	}
	e.viewer.Update()
	if e.tickCallback != nil {
		e.tickCallback(dt)
	}
}

// handleRender draws the live view as fast as allowed by the frame limit.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			start := time.Now()
			if err := e.viewer.Render(); err != nil {
				e.logger.Warn("render failed", "error", err)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// enqueue hands fn to the tick goroutine. Input is dropped when the queue is full.
func (e *engine) enqueue(fn func()) {
	select {
	case e.commands <- fn:
	default:
		e.logger.Warn("input queue full, dropping event")
	}
}

func (e *engine) bindWindow() {
	e.window.SetKeyDownCallback(func(key uint32, mods window.Modifier) {
		e.enqueue(func() { e.handleKey(key, mods) })
	})
	e.window.SetScrollCallback(func(delta float32) {
		e.enqueue(func() { e.handleScroll(delta) })
	})
	e.window.SetMouseDownCallback(func(button window.MouseButton, x, y int32) {
		e.enqueue(func() { e.handleMouseDown(button, x, y) })
	})
	e.window.SetMouseUpCallback(func(button window.MouseButton, x, y int32) {
		e.enqueue(func() { e.handleMouseUp(button) })
	})
	e.window.SetMouseMoveCallback(func(x, y int32) {
		e.enqueue(func() { e.handleMouseMove(x, y) })
	})
	e.window.SetResizeCallback(func(width, height int) {
		e.enqueue(func() {
			if err := e.viewer.Resize(width, height); err != nil {
				e.logger.Warn("resize failed", "width", width, "height", height, "error", err)
			}
		})
	})
	// the title bar must be touched from the window thread
	e.window.SetUpdateCallback(func() {
		if e.viewer == nil {
			return
		}
		if title := windowTitle(e.viewer.State()); title != e.title {
			e.title = title
			e.window.SetTitle(title)
		}
	})
}

// handleKey maps a key press to a viewer operation.
func (e *engine) handleKey(key uint32, mods window.Modifier) {
	if e.viewer == nil {
		return
	}
	st := e.viewer.State()

	if mods&window.ModShift != 0 {
		for i, k := range common.StructureKeys {
			if int(key) == k {
				e.toggleStructureAt(i)
				return
			}
		}
	}

	switch int(key) {
	case common.KeyV:
		if err := e.viewer.ToggleViewMode(); err != nil {
			e.logger.Warn("view mode unavailable", "error", err)
		}
	case common.Key1:
		e.viewer.SetAxis(slice.AxisK)
	case common.Key2:
		e.viewer.SetAxis(slice.AxisJ)
	case common.Key3:
		e.viewer.SetAxis(slice.AxisI)
	case common.KeyRightBracket:
		e.viewer.StepSlice(1)
	case common.KeyLeftBracket:
		e.viewer.StepSlice(-1)
	case common.KeyUp, common.KeyRight, common.KeyDown, common.KeyLeft:
		e.handleArrow(int(key), st.ViewMode)
	case common.KeySpace:
		e.viewer.SetShowVolume(!st.ShowVolume)
	case common.KeyT:
		e.viewer.ToggleTheme()
	case common.KeyR:
		e.viewer.ResetCamera()
	case common.KeyE:
		e.exportFirstVisible(st)
	}
}

// handleArrow scrubs slices in 2D and orbits the camera in 3D.
func (e *engine) handleArrow(key int, mode ViewMode) {
	if mode == ViewMode2D {
		if key == common.KeyUp || key == common.KeyRight {
			e.viewer.StepSlice(1)
		} else {
			e.viewer.StepSlice(-1)
		}
		return
	}
	cc := e.controller()
	if cc == nil {
		return
	}
	switch key {
	case common.KeyLeft:
		cc.OrbitLeft()
	case common.KeyRight:
		cc.OrbitRight()
	case common.KeyUp:
		cc.OrbitUp()
	case common.KeyDown:
		cc.OrbitDown()
	}
}

func (e *engine) toggleStructureAt(i int) {
	structures := e.viewer.Structures()
	if i >= len(structures) {
		return
	}
	if err := e.viewer.ToggleStructure(structures[i].ID); err != nil {
		e.logger.Warn("structure toggle failed", "structure", structures[i].ID, "error", err)
	}
}

func (e *engine) exportFirstVisible(st ViewerState) {
	for _, s := range e.viewer.Structures() {
		if !st.Visibility[s.ID] || !st.ExportEnabled[s.ID] {
			continue
		}
		if err := e.viewer.ExportStructure(s.ID); err != nil {
			e.logger.Error("export failed", "structure", s.ID, "error", err)
		}
		return
	}
	e.logger.Info("no visible structure to export")
}

func (e *engine) handleScroll(delta float32) {
	if cc := e.controller(); cc != nil {
		cc.Zoom(delta)
	}
}

func (e *engine) handleMouseDown(button window.MouseButton, x, y int32) {
	e.dragging = true
	e.dragButton = button
	e.lastX, e.lastY = x, y
}

func (e *engine) handleMouseUp(button window.MouseButton) {
	if button == e.dragButton {
		e.dragging = false
	}
}

// handleMouseMove orbits with the left button in 3D and pans otherwise.
func (e *engine) handleMouseMove(x, y int32) {
	dx, dy := float32(x-e.lastX), float32(y-e.lastY)
	e.lastX, e.lastY = x, y
	if !e.dragging {
		return
	}
	cc := e.controller()
	if cc == nil {
		return
	}
	if e.dragButton == window.MouseButtonLeft && e.viewer.State().ViewMode == ViewMode3D {
		cc.Rotate(dx, dy)
		return
	}
	cc.Pan(dx, dy)
}

// controller returns the camera controller of the live view, creating it on first use.
func (e *engine) controller() camera.CameraController {
	cam := e.viewer.Camera()
	if cam == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cc, ok := e.controllers[cam]
	if !ok {
		cc = camera.NewCameraController(cam)
		e.controllers[cam] = cc
	}
	return cc
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

// windowTitle summarizes the view state for the title bar.
func windowTitle(st ViewerState) string {
	title := "Oxy Imaging"
	if st.CaseID == "" {
		return title
	}
	title += " - " + common.Coalesce(st.CaseLabel, st.CaseID)
	if st.ViewMode == ViewMode2D {
		title += fmt.Sprintf(" - %s %d/%d", st.Axis.Label(), st.Indices[st.Axis], st.Ranges[st.Axis].Max)
	} else {
		title += " - 3D"
	}
	if st.Status != "" {
		title += " - " + st.Status
	}
	return title
}
