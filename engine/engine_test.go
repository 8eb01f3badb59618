package engine

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/logging"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/engine/volume_pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWindow records callbacks so tests can replay input.
type fakeWindow struct {
	title     string
	update    func()
	resize    func(width, height int)
	scroll    func(delta float32)
	keyDown   func(keyCode uint32, mods window.Modifier)
	mouseDown func(button window.MouseButton, x, y int32)
	mouseUp   func(button window.MouseButton, x, y int32)
	mouseMove func(x, y int32)
}

var _ window.Window = &fakeWindow{}

func (w *fakeWindow) SetUpdateCallback(cb func())                         { w.update = cb }
func (w *fakeWindow) SetResizeCallback(cb func(width, height int))        { w.resize = cb }
func (w *fakeWindow) SetScrollCallback(cb func(delta float32))            { w.scroll = cb }
func (w *fakeWindow) SetKeyUpCallback(func(uint32, window.Modifier))      {}
func (w *fakeWindow) SetMouseMoveCallback(cb func(x, y int32))            { w.mouseMove = cb }
func (w *fakeWindow) SetTitle(title string)                               { w.title = title }
func (w *fakeWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor          { return nil }
func (w *fakeWindow) IsRunning() bool                                     { return false }
func (w *fakeWindow) Close() error                                        { return nil }
func (w *fakeWindow) ProcessMessages()                                    {}
func (w *fakeWindow) Width() int                                          { return 16 }
func (w *fakeWindow) Height() int                                         { return 16 }
func (w *fakeWindow) SetKeyDownCallback(cb func(uint32, window.Modifier)) { w.keyDown = cb }
func (w *fakeWindow) SetMouseDownCallback(cb func(window.MouseButton, int32, int32)) {
	w.mouseDown = cb
}
func (w *fakeWindow) SetMouseUpCallback(cb func(window.MouseButton, int32, int32)) {
	w.mouseUp = cb
}

func newTestEngine(t *testing.T, h *viewerHarness) (*engine, *fakeWindow) {
	t.Helper()
	w := &fakeWindow{}
	e := NewEngine(WithViewer(h.viewer), WithWindow(w), WithEngineLogger(logging.Discard()))
	return e.(*engine), w
}

func (w *fakeWindow) press(key int, mods window.Modifier) {
	w.keyDown(uint32(key), mods)
}

func TestKeyBindingsDriveViewer(t *testing.T) {
	h := newViewerHarness(t)
	h.viewer.SelectCase(caseA())
	h.flush(t)
	e, w := newTestEngine(t, h)

	w.press(common.KeyV, 0)
	e.step(0)
	h.flush(t)
	st := h.viewer.State()
	require.Equal(t, ViewMode2D, st.ViewMode)
	require.True(t, st.HasVolume)

	w.press(common.KeyRightBracket, 0)
	w.press(common.KeyRightBracket, 0)
	w.press(common.KeyLeftBracket, 0)
	e.step(0)
	assert.Equal(t, 4, h.viewer.State().Indices[slice.AxisK])

	w.press(common.KeyUp, 0)
	e.step(0)
	assert.Equal(t, 5, h.viewer.State().Indices[slice.AxisK])

	w.press(common.Key2, 0)
	e.step(0)
	assert.Equal(t, slice.AxisJ, h.viewer.State().Axis)

	w.press(common.Key1, window.ModShift)
	w.press(common.KeySpace, 0)
	w.press(common.KeyT, 0)
	e.step(0)
	st = h.viewer.State()
	assert.Equal(t, slice.AxisJ, st.Axis, "shifted digits toggle structures instead of axes")
	assert.False(t, st.Visibility["liver"])
	assert.False(t, st.ShowVolume)
	assert.Equal(t, volume_pipeline.ThemeDark, st.Theme)
}

func TestExportKeyPicksFirstVisibleStructure(t *testing.T) {
	h := newViewerHarness(t)
	h.viewer.SelectCase(caseA())
	h.flush(t)
	e, w := newTestEngine(t, h)

	require.NoError(t, h.viewer.SetStructureVisible("liver", false))
	w.press(common.KeyE, 0)
	e.step(0)
	assert.Empty(t, h.exported)

	require.NoError(t, h.viewer.SetStructureVisible("liver", true))
	w.press(common.KeyE, 0)
	e.step(0)
	assert.Equal(t, []string{"liver"}, h.exported)
}

func TestPointerDrivesCamera(t *testing.T) {
	h := newViewerHarness(t)
	h.viewer.SelectCase(caseA())
	require.NoError(t, h.viewer.LoadVolume())
	h.flush(t)
	e, w := newTestEngine(t, h)

	cam := h.viewer.Camera()
	require.NotNil(t, cam)
	before := cam.Distance()
	w.scroll(1)
	e.step(0)
	assert.Less(t, cam.Distance(), before)

	distance := cam.Distance()
	position := cam.Position()
	w.mouseDown(window.MouseButtonLeft, 0, 0)
	w.mouseMove(20, 0)
	w.mouseUp(window.MouseButtonLeft, 20, 0)
	w.mouseMove(40, 0)
	e.step(0)
	assert.NotEqual(t, position, cam.Position())
	assert.InDelta(t, distance, cam.Distance(), 1e-2)
	assert.Equal(t, [3]float32{4.5, 4.5, 3.5}, cam.FocalPoint())
}

func TestResizeAndTitle(t *testing.T) {
	h := newViewerHarness(t)
	h.viewer.SelectCase(caseA())
	h.flush(t)
	e, w := newTestEngine(t, h)

	w.resize(32, 16)
	e.step(0)
	assert.InDelta(t, 2.0, h.viewer.Camera().Aspect(), 1e-6)

	w.update()
	assert.Equal(t, "Oxy Imaging - Case A - 3D", w.title)
}

func TestWindowTitle(t *testing.T) {
	assert.Equal(t, "Oxy Imaging", windowTitle(ViewerState{}))
	st := ViewerState{CaseID: "case-a", ViewMode: ViewMode2D, Axis: slice.AxisK, Status: "Loading volume data…"}
	st.Indices[slice.AxisK] = 3
	st.Ranges[slice.AxisK] = slice.Range{Min: 0, Max: 7}
	assert.Equal(t, "Oxy Imaging - case-a - Axial 3/7 - Loading volume data…", windowTitle(st))
}

func TestRunNeedsViewerAndWindow(t *testing.T) {
	e := NewEngine(WithEngineLogger(logging.Discard()))
	assert.ErrorIs(t, e.Run(), ErrNoViewer)
}
