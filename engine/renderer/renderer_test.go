package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/metrics"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/slice"
	"github.com/Carmen-Shannon/oxy-imaging/internal/fixture"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHeadless(t *testing.T, options ...RendererBuilderOption) Renderer {
	t.Helper()
	r, err := NewRenderer(BackendTypeHeadless, FixedSize{W: 32, H: 32}, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func constantVolume(value float32) *model.Volume {
	vol := fixture.Volume(model.Extent{0, 9, 0, 9, 0, 9}, 0)
	for i := range vol.Scalars {
		vol.Scalars[i] = value
	}
	vol.ScalarRange = [2]float32{value, value}
	return vol
}

func TestSliceRendersWindowLevelGray(t *testing.T) {
	r := newHeadless(t, WithBackground([3]float32{0, 0, 1}))
	sa, err := r.NewSliceActor("slice")
	require.NoError(t, err)
	require.NoError(t, sa.SetInput(constantVolume(250)))
	sa.SetSlice(slice.AxisK, 4)
	sa.SetColorWindow(1000)
	sa.SetColorLevel(0)

	cam := camera.NewCamera(camera.WithParallelProjection(true))
	cam.ResetCamera(r.VisibleBounds())
	require.NoError(t, r.Render(cam))

	img, err := r.Capture()
	require.NoError(t, err)
	center := img.RGBAAt(16, 16)
	assert.Equal(t, uint8(191), center.R)
	assert.Equal(t, center.R, center.B)

	corner := img.RGBAAt(0, 0)
	assert.Equal(t, uint8(0), corner.R)
	assert.Equal(t, uint8(255), corner.B)
}

func TestSliceIndexIsClampedToExtent(t *testing.T) {
	r := newHeadless(t)
	sa, err := r.NewSliceActor("slice")
	require.NoError(t, err)
	require.NoError(t, sa.SetInput(constantVolume(250)))
	sa.SetSlice(slice.AxisK, 40)

	f := &frame{}
	impl := sa.(actorImpl)
	impl.appendDraw(f)
	require.Len(t, f.slices, 1)
	assert.Equal(t, float32(9), f.slices[0].params.Layer)
	assert.Equal(t, uint32(slice.AxisK), f.slices[0].params.Axis)
}

func TestVolumeCompositesOverBackground(t *testing.T) {
	r := newHeadless(t)
	va, err := r.NewVolumeActor("volume")
	require.NoError(t, err)
	require.NoError(t, va.SetTransferFunction(TransferFunction{
		Colors:    []ColorPoint{{X: 0, R: 1, G: 1, B: 1}, {X: 1000, R: 1, G: 1, B: 1}},
		Opacities: []OpacityPoint{{X: 0, A: 1}, {X: 1000, A: 1}},
	}))
	// unshaded, no gradient opacity: an opaque white volume composites to white
	va.SetShade(false)
	assert.Zero(t, va.TransferFunction().GradientRange)
	require.NoError(t, va.SetInput(fixture.Volume(model.Extent{0, 9, 0, 9, 0, 9}, 0)))

	cam := camera.NewCamera()
	cam.ResetCamera(r.VisibleBounds())
	require.NoError(t, r.Render(cam))

	img, err := r.Capture()
	require.NoError(t, err)
	assert.Greater(t, img.RGBAAt(16, 16).R, uint8(200))
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)

	va.SetVisible(false)
	require.NoError(t, r.Render(cam))
	img, err = r.Capture()
	require.NoError(t, err)
	assert.Equal(t, uint8(0), img.RGBAAt(16, 16).R)
}

func TestMeshRasterizesWithOpacity(t *testing.T) {
	r := newHeadless(t)
	ma, err := r.NewMeshActor("mesh")
	require.NoError(t, err)
	require.NoError(t, ma.SetGeometry(fixture.Triangle(0)))

	cam := camera.NewCamera(camera.WithParallelProjection(true))
	cam.ResetCamera(r.VisibleBounds())
	require.NoError(t, r.Render(cam))

	img, err := r.Capture()
	require.NoError(t, err)
	// world (0.25, 0.25) lies inside the triangle
	assert.Equal(t, uint8(235), img.RGBAAt(10, 21).R)
	assert.Equal(t, uint8(0), img.RGBAAt(31, 0).R)
}

func TestResourceAccounting(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := newHeadless(t, WithMetrics(m))
	gauge := m.GPUResources.WithLabelValues("headless")

	ma, err := r.NewMeshActor("mesh")
	require.NoError(t, err)
	sa, err := r.NewSliceActor("slice")
	require.NoError(t, err)
	assert.Equal(t, 0, r.LiveResources())
	assert.False(t, ma.HasInput())

	require.NoError(t, ma.SetGeometry(fixture.Triangle(0)))
	require.NoError(t, sa.SetInput(constantVolume(1)))
	assert.Equal(t, 2, r.LiveResources())
	assert.Equal(t, float64(2), testutil.ToFloat64(gauge))

	// swapping geometry replaces the resource in place
	require.NoError(t, ma.SetGeometry(fixture.Triangle(2)))
	assert.Equal(t, 2, r.LiveResources())
	assert.Same(t, ma, r.Actor("mesh"))

	require.NoError(t, ma.SetGeometry(nil))
	assert.Equal(t, 1, r.LiveResources())
	assert.False(t, ma.Bounds().Valid())

	r.RemoveActor(sa)
	assert.Equal(t, 0, r.LiveResources())
	assert.Nil(t, r.Actor("slice"))
	assert.ErrorIs(t, sa.SetInput(constantVolume(1)), ErrReleased)
	assert.Equal(t, float64(0), testutil.ToFloat64(gauge))
}

func TestDuplicateActorRejected(t *testing.T) {
	r := newHeadless(t)
	_, err := r.NewMeshActor("a")
	require.NoError(t, err)
	_, err = r.NewVolumeActor("a")
	assert.True(t, errors.Is(err, ErrDuplicateActor))
	assert.Len(t, r.Actors(), 1)
}

func TestReleaseIsIdempotent(t *testing.T) {
	r, err := NewRenderer(BackendTypeHeadless, FixedSize{W: 8, H: 8})
	require.NoError(t, err)
	va, err := r.NewVolumeActor("volume")
	require.NoError(t, err)
	require.NoError(t, va.SetInput(constantVolume(1)))

	r.Release()
	r.Release()
	assert.True(t, r.Released())
	assert.Equal(t, 0, r.LiveResources())
	assert.ErrorIs(t, r.Render(camera.NewCamera()), ErrReleased)
	assert.ErrorIs(t, va.SetInput(constantVolume(1)), ErrReleased)
	_, err = r.NewMeshActor("late")
	assert.ErrorIs(t, err, ErrReleased)
}

func TestResizeRejectsEmptyTarget(t *testing.T) {
	r := newHeadless(t)
	require.Error(t, r.Resize(0, 10))
	require.NoError(t, r.Resize(64, 16))
	w, h := r.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 16, h)

	cam := camera.NewCamera()
	require.NoError(t, r.Render(cam))
	assert.InDelta(t, 4.0, cam.Aspect(), 1e-6)
}

func TestVolumeRejectsMismatchedScalars(t *testing.T) {
	r := newHeadless(t)
	va, err := r.NewVolumeActor("volume")
	require.NoError(t, err)
	vol := constantVolume(1)
	vol.Scalars = vol.Scalars[:10]
	assert.Error(t, va.SetInput(vol))
	assert.False(t, va.HasInput())
}

func TestParseBackendType(t *testing.T) {
	b, err := ParseBackendType("Headless")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeHeadless, b)
	b, err = ParseBackendType("")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeWGPU, b)
	_, err = ParseBackendType("vulkan")
	assert.Error(t, err)
}

func TestWGPURequiresSurfaceContainer(t *testing.T) {
	_, err := NewRenderer(BackendTypeWGPU, FixedSize{W: 8, H: 8})
	assert.Error(t, err)
}

func TestShadersDeclareBindings(t *testing.T) {
	shaders, err := loadShaders()
	require.NoError(t, err)
	require.Len(t, shaders, 3)

	entries := shaders[shaderKeyVolume].BufferLayoutEntries(0, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(160), entries[0].Buffer.MinBindingSize)
	assert.Equal(t, uint64(96), entries[1].Buffer.MinBindingSize)
	assert.Contains(t, shaders[shaderKeySlice].Source(), "struct SliceParams")
}

func TestLightShadesMeshes(t *testing.T) {
	brightest := func(options ...RendererBuilderOption) uint8 {
		r := newHeadless(t, append(options, WithBackground([3]float32{0, 0, 0}))...)
		ma, err := r.NewMeshActor("tri")
		require.NoError(t, err)
		require.NoError(t, ma.SetGeometry(fixture.Triangle(0)))
		ma.SetColor([3]float32{1, 0, 0})
		ma.SetOpacity(1)

		cam := camera.NewCamera()
		cam.ResetCamera(r.VisibleBounds())
		require.NoError(t, r.Render(cam))
		img, err := r.Capture()
		require.NoError(t, err)
		var top uint8
		for i := 0; i < len(img.Pix); i += 4 {
			top = max(top, img.Pix[i])
		}
		return top
	}

	head := brightest()
	side := brightest(WithLight(light.NewLight(light.WithType(light.LightTypeDirectional), light.WithDirection([3]float32{1, 0, 0}))))
	assert.Equal(t, uint8(255), head)
	assert.InDelta(t, 77, int(side), 2)
}
