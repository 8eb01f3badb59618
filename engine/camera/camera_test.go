package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got [3]float32) {
	t.Helper()
	for i := range 3 {
		assert.InDelta(t, want[i], got[i], 1e-4, "component %d of %v", i, got)
	}
}

func TestResetCameraFramesBounds(t *testing.T) {
	cam := NewCamera()
	bounds := model.Bounds{-1, 1, -1, 1, -1, 1}
	cam.ResetCamera(bounds)

	assertVec(t, [3]float32{0, 0, 0}, cam.FocalPoint())
	radius := math32.Sqrt(12) / 2
	want := radius / math32.Sin(15*math32.Pi/180)
	assert.InDelta(t, want, cam.Distance(), 1e-3)
	assertVec(t, [3]float32{0, 0, -1}, cam.DirectionOfProjection())
	assert.InDelta(t, radius, cam.ParallelScale(), 1e-5)

	clip := cam.ClippingRange()
	assert.Less(t, clip[0], want-1)
	assert.Greater(t, clip[1], want+1)
	assert.Greater(t, clip[0], float32(0))
}

func TestResetCameraKeepsDirection(t *testing.T) {
	cam := NewCamera(WithPosition([3]float32{5, 0, 0}), WithViewUp([3]float32{0, 0, 1}))
	cam.ResetCamera(model.Bounds{0, 10, 0, 10, 0, 10})
	assertVec(t, [3]float32{-1, 0, 0}, cam.DirectionOfProjection())
	assertVec(t, [3]float32{5, 5, 5}, cam.FocalPoint())
	assertVec(t, [3]float32{0, 0, 1}, cam.ViewUp())
}

func TestResetCameraIgnoresInvalidBounds(t *testing.T) {
	cam := NewCamera()
	before := cam.State()
	cam.ResetCamera(model.EmptyBounds())
	assert.Equal(t, before, cam.State())
}

func TestViewUpParallelToDirectionIsRepaired(t *testing.T) {
	cam := NewCamera(WithViewUp([3]float32{0, 0, 1}))
	cam.ResetCamera(model.Bounds{0, 1, 0, 1, 0, 1})
	up := cam.ViewUp()
	assert.InDelta(t, 0, common.Dot3(up, cam.DirectionOfProjection()), 1e-5)
	assert.InDelta(t, 1, common.Length3(up), 1e-5)
}

func TestViewProjectionMapsFocalPointToCenter(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		cam := NewCamera(WithParallelProjection(parallel), WithAspect(1.5))
		cam.ResetCamera(model.Bounds{-2, 2, -1, 1, 3, 5})
		vp := cam.ViewProjectionMatrix()
		clip := common.TransformPoint(vp[:], cam.FocalPoint())
		require.NotZero(t, clip[3])
		assert.InDelta(t, 0, clip[0]/clip[3], 1e-4)
		assert.InDelta(t, 0, clip[1]/clip[3], 1e-4)
		depth := clip[2] / clip[3]
		assert.Greater(t, depth, float32(0))
		assert.Less(t, depth, float32(1))
	}
}

func TestUniformCarriesInverse(t *testing.T) {
	cam := NewCamera()
	cam.ResetCamera(model.Bounds{0, 4, 0, 4, 0, 4})
	u := cam.Uniform()
	var product [16]float32
	common.Mul4(product[:], u.ViewProj[:], u.InverseViewProj[:])
	var identity [16]float32
	common.Identity(identity[:])
	for i := range 16 {
		assert.InDelta(t, identity[i], product[i], 1e-3)
	}
	assert.Len(t, u.Marshal(), 160)
	assert.Contains(t, GPUCameraUniformSource, "inverse_view_proj")
}

func TestControllerAzimuthKeepsDistance(t *testing.T) {
	cam := NewCamera()
	cam.ResetCamera(model.Bounds{-1, 1, -1, 1, -1, 1})
	d := cam.Distance()
	ctrl := NewCameraController(cam)

	ctrl.Azimuth(90)
	assert.InDelta(t, d, cam.Distance(), 1e-3)
	assertVec(t, [3]float32{0, 0, 0}, cam.FocalPoint())
	dop := cam.DirectionOfProjection()
	assert.InDelta(t, 0, dop[2], 1e-4)

	ctrl.Elevation(30)
	assert.InDelta(t, d, cam.Distance(), 1e-3)
	assert.InDelta(t, 0, common.Dot3(cam.ViewUp(), cam.DirectionOfProjection()), 1e-4)
}

func TestControllerDollyAndPan(t *testing.T) {
	cam := NewCamera()
	cam.ResetCamera(model.Bounds{-1, 1, -1, 1, -1, 1})
	ctrl := NewCameraController(cam)
	d := cam.Distance()

	ctrl.Dolly(2)
	assert.InDelta(t, d/2, cam.Distance(), 1e-3)
	ctrl.Dolly(-1)
	assert.InDelta(t, d/2, cam.Distance(), 1e-3)

	fp := cam.FocalPoint()
	ctrl.Pan(100, 0)
	moved := common.Sub3(cam.FocalPoint(), fp)
	assert.NotZero(t, common.Length3(moved))
	assert.InDelta(t, d/2, cam.Distance(), 1e-3)

	cam.SetParallelProjection(true)
	scale := cam.ParallelScale()
	ctrl.Zoom(1)
	assert.Less(t, cam.ParallelScale(), scale)
}
