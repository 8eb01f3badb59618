package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/chewxy/math32"
)

// State is a copy of the camera parameters, used for comparisons and diagnostics.
type State struct {
	Position      [3]float32
	FocalPoint    [3]float32
	ViewUp        [3]float32
	ViewAngle     float32
	Parallel      bool
	ParallelScale float32
	ClippingRange [2]float32
}

type cameraImpl struct {
	mu *sync.Mutex

	position   [3]float32
	focalPoint [3]float32
	viewUp     [3]float32

	// viewAngle is the vertical field of view in degrees
	viewAngle     float32
	aspect        float32
	parallel      bool
	parallelScale float32
	clipping      [2]float32
}

// Camera is a position / focal point / view-up camera with perspective or parallel projection.
// Matrices are derived on demand and map depth into the WebGPU [0, 1] range.
type Camera interface {
	// Position returns the eye position in world space.
	//
	// Returns:
	//   - [3]float32: the eye position
	Position() [3]float32

	// FocalPoint returns the point the camera looks at.
	//
	// Returns:
	//   - [3]float32: the focal point
	FocalPoint() [3]float32

	// ViewUp returns the view-up vector.
	//
	// Returns:
	//   - [3]float32: the view-up vector
	ViewUp() [3]float32

	// SetPosition moves the eye without moving the focal point.
	//
	// Parameters:
	//   - p: the new eye position
	SetPosition(p [3]float32)

	// SetFocalPoint moves the focal point without moving the eye.
	//
	// Parameters:
	//   - p: the new focal point
	SetFocalPoint(p [3]float32)

	// SetViewUp sets the view-up vector.
	//
	// Parameters:
	//   - up: the new view-up vector
	SetViewUp(up [3]float32)

	// OrthogonalizeViewUp makes the view-up perpendicular to the direction of projection.
	OrthogonalizeViewUp()

	// Distance returns the distance from the eye to the focal point.
	//
	// Returns:
	//   - float32: the distance
	Distance() float32

	// DirectionOfProjection returns the unit vector from the eye towards the focal point.
	//
	// Returns:
	//   - [3]float32: the direction, or zero when eye and focal point coincide
	DirectionOfProjection() [3]float32

	// ViewAngle returns the vertical field of view in degrees.
	//
	// Returns:
	//   - float32: the view angle
	ViewAngle() float32

	// SetViewAngle sets the vertical field of view in degrees.
	//
	// Parameters:
	//   - degrees: the view angle
	SetViewAngle(degrees float32)

	// Aspect returns the viewport aspect ratio.
	//
	// Returns:
	//   - float32: width / height
	Aspect() float32

	// SetAspect sets the viewport aspect ratio.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// ParallelProjection reports whether the camera uses an orthographic projection.
	//
	// Returns:
	//   - bool: true for parallel projection
	ParallelProjection() bool

	// SetParallelProjection switches between parallel and perspective projection.
	//
	// Parameters:
	//   - parallel: true for parallel projection
	SetParallelProjection(parallel bool)

	// ParallelScale returns half the visible height under parallel projection.
	//
	// Returns:
	//   - float32: the parallel scale
	ParallelScale() float32

	// SetParallelScale sets half the visible height under parallel projection.
	//
	// Parameters:
	//   - scale: the parallel scale
	SetParallelScale(scale float32)

	// ClippingRange returns the near and far clipping distances.
	//
	// Returns:
	//   - [2]float32: near and far
	ClippingRange() [2]float32

	// SetClippingRange sets the near and far clipping distances.
	//
	// Parameters:
	//   - near: the near distance
	//   - far: the far distance
	SetClippingRange(near, far float32)

	// ResetCamera frames bounds: the focal point moves to the center, the eye backs off along
	// the current direction of projection until the bounding sphere fits the view angle,
	// the parallel scale becomes the sphere radius and the clipping range is reset.
	//
	// Parameters:
	//   - bounds: the world-space box to frame
	ResetCamera(bounds model.Bounds)

	// ResetClippingRange fits the near and far planes around bounds.
	//
	// Parameters:
	//   - bounds: the world-space box that must remain visible
	ResetClippingRange(bounds model.Bounds)

	// ViewMatrix returns the world-to-view matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the view matrix
	ViewMatrix() [16]float32

	// ProjectionMatrix returns the projection matrix (column-major).
	//
	// Returns:
	//   - [16]float32: the projection matrix
	ProjectionMatrix() [16]float32

	// ViewProjectionMatrix returns projection * view (column-major).
	//
	// Returns:
	//   - [16]float32: the combined matrix
	ViewProjectionMatrix() [16]float32

	// Uniform returns the GPU layout of the camera.
	//
	// Returns:
	//   - GPUCameraUniform: the uniform block
	Uniform() GPUCameraUniform

	// State returns a copy of every camera parameter.
	//
	// Returns:
	//   - State: the parameters
	State() State
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera at (0, 0, 1) looking at the origin with +Y up.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:            &sync.Mutex{},
		position:      [3]float32{0, 0, 1},
		viewUp:        [3]float32{0, 1, 0},
		viewAngle:     30,
		aspect:        1,
		parallelScale: 1,
		clipping:      [2]float32{0.01, 1000.01},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *cameraImpl) Position() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) FocalPoint() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focalPoint
}

func (c *cameraImpl) ViewUp() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewUp
}

func (c *cameraImpl) SetPosition(p [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
}

func (c *cameraImpl) SetFocalPoint(p [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focalPoint = p
}

func (c *cameraImpl) SetViewUp(up [3]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := common.Normalize3(up); n != ([3]float32{}) {
		c.viewUp = n
	}
}

func (c *cameraImpl) OrthogonalizeViewUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orthogonalizeViewUp()
}

// orthogonalizeViewUp removes the view-up component along the direction of projection. Caller must hold the mutex.
func (c *cameraImpl) orthogonalizeViewUp() {
	dop := c.direction()
	if dop == ([3]float32{}) {
		return
	}
	up := common.Sub3(c.viewUp, common.Scale3(dop, common.Dot3(c.viewUp, dop)))
	if n := common.Normalize3(up); n != ([3]float32{}) {
		c.viewUp = n
		return
	}
	c.viewUp = common.Perpendicular3(dop)
}

func (c *cameraImpl) Distance() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.Length3(common.Sub3(c.focalPoint, c.position))
}

func (c *cameraImpl) DirectionOfProjection() [3]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction()
}

func (c *cameraImpl) direction() [3]float32 {
	return common.Normalize3(common.Sub3(c.focalPoint, c.position))
}

func (c *cameraImpl) ViewAngle() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewAngle
}

func (c *cameraImpl) SetViewAngle(degrees float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewAngle = common.Clamp(degrees, 0.01, 179)
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect > 0 {
		c.aspect = aspect
	}
}

func (c *cameraImpl) ParallelProjection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parallel
}

func (c *cameraImpl) SetParallelProjection(parallel bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parallel = parallel
}

func (c *cameraImpl) ParallelScale() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parallelScale
}

func (c *cameraImpl) SetParallelScale(scale float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if scale > 0 {
		c.parallelScale = scale
	}
}

func (c *cameraImpl) ClippingRange() [2]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clipping
}

func (c *cameraImpl) SetClippingRange(near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if far < near {
		near, far = far, near
	}
	if far-near < 1e-6 {
		far = near + 1e-3
	}
	c.clipping = [2]float32{near, far}
}

func (c *cameraImpl) ResetCamera(bounds model.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !bounds.Valid() {
		return
	}

	dop := c.direction()
	if dop == ([3]float32{}) {
		dop = [3]float32{0, 0, -1}
	}
	radius := bounds.Diagonal() / 2
	if radius == 0 {
		radius = 0.5
	}
	angle := c.viewAngle * math32.Pi / 180
	distance := radius / math32.Sin(angle/2)

	center := bounds.Center()
	c.focalPoint = center
	c.position = common.Sub3(center, common.Scale3(dop, distance))
	c.parallelScale = radius
	c.orthogonalizeViewUp()
	c.resetClippingRange(bounds)
}

func (c *cameraImpl) ResetClippingRange(bounds model.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bounds.Valid() {
		c.resetClippingRange(bounds)
	}
}

// resetClippingRange fits near and far around the corners of bounds. Caller must hold the mutex.
func (c *cameraImpl) resetClippingRange(bounds model.Bounds) {
	dop := c.direction()
	if dop == ([3]float32{}) {
		return
	}
	near, far := math32.Inf(1), math32.Inf(-1)
	for i := range 8 {
		corner := [3]float32{bounds[i&1], bounds[2+(i>>1)&1], bounds[4+(i>>2)&1]}
		d := common.Dot3(common.Sub3(corner, c.position), dop)
		near = math32.Min(near, d)
		far = math32.Max(far, d)
	}
	// pad so geometry exactly on the box faces is not clipped
	pad := math32.Max((far-near)*0.01, 1e-3)
	near -= pad
	far += pad
	if near < far*0.001 {
		near = far * 0.001
	}
	c.clipping = [2]float32{near, far}
}

func (c *cameraImpl) ViewMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

func (c *cameraImpl) view() [16]float32 {
	var m [16]float32
	common.LookAt(m[:], c.position, c.focalPoint, c.viewUp)
	return m
}

func (c *cameraImpl) ProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection()
}

func (c *cameraImpl) projection() [16]float32 {
	var m [16]float32
	if c.parallel {
		common.Ortho(m[:], c.parallelScale, c.aspect, c.clipping[0], c.clipping[1])
	} else {
		common.Perspective(m[:], c.viewAngle*math32.Pi/180, c.aspect, c.clipping[0], c.clipping[1])
	}
	return m
}

func (c *cameraImpl) ViewProjectionMatrix() [16]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection()
}

func (c *cameraImpl) viewProjection() [16]float32 {
	v, p := c.view(), c.projection()
	var vp [16]float32
	common.Mul4(vp[:], p[:], v[:])
	return vp
}

func (c *cameraImpl) Uniform() GPUCameraUniform {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := GPUCameraUniform{
		ViewProj:       c.viewProjection(),
		CameraPosition: c.position,
		Direction:      c.direction(),
	}
	common.Identity(u.InverseViewProj[:])
	common.Invert4(u.InverseViewProj[:], u.ViewProj[:])
	if c.parallel {
		u.Parallel = 1
	}
	return u
}

func (c *cameraImpl) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Position:      c.position,
		FocalPoint:    c.focalPoint,
		ViewUp:        c.viewUp,
		ViewAngle:     c.viewAngle,
		Parallel:      c.parallel,
		ParallelScale: c.parallelScale,
		ClippingRange: c.clipping,
	}
}
