package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/chewxy/math32"
)

// CameraController turns pointer and keyboard input into camera motion around the focal point.
// Rotation keeps the distance to the focal point; zoom changes the distance, or the parallel
// scale under parallel projection; panning moves eye and focal point together.
type CameraController interface {
	// Camera returns the driven camera.
	//
	// Returns:
	//   - Camera: the camera
	Camera() Camera

	// Azimuth rotates the eye around the view-up axis through the focal point.
	//
	// Parameters:
	//   - degrees: the rotation angle
	Azimuth(degrees float32)

	// Elevation rotates the eye around the horizontal axis through the focal point.
	//
	// Parameters:
	//   - degrees: the rotation angle
	Elevation(degrees float32)

	// Rotate applies a mouse drag in pixels, scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx, dy: the drag delta
	Rotate(dx, dy float32)

	// OrbitLeft rotates by one keyboard step to the left.
	OrbitLeft()

	// OrbitRight rotates by one keyboard step to the right.
	OrbitRight()

	// OrbitUp rotates by one keyboard step upward.
	OrbitUp()

	// OrbitDown rotates by one keyboard step downward.
	OrbitDown()

	// Zoom applies a scroll amount. Positive values move closer.
	//
	// Parameters:
	//   - delta: the scroll delta, scaled by the zoom speed
	Zoom(delta float32)

	// Dolly divides the distance (or the parallel scale) by factor.
	//
	// Parameters:
	//   - factor: values above one move closer
	Dolly(factor float32)

	// Pan translates eye and focal point along the screen axes.
	//
	// Parameters:
	//   - dx, dy: the drag delta in pixels, scaled by the pan speed and distance
	Pan(dx, dy float32)
}

type cameraControllerImpl struct {
	mu *sync.Mutex

	camera Camera

	orbitSpeed       float32 // degrees per keyboard step
	mouseSensitivity float32 // degrees per pixel
	zoomSpeed        float32
	panSpeed         float32
	minDistance      float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a controller driving cam.
//
// Parameters:
//   - cam: the camera to drive
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(cam Camera, options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:               &sync.Mutex{},
		camera:           cam,
		orbitSpeed:       5,
		mouseSensitivity: 0.4,
		zoomSpeed:        0.1,
		panSpeed:         0.002,
		minDistance:      1e-3,
	}
	for _, option := range options {
		option(cc)
	}
	return cc
}

func (cc *cameraControllerImpl) Camera() Camera {
	return cc.camera
}

func (cc *cameraControllerImpl) Azimuth(degrees float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cam := cc.camera
	up := cam.ViewUp()
	fp := cam.FocalPoint()
	offset := rotate(common.Sub3(cam.Position(), fp), up, degrees)
	cam.SetPosition(common.Add3(fp, offset))
}

func (cc *cameraControllerImpl) Elevation(degrees float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cam := cc.camera
	fp := cam.FocalPoint()
	offset := common.Sub3(cam.Position(), fp)
	right := common.Normalize3(common.Cross3(cam.DirectionOfProjection(), cam.ViewUp()))
	if right == ([3]float32{}) {
		return
	}
	offset = rotate(offset, right, -degrees)
	cam.SetPosition(common.Add3(fp, offset))
	cam.SetViewUp(common.Normalize3(common.Cross3(right, common.Scale3(offset, -1))))
	cam.OrthogonalizeViewUp()
}

func (cc *cameraControllerImpl) Rotate(dx, dy float32) {
	cc.Azimuth(-dx * cc.mouseSensitivity)
	cc.Elevation(dy * cc.mouseSensitivity)
}

func (cc *cameraControllerImpl) OrbitLeft() {
	cc.Azimuth(-cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitRight() {
	cc.Azimuth(cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitUp() {
	cc.Elevation(cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitDown() {
	cc.Elevation(-cc.orbitSpeed)
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.Dolly(math32.Pow(1.1, delta*cc.zoomSpeed*10))
}

func (cc *cameraControllerImpl) Dolly(factor float32) {
	if factor <= 0 || math32.IsNaN(factor) {
		return
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cam := cc.camera
	if cam.ParallelProjection() {
		cam.SetParallelScale(cam.ParallelScale() / factor)
		return
	}
	distance := math32.Max(cam.Distance()/factor, cc.minDistance)
	fp := cam.FocalPoint()
	cam.SetPosition(common.Sub3(fp, common.Scale3(cam.DirectionOfProjection(), distance)))
}

func (cc *cameraControllerImpl) Pan(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cam := cc.camera
	scale := cam.Distance()
	if cam.ParallelProjection() {
		scale = cam.ParallelScale()
	}
	up := cam.ViewUp()
	right := common.Normalize3(common.Cross3(cam.DirectionOfProjection(), up))
	shift := common.Add3(common.Scale3(right, -dx*cc.panSpeed*scale), common.Scale3(up, dy*cc.panSpeed*scale))
	cam.SetPosition(common.Add3(cam.Position(), shift))
	cam.SetFocalPoint(common.Add3(cam.FocalPoint(), shift))
}

// rotate applies Rodrigues' rotation of v around the unit axis by degrees.
func rotate(v, axis [3]float32, degrees float32) [3]float32 {
	axis = common.Normalize3(axis)
	if axis == ([3]float32{}) {
		return v
	}
	s, c := math32.Sincos(degrees * math32.Pi / 180)
	return common.Add3(
		common.Add3(common.Scale3(v, c), common.Scale3(common.Cross3(axis, v), s)),
		common.Scale3(axis, common.Dot3(axis, v)*(1-c)),
	)
}

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithOrbitSpeed sets the keyboard rotation step in degrees.
//
// Parameters:
//   - degrees: the rotation per key press
//
// Returns:
//   - CameraControllerOption: functional option to set the orbit speed
func WithOrbitSpeed(degrees float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.orbitSpeed = degrees
	}
}

// WithMouseSensitivity sets the rotation in degrees per dragged pixel.
func WithMouseSensitivity(s float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.mouseSensitivity = s
	}
}

// WithZoomSpeed sets the scroll multiplier.
func WithZoomSpeed(s float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.zoomSpeed = s
	}
}

// WithPanSpeed sets the pan multiplier.
func WithPanSpeed(s float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.panSpeed = s
	}
}
