package camera

type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the initial eye position.
//
// Parameters:
//   - p: the eye position
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's position
func WithPosition(p [3]float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = p
	}
}

// WithFocalPoint sets the initial focal point.
//
// Parameters:
//   - p: the focal point
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's focal point
func WithFocalPoint(p [3]float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.focalPoint = p
	}
}

// WithViewUp sets the initial view-up vector.
//
// Parameters:
//   - up: the view-up vector
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's view-up vector
func WithViewUp(up [3]float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewUp = up
	}
}

// WithViewAngle sets the vertical field of view in degrees.
func WithViewAngle(degrees float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewAngle = degrees
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithParallelProjection selects an orthographic projection.
func WithParallelProjection(parallel bool) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.parallel = parallel
	}
}
