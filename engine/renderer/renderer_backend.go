package renderer

import (
	"fmt"
	"image"
	"strings"

	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// RendererBackendType identifies the backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects the CPU backend that renders into an in-memory image.
	BackendTypeHeadless
)

// String returns the lower-case backend name used in configuration and metric labels.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeHeadless:
		return "headless"
	default:
		return fmt.Sprintf("backend(%d)", int(t))
	}
}

// ParseBackendType converts a configuration value into a RendererBackendType.
//
// Parameters:
//   - value: "wgpu" or "headless", case-insensitive
//
// Returns:
//   - RendererBackendType: the matching backend
//   - error: an error if the value names no backend
func ParseBackendType(value string) (RendererBackendType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "wgpu", "gpu":
		return BackendTypeWGPU, nil
	case "headless", "cpu":
		return BackendTypeHeadless, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", value)
	}
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// MSAASampleCount controls the number of samples used for multisample anti-aliasing (MSAA).
// Only specific power-of-two values are valid for GPU hardware. WebGPU guarantees support for
// 1 (off) and 4; higher values (8, 16) are adapter-dependent and may not be available.
type MSAASampleCount uint32

const (
	// MSAAOff disables multisample anti-aliasing (sample count 1).
	MSAAOff MSAASampleCount = 1

	// MSAA4x enables 4× multisample anti-aliasing. This is the default.
	MSAA4x MSAASampleCount = 4
)

// gpuResource is the backend-owned state behind one actor input. Release frees it.
type gpuResource interface {
	Release()
}

type volumeDraw struct {
	resource gpuResource
	params   GPUVolumeParams
}

type meshDraw struct {
	resource gpuResource
	params   GPUMeshParams
}

type sliceDraw struct {
	resource gpuResource
	params   GPUSliceParams
}

// frame is everything a backend needs to draw one image. Meshes are drawn first,
// then volumes, then slices.
type frame struct {
	camera     camera.GPUCameraUniform
	background [3]float32
	meshes     []meshDraw
	volumes    []volumeDraw
	slices     []sliceDraw
}

// RendererBackend is the backend interface behind the Renderer. Each implementation owns the
// device-side copy of actor inputs and turns a frame into pixels.
type RendererBackend interface {
	// Configure sizes the render target.
	//
	// Parameters:
	//   - width: target width in pixels
	//   - height: target height in pixels
	//
	// Returns:
	//   - error: an error if the target could not be (re)created
	Configure(width, height int) error

	// UploadVolume creates the resources for ray-marching vol through lut.
	//
	// Parameters:
	//   - label: debug label of the owning actor
	//   - vol: the scalar volume
	//   - lut: LUTSize RGBA8 transfer-function texels
	//
	// Returns:
	//   - gpuResource: the resource to pass back in volumeDraw
	//   - error: an error if upload failed
	UploadVolume(label string, vol *model.Volume, lut []byte) (gpuResource, error)

	// UploadMesh creates vertex and index buffers for mesh.
	//
	// Parameters:
	//   - label: debug label of the owning actor
	//   - mesh: the triangle surface
	//
	// Returns:
	//   - gpuResource: the resource to pass back in meshDraw
	//   - error: an error if upload failed
	UploadMesh(label string, mesh *model.Mesh) (gpuResource, error)

	// UploadSlice creates the resources for reslicing vol.
	//
	// Parameters:
	//   - label: debug label of the owning actor
	//   - vol: the scalar volume
	//
	// Returns:
	//   - gpuResource: the resource to pass back in sliceDraw
	//   - error: an error if upload failed
	UploadSlice(label string, vol *model.Volume) (gpuResource, error)

	// Draw renders and presents a frame.
	//
	// Parameters:
	//   - f: the frame to draw
	//
	// Returns:
	//   - error: an error if the frame could not be drawn
	Draw(f *frame) error

	// Capture returns a copy of the last drawn frame.
	//
	// Returns:
	//   - *image.RGBA: the pixels of the last frame
	//   - error: ErrCaptureUnsupported when the backend cannot read pixels back
	Capture() (*image.RGBA, error)

	// Release frees the device and every backend-level object. Actor resources must be released first.
	Release()
}
