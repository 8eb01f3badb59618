package camera

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUCameraUniformSource is the canonical WGSL definition of the CameraUniform struct.
// Matches GPUCameraUniform layout exactly (160 bytes).
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the GPU-aligned representation of the camera uniform buffer.
// Matches the WGSL CameraUniform struct layout exactly (see GPUCameraUniformSource).
type GPUCameraUniform struct {
	ViewProj        [16]float32 // offset   0: combined view-projection matrix
	InverseViewProj [16]float32 // offset  64: clip space back to world space, for ray setup
	CameraPosition  [3]float32  // offset 128: world-space eye position
	Parallel        float32     // offset 140: 1 under parallel projection
	Direction       [3]float32  // offset 144: direction of projection
	_pad            float32     // offset 156
}

// Size returns the size of the GPUCameraUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (160)
func (g *GPUCameraUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	put := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	for i := range 16 {
		put(i*4, g.ViewProj[i])
		put(64+i*4, g.InverseViewProj[i])
	}
	for i := range 3 {
		put(128+i*4, g.CameraPosition[i])
		put(144+i*4, g.Direction[i])
	}
	put(140, g.Parallel)
	return buf
}
