package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/chewxy/math32"
)

// GPULightParamsSource is the WGSL definition of LightParams plus the light_intensity function
// that mirrors GPULightParams.Intensity.
//
//go:embed assets/light_params.wgsl
var GPULightParamsSource string

// GPULightParams is the GPU-aligned lighting block embedded in the mesh and volume uniforms.
// Size: 32 bytes.
type GPULightParams struct {
	Direction     [3]float32 // offset  0: travel direction of a directional light
	Headlight     float32    // offset 12: 1 when the light follows the camera
	Ambient       float32    // offset 16
	Diffuse       float32    // offset 20
	Specular      float32    // offset 24
	SpecularPower float32    // offset 28
}

// Size returns the size of the GPULightParams struct in bytes.
func (g *GPULightParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the params into a 32-byte little-endian buffer.
func (g *GPULightParams) Marshal() []byte {
	buf := make([]byte, 32)
	for i, v := range [...]float32{
		g.Direction[0], g.Direction[1], g.Direction[2], g.Headlight,
		g.Ambient, g.Diffuse, g.Specular, g.SpecularPower,
	} {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Intensity is the two-sided Phong factor for a unit normal seen along view.
// Surfaces lit from behind are shaded like their front face.
//
// Parameters:
//   - normal: the unit surface normal or normalized gradient
//   - view: the unit direction of projection
//
// Returns:
//   - float32: the factor applied to the surface color
func (g GPULightParams) Intensity(normal, view [3]float32) float32 {
	l := common.Scale3(view, -1)
	if g.Headlight == 0 {
		l = common.Scale3(common.Normalize3(g.Direction), -1)
	}
	h := common.Normalize3(common.Sub3(l, view))
	if h == ([3]float32{}) {
		h = l
	}
	intensity := g.Ambient + g.Diffuse*math32.Abs(common.Dot3(normal, l))
	if g.Specular > 0 {
		intensity += g.Specular * math32.Pow(math32.Abs(common.Dot3(normal, h)), g.SpecularPower)
	}
	return intensity
}
