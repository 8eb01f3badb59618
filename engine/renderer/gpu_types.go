package renderer

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
)

// GPUVolumeParams is the per-volume uniform of the ray-march pipeline.
// Matches the WGSL VolumeParams struct in assets/volume.wgsl.
// Size: 96 bytes.
type GPUVolumeParams struct {
	Origin         [3]float32           // offset  0: world position of the first voxel
	SampleDistance float32              // offset 12: ray step in world units
	Spacing        [3]float32           // offset 16: voxel size per axis
	ScalarMin      float32              // offset 28: lower end of the LUT range
	Dimensions     [3]float32           // offset 32: voxel count per axis
	ScalarMax      float32              // offset 44: upper end of the LUT range
	GradientRange  [2]float32           // offset 48: gradient opacity ramp
	Shade          float32              // offset 56: 1 enables gradient shading
	_              float32              // offset 60: padding
	Light          light.GPULightParams // offset 64: gradient shading light
}

// Size returns the size of the GPUVolumeParams struct in bytes.
func (g *GPUVolumeParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the params into a 96-byte little-endian buffer.
func (g *GPUVolumeParams) Marshal() []byte {
	buf := putFloats(make([]byte, 96),
		g.Origin[0], g.Origin[1], g.Origin[2], g.SampleDistance,
		g.Spacing[0], g.Spacing[1], g.Spacing[2], g.ScalarMin,
		g.Dimensions[0], g.Dimensions[1], g.Dimensions[2], g.ScalarMax,
		g.GradientRange[0], g.GradientRange[1], g.Shade, 0,
	)
	copy(buf[64:], g.Light.Marshal())
	return buf
}

// GPUMeshParams is the per-mesh uniform of the surface pipeline.
// Size: 48 bytes.
type GPUMeshParams struct {
	Color   [3]float32           // offset  0: surface color
	Opacity float32              // offset 12: surface opacity
	Light   light.GPULightParams // offset 16: surface light
}

// Size returns the size of the GPUMeshParams struct in bytes.
func (g *GPUMeshParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the params into a 48-byte little-endian buffer.
func (g *GPUMeshParams) Marshal() []byte {
	buf := putFloats(make([]byte, 48), g.Color[0], g.Color[1], g.Color[2], g.Opacity)
	copy(buf[16:], g.Light.Marshal())
	return buf
}

// GPUSliceParams is the per-slice uniform of the reslice pipeline.
// Matches the WGSL SliceParams struct in assets/slice.wgsl.
// Size: 64 bytes.
type GPUSliceParams struct {
	Origin     [3]float32 // offset  0: world position of the first voxel
	Axis       uint32     // offset 12: 0 i, 1 j, 2 k
	Spacing    [3]float32 // offset 16: voxel size per axis
	Layer      float32    // offset 28: slice index relative to the extent minimum
	Dimensions [3]float32 // offset 32: voxel count per axis
	Window     float32    // offset 44: color window
	Level      float32    // offset 48: color level
	_          [3]float32 // offset 52: padding
}

// Size returns the size of the GPUSliceParams struct in bytes.
func (g *GPUSliceParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the params into a 64-byte little-endian buffer.
func (g *GPUSliceParams) Marshal() []byte {
	buf := putFloats(make([]byte, 64),
		g.Origin[0], g.Origin[1], g.Origin[2], 0,
		g.Spacing[0], g.Spacing[1], g.Spacing[2], g.Layer,
		g.Dimensions[0], g.Dimensions[1], g.Dimensions[2], g.Window,
		g.Level,
	)
	binary.LittleEndian.PutUint32(buf[12:], g.Axis)
	return buf
}

// gridOrigin returns the world position of the first voxel of vol.
func gridOrigin(vol *model.Volume) [3]float32 {
	e := vol.Extent
	return vol.WorldPoint(float32(e[0]), float32(e[2]), float32(e[4]))
}

// gridDimensions returns the voxel counts of vol as floats.
func gridDimensions(vol *model.Volume) [3]float32 {
	d := vol.Dimensions()
	return [3]float32{float32(d[0]), float32(d[1]), float32(d[2])}
}

func putFloats(buf []byte, values ...float32) []byte {
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
