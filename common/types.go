// package common contains common types that are used throughout the imaging engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureStagingData holds texel data for a texture binding pending GPU upload.
// This is primarily used in the BindGroupProvider to stage texture data before creating the GPU texture and bind group.
// A Depth greater than one stages a 3D texture.
type TextureStagingData struct {
	// Pixels is the raw texel data, BytesPerTexel bytes per texel in x-fastest order.
	Pixels []byte
	// Width is the width of the texture in texels.
	Width uint32
	// Height is the height of the texture in texels.
	Height uint32
	// Depth is the number of slices; zero and one both mean a 2D texture.
	Depth uint32
	// Format is the GPU texel format, defaulting to RGBA8Unorm.
	Format wgpu.TextureFormat
	// BytesPerTexel is the stride of one texel in Pixels, defaulting to 4.
	BytesPerTexel uint32
}

// Is3D reports whether the staging data describes a volume texture.
func (t *TextureStagingData) Is3D() bool {
	return t.Depth > 1
}

// Validate checks that Pixels holds exactly Width*Height*Depth texels.
//
// Returns:
//   - error: a descriptive error if the staging data is inconsistent
func (t *TextureStagingData) Validate() error {
	depth := Coalesce(t.Depth, 1)
	bpt := Coalesce(t.BytesPerTexel, 4)
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("texture has zero size %dx%dx%d", t.Width, t.Height, depth)
	}
	want := uint64(t.Width) * uint64(t.Height) * uint64(depth) * uint64(bpt)
	if uint64(len(t.Pixels)) != want {
		return fmt.Errorf("texture data has %d bytes, expected %d", len(t.Pixels), want)
	}
	return nil
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// This is primarily used in the BindGroupProvider to stage sampler data before creating the GPU sampler and bind group.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range.
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// ClampedLinearSampler returns the sampler used for volume and transfer-function lookups:
// linear filtering with coordinates clamped to the edge.
func ClampedLinearSampler() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}
