package renderer

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-imaging/engine/light"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer/shader"
)

// GPUVolumeParamsSource is the WGSL definition of GPUVolumeParams.
//
//go:embed assets/volume_params.wgsl
var GPUVolumeParamsSource string

// GPUMeshParamsSource is the WGSL definition of GPUMeshParams.
//
//go:embed assets/mesh_params.wgsl
var GPUMeshParamsSource string

// GPUSliceParamsSource is the WGSL definition of GPUSliceParams.
//
//go:embed assets/slice_params.wgsl
var GPUSliceParamsSource string

//go:embed assets/volume.wgsl
var volumeShaderSource string

//go:embed assets/mesh.wgsl
var meshShaderSource string

//go:embed assets/slice.wgsl
var sliceShaderSource string

const (
	shaderKeyVolume = "volume"
	shaderKeyMesh   = "mesh"
	shaderKeySlice  = "slice"
)

// newPreProcessor registers the renderer's uniform structs next to the camera. LightParams is
// included ahead of the structs that embed it.
func newPreProcessor() shader.PreProcessor {
	var v GPUVolumeParams
	var m GPUMeshParams
	var s GPUSliceParams
	var l light.GPULightParams
	return shader.NewPreProcessor(
		shader.WithStruct("light_params", shader.RegistryEntry{Source: light.GPULightParamsSource, Type: "LightParams", Size: uint64(l.Size())}),
		shader.WithStruct("volume_params", shader.RegistryEntry{Source: GPUVolumeParamsSource, Type: "VolumeParams", Size: uint64(v.Size())}),
		shader.WithStruct("mesh_params", shader.RegistryEntry{Source: GPUMeshParamsSource, Type: "MeshParams", Size: uint64(m.Size())}),
		shader.WithStruct("slice_params", shader.RegistryEntry{Source: GPUSliceParamsSource, Type: "SliceParams", Size: uint64(s.Size())}),
	)
}

// loadShaders pre-processes the three render shaders, keyed by shader key.
func loadShaders() (map[string]shader.Shader, error) {
	pp := newPreProcessor()
	out := make(map[string]shader.Shader, 3)
	for key, src := range map[string]string{
		shaderKeyVolume: volumeShaderSource,
		shaderKeyMesh:   meshShaderSource,
		shaderKeySlice:  sliceShaderSource,
	} {
		s, err := shader.NewShader(key, src, pp)
		if err != nil {
			return nil, err
		}
		out[key] = s
	}
	return out, nil
}
