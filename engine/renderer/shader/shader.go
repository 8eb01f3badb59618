package shader

import (
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// VertexEntryPoint is the entry point name every render shader uses for its vertex stage.
	VertexEntryPoint = "vs_main"
	// FragmentEntryPoint is the entry point name every render shader uses for its fragment stage.
	FragmentEntryPoint = "fs_main"
)

// shader is the implementation of the Shader interface.
type shader struct {
	key          string
	source       string
	declarations []Annotation
	sizes        map[int]uint64
}

// Shader is a pre-processed WGSL module holding both a vertex and a fragment stage.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and caching.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// Declarations returns the @oxy:group declarations found in the source.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation

	// BufferLayoutEntries builds the layout entries of the buffers declared for a bind group.
	// Textures and samplers are declared by hand in the shader and appended by the caller.
	//
	// Parameters:
	//   - group: the bind group index
	//   - visibility: the shader stages that read the buffers
	//
	// Returns:
	//   - []wgpu.BindGroupLayoutEntry: one entry per declared buffer, sorted by binding
	BufferLayoutEntries(group int, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry

	// ModuleDescriptor returns the descriptor used to create the GPU shader module.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the descriptor
	ModuleDescriptor() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader pre-processes source with pp.
//
// Parameters:
//   - key: the shader key
//   - source: raw WGSL with @oxy annotations
//   - pp: the pre-processor holding the struct registry
//
// Returns:
//   - Shader: the processed shader
//   - error: an error if pre-processing failed
func NewShader(key, source string, pp PreProcessor) (Shader, error) {
	processed, err := pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	s := &shader{
		key:          key,
		source:       processed,
		declarations: slices.Clone(pp.Declarations()),
		sizes:        make(map[int]uint64),
	}
	for i, d := range s.declarations {
		entry, _ := pp.Entry(d.Args[2])
		s.sizes[i] = entry.Size
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}

func (s *shader) BufferLayoutEntries(group int, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	var entries []wgpu.BindGroupLayoutEntry
	for i, d := range s.declarations {
		if *d.Group != group {
			continue
		}
		bindingType := wgpu.BufferBindingTypeUniform
		if d.Args[0] == annotationArgStorageTypeRead {
			bindingType = wgpu.BufferBindingTypeReadOnlyStorage
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(*d.Binding),
			Visibility: visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type:           bindingType,
				MinBindingSize: s.sizes[i],
			},
		})
	}
	slices.SortFunc(entries, func(a, b wgpu.BindGroupLayoutEntry) int {
		return int(a.Binding) - int(b.Binding)
	})
	return entries
}

func (s *shader) ModuleDescriptor() *wgpu.ShaderModuleDescriptor {
	return &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
}
