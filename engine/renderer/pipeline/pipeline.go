package pipeline

import (
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PremultipliedAlphaBlend composites fragments whose color is already multiplied by their alpha.
var PremultipliedAlphaBlend = wgpu.BlendState{
	Color: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
	Alpha: wgpu.BlendComponent{
		SrcFactor: wgpu.BlendFactorOne,
		DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
		Operation: wgpu.BlendOperationAdd,
	},
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineKey string

	shader        shader.Shader
	extraEntries  []wgpu.BindGroupLayoutEntry
	vertexLayouts []wgpu.VertexBufferLayout

	// The following fields are GPU allocated resources set by the renderer backend.

	bindGroupLayout *wgpu.BindGroupLayout
	pipelineLayout  *wgpu.PipelineLayout
	renderPipeline  *wgpu.RenderPipeline

	// Render state configuration
	depthTestEnabled  bool
	depthWriteEnabled bool
	blendEnabled      bool
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
	frontFace         wgpu.FrontFace
	writeMask         wgpu.ColorWriteMask
	blendState        *wgpu.BlendState
}

// Pipeline describes one render pipeline: its shader, the single bind group it reads, its vertex
// layout and its fixed-function state. The renderer backend creates the GPU objects from the
// description and stores them back with SetGPU.
type Pipeline interface {
	// PipelineKey retrieves the unique identifier for this pipeline.
	//
	// Returns:
	//   - string: the pipeline's unique key
	PipelineKey() string

	// Shader returns the module holding both the vertex and fragment stage.
	//
	// Returns:
	//   - shader.Shader: the shader
	Shader() shader.Shader

	// LayoutEntries returns the entries of bind group 0: the buffers declared in the shader followed
	// by the texture and sampler entries registered with WithLayoutEntries, sorted by binding.
	//
	// Returns:
	//   - []wgpu.BindGroupLayoutEntry: the entries
	LayoutEntries() []wgpu.BindGroupLayoutEntry

	// VertexLayouts returns the vertex buffer layouts, empty for pipelines that generate vertices.
	//
	// Returns:
	//   - []wgpu.VertexBufferLayout: the layouts
	VertexLayouts() []wgpu.VertexBufferLayout

	// DepthTestEnabled reports whether fragments are depth tested.
	//
	// Returns:
	//   - bool: true if depth testing is enabled
	DepthTestEnabled() bool

	// DepthWriteEnabled reports whether fragments write depth.
	//
	// Returns:
	//   - bool: true if depth writing is enabled
	DepthWriteEnabled() bool

	// BlendEnabled reports whether BlendState is applied to the color target.
	//
	// Returns:
	//   - bool: true if blending is enabled
	BlendEnabled() bool

	// CullMode returns the face culling mode.
	//
	// Returns:
	//   - wgpu.CullMode: the cull mode
	CullMode() wgpu.CullMode

	// Topology returns the primitive topology.
	//
	// Returns:
	//   - wgpu.PrimitiveTopology: the topology
	Topology() wgpu.PrimitiveTopology

	// FrontFace returns the winding order of front faces.
	//
	// Returns:
	//   - wgpu.FrontFace: the front face winding
	FrontFace() wgpu.FrontFace

	// WriteMask returns the color channels written.
	//
	// Returns:
	//   - wgpu.ColorWriteMask: the write mask
	WriteMask() wgpu.ColorWriteMask

	// BlendState returns the blend state used when BlendEnabled is true.
	//
	// Returns:
	//   - *wgpu.BlendState: the blend state
	BlendState() *wgpu.BlendState

	// BindGroupLayout returns the GPU layout of bind group 0, or nil before SetGPU.
	//
	// Returns:
	//   - *wgpu.BindGroupLayout: the layout or nil
	BindGroupLayout() *wgpu.BindGroupLayout

	// RenderPipeline returns the GPU pipeline, or nil before SetGPU.
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the pipeline or nil
	RenderPipeline() *wgpu.RenderPipeline

	// SetGPU stores the GPU objects created from this description.
	//
	// Parameters:
	//   - bgl: the bind group layout
	//   - pl: the pipeline layout
	//   - rp: the render pipeline
	SetGPU(bgl *wgpu.BindGroupLayout, pl *wgpu.PipelineLayout, rp *wgpu.RenderPipeline)

	// Release frees the GPU objects. It is safe to call more than once.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a render pipeline description for s with depth testing and writing on,
// blending off, no culling and a triangle list topology.
//
// Parameters:
//   - pipelineKey: the unique identifier for this pipeline
//   - s: the shader holding vs_main and fs_main
//   - opts: a variadic list of PipelineBuilderOption to configure the pipeline
//
// Returns:
//   - Pipeline: the description
func NewPipeline(pipelineKey string, s shader.Shader, opts ...PipelineBuilderOption) Pipeline {
	blend := PremultipliedAlphaBlend
	p := &pipeline{
		pipelineKey:       pipelineKey,
		shader:            s,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		blendEnabled:      false,
		cullMode:          wgpu.CullModeNone,
		topology:          wgpu.PrimitiveTopologyTriangleList,
		frontFace:         wgpu.FrontFaceCCW,
		writeMask:         wgpu.ColorWriteMaskAll,
		blendState:        &blend,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) LayoutEntries() []wgpu.BindGroupLayoutEntry {
	entries := p.shader.BufferLayoutEntries(0, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment)
	entries = append(entries, p.extraEntries...)
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Binding < entries[j-1].Binding; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries
}

func (p *pipeline) VertexLayouts() []wgpu.VertexBufferLayout {
	return p.vertexLayouts
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() wgpu.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) BlendState() *wgpu.BlendState {
	return p.blendState
}

func (p *pipeline) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *pipeline) RenderPipeline() *wgpu.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) SetGPU(bgl *wgpu.BindGroupLayout, pl *wgpu.PipelineLayout, rp *wgpu.RenderPipeline) {
	p.bindGroupLayout = bgl
	p.pipelineLayout = pl
	p.renderPipeline = rp
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
		p.pipelineLayout = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}
