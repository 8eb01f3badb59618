package renderer

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-imaging/common"
	"github.com/Carmen-Shannon/oxy-imaging/engine/camera"
	"github.com/Carmen-Shannon/oxy-imaging/engine/model"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-imaging/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// Bind group 0 layout shared by the three shaders.
const (
	bindingCamera  = 0
	bindingParams  = 1
	bindingVolume  = 2
	bindingLUT     = 3
	bindingSampler = 4
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat        wgpu.TextureFormat
	msaaTexture          *wgpu.Texture
	msaaTextureView      *wgpu.TextureView
	depthTexture         *wgpu.Texture
	depthTextureView     *wgpu.TextureView
	renderPassDescriptor *wgpu.RenderPassDescriptor

	presentMode wgpu.PresentMode
	sampleCount MSAASampleCount

	pipelines  map[string]pipeline.Pipeline
	lutSampler *wgpu.Sampler
	released   bool
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// wgpuResource is the device-side state of one actor input.
type wgpuResource struct {
	provider bind_group_provider.BindGroupProvider
}

func (r *wgpuResource) Release() {
	r.provider.Release()
}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, sampleCount MSAASampleCount, mode PresentMode) (RendererBackend, error) {
	if surfaceDescriptor == nil {
		return nil, errors.New("wgpu backend requires a surface descriptor")
	}
	runtime.LockOSThread()

	b := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		sampleCount: common.Coalesce(sampleCount, MSAA4x),
		pipelines:   make(map[string]pipeline.Pipeline, 3),
	}
	if mode == PresentModeUncapped {
		b.presentMode = wgpu.PresentModeImmediate
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 {
		b.Release()
		return nil, errors.New("surface reports no supported formats")
	}
	b.surfaceFormat = capabilities.Formats[0]

	sd := common.ClampedLinearSampler()
	b.lutSampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "LUT Sampler",
		AddressModeU:  sd.AddressModeU,
		AddressModeV:  sd.AddressModeV,
		AddressModeW:  sd.AddressModeW,
		MagFilter:     sd.MagFilter,
		MinFilter:     sd.MinFilter,
		MipmapFilter:  sd.MipmapFilter,
		LodMinClamp:   sd.LodMinClamp,
		LodMaxClamp:   sd.LodMaxClamp,
		MaxAnisotropy: sd.MaxAnisotropy,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	if err := b.registerPipelines(); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

// registerPipelines describes and compiles the mesh, volume and slice pipelines.
func (b *wgpuRendererBackendImpl) registerPipelines() error {
	shaders, err := loadShaders()
	if err != nil {
		return fmt.Errorf("failed to load shaders: %w", err)
	}

	var vertex model.GPUVertex
	volumeTexture := wgpu.BindGroupLayoutEntry{
		Binding:    bindingVolume,
		Visibility: wgpu.ShaderStageFragment,
		Texture: wgpu.TextureBindingLayout{
			SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
			ViewDimension: wgpu.TextureViewDimension3D,
		},
	}
	descs := []pipeline.Pipeline{
		pipeline.NewPipeline(shaderKeyMesh, shaders[shaderKeyMesh],
			pipeline.WithVertexLayouts(wgpu.VertexBufferLayout{
				ArrayStride: uint64(vertex.Size()),
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
				},
			}),
			pipeline.WithBlendEnabled(true),
		),
		pipeline.NewPipeline(shaderKeyVolume, shaders[shaderKeyVolume],
			pipeline.WithLayoutEntries(
				volumeTexture,
				wgpu.BindGroupLayoutEntry{
					Binding:    bindingLUT,
					Visibility: wgpu.ShaderStageFragment,
					Texture: wgpu.TextureBindingLayout{
						SampleType:    wgpu.TextureSampleTypeFloat,
						ViewDimension: wgpu.TextureViewDimension2D,
					},
				},
				wgpu.BindGroupLayoutEntry{
					Binding:    bindingSampler,
					Visibility: wgpu.ShaderStageFragment,
					Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
				},
			),
			pipeline.WithDepthTestEnabled(false),
			pipeline.WithDepthWriteEnabled(false),
			pipeline.WithBlendEnabled(true),
		),
		pipeline.NewPipeline(shaderKeySlice, shaders[shaderKeySlice],
			pipeline.WithLayoutEntries(volumeTexture),
			pipeline.WithDepthTestEnabled(false),
			pipeline.WithDepthWriteEnabled(false),
		),
	}
	for _, p := range descs {
		if err := b.registerRenderPipeline(p); err != nil {
			return fmt.Errorf("failed to create %s pipeline: %w", p.PipelineKey(), err)
		}
		b.pipelines[p.PipelineKey()] = p
	}
	return nil
}

func (b *wgpuRendererBackendImpl) registerRenderPipeline(p pipeline.Pipeline) error {
	module, err := b.device.CreateShaderModule(p.Shader().ModuleDescriptor())
	if err != nil {
		return err
	}
	defer module.Release()

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   p.PipelineKey() + " Bind Group Layout",
		Entries: p.LayoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}
	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return err
	}

	target := wgpu.ColorTargetState{
		Format:    b.surfaceFormat,
		WriteMask: p.WriteMask(),
	}
	if p.BlendEnabled() {
		target.Blend = p.BlendState()
	}
	depthCompare := wgpu.CompareFunctionLess
	if !p.DepthTestEnabled() {
		depthCompare = wgpu.CompareFunctionAlways
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: shader.VertexEntryPoint,
			Buffers:    p.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: shader.FragmentEntryPoint,
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: uint32(b.sampleCount),
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: p.DepthWriteEnabled(),
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		},
	})
	if err != nil {
		pipelineLayout.Release()
		layout.Release()
		return err
	}

	p.SetGPU(layout, pipelineLayout, created)
	return nil
}

func (b *wgpuRendererBackendImpl) Configure(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	if b.released {
		return ErrReleased
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	b.releaseTargetsLocked()

	count := uint32(b.sampleCount)
	msaaEnabled := count > 1
	size := wgpu.Extent3D{
		Width:              uint32(width),
		Height:             uint32(height),
		DepthOrArrayLayers: 1,
	}

	var err error
	if msaaEnabled {
		// the pass draws here and resolves into the swapchain view
		b.msaaTexture, err = b.device.CreateTexture(&wgpu.TextureDescriptor{
			Label:         "MSAA Texture",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   count,
			Dimension:     wgpu.TextureDimension2D,
			Format:        b.surfaceFormat,
			Usage:         wgpu.TextureUsageRenderAttachment,
		})
		if err != nil {
			return fmt.Errorf("failed to create msaa texture: %w", err)
		}
		b.msaaTextureView, err = b.msaaTexture.CreateView(nil)
		if err != nil {
			return fmt.Errorf("failed to create msaa view: %w", err)
		}
	}

	b.depthTexture, err = b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   count,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("failed to create depth texture: %w", err)
	}
	b.depthTextureView, err = b.depthTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create depth view: %w", err)
	}

	storeOp := wgpu.StoreOpStore
	if msaaEnabled {
		storeOp = wgpu.StoreOpDiscard
	}
	b.renderPassDescriptor = &wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    b.msaaTextureView, // nil when MSAA is off; set per frame
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: storeOp,
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            b.depthTextureView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	}
	return nil
}

func (b *wgpuRendererBackendImpl) releaseTargetsLocked() {
	if b.msaaTextureView != nil {
		b.msaaTextureView.Release()
		b.msaaTextureView = nil
	}
	if b.msaaTexture != nil {
		b.msaaTexture.Release()
		b.msaaTexture = nil
	}
	if b.depthTextureView != nil {
		b.depthTextureView.Release()
		b.depthTextureView = nil
	}
	if b.depthTexture != nil {
		b.depthTexture.Release()
		b.depthTexture = nil
	}
}

func (b *wgpuRendererBackendImpl) UploadVolume(label string, vol *model.Volume, lut []byte) (gpuResource, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	if len(lut) != LUTSize*4 {
		return nil, fmt.Errorf("transfer function has %d bytes, expected %d", len(lut), LUTSize*4)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}

	var params GPUVolumeParams
	provider := bind_group_provider.NewBindGroupProvider(label)
	if err := b.initUniformsLocked(provider, params.Size()); err != nil {
		provider.Release()
		return nil, err
	}
	if err := b.initScalarTextureLocked(provider, vol); err != nil {
		provider.Release()
		return nil, err
	}
	if err := b.initTextureLocked(provider, bindingLUT, common.TextureStagingData{
		Pixels: lut,
		Width:  LUTSize,
		Height: 1,
		Format: wgpu.TextureFormatRGBA8Unorm,
	}); err != nil {
		provider.Release()
		return nil, err
	}
	if err := b.initBindGroupLocked(provider, b.pipelines[shaderKeyVolume]); err != nil {
		provider.Release()
		return nil, err
	}
	return &wgpuResource{provider: provider}, nil
}

func (b *wgpuRendererBackendImpl) UploadMesh(label string, mesh *model.Mesh) (gpuResource, error) {
	if mesh == nil || mesh.TriangleCount() == 0 {
		return nil, errors.New("mesh has no triangles")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}

	var params GPUMeshParams
	provider := bind_group_provider.NewBindGroupProvider(label)
	if err := b.initUniformsLocked(provider, params.Size()); err != nil {
		provider.Release()
		return nil, err
	}

	vertexData := model.MarshalVertices(mesh.Vertices())
	vbuf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Vertex Buffer",
		Size:  uint64(len(vertexData)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		provider.Release()
		return nil, err
	}
	b.queue.WriteBuffer(vbuf, 0, vertexData)
	provider.SetVertexBuffer(vbuf)

	indexData := common.SliceToBytes(mesh.Indices)
	ibuf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label + " Index Buffer",
		Size:  uint64(len(indexData)),
		Usage: wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		provider.Release()
		return nil, err
	}
	b.queue.WriteBuffer(ibuf, 0, indexData)
	provider.SetIndexBuffer(ibuf)
	provider.SetIndexCount(len(mesh.Indices))

	if err := b.initBindGroupLocked(provider, b.pipelines[shaderKeyMesh]); err != nil {
		provider.Release()
		return nil, err
	}
	return &wgpuResource{provider: provider}, nil
}

func (b *wgpuRendererBackendImpl) UploadSlice(label string, vol *model.Volume) (gpuResource, error) {
	if err := checkVolume(vol); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}

	var params GPUSliceParams
	provider := bind_group_provider.NewBindGroupProvider(label)
	if err := b.initUniformsLocked(provider, params.Size()); err != nil {
		provider.Release()
		return nil, err
	}
	if err := b.initScalarTextureLocked(provider, vol); err != nil {
		provider.Release()
		return nil, err
	}
	if err := b.initBindGroupLocked(provider, b.pipelines[shaderKeySlice]); err != nil {
		provider.Release()
		return nil, err
	}
	return &wgpuResource{provider: provider}, nil
}

// initUniformsLocked creates the camera and params uniform buffers of provider.
func (b *wgpuRendererBackendImpl) initUniformsLocked(provider bind_group_provider.BindGroupProvider, paramsSize int) error {
	var cam camera.GPUCameraUniform
	sizes := map[int]uint64{
		bindingCamera: uint64(cam.Size()),
		bindingParams: uint64(paramsSize),
	}
	for binding, size := range sizes {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("%s Buffer %d", provider.Label(), binding),
			Size:  size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("failed to create uniform buffer: %w", err)
		}
		provider.SetBuffer(binding, buf)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) initScalarTextureLocked(provider bind_group_provider.BindGroupProvider, vol *model.Volume) error {
	dims := vol.Dimensions()
	return b.initTextureLocked(provider, bindingVolume, common.TextureStagingData{
		Pixels: common.SliceToBytes(vol.Scalars),
		Width:  uint32(dims[0]),
		Height: uint32(dims[1]),
		Depth:  uint32(dims[2]),
		Format: wgpu.TextureFormatR32Float,
	})
}

func (b *wgpuRendererBackendImpl) initTextureLocked(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error {
	if err := stagingData.Validate(); err != nil {
		return err
	}
	depth := common.Coalesce(stagingData.Depth, 1)
	bytesPerTexel := common.Coalesce(stagingData.BytesPerTexel, 4)
	dimension := wgpu.TextureDimension2D
	if stagingData.Is3D() {
		dimension = wgpu.TextureDimension3D
	}
	extent := wgpu.Extent3D{
		Width:              stagingData.Width,
		Height:             stagingData.Height,
		DepthOrArrayLayers: depth,
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         fmt.Sprintf("%s Texture %d", provider.Label(), binding),
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     dimension,
		Size:          extent,
		Format:        common.Coalesce(stagingData.Format, wgpu.TextureFormatRGBA8Unorm),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to create texture: %w", err)
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  stagingData.Width * bytesPerTexel,
			RowsPerImage: stagingData.Height,
		},
		&extent,
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return fmt.Errorf("failed to create texture view: %w", err)
	}
	provider.SetTexture(binding, tex, view)
	return nil
}

func (b *wgpuRendererBackendImpl) initBindGroupLocked(provider bind_group_provider.BindGroupProvider, p pipeline.Pipeline) error {
	layoutEntries := p.LayoutEntries()
	entries := make([]wgpu.BindGroupEntry, 0, len(layoutEntries))
	for _, entry := range layoutEntries {
		binding := int(entry.Binding)
		switch {
		case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
			tv := provider.TextureView(binding)
			if tv == nil {
				return fmt.Errorf("texture binding %d has no texture view", binding)
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: entry.Binding, TextureView: tv})
		case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			// the sampler is shared and owned by the backend
			entries = append(entries, wgpu.BindGroupEntry{Binding: entry.Binding, Sampler: b.lutSampler})
		default:
			buf := provider.Buffer(binding)
			if buf == nil {
				return fmt.Errorf("buffer binding %d has no buffer", binding)
			}
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			})
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  p.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}
	provider.SetBindGroup(bindGroup)
	return nil
}

func (b *wgpuRendererBackendImpl) Draw(f *frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}
	if b.renderPassDescriptor == nil {
		return errors.New("surface is not configured")
	}

	cameraData := f.camera.Marshal()
	writes := make([]bind_group_provider.BufferWrite, 0, 2*(len(f.meshes)+len(f.volumes)+len(f.slices)))
	stage := func(res gpuResource, params []byte) {
		provider := res.(*wgpuResource).provider
		writes = append(writes,
			bind_group_provider.BufferWrite{Provider: provider, Binding: bindingCamera, Data: cameraData},
			bind_group_provider.BufferWrite{Provider: provider, Binding: bindingParams, Data: params},
		)
	}
	for i := range f.meshes {
		stage(f.meshes[i].resource, f.meshes[i].params.Marshal())
	}
	for i := range f.volumes {
		stage(f.volumes[i].resource, f.volumes[i].params.Marshal())
	}
	for i := range f.slices {
		stage(f.slices[i].resource, f.slices[i].params.Marshal())
	}
	for _, w := range writes {
		if w.Empty() {
			continue
		}
		if buf := w.Provider.Buffer(w.Binding); buf != nil {
			b.queue.WriteBuffer(buf, w.Offset, w.Data)
		}
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("failed to acquire surface texture: %w", err)
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	attachment := &b.renderPassDescriptor.ColorAttachments[0]
	if b.sampleCount > 1 {
		attachment.ResolveTarget = view
	} else {
		attachment.View = view
	}
	attachment.ClearValue = wgpu.Color{
		R: float64(f.background[0]),
		G: float64(f.background[1]),
		B: float64(f.background[2]),
		A: 1,
	}

	pass := encoder.BeginRenderPass(b.renderPassDescriptor)
	if len(f.meshes) > 0 {
		pass.SetPipeline(b.pipelines[shaderKeyMesh].RenderPipeline())
		for _, m := range f.meshes {
			provider := m.resource.(*wgpuResource).provider
			pass.SetBindGroup(0, provider.BindGroup(), nil)
			pass.SetVertexBuffer(0, provider.VertexBuffer(), 0, wgpu.WholeSize)
			pass.SetIndexBuffer(provider.IndexBuffer(), wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
			pass.DrawIndexed(uint32(provider.IndexCount()), 1, 0, 0, 0)
		}
	}
	if len(f.volumes) > 0 {
		pass.SetPipeline(b.pipelines[shaderKeyVolume].RenderPipeline())
		for _, v := range f.volumes {
			pass.SetBindGroup(0, v.resource.(*wgpuResource).provider.BindGroup(), nil)
			pass.Draw(3, 1, 0, 0)
		}
	}
	if len(f.slices) > 0 {
		pass.SetPipeline(b.pipelines[shaderKeySlice].RenderPipeline())
		for _, s := range f.slices {
			pass.SetBindGroup(0, s.resource.(*wgpuResource).provider.BindGroup(), nil)
			pass.Draw(6, 1, 0, 0)
		}
	}
	pass.End()
	pass.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackendImpl) Capture() (*image.RGBA, error) {
	return nil, ErrCaptureUnsupported
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}
	b.released = true

	for key, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, key)
	}
	if b.lutSampler != nil {
		b.lutSampler.Release()
		b.lutSampler = nil
	}
	b.releaseTargetsLocked()
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	runtime.UnlockOSThread()
}
