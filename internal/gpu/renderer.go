package gpu

import (
	"fmt"
	"time"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"tileview/internal/camera"
	"tileview/internal/config"
	"tileview/internal/logging"
	"tileview/internal/raster"
	"tileview/internal/renderer"
	"tileview/internal/scene"
	"tileview/internal/texture"
)

// layeredTexture holds GPU resources for one texture and its view
type layeredTexture struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
}

func (t *layeredTexture) release() {
	if t == nil {
		return
	}
	t.View.Release()
	t.Texture.Release()
}

// geometry is an uploaded vertex and index buffer pair.
type geometry struct {
	vertices *wgpu.Buffer
	indices  *wgpu.Buffer
	count    uint32
}

func (g *geometry) release() {
	if g == nil {
		return
	}
	g.vertices.Release()
	g.indices.Release()
}

// Renderer draws a scene with the map and text pipelines
type Renderer struct {
	device          *wgpu.Device
	queue           *wgpu.Queue
	surface         *wgpu.Surface
	adapter         *wgpu.Adapter
	swapChain       *wgpu.SwapChain
	swapChainFormat wgpu.TextureFormat
	depth           *layeredTexture

	mapPipeline  *wgpu.RenderPipeline
	textPipeline *wgpu.RenderPipeline
	sampler      *wgpu.Sampler
	layouts      []*wgpu.BindGroupLayout
	bindGroups   []*wgpu.BindGroup

	mapCamera, mapAtlas, mapIndex *wgpu.BindGroup
	textFrame, textGlyphs         *wgpu.BindGroup

	cameraBuffer  *wgpu.Buffer
	globalsBuffer *wgpu.Buffer

	tileIndex, atlas, glyphs *layeredTexture
	mapGeometry              *geometry
	textGeometry             *geometry

	scene     *scene.Scene
	mapState  raster.State
	textState raster.State
	clear     wgpu.Color
	start     time.Time

	width  uint32
	height uint32
}

// NewRenderer uploads sc and builds both pipelines.
func NewRenderer(adapter *wgpu.Adapter, device *wgpu.Device, queue *wgpu.Queue, surface *wgpu.Surface, width, height uint32, cfg *config.Config, sc *scene.Scene) (*Renderer, error) {
	c := cfg.Rendering.ClearColor
	r := &Renderer{
		adapter:   adapter,
		device:    device,
		queue:     queue,
		surface:   surface,
		width:     width,
		height:    height,
		scene:     sc,
		mapState:  renderer.MapState(cfg.Rendering.DepthTest),
		textState: renderer.TextState(cfg.Rendering.DepthTest),
		clear:     wgpu.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		start:     time.Now(),
	}

	if err := r.init(cfg.Sampler()); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init(s texture.Sampler) error {
	r.swapChainFormat = r.surface.GetPreferredFormat(r.adapter)
	if err := r.createSwapChain(); err != nil {
		return err
	}

	// Sources are validated with naga before any module is created.
	for _, src := range renderer.Shaders() {
		if _, err := renderer.CompileSPIRV(src.WGSL); err != nil {
			return fmt.Errorf("%s shader: %w", src.Name, err)
		}
	}

	var err error
	r.sampler, err = r.device.CreateSampler(&wgpu.SamplerDescriptor{
		AddressModeU:   wgpu.AddressMode_ClampToEdge,
		AddressModeV:   wgpu.AddressMode_ClampToEdge,
		AddressModeW:   wgpu.AddressMode_ClampToEdge,
		MagFilter:      filterMode(s.Filter),
		MinFilter:      filterMode(s.Filter),
		MipmapFilter:   wgpu.MipmapFilterMode_Nearest,
		MaxAnisotrophy: 1,
	})
	if err != nil {
		return fmt.Errorf("sampler creation failed: %w", err)
	}

	r.cameraBuffer, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "camera_uniform",
		Size:  camera.UniformSize,
		Usage: wgpu.BufferUsage_Uniform | wgpu.BufferUsage_CopyDst,
	})
	if err != nil {
		return fmt.Errorf("camera buffer creation failed: %w", err)
	}
	r.globalsBuffer, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "globals_uniform",
		Size:  renderer.GlobalsSize,
		Usage: wgpu.BufferUsage_Uniform | wgpu.BufferUsage_CopyDst,
	})
	if err != nil {
		return fmt.Errorf("globals buffer creation failed: %w", err)
	}

	if err := r.uploadTextures(); err != nil {
		return err
	}

	entries := layoutEntries()
	mapLayouts, err := r.createLayouts("map", entries.mapCamera, entries.atlas, entries.tileIndex)
	if err != nil {
		return err
	}
	textLayouts, err := r.createLayouts("text", entries.textFrame, entries.glyphs)
	if err != nil {
		return err
	}

	r.mapPipeline, err = r.createPipeline("map", renderer.MapShader, mapLayouts, mapVertexLayout(), r.mapState)
	if err != nil {
		return err
	}
	r.textPipeline, err = r.createPipeline("text", renderer.TextShader, textLayouts, textVertexLayout(), r.textState)
	if err != nil {
		return err
	}

	if r.mapCamera, err = r.createBindGroup("map_camera", mapLayouts[0], []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: r.cameraBuffer, Size: camera.UniformSize},
	}); err != nil {
		return err
	}
	if r.mapAtlas, err = r.createBindGroup("map_atlas", mapLayouts[1], []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: r.atlas.View},
		{Binding: 1, Sampler: r.sampler},
	}); err != nil {
		return err
	}
	if r.mapIndex, err = r.createBindGroup("map_tile_index", mapLayouts[2], []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: r.tileIndex.View},
	}); err != nil {
		return err
	}
	if r.textFrame, err = r.createBindGroup("text_frame", textLayouts[0], []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: r.cameraBuffer, Size: camera.UniformSize},
		{Binding: 1, Buffer: r.globalsBuffer, Size: renderer.GlobalsSize},
	}); err != nil {
		return err
	}
	if r.textGlyphs, err = r.createBindGroup("text_glyphs", textLayouts[1], []wgpu.BindGroupEntry{
		{Binding: 0, TextureView: r.glyphs.View},
		{Binding: 1, Sampler: r.sampler},
	}); err != nil {
		return err
	}

	if r.mapGeometry, err = uploadGeometry(r.device, "map", r.scene.MapVertices, r.scene.MapIndices); err != nil {
		return err
	}
	if r.textGeometry, err = uploadGeometry(r.device, "text", r.scene.TextVertices, r.scene.TextIndices); err != nil {
		return err
	}
	return nil
}

func (r *Renderer) createSwapChain() error {
	var err error
	r.swapChain, err = r.device.CreateSwapChain(r.surface, &wgpu.SwapChainDescriptor{
		Usage:       wgpu.TextureUsage_RenderAttachment,
		Format:      r.swapChainFormat,
		Width:       r.width,
		Height:      r.height,
		PresentMode: wgpu.PresentMode_Fifo,
	})
	if err != nil {
		return fmt.Errorf("swap chain creation failed: %w", err)
	}

	r.depth.release()
	r.depth, err = r.createTexture("depth", DepthFormat, wgpu.TextureViewDimension_2D,
		r.width, r.height, 1, wgpu.TextureUsage_RenderAttachment)
	if err != nil {
		return fmt.Errorf("depth texture creation failed: %w", err)
	}
	return nil
}

func (r *Renderer) createLayouts(name string, groups ...[]wgpu.BindGroupLayoutEntry) ([]*wgpu.BindGroupLayout, error) {
	out := make([]*wgpu.BindGroupLayout, 0, len(groups))
	for i, entries := range groups {
		l, err := r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_bind_group_layout_%d", name, i),
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("%s bind group layout %d creation failed: %w", name, i, err)
		}
		r.layouts = append(r.layouts, l)
		out = append(out, l)
	}
	return out, nil
}

func (r *Renderer) createBindGroup(label string, layout *wgpu.BindGroupLayout, entries []wgpu.BindGroupEntry) (*wgpu.BindGroup, error) {
	bg, err := r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%s bind group creation failed: %w", label, err)
	}
	r.bindGroups = append(r.bindGroups, bg)
	return bg, nil
}

func (r *Renderer) createPipeline(name, code string, layouts []*wgpu.BindGroupLayout, vertex wgpu.VertexBufferLayout, st raster.State) (*wgpu.RenderPipeline, error) {
	shader, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name + "_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("%s shader creation failed: %w", name, err)
	}
	defer shader.Release()

	pipelineLayout, err := r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            name + "_pipeline_layout",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, fmt.Errorf("%s pipeline layout creation failed: %w", name, err)
	}
	defer pipelineLayout.Release()

	p, err := r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  name + "_pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: renderer.VertexEntry,
			Buffers:    []wgpu.VertexBufferLayout{vertex},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: renderer.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    r.swapChainFormat,
				Blend:     blendState(st),
				WriteMask: wgpu.ColorWriteMask_All,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopology_TriangleList,
			CullMode: wgpu.CullMode_None,
		},
		DepthStencil: depthState(st),
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s pipeline creation failed: %w", name, err)
	}
	return p, nil
}

func (r *Renderer) createTexture(label string, format wgpu.TextureFormat, dim wgpu.TextureViewDimension, w, h, layers uint32, usage wgpu.TextureUsage) (*layeredTexture, error) {
	tex, err := r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: layers,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension_2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          format,
		Dimension:       dim,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: layers,
		Aspect:          wgpu.TextureAspect_All,
	})
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &layeredTexture{Texture: tex, View: view}, nil
}

func (r *Renderer) uploadTextures() error {
	idx := r.scene.TileIndex
	var err error
	r.tileIndex, err = r.createTexture("tile_index", wgpu.TextureFormat_RGBA32Uint, wgpu.TextureViewDimension_2D,
		uint32(idx.Width), uint32(idx.Height), 1, wgpu.TextureUsage_TextureBinding|wgpu.TextureUsage_CopyDst)
	if err != nil {
		return fmt.Errorf("tile index texture creation failed: %w", err)
	}
	r.writeLayer(r.tileIndex.Texture, 0, uintTexels(idx), uint32(idx.Width)*16, uint32(idx.Width), uint32(idx.Height))

	if r.atlas, err = r.uploadArray("atlas", ColorAtlasFormat, r.scene.Atlas); err != nil {
		return err
	}
	if r.glyphs, err = r.uploadArray("glyph_atlas", GlyphAtlasFormat, r.scene.GlyphAtlas); err != nil {
		return err
	}
	return nil
}

func (r *Renderer) uploadArray(label string, format wgpu.TextureFormat, a *texture.Array) (*layeredTexture, error) {
	w, h := a.Dimensions()
	t, err := r.createTexture(label, format, wgpu.TextureViewDimension_2DArray,
		w, h, uint32(a.Layers()), wgpu.TextureUsage_TextureBinding|wgpu.TextureUsage_CopyDst)
	if err != nil {
		return nil, fmt.Errorf("%s texture creation failed: %w", label, err)
	}
	for i := 0; i < a.Layers(); i++ {
		img := a.Layer(i)
		r.writeLayer(t.Texture, uint32(i), img.Pix, uint32(img.Stride), w, h)
	}
	logging.Logger().Debug("texture uploaded", "label", label, "width", w, "height", h, "layers", a.Layers())
	return t, nil
}

func (r *Renderer) writeLayer(tex *wgpu.Texture, layer uint32, data []byte, bytesPerRow, w, h uint32) {
	r.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex, MipLevel: 0, Origin: wgpu.Origin3D{Z: layer}, Aspect: wgpu.TextureAspect_All},
		data,
		&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: h},
		&wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

func uploadGeometry[V any](device *wgpu.Device, label string, vertices []V, indices []uint32) (*geometry, error) {
	if len(indices) == 0 || len(vertices) == 0 {
		return nil, nil
	}
	vb, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label + "_vertex_buffer",
		Contents: wgpu.ToBytes(vertices),
		Usage:    wgpu.BufferUsage_Vertex,
	})
	if err != nil {
		return nil, fmt.Errorf("%s vertex buffer creation failed: %w", label, err)
	}
	ib, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    label + "_index_buffer",
		Contents: wgpu.ToBytes(indices),
		Usage:    wgpu.BufferUsage_Index,
	})
	if err != nil {
		vb.Release()
		return nil, fmt.Errorf("%s index buffer creation failed: %w", label, err)
	}
	return &geometry{vertices: vb, indices: ib, count: uint32(len(indices))}, nil
}

// Render draws the map then the text into the next swap chain image
func (r *Renderer) Render() error {
	view, err := r.swapChain.GetCurrentTextureView()
	if err != nil {
		return err
	}
	defer view.Release()

	r.queue.WriteBuffer(r.cameraBuffer, 0, r.scene.Map.Camera.Bytes())
	globals := renderer.Globals{
		ScreenResolution: [2]float32{float32(r.width), float32(r.height)},
		Time:             float32(time.Since(r.start).Seconds()),
	}
	r.queue.WriteBuffer(r.globalsBuffer, 0, globals.Bytes())

	encoder, err := r.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{})
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOp_Clear,
			StoreOp:    wgpu.StoreOp_Store,
			ClearValue: r.clear,
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depth.View,
			DepthLoadOp:     wgpu.LoadOp_Clear,
			DepthStoreOp:    wgpu.StoreOp_Store,
			DepthClearValue: 1,
		},
	})

	if g := r.mapGeometry; g != nil {
		pass.SetPipeline(r.mapPipeline)
		pass.SetBindGroup(0, r.mapCamera, nil)
		pass.SetBindGroup(1, r.mapAtlas, nil)
		pass.SetBindGroup(2, r.mapIndex, nil)
		pass.SetVertexBuffer(0, g.vertices, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(g.indices, wgpu.IndexFormat_Uint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(g.count, 1, 0, 0, 0)
	}
	if g := r.textGeometry; g != nil {
		pass.SetPipeline(r.textPipeline)
		pass.SetBindGroup(0, r.textFrame, nil)
		pass.SetBindGroup(1, r.textGlyphs, nil)
		pass.SetVertexBuffer(0, g.vertices, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(g.indices, wgpu.IndexFormat_Uint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(g.count, 1, 0, 0, 0)
	}

	pass.End()

	cmdBuffer, err := encoder.Finish(&wgpu.CommandBufferDescriptor{})
	if err != nil {
		return err
	}
	defer cmdBuffer.Release()

	r.queue.Submit(cmdBuffer)
	r.swapChain.Present()
	return nil
}

// Resize handles window resize
func (r *Renderer) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	r.width = width
	r.height = height

	if r.swapChain != nil {
		r.swapChain.Release()
	}
	if err := r.createSwapChain(); err != nil {
		logging.Logger().Warn("failed to recreate swap chain", "err", err)
	}
}

// Release frees all GPU resources
func (r *Renderer) Release() {
	r.mapGeometry.release()
	r.textGeometry.release()
	for _, bg := range r.bindGroups {
		bg.Release()
	}
	for _, l := range r.layouts {
		l.Release()
	}
	r.tileIndex.release()
	r.atlas.release()
	r.glyphs.release()
	r.depth.release()

	if r.cameraBuffer != nil {
		r.cameraBuffer.Release()
	}
	if r.globalsBuffer != nil {
		r.globalsBuffer.Release()
	}
	if r.mapPipeline != nil {
		r.mapPipeline.Release()
	}
	if r.textPipeline != nil {
		r.textPipeline.Release()
	}
	if r.sampler != nil {
		r.sampler.Release()
	}
	if r.swapChain != nil {
		r.swapChain.Release()
	}
}
