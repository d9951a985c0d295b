package gpu

import (
	"unsafe"

	"github.com/rajveermalviya/go-webgpu/wgpu"

	"tileview/internal/raster"
	"tileview/internal/renderer"
	"tileview/internal/texture"
)

// DepthFormat is the format of the shared depth attachment.
const DepthFormat = wgpu.TextureFormat_Depth32Float

// mapVertexLayout matches renderer.MapVertex: position, tex_coords.
func mapVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(unsafe.Sizeof(renderer.MapVertex{})),
		StepMode:    wgpu.VertexStepMode_Vertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormat_Float32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormat_Float32x3, Offset: 12, ShaderLocation: 1},
		},
	}
}

// textVertexLayout matches renderer.TextVertex: position, uv, color.
func textVertexLayout() wgpu.VertexBufferLayout {
	return wgpu.VertexBufferLayout{
		ArrayStride: uint64(unsafe.Sizeof(renderer.TextVertex{})),
		StepMode:    wgpu.VertexStepMode_Vertex,
		Attributes: []wgpu.VertexAttribute{
			{Format: wgpu.VertexFormat_Float32x3, Offset: 0, ShaderLocation: 0},
			{Format: wgpu.VertexFormat_Float32x3, Offset: 12, ShaderLocation: 1},
			{Format: wgpu.VertexFormat_Uint32x4, Offset: 24, ShaderLocation: 2},
		},
	}
}

// depthState translates the rasterizer state used by the CPU draws.
func depthState(st raster.State) *wgpu.DepthStencilState {
	compare := wgpu.CompareFunction_Always
	if st.DepthTest {
		compare = wgpu.CompareFunction_Less
	}
	return &wgpu.DepthStencilState{
		Format:            DepthFormat,
		DepthWriteEnabled: st.DepthWrite,
		DepthCompare:      compare,
		StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunction_Always},
		StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunction_Always},
	}
}

func blendState(st raster.State) *wgpu.BlendState {
	if st.Blend == raster.BlendAlpha {
		return &wgpu.BlendState_AlphaBlending
	}
	return &wgpu.BlendState_Replace
}

// Texel formats for the layered atlases. Glyph coverage is sampled as raw
// values; the color atlas is sRGB encoded.
const (
	ColorAtlasFormat = wgpu.TextureFormat_RGBA8UnormSrgb
	GlyphAtlasFormat = wgpu.TextureFormat_RGBA8Unorm
)

func filterMode(f texture.Filter) wgpu.FilterMode {
	if f == texture.Linear {
		return wgpu.FilterMode_Linear
	}
	return wgpu.FilterMode_Nearest
}

// uintTexels packs a tile-index texture as RGBA32Uint rows.
func uintTexels(t *texture.UintTexture) []byte {
	if len(t.Texels) == 0 {
		return nil
	}
	return wgpu.ToBytes(t.Texels)
}

// bindGroupLayouts lists the entries of each pipeline's bind groups.
type bindGroupLayouts struct {
	mapCamera []wgpu.BindGroupLayoutEntry
	atlas     []wgpu.BindGroupLayoutEntry
	tileIndex []wgpu.BindGroupLayoutEntry
	textFrame []wgpu.BindGroupLayoutEntry
	glyphs    []wgpu.BindGroupLayoutEntry
}

func layoutEntries() bindGroupLayouts {
	uniform := func(binding uint32, vis wgpu.ShaderStage) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: vis,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingType_Uniform},
		}
	}
	layered := []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStage_Vertex | wgpu.ShaderStage_Fragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleType_Float,
				ViewDimension: wgpu.TextureViewDimension_2DArray,
			},
		},
		{
			Binding:    1,
			Visibility: wgpu.ShaderStage_Fragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingType_Filtering},
		},
	}
	return bindGroupLayouts{
		mapCamera: []wgpu.BindGroupLayoutEntry{uniform(0, wgpu.ShaderStage_Vertex|wgpu.ShaderStage_Fragment)},
		atlas:     layered,
		tileIndex: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStage_Fragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleType_Uint,
				ViewDimension: wgpu.TextureViewDimension_2D,
			},
		}},
		textFrame: []wgpu.BindGroupLayoutEntry{
			uniform(0, wgpu.ShaderStage_Vertex|wgpu.ShaderStage_Fragment),
			uniform(1, wgpu.ShaderStage_Vertex|wgpu.ShaderStage_Fragment),
		},
		glyphs: layered,
	}
}
