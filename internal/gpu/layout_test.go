package gpu

import (
	"testing"

	"github.com/rajveermalviya/go-webgpu/wgpu"
	"github.com/stretchr/testify/assert"

	"tileview/internal/renderer"
	"tileview/internal/texture"
)

func TestVertexLayouts(t *testing.T) {
	m := mapVertexLayout()
	assert.Equal(t, uint64(24), m.ArrayStride)
	assert.Len(t, m.Attributes, 2)

	txt := textVertexLayout()
	assert.Equal(t, uint64(40), txt.ArrayStride)
	assert.Equal(t, wgpu.VertexFormat_Uint32x4, txt.Attributes[2].Format)
	assert.Equal(t, uint64(24), txt.Attributes[2].Offset)
}

func TestDepthState(t *testing.T) {
	on := depthState(renderer.MapState(true))
	assert.Equal(t, wgpu.CompareFunction_Less, on.DepthCompare)
	assert.True(t, on.DepthWriteEnabled)

	off := depthState(renderer.TextState(false))
	assert.Equal(t, wgpu.CompareFunction_Always, off.DepthCompare)
	assert.False(t, off.DepthWriteEnabled)
}

func TestBlendAndFilter(t *testing.T) {
	assert.Equal(t, wgpu.BlendState_AlphaBlending, *blendState(renderer.MapState(true)))
	assert.Equal(t, wgpu.FilterMode_Linear, filterMode(texture.Linear))
	assert.Equal(t, wgpu.FilterMode_Nearest, filterMode(texture.Nearest))
}

func TestAtlasFormats(t *testing.T) {
	// Coverage in the red channel must reach the discard test undecoded.
	assert.Equal(t, wgpu.TextureFormat_RGBA8Unorm, GlyphAtlasFormat)
	assert.Equal(t, wgpu.TextureFormat_RGBA8UnormSrgb, ColorAtlasFormat)
}

func TestLayoutEntries(t *testing.T) {
	e := layoutEntries()
	assert.Equal(t, wgpu.TextureSampleType_Uint, e.tileIndex[0].Texture.SampleType)
	assert.Equal(t, wgpu.TextureViewDimension_2DArray, e.atlas[0].Texture.ViewDimension)
	assert.Len(t, e.textFrame, 2)
}

func TestUintTexels(t *testing.T) {
	idx := texture.NewUintTexture(2, 1)
	idx.Set(1, 0, [4]uint32{5, 2, 0, 50})
	b := uintTexels(idx)
	assert.Len(t, b, 2*16)
	assert.Equal(t, byte(5), b[16])
	assert.Equal(t, byte(50), b[28])
}
