package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"tileview/internal/camera"
	"tileview/internal/raster"
	"tileview/internal/texture"
	"tileview/pkg/tiles"
)

// recordingSampler returns a fixed color and remembers the last lookup.
type recordingSampler struct {
	color f32.Vec4
	w, h  uint32
	uv    f32.Vec2
	layer int32
}

func (s *recordingSampler) Sample(uv f32.Vec2, layer int32) f32.Vec4 {
	s.uv, s.layer = uv, layer
	return s.color
}

func (s *recordingSampler) Dimensions() (uint32, uint32) { return s.w, s.h }

// uniformSampler returns one color everywhere. It is safe to share
// between concurrent fragments.
type uniformSampler struct {
	color f32.Vec4
	w, h  uint32
}

func (s uniformSampler) Sample(f32.Vec2, int32) f32.Vec4 { return s.color }

func (s uniformSampler) Dimensions() (uint32, uint32) { return s.w, s.h }

func scenarioMap() (*MapResources, *recordingSampler) {
	idx := texture.NewUintTexture(4, 64)
	idx.Set(1, 0, tiles.Descriptor{TileIndex: 5, Layer: 2, AlphaFactor: 50}.Texel())
	atlas := &recordingSampler{color: f32.Vec4{0.2, 0.4, 0.6, 0.5}, w: tiles.AtlasSize, h: tiles.AtlasSize}
	return &MapResources{Camera: camera.Identity(), TileIndex: idx, Atlas: atlas}, atlas
}

func TestResolveMapScenario(t *testing.T) {
	res, atlas := scenarioMap()
	in := MapVarying{TexCoords: f32.Vec3{20, 10, 0}, Z: 8}

	s := ResolveMap(res, in)
	assert.Equal(t, int32(0), s.YOffset)
	assert.Equal(t, [2]int32{1, 0}, s.TilePos)
	assert.Equal(t, uint32(5), s.Descriptor.TileIndex)
	assert.Equal(t, f32.Vec2{84, 10}, s.AtlasPixel)
	assert.Equal(t, f32.Vec2{84.0 / 2048, 10.0 / 2048}, s.UV)
	assert.Equal(t, int32(2), s.Layer)

	assert.Equal(t, s.UV, atlas.uv)
	assert.Equal(t, int32(2), atlas.layer)
	assert.InDelta(t, 0.75, s.BlendAlpha, 1e-6)
}

func TestMapFragmentEmitsSampledColor(t *testing.T) {
	res, _ := scenarioMap()
	f := MapFragmentStage(res, MapVarying{TexCoords: f32.Vec3{20, 10, 0}, Z: 8})

	c, ok := f.Color()
	require.True(t, ok)
	// The alpha factor does not change the emitted alpha.
	assert.Equal(t, f32.Vec4{0.2, 0.4, 0.6, 0.5}, c)
}

func TestMapFragmentBandSelection(t *testing.T) {
	idx := texture.NewUintTexture(2, 128)
	idx.Set(0, 64, tiles.Descriptor{TileIndex: 129, Layer: 1}.Texel())
	atlas := &recordingSampler{}
	res := &MapResources{Camera: camera.Identity(), TileIndex: idx, Atlas: atlas}

	for _, z := range []float32{6, 10} {
		s := ResolveMap(res, MapVarying{TexCoords: f32.Vec3{3, 2, 0}, Z: z})
		assert.Equal(t, [2]int32{0, 64}, s.TilePos, "z=%v", z)
		assert.Equal(t, f32.Vec2{16 + 3, 16 + 2}, s.AtlasPixel, "z=%v", z)
		assert.Equal(t, int32(1), atlas.layer)
	}
}

func TestMapFragmentOutOfRangeIndexReadsZero(t *testing.T) {
	res, atlas := scenarioMap()
	s := ResolveMap(res, MapVarying{TexCoords: f32.Vec3{1000, 1000, 0}, Z: 8})
	assert.Equal(t, tiles.Descriptor{}, s.Descriptor)
	assert.Equal(t, int32(0), atlas.layer)
}

func TestMapVertexStage(t *testing.T) {
	res := &MapResources{Camera: camera.Screen(100, 100, 0, 16)}
	out := MapVertexStage(res, MapVertex{Position: f32.Vec3{50, 50, 9}, TexCoords: f32.Vec3{32, 48, 7}})

	assert.Equal(t, f32.Vec3{32, 48, 7}, out.TexCoords)
	assert.Equal(t, float32(9), out.Z)
	assert.InDelta(t, 0, out.Clip[0], 1e-6)
	assert.InDelta(t, 0, out.Clip[1], 1e-6)
	assert.Equal(t, float32(1), out.Clip[3])
}

func TestDrawMapQuad(t *testing.T) {
	idx := texture.NewUintTexture(2, 1)
	idx.Set(0, 0, tiles.Descriptor{TileIndex: 0, Layer: 0, AlphaFactor: 100}.Texel())
	idx.Set(1, 0, tiles.Descriptor{TileIndex: 1, Layer: 0, AlphaFactor: 100}.Texel())
	res := &MapResources{
		Camera:    camera.Screen(32, 16, 0, 16),
		TileIndex: idx,
		Atlas:     uniformSampler{color: f32.Vec4{1, 0, 0, 1}},
	}

	verts := []MapVertex{
		{Position: f32.Vec3{0, 0, 8}, TexCoords: f32.Vec3{0, 0, 0}},
		{Position: f32.Vec3{32, 0, 8}, TexCoords: f32.Vec3{32, 0, 0}},
		{Position: f32.Vec3{32, 16, 8}, TexCoords: f32.Vec3{32, 16, 0}},
		{Position: f32.Vec3{0, 16, 8}, TexCoords: f32.Vec3{0, 16, 0}},
	}
	tgt, err := raster.NewTarget(32, 16)
	require.NoError(t, err)

	stats, err := DrawMap(tgt, res, MapState(true), verts, []uint32{0, 1, 2, 0, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 32*16, stats.Written)
	assert.Zero(t, stats.Discarded)
	assert.Equal(t, f32.Vec4{1, 0, 0, 1}, tgt.At(20, 3))
}
