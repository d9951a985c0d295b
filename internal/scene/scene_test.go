package scene

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"tileview/internal/assets"
	"tileview/internal/raster"
	"tileview/internal/texture"
	"tileview/pkg/tiles"
)

type memSource map[string][]byte

func (m memSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("no such resource %q", ref)
	}
	return data, nil
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const testScene = `
camera:
  left: 0
  right: 32
  bottom: 16
  top: 0
  near: 0
  far: 16
tile_index:
  width: 2
  height: 1
  cells:
    - {x: 0, y: 0, tile: 0, alpha_factor: 100}
    - {x: 1, y: 0, row: 0, col: 1, layer: 0, alpha_factor: 100}
atlas:
  layers: [atlas0.png]
glyph_atlas:
  layers: [glyphs0.png]
map_quads:
  - rect: [0, 0, 32, 16]
    z: 8
    tex_origin: [0, 0]
text:
  - rect: [0, 0, 8, 8]
    atlas: [0, 0, 8, 8]
    z: 9
    layer: 0
`

func testSource(t *testing.T) memSource {
	return memSource{
		filepath.Join("base", "atlas0.png"):   solidPNG(t, 64, 64, color.NRGBA{R: 255, A: 255}),
		filepath.Join("base", "glyphs0.png"): solidPNG(t, 8, 8, color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
	}
}

func TestBuild(t *testing.T) {
	f, err := Parse([]byte(testScene))
	require.NoError(t, err)

	s, err := f.Build(t.Context(), testSource(t), "base", texture.Sampler{Filter: texture.Nearest})
	require.NoError(t, err)

	require.Len(t, s.MapVertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, s.MapIndices)
	assert.Equal(t, f32.Vec3{32, 16, 8}, s.MapVertices[2].Position)
	assert.Equal(t, f32.Vec3{32, 16, 0}, s.MapVertices[2].TexCoords)

	require.Len(t, s.TextVertices, 4)
	assert.Equal(t, [4]uint32{255, 255, 255, 255}, s.TextVertices[0].Color)
	assert.Equal(t, f32.Vec3{8, 8, 0}, s.TextVertices[2].UV)

	assert.Equal(t, uint32(1), tiles.DecodeDescriptor(s.TileIndex.Load(1, 0)).TileIndex)
	assert.Equal(t, uint32(100), tiles.DecodeDescriptor(s.TileIndex.Load(0, 0)).AlphaFactor)
	w, h := s.Text.Glyphs.Dimensions()
	assert.Equal(t, [2]uint32{8, 8}, [2]uint32{w, h})
}

func TestGlyphColor(t *testing.T) {
	f, err := Parse([]byte(testScene + `  - rect: [8, 0, 16, 8]
    atlas: [0, 0, 8, 8]
    z: 9
    color: [0, 0, 0, 0]
  - rect: [16, 0, 24, 8]
    atlas: [0, 0, 8, 8]
    z: 9
    color: [10, 20, 30, 40]
`))
	require.NoError(t, err)
	s, err := f.Build(t.Context(), testSource(t), "base", texture.Sampler{})
	require.NoError(t, err)

	require.Len(t, s.TextVertices, 12)
	assert.Equal(t, [4]uint32{255, 255, 255, 255}, s.TextVertices[0].Color)
	assert.Equal(t, [4]uint32{0, 0, 0, 0}, s.TextVertices[4].Color)
	assert.Equal(t, [4]uint32{10, 20, 30, 40}, s.TextVertices[8].Color)
}

func TestBuildMissingLayer(t *testing.T) {
	f, err := Parse([]byte(testScene))
	require.NoError(t, err)

	_, err = f.Build(t.Context(), memSource{}, "base", texture.Sampler{})
	assert.ErrorContains(t, err, "atlas")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"degenerate camera", "camera: {left: 1, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {width: 1, height: 1}"},
		{"no tile index size", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}"},
		{"cell outside", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {width: 1, height: 1, cells: [{x: 1, y: 0}]}"},
		{"cell col outside grid", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {width: 1, height: 1, cells: [{x: 0, y: 0, col: 128}]}"},
		{"quads without atlas", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {width: 1, height: 1}\nmap_quads: [{rect: [0, 0, 1, 1]}]"},
		{"empty glyph", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {width: 1, height: 1}\nglyph_atlas: {layers: [g.png]}\ntext: [{rect: [0, 0, 0, 1]}]"},
		{"image and cells", "camera: {left: 0, right: 1, bottom: 0, top: 1, near: 0, far: 1}\ntile_index: {image: i.png, cells: [{x: 0, y: 0}]}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestRender(t *testing.T) {
	f, err := Parse([]byte(testScene))
	require.NoError(t, err)
	s, err := f.Build(t.Context(), testSource(t), "base", texture.Sampler{Filter: texture.Nearest})
	require.NoError(t, err)

	tgt, err := raster.NewTarget(32, 16)
	require.NoError(t, err)
	mapStats, textStats, err := s.Render(tgt, true, 0)
	require.NoError(t, err)

	assert.Equal(t, 32*16, mapStats.Written)
	assert.Equal(t, 8*8, textStats.Written)
	assert.Equal(t, f32.Vec4{1, 0, 0, 1}, tgt.At(20, 10))
	for c, v := range tgt.At(3, 3) {
		assert.InDelta(t, 1, v, 1e-5, "channel %d", c)
	}
}

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.yaml"), []byte(testScene), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "atlas0.png"), solidPNG(t, 16, 16, color.NRGBA{G: 255, A: 255}), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "glyphs0.png"), solidPNG(t, 8, 8, color.NRGBA{R: 255, A: 255}), 0o644))

	cache, err := assets.NewCache(t.TempDir(), time.Second)
	require.NoError(t, err)
	s, err := Load(t.Context(), filepath.Join(dir, "scene.yaml"), cache, texture.Sampler{Filter: texture.Linear})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Atlas.Layers())
	assert.Equal(t, 1, s.GlyphAtlas.Layers())
}
