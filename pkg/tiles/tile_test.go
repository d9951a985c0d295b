package tiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"
)

func TestYOffsetSymmetric(t *testing.T) {
	for k := int32(0); k <= 8; k++ {
		up := YOffset(float32(ReferenceLayer + k))
		down := YOffset(float32(ReferenceLayer - k))
		assert.Equal(t, up, down, "k=%d", k)
		assert.Equal(t, k*BandHeight, up, "k=%d", k)
	}
}

func TestYOffsetRounding(t *testing.T) {
	tests := []struct {
		z    float32
		want int32
	}{
		{8, 0},
		{8.4, 0},
		{8.6, 32},
		{8.5, 0},  // half to even: 8
		{9.5, 64}, // half to even: 10
		{7.5, 0},  // half to even: 8
		{6.5, 64}, // half to even: 6
		{-0.2, 256},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, YOffset(tt.z), "z=%v", tt.z)
	}
}

func TestTilePos(t *testing.T) {
	x, y := TilePos(f32.Vec3{20, 10, 0}, 8)
	assert.Equal(t, int32(1), x)
	assert.Equal(t, int32(0), y)

	x, y = TilePos(f32.Vec3{47.9, 16, 0}, 10)
	assert.Equal(t, int32(2), x)
	assert.Equal(t, int32(1+64), y)
}

func TestAtlasPixelInBounds(t *testing.T) {
	corners := []f32.Vec3{{0, 0, 0}, {15.999, 15.999, 0}, {31.5, 47.25, 0}}
	for idx := uint32(0); idx <= MaxTileIndex; idx++ {
		for _, tex := range corners {
			px := AtlasPixel(idx, tex)
			if px[0] < 0 || px[0] >= AtlasSize || px[1] < 0 || px[1] >= AtlasSize {
				t.Fatalf("tile %d tex %v: atlas pixel %v out of bounds", idx, tex, px)
			}
		}
	}
}

func TestAtlasPixelScenario(t *testing.T) {
	px := AtlasPixel(5, f32.Vec3{20, 10, 0})
	assert.Equal(t, f32.Vec2{84, 10}, px)
	assert.Equal(t, f32.Vec2{84.0 / 2048, 10.0 / 2048}, AtlasUV(px))

	px = AtlasPixel(130, f32.Vec3{3, 17, 0})
	assert.Equal(t, f32.Vec2{2*16 + 3, 16 + 1}, px)
}

func TestDescriptorRoundTrip(t *testing.T) {
	idx, err := PackTileIndex(3, 7)
	require.NoError(t, err)
	d := Descriptor{TileIndex: idx, Layer: 2, AlphaFactor: 50}

	got := DecodeDescriptor(d.Texel())
	assert.Equal(t, d, got)
	assert.Equal(t, uint32(3), got.Row())
	assert.Equal(t, uint32(7), got.Col())
	assert.InDelta(t, 0.5, got.Weight(), 1e-7)

	_, err = PackTileIndex(AtlasTiles, 0)
	assert.Error(t, err)
}
