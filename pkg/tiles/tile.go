package tiles

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

// Atlas geometry. Every atlas layer is a fixed grid of square tiles.
const (
	TileSize     = 16
	AtlasTiles   = 128
	AtlasSize    = TileSize * AtlasTiles // 2048
	MaxTileIndex = AtlasTiles*AtlasTiles - 1

	// ReferenceLayer is the world z that maps to the first band of the
	// tile-index texture.
	ReferenceLayer = 8
	// BandHeight is the number of tile-index rows per z band.
	BandHeight = 32

	// MaxAlphaFactor is the full-weight value of a descriptor's alpha channel.
	MaxAlphaFactor = 100
)

// Descriptor is one texel of the tile-index texture.
type Descriptor struct {
	TileIndex   uint32 `json:"tile_index"`   // r: row*AtlasTiles + col
	Layer       uint32 `json:"layer"`        // g: atlas array layer
	Blue        uint32 `json:"blue"`         // b: unused
	AlphaFactor uint32 `json:"alpha_factor"` // a: 0..MaxAlphaFactor
}

// DecodeDescriptor reads a descriptor from an RGBA32Uint texel.
func DecodeDescriptor(texel [4]uint32) Descriptor {
	return Descriptor{
		TileIndex:   texel[0],
		Layer:       texel[1],
		Blue:        texel[2],
		AlphaFactor: texel[3],
	}
}

// Texel returns the RGBA32Uint encoding of d.
func (d Descriptor) Texel() [4]uint32 {
	return [4]uint32{d.TileIndex, d.Layer, d.Blue, d.AlphaFactor}
}

// Row returns the atlas grid row of the tile.
func (d Descriptor) Row() uint32 { return d.TileIndex / AtlasTiles }

// Col returns the atlas grid column of the tile.
func (d Descriptor) Col() uint32 { return d.TileIndex % AtlasTiles }

// Weight returns the alpha factor as a 0..1 blend weight.
func (d Descriptor) Weight() float32 {
	return float32(d.AlphaFactor) / MaxAlphaFactor
}

func (d Descriptor) String() string {
	return fmt.Sprintf("tile %d (%d,%d) layer %d alpha %d", d.TileIndex, d.Row(), d.Col(), d.Layer, d.AlphaFactor)
}

// PackTileIndex returns the tile index of the atlas cell at row, col.
func PackTileIndex(row, col uint32) (uint32, error) {
	if row >= AtlasTiles || col >= AtlasTiles {
		return 0, fmt.Errorf("atlas cell (%d,%d) outside %dx%d grid", row, col, AtlasTiles, AtlasTiles)
	}
	return row*AtlasTiles + col, nil
}

// RoundToInt rounds half to even, matching WGSL round.
func RoundToInt(v float32) int32 {
	return int32(math.RoundToEven(float64(v)))
}

// YOffset returns the tile-index row offset of the z band v belongs to.
// The result is symmetric around ReferenceLayer.
func YOffset(z float32) int32 {
	d := (RoundToInt(z) - ReferenceLayer) * BandHeight
	if d < 0 {
		return -d
	}
	return d
}

// TilePos returns the tile-index texel addressed by a fragment with the
// given tile-index pixel coordinates and world z.
func TilePos(tex f32.Vec3, z float32) (x, y int32) {
	x = int32(math32.Floor(tex[0] / TileSize))
	y = int32(math32.Floor(tex[1]/TileSize)) + YOffset(z)
	return x, y
}

// AtlasPixel returns the atlas pixel coordinate of the fragment inside
// tile tileIndex. The in-tile offset is the truncated remainder of tex by
// the tile size.
func AtlasPixel(tileIndex uint32, tex f32.Vec3) f32.Vec2 {
	return f32.Vec2{
		float32((tileIndex%AtlasTiles)*TileSize) + math32.Mod(tex[0], TileSize),
		float32((tileIndex/AtlasTiles)*TileSize) + math32.Mod(tex[1], TileSize),
	}
}

// AtlasUV normalizes an atlas pixel coordinate to [0,1].
func AtlasUV(px f32.Vec2) f32.Vec2 {
	return f32.Vec2{px[0] / AtlasSize, px[1] / AtlasSize}
}
