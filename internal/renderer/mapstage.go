package renderer

import (
	"golang.org/x/image/math/f32"

	"tileview/internal/raster"
	"tileview/pkg/tiles"
)

// MapVertex is one corner of a map tile quad. Position.z selects the
// tile-index band; TexCoords.xy are tile-index pixel coordinates.
type MapVertex struct {
	Position  f32.Vec3
	TexCoords f32.Vec3
}

// MapVarying is the map vertex stage output.
type MapVarying struct {
	Clip      f32.Vec4
	TexCoords f32.Vec3
	Z         float32
}

// Barycentric implements raster.Varying.
func (a MapVarying) Barycentric(b, c MapVarying, w raster.Weights) MapVarying {
	return MapVarying{
		Clip:      w.Vec4(a.Clip, b.Clip, c.Clip),
		TexCoords: w.Vec3(a.TexCoords, b.TexCoords, c.TexCoords),
		Z:         w.Scalar(a.Z, b.Z, c.Z),
	}
}

// MapVertexStage projects v to clip space and forwards the tile-index
// coordinates and world z.
func MapVertexStage(res *MapResources, v MapVertex) MapVarying {
	return MapVarying{
		Clip:      res.Camera.Project(v.Position),
		TexCoords: v.TexCoords,
		Z:         v.Position[2],
	}
}

// MapSample records every intermediate of one map fragment.
type MapSample struct {
	YOffset    int32            `json:"yoffset"`
	TilePos    [2]int32         `json:"tile_pos"`
	Descriptor tiles.Descriptor `json:"descriptor"`
	AtlasPixel f32.Vec2         `json:"atlas_px"`
	UV         f32.Vec2         `json:"uv"`
	Layer      int32            `json:"layer"`
	Sampled    f32.Vec4         `json:"sampled"`
	// BlendAlpha is lerp(1, Sampled.a, alpha_factor/100). It is not
	// applied to the emitted color.
	BlendAlpha float32 `json:"blend_alpha"`
}

// ResolveMap runs the map fragment computation and returns all of its
// intermediates.
func ResolveMap(res *MapResources, in MapVarying) MapSample {
	var s MapSample
	s.YOffset = tiles.YOffset(in.Z)
	x, y := tiles.TilePos(in.TexCoords, in.Z)
	s.TilePos = [2]int32{x, y}
	s.Descriptor = tiles.DecodeDescriptor(res.TileIndex.Load(x, y))
	s.AtlasPixel = tiles.AtlasPixel(s.Descriptor.TileIndex, in.TexCoords)
	s.UV = tiles.AtlasUV(s.AtlasPixel)
	s.Layer = int32(s.Descriptor.Layer)
	s.Sampled = res.Atlas.Sample(s.UV, s.Layer)
	s.BlendAlpha = mix(1, s.Sampled[3], s.Descriptor.Weight())
	return s
}

// MapFragmentStage colors a map fragment from its atlas tile. It never
// discards.
func MapFragmentStage(res *MapResources, in MapVarying) Fragment {
	s := ResolveMap(res, in)
	return Emit(f32.Vec4{s.Sampled[0], s.Sampled[1], s.Sampled[2], s.Sampled[3]})
}

func mix(a, b, t float32) float32 {
	return a*(1-t) + b*t
}
