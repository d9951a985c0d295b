package renderer

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"

	"tileview/internal/raster"
)

// TextVertex is one corner of a pre-placed glyph quad. UV.xy are glyph
// atlas pixel coordinates, UV.z the atlas layer.
type TextVertex struct {
	Position f32.Vec3
	UV       f32.Vec3
	// Color is an 8-bit-per-channel tint. It is forwarded as
	// TextVarying.Tint; the applied color is white.
	Color [4]uint32
}

// Tint returns c as a normalized color.
func (v TextVertex) Tint() f32.Vec4 {
	return f32.Vec4{
		float32(v.Color[0]) / 255,
		float32(v.Color[1]) / 255,
		float32(v.Color[2]) / 255,
		float32(v.Color[3]) / 255,
	}
}

// TextVarying is the text vertex stage output.
type TextVarying struct {
	Clip  f32.Vec4
	UV    f32.Vec3
	Color f32.Vec4 // applied to the coverage
	Tint  f32.Vec4 // vertex attribute color, not applied
	// Size is the glyph atlas pixel size. It is flat.
	Size f32.Vec2
}

// Barycentric implements raster.Varying.
func (a TextVarying) Barycentric(b, c TextVarying, w raster.Weights) TextVarying {
	return TextVarying{
		Clip:  w.Vec4(a.Clip, b.Clip, c.Clip),
		UV:    w.Vec3(a.UV, b.UV, c.UV),
		Color: w.Vec4(a.Color, b.Color, c.Color),
		Tint:  w.Vec4(a.Tint, b.Tint, c.Tint),
		Size:  a.Size,
	}
}

var white = f32.Vec4{1, 1, 1, 1}

// TextVertexStage projects v to clip space and normalizes its atlas
// coordinates by the bound glyph atlas size.
func TextVertexStage(res *TextResources, v TextVertex) TextVarying {
	w, h := res.Glyphs.Dimensions()
	size := f32.Vec2{float32(w), float32(h)}
	return TextVarying{
		Clip:  res.Camera.Project(v.Position),
		UV:    f32.Vec3{v.UV[0] / size[0], v.UV[1] / size[1], v.UV[2]},
		Color: white,
		Tint:  v.Tint(),
		Size:  size,
	}
}

// TapOffsets are the texel offsets of the four filter taps, in the order
// used by FilterWeights.
var TapOffsets = [4]f32.Vec2{{0, 0}, {1, 0}, {0, 1}, {1, 1}}

// GlyphSample records every intermediate of one text fragment.
type GlyphSample struct {
	TexPixel f32.Vec2    `json:"tex_pixel"`
	Corner   f32.Vec2    `json:"corner"`
	Frac     f32.Vec2    `json:"frac"`
	Layer    int32       `json:"layer"`
	Taps     [4]f32.Vec2 `json:"taps"` // atlas pixel centers
	Texels   [4]f32.Vec4 `json:"texels"`
	Weights  [4]float32  `json:"weights"`
	Sum      f32.Vec4    `json:"sum"`
	Discard  bool        `json:"discard"`
	Color    f32.Vec4    `json:"color"`
}

// GlyphFrac returns the filter origin and weights for an atlas pixel
// position that is already shifted to the texel-center convention.
// Each component is min((floor(p)+1-p)*2, 1).
func GlyphFrac(texPixel f32.Vec2) (corner, frac f32.Vec2) {
	for i := 0; i < 2; i++ {
		corner[i] = math32.Floor(texPixel[i]) + 1
		frac[i] = math32.Min((corner[i]-texPixel[i])*2, 1)
	}
	return corner, frac
}

// FilterWeights returns the weights of the four taps for frac.
func FilterWeights(frac f32.Vec2) [4]float32 {
	fx, fy := frac[0], frac[1]
	return [4]float32{
		fx * fy,
		(1 - fx) * fy,
		fx * (1 - fy),
		(1 - fx) * (1 - fy),
	}
}

// ResolveGlyph runs the glyph filter for one fragment and returns all of
// its intermediates.
func ResolveGlyph(res *TextResources, in TextVarying) GlyphSample {
	var s GlyphSample
	size := in.Size
	s.TexPixel = f32.Vec2{size[0]*in.UV[0] - 0.5, size[1]*in.UV[1] - 0.5}
	s.Corner, s.Frac = GlyphFrac(s.TexPixel)
	s.Layer = int32(in.UV[2])
	s.Weights = FilterWeights(s.Frac)

	for i, off := range TapOffsets {
		s.Taps[i] = f32.Vec2{
			math32.Floor(s.TexPixel[0]+off[0]) + 0.5,
			math32.Floor(s.TexPixel[1]+off[1]) + 0.5,
		}
		uv := f32.Vec2{s.Taps[i][0] / size[0], s.Taps[i][1] / size[1]}
		s.Texels[i] = res.Glyphs.Sample(uv, s.Layer)
		for c := range s.Sum {
			s.Sum[c] += s.Weights[i] * s.Texels[i][c]
		}
	}

	if s.Sum[0] <= 0 {
		s.Discard = true
		return s
	}
	for c := range s.Color {
		s.Color[c] = in.Color[c] * s.Sum[0]
	}
	return s
}

// TextFragmentStage filters the glyph atlas and tints the coverage.
// Fragments without coverage are discarded.
func TextFragmentStage(res *TextResources, in TextVarying) Fragment {
	s := ResolveGlyph(res, in)
	if s.Discard {
		return Discard()
	}
	return Emit(s.Color)
}
