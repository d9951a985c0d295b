// Package texture holds the CPU-side texture resources bound to the map
// and text pipelines: an unsigned-integer tile-index texture and layered
// RGBA arrays sampled through a host-configured sampler.
package texture

import (
	"errors"
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

var (
	// ErrUnsupportedFormat is returned when an image cannot be used as the
	// requested texture type.
	ErrUnsupportedFormat = errors.New("texture: unsupported image format")
	// ErrLayerSize is returned when array layers disagree in size.
	ErrLayerSize = errors.New("texture: layer size mismatch")
)

// UintTexture is a 2D RGBA32Uint texture with a single mip level.
type UintTexture struct {
	Width, Height int
	Texels        [][4]uint32
}

// NewUintTexture returns a zeroed texture.
func NewUintTexture(width, height int) *UintTexture {
	return &UintTexture{
		Width:  width,
		Height: height,
		Texels: make([][4]uint32, width*height),
	}
}

// Set stores a texel. Out-of-range coordinates are ignored.
func (t *UintTexture) Set(x, y int, v [4]uint32) {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return
	}
	t.Texels[y*t.Width+x] = v
}

// Load returns the texel at x, y of mip level 0. Out-of-range loads
// return zero.
func (t *UintTexture) Load(x, y int32) [4]uint32 {
	if x < 0 || y < 0 || int(x) >= t.Width || int(y) >= t.Height {
		return [4]uint32{}
	}
	return t.Texels[int(y)*t.Width+int(x)]
}

// Array is a layered RGBA texture. All layers share one size.
type Array struct {
	width, height int
	layers        []*image.NRGBA
}

// NewArray builds an array from equally sized layers.
func NewArray(layers ...*image.NRGBA) (*Array, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("texture: array needs at least one layer")
	}
	b := layers[0].Bounds()
	for i, l := range layers[1:] {
		if l.Bounds().Dx() != b.Dx() || l.Bounds().Dy() != b.Dy() {
			return nil, fmt.Errorf("layer %d is %dx%d, want %dx%d: %w",
				i+1, l.Bounds().Dx(), l.Bounds().Dy(), b.Dx(), b.Dy(), ErrLayerSize)
		}
	}
	return &Array{width: b.Dx(), height: b.Dy(), layers: layers}, nil
}

// Dimensions returns the pixel size of one layer.
func (a *Array) Dimensions() (width, height uint32) {
	return uint32(a.width), uint32(a.height)
}

// Layers returns the number of layers.
func (a *Array) Layers() int { return len(a.layers) }

// Layer returns layer i.
func (a *Array) Layer(i int) *image.NRGBA { return a.layers[i] }

// Texel returns the normalized color of a pixel, clamping x, y to the
// edge and layer to the valid range.
func (a *Array) Texel(x, y, layer int) f32.Vec4 {
	layer = clamp(layer, 0, len(a.layers)-1)
	x = clamp(x, 0, a.width-1)
	y = clamp(y, 0, a.height-1)
	img := a.layers[layer]
	i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	p := img.Pix[i : i+4 : i+4]
	return f32.Vec4{
		float32(p[0]) / 255,
		float32(p[1]) / 255,
		float32(p[2]) / 255,
		float32(p[3]) / 255,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Filter is a sampler magnification/minification mode.
type Filter int

const (
	Nearest Filter = iota
	Linear
)

// ParseFilter converts a config string to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "nearest", "":
		return Nearest, nil
	case "linear":
		return Linear, nil
	}
	return Nearest, fmt.Errorf("texture: unknown filter %q", s)
}

func (f Filter) String() string {
	if f == Linear {
		return "linear"
	}
	return "nearest"
}

// Sampler describes how an array is sampled. Addressing is always
// clamp-to-edge.
type Sampler struct {
	Filter Filter
}

// Sample reads a at normalized uv. The layer is clamped to the array.
func (s Sampler) Sample(a *Array, uv f32.Vec2, layer int32) f32.Vec4 {
	x := uv[0] * float32(a.width)
	y := uv[1] * float32(a.height)
	if s.Filter == Nearest {
		return a.Texel(int(math32.Floor(x)), int(math32.Floor(y)), int(layer))
	}

	x -= 0.5
	y -= 0.5
	x0 := math32.Floor(x)
	y0 := math32.Floor(y)
	fx := x - x0
	fy := y - y0
	ix, iy, l := int(x0), int(y0), int(layer)

	c00 := a.Texel(ix, iy, l)
	c10 := a.Texel(ix+1, iy, l)
	c01 := a.Texel(ix, iy+1, l)
	c11 := a.Texel(ix+1, iy+1, l)

	var out f32.Vec4
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*fx
		bottom := c01[i] + (c11[i]-c01[i])*fx
		out[i] = top + (bottom-top)*fy
	}
	return out
}

// SampledArray binds an array to a sampler.
type SampledArray struct {
	Array   *Array
	Sampler Sampler
}

// Bind returns a sampled view of a.
func (a *Array) Bind(s Sampler) *SampledArray {
	return &SampledArray{Array: a, Sampler: s}
}

// Sample reads the bound array at uv and layer.
func (s *SampledArray) Sample(uv f32.Vec2, layer int32) f32.Vec4 {
	return s.Sampler.Sample(s.Array, uv, layer)
}

// Dimensions returns the pixel size of one layer.
func (s *SampledArray) Dimensions() (width, height uint32) {
	return s.Array.Dimensions()
}
