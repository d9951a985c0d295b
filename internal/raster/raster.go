// Package raster is a reference rasterizer for the map and text
// pipelines. It plays the part of the GPU fixed-function stages: vertex
// fetch, triangle setup, perspective-correct interpolation, depth test,
// and blending. Fragment programs are pure functions; every invocation
// sees only its own inputs and the read-only resources captured by the
// program.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"

	"golang.org/x/image/math/f32"
	"golang.org/x/sync/errgroup"
)

// ErrIndexRange is returned when an index buffer references a vertex that
// does not exist or is not a whole number of triangles.
var ErrIndexRange = errors.New("raster: index out of range")

// bandHeight is the number of rows shaded by one worker task.
const bandHeight = 16

// Weights are the perspective-corrected barycentric weights of a
// fragment with respect to the triangle's three vertices.
type Weights [3]float32

// Scalar interpolates a float. Equal inputs are returned unchanged.
func (w Weights) Scalar(a, b, c float32) float32 {
	if a == b && b == c {
		return a
	}
	return a*w[0] + b*w[1] + c*w[2]
}

// Vec2 interpolates componentwise.
func (w Weights) Vec2(a, b, c f32.Vec2) f32.Vec2 {
	return f32.Vec2{w.Scalar(a[0], b[0], c[0]), w.Scalar(a[1], b[1], c[1])}
}

// Vec3 interpolates componentwise.
func (w Weights) Vec3(a, b, c f32.Vec3) f32.Vec3 {
	return f32.Vec3{w.Scalar(a[0], b[0], c[0]), w.Scalar(a[1], b[1], c[1]), w.Scalar(a[2], b[2], c[2])}
}

// Vec4 interpolates componentwise.
func (w Weights) Vec4(a, b, c f32.Vec4) f32.Vec4 {
	return f32.Vec4{
		w.Scalar(a[0], b[0], c[0]), w.Scalar(a[1], b[1], c[1]),
		w.Scalar(a[2], b[2], c[2]), w.Scalar(a[3], b[3], c[3]),
	}
}

// Varying is the vertex-to-fragment payload of a pipeline. The receiver
// is the first vertex of the triangle; flat values are taken from it.
type Varying[O any] interface {
	Barycentric(b, c O, w Weights) O
}

// Program is a vertex and fragment stage pair. Fragment returns false to
// discard.
type Program[V any, O Varying[O]] struct {
	Vertex   func(V) (clip f32.Vec4, out O)
	Fragment func(O) (f32.Vec4, bool)
}

// Blend selects how fragment colors combine with the target.
type Blend int

const (
	BlendReplace Blend = iota
	// BlendAlpha is src*srcA + dst*(1-srcA) for color and
	// src + dst*(1-srcA) for alpha.
	BlendAlpha
)

// State is the fixed-function state of a draw.
type State struct {
	Blend      Blend
	DepthTest  bool // compare Less
	DepthWrite bool
}

// Stats counts what happened to the fragments of a draw.
type Stats struct {
	Triangles     int
	Culled        int
	Shaded        int
	Written       int
	Discarded     int
	DepthRejected int
}

func (s *Stats) add(o Stats) {
	s.Shaded += o.Shaded
	s.Written += o.Written
	s.Discarded += o.Discarded
	s.DepthRejected += o.DepthRejected
}

// Target is a float RGBA color buffer with a depth buffer.
type Target struct {
	Width, Height int
	Color         []f32.Vec4
	Depth         []float32

	// Workers bounds the number of concurrent bands. Zero uses GOMAXPROCS.
	Workers int
}

// NewTarget allocates a target cleared to transparent black and depth 1.
func NewTarget(width, height int) (*Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid target size %dx%d", width, height)
	}
	t := &Target{
		Width:  width,
		Height: height,
		Color:  make([]f32.Vec4, width*height),
		Depth:  make([]float32, width*height),
	}
	t.Clear(f32.Vec4{}, 1)
	return t, nil
}

// Clear fills the color and depth buffers.
func (t *Target) Clear(c f32.Vec4, depth float32) {
	for i := range t.Color {
		t.Color[i] = c
		t.Depth[i] = depth
	}
}

// At returns the color at x, y.
func (t *Target) At(x, y int) f32.Vec4 {
	return t.Color[y*t.Width+x]
}

// Image converts the color buffer to 8-bit NRGBA.
func (t *Target) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			c := t.At(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: unorm8(c[0]), G: unorm8(c[1]), B: unorm8(c[2]), A: unorm8(c[3])})
		}
	}
	return img
}

func unorm8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func (t *Target) workers() int {
	if t.Workers > 0 {
		return t.Workers
	}
	return runtime.GOMAXPROCS(0)
}

type screenVertex struct {
	x, y, z float32
	invW    float32
}

type triangle[O any] struct {
	v          [3]screenVertex
	out        [3]O
	area       float32
	minX, minY int
	maxX, maxY int
}

// Draw rasterizes an indexed triangle list into t. Triangles are
// processed in index order at every pixel.
func Draw[V any, O Varying[O]](t *Target, st State, vertices []V, indices []uint32, p Program[V, O]) (Stats, error) {
	var stats Stats
	if len(indices)%3 != 0 {
		return stats, fmt.Errorf("%d indices is not a triangle list: %w", len(indices), ErrIndexRange)
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return stats, fmt.Errorf("index %d references vertex %d of %d: %w", i, idx, len(vertices), ErrIndexRange)
		}
	}

	clip := make([]f32.Vec4, len(vertices))
	outs := make([]O, len(vertices))
	for i, v := range vertices {
		clip[i], outs[i] = p.Vertex(v)
	}

	tris := make([]triangle[O], 0, len(indices)/3)
	for i := 0; i < len(indices); i += 3 {
		stats.Triangles++
		tri, ok := setup(t, clip, outs, indices[i:i+3])
		if !ok {
			stats.Culled++
			continue
		}
		tris = append(tris, tri)
	}

	bands := (t.Height + bandHeight - 1) / bandHeight
	results := make([]Stats, bands)
	var g errgroup.Group
	g.SetLimit(t.workers())
	for b := 0; b < bands; b++ {
		g.Go(func() error {
			y0 := b * bandHeight
			y1 := min(y0+bandHeight, t.Height)
			results[b] = shadeBand(t, st, tris, p.Fragment, y0, y1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	for _, r := range results {
		stats.add(r)
	}
	return stats, nil
}

func setup[O any](t *Target, clip []f32.Vec4, outs []O, idx []uint32) (triangle[O], bool) {
	var tri triangle[O]
	for k := 0; k < 3; k++ {
		c := clip[idx[k]]
		if c[3] <= 0 {
			return tri, false
		}
		inv := 1 / c[3]
		tri.v[k] = screenVertex{
			x:    (c[0]*inv + 1) / 2 * float32(t.Width),
			y:    (1 - c[1]*inv) / 2 * float32(t.Height),
			z:    c[2] * inv,
			invW: inv,
		}
		tri.out[k] = outs[idx[k]]
	}
	tri.area = edge(tri.v[0], tri.v[1], tri.v[2].x, tri.v[2].y)
	if tri.area == 0 {
		return tri, false
	}
	if tri.area < 0 {
		tri.v[1], tri.v[2] = tri.v[2], tri.v[1]
		tri.out[1], tri.out[2] = tri.out[2], tri.out[1]
		tri.area = -tri.area
	}

	minX := min(tri.v[0].x, tri.v[1].x, tri.v[2].x)
	maxX := max(tri.v[0].x, tri.v[1].x, tri.v[2].x)
	minY := min(tri.v[0].y, tri.v[1].y, tri.v[2].y)
	maxY := max(tri.v[0].y, tri.v[1].y, tri.v[2].y)
	tri.minX = max(int(minX), 0)
	tri.minY = max(int(minY), 0)
	tri.maxX = min(int(maxX)+1, t.Width-1)
	tri.maxY = min(int(maxY)+1, t.Height-1)
	if tri.minX > tri.maxX || tri.minY > tri.maxY {
		return tri, false
	}
	return tri, true
}

// edge is twice the signed area of (a, b, p). Interior points of a
// triangle with positive area are positive for all three edges.
func edge(a, b screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// ownsEdge reports whether pixels exactly on edge a->b belong to the
// triangle. The rule is antisymmetric, so a shared edge is drawn once.
func ownsEdge(a, b screenVertex) bool {
	dy := b.y - a.y
	return dy > 0 || (dy == 0 && b.x-a.x < 0)
}

func inside(e float32, owns bool) bool {
	return e > 0 || (e == 0 && owns)
}

func shadeBand[O Varying[O]](t *Target, st State, tris []triangle[O], frag func(O) (f32.Vec4, bool), y0, y1 int) Stats {
	var s Stats
	for i := range tris {
		tri := &tris[i]
		if tri.maxY < y0 || tri.minY >= y1 {
			continue
		}
		v0, v1, v2 := tri.v[0], tri.v[1], tri.v[2]
		own0, own1, own2 := ownsEdge(v1, v2), ownsEdge(v2, v0), ownsEdge(v0, v1)

		for y := max(tri.minY, y0); y <= min(tri.maxY, y1-1); y++ {
			py := float32(y) + 0.5
			for x := tri.minX; x <= tri.maxX; x++ {
				px := float32(x) + 0.5
				e0 := edge(v1, v2, px, py)
				e1 := edge(v2, v0, px, py)
				e2 := edge(v0, v1, px, py)
				if !inside(e0, own0) || !inside(e1, own1) || !inside(e2, own2) {
					continue
				}
				b0, b1, b2 := e0/tri.area, e1/tri.area, e2/tri.area
				z := b0*v0.z + b1*v1.z + b2*v2.z
				if z < 0 || z > 1 {
					continue
				}
				pix := y*t.Width + x
				if st.DepthTest && !(z < t.Depth[pix]) {
					s.DepthRejected++
					continue
				}

				p0, p1, p2 := b0*v0.invW, b1*v1.invW, b2*v2.invW
				sum := p0 + p1 + p2
				w := Weights{p0 / sum, p1 / sum, p2 / sum}
				in := tri.out[0].Barycentric(tri.out[1], tri.out[2], w)

				s.Shaded++
				c, ok := frag(in)
				if !ok {
					s.Discarded++
					continue
				}
				if st.DepthWrite {
					t.Depth[pix] = z
				}
				t.Color[pix] = blend(st.Blend, c, t.Color[pix])
				s.Written++
			}
		}
	}
	return s
}

func blend(mode Blend, src, dst f32.Vec4) f32.Vec4 {
	if mode == BlendReplace {
		return src
	}
	a := src[3]
	return f32.Vec4{
		src[0]*a + dst[0]*(1-a),
		src[1]*a + dst[1]*(1-a),
		src[2]*a + dst[2]*(1-a),
		a + dst[3]*(1-a),
	}
}
