// Package scene loads YAML scene descriptions and builds the vertex
// buffers and bound resources of the map and text pipelines.
package scene

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"golang.org/x/image/math/f32"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"tileview/internal/assets"
	"tileview/internal/camera"
	"tileview/internal/logging"
	"tileview/internal/raster"
	"tileview/internal/renderer"
	"tileview/internal/texture"
	"tileview/pkg/tiles"
)

// ErrInvalid is returned for scene files that fail validation.
var ErrInvalid = errors.New("scene: invalid")

// File is the on-disk scene description.
type File struct {
	Camera     CameraSpec    `yaml:"camera"`
	TileIndex  TileIndexSpec `yaml:"tile_index"`
	Atlas      LayerSet      `yaml:"atlas"`
	GlyphAtlas LayerSet      `yaml:"glyph_atlas"`
	MapQuads   []MapQuad     `yaml:"map_quads"`
	Text       []Glyph       `yaml:"text"`
}

// CameraSpec describes an orthographic camera.
type CameraSpec struct {
	Left   float32     `yaml:"left"`
	Right  float32     `yaml:"right"`
	Bottom float32     `yaml:"bottom"`
	Top    float32     `yaml:"top"`
	Near   float32     `yaml:"near"`
	Far    float32     `yaml:"far"`
	Eye    *[3]float32 `yaml:"eye,omitempty"`
}

// TileIndexSpec is either an image or a list of cells on an empty grid.
type TileIndexSpec struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Image  string `yaml:"image,omitempty"`
	Cells  []Cell `yaml:"cells,omitempty"`
}

// Cell sets one tile-index texel. The atlas tile is given either as Tile
// or as Row and Col.
type Cell struct {
	X           int     `yaml:"x"`
	Y           int     `yaml:"y"`
	Tile        *uint32 `yaml:"tile,omitempty"`
	Row         uint32  `yaml:"row"`
	Col         uint32  `yaml:"col"`
	Layer       uint32  `yaml:"layer"`
	Blue        uint32  `yaml:"blue"`
	AlphaFactor uint32  `yaml:"alpha_factor"`
}

// LayerSet lists the images of a layered texture in layer order.
type LayerSet struct {
	Layers []string `yaml:"layers"`
}

// MapQuad is an axis-aligned world rectangle at height Z. Texture
// coordinates start at TexOrigin on the Rect min corner and advance Scale
// units per world unit.
type MapQuad struct {
	Rect      [4]float32 `yaml:"rect"` // x0, y0, x1, y1
	Z         float32    `yaml:"z"`
	TexOrigin [2]float32 `yaml:"tex_origin"`
	Scale     float32    `yaml:"scale"`
}

// Glyph is a pre-placed glyph quad.
type Glyph struct {
	Rect  [4]float32 `yaml:"rect"`  // x0, y0, x1, y1
	Atlas [4]float32 `yaml:"atlas"` // glyph atlas pixels u0, v0, u1, v1
	Z     float32    `yaml:"z"`
	Layer float32    `yaml:"layer"`
	Color *[4]uint32 `yaml:"color,omitempty"` // defaults to opaque white
}

// Parse decodes and validates a scene description.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scene: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the description without loading any image.
func (f *File) Validate() error {
	c := f.Camera
	if c.Left == c.Right || c.Bottom == c.Top || c.Near == c.Far {
		return fmt.Errorf("%w: degenerate camera volume", ErrInvalid)
	}

	ti := f.TileIndex
	switch {
	case ti.Image != "" && len(ti.Cells) > 0:
		return fmt.Errorf("%w: tile_index has both image and cells", ErrInvalid)
	case ti.Image == "" && (ti.Width <= 0 || ti.Height <= 0):
		return fmt.Errorf("%w: tile_index size %dx%d", ErrInvalid, ti.Width, ti.Height)
	}
	for i, cell := range ti.Cells {
		if cell.X < 0 || cell.Y < 0 || cell.X >= ti.Width || cell.Y >= ti.Height {
			return fmt.Errorf("%w: cell %d at (%d,%d) outside %dx%d", ErrInvalid, i, cell.X, cell.Y, ti.Width, ti.Height)
		}
		if _, err := cell.descriptor(); err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrInvalid, i, err)
		}
	}

	for i, q := range f.MapQuads {
		if q.Rect[0] == q.Rect[2] || q.Rect[1] == q.Rect[3] {
			return fmt.Errorf("%w: map quad %d is empty", ErrInvalid, i)
		}
	}
	if len(f.MapQuads) > 0 && len(f.Atlas.Layers) == 0 {
		return fmt.Errorf("%w: map quads without atlas layers", ErrInvalid)
	}
	for i, g := range f.Text {
		if g.Rect[0] == g.Rect[2] || g.Rect[1] == g.Rect[3] {
			return fmt.Errorf("%w: glyph %d is empty", ErrInvalid, i)
		}
		if g.Layer < 0 {
			return fmt.Errorf("%w: glyph %d has negative layer", ErrInvalid, i)
		}
	}
	if len(f.Text) > 0 && len(f.GlyphAtlas.Layers) == 0 {
		return fmt.Errorf("%w: text without glyph atlas layers", ErrInvalid)
	}
	return nil
}

func (c Cell) descriptor() (tiles.Descriptor, error) {
	d := tiles.Descriptor{Layer: c.Layer, Blue: c.Blue, AlphaFactor: c.AlphaFactor}
	if c.Tile != nil {
		if *c.Tile > tiles.MaxTileIndex {
			return d, fmt.Errorf("tile %d exceeds %d", *c.Tile, tiles.MaxTileIndex)
		}
		d.TileIndex = *c.Tile
		return d, nil
	}
	idx, err := tiles.PackTileIndex(c.Row, c.Col)
	if err != nil {
		return d, err
	}
	d.TileIndex = idx
	return d, nil
}

// Source supplies encoded images by reference.
type Source interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Scene is a loaded scene ready to draw.
type Scene struct {
	Map  renderer.MapResources
	Text renderer.TextResources

	MapVertices  []renderer.MapVertex
	MapIndices   []uint32
	TextVertices []renderer.TextVertex
	TextIndices  []uint32

	// Decoded textures, kept for GPU upload.
	TileIndex  *texture.UintTexture
	Atlas      *texture.Array
	GlyphAtlas *texture.Array
}

// Load reads, validates and builds the scene at path.
func Load(ctx context.Context, path string, src Source, sampler texture.Sampler) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s, err := f.Build(ctx, src, filepath.Dir(path), sampler)
	if err != nil {
		return nil, err
	}
	logging.Logger().Info("scene loaded", "path", path,
		"map_quads", len(f.MapQuads), "glyphs", len(f.Text),
		"atlas_layers", s.Atlas.Layers(), "glyph_layers", s.GlyphAtlas.Layers())
	return s, nil
}

// Build loads the referenced images and assembles the scene. Relative
// image paths are resolved against base.
func (f *File) Build(ctx context.Context, src Source, base string, sampler texture.Sampler) (*Scene, error) {
	resolve := func(ref string) string {
		if assets.IsRemote(ref) || filepath.IsAbs(ref) {
			return ref
		}
		return filepath.Join(base, ref)
	}

	var (
		atlas, glyphs *texture.Array
		index         *texture.UintTexture
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		atlas, err = loadArray(gctx, src, resolve, f.Atlas.Layers)
		if err != nil {
			return fmt.Errorf("atlas: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		glyphs, err = loadArray(gctx, src, resolve, f.GlyphAtlas.Layers)
		if err != nil {
			return fmt.Errorf("glyph atlas: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		index, err = f.TileIndex.build(gctx, src, resolve)
		if err != nil {
			return fmt.Errorf("tile index: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if w, h := atlas.Dimensions(); len(f.Atlas.Layers) > 0 && (w != tiles.AtlasSize || h != tiles.AtlasSize) {
		logging.Logger().Warn("atlas is not the expected size", "width", w, "height", h, "want", tiles.AtlasSize)
	}

	cam := camera.Ortho(f.Camera.Left, f.Camera.Right, f.Camera.Bottom, f.Camera.Top, f.Camera.Near, f.Camera.Far)
	if f.Camera.Eye != nil {
		cam.Eye = f32.Vec3(*f.Camera.Eye)
	}

	s := &Scene{
		Map: renderer.MapResources{
			Camera:    cam,
			TileIndex: index,
			Atlas:     atlas.Bind(sampler),
		},
		Text: renderer.TextResources{
			Camera: cam,
			Glyphs: glyphs.Bind(sampler),
		},
		TileIndex:  index,
		Atlas:      atlas,
		GlyphAtlas: glyphs,
	}
	for _, q := range f.MapQuads {
		s.addMapQuad(q)
	}
	for _, gl := range f.Text {
		s.addGlyph(gl)
	}
	return s, nil
}

func loadArray(ctx context.Context, src Source, resolve func(string) string, refs []string) (*texture.Array, error) {
	if len(refs) == 0 {
		return texture.NewArray(image.NewNRGBA(image.Rect(0, 0, 1, 1)))
	}
	layers := make([]*image.NRGBA, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := src.Fetch(ctx, resolve(ref))
			if err != nil {
				return err
			}
			img, err := texture.DecodeImage(data)
			if err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			layers[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texture.NewArray(layers...)
}

func (ti TileIndexSpec) build(ctx context.Context, src Source, resolve func(string) string) (*texture.UintTexture, error) {
	if ti.Image != "" {
		data, err := src.Fetch(ctx, resolve(ti.Image))
		if err != nil {
			return nil, err
		}
		t, err := texture.DecodeUint(data)
		if err != nil {
			return nil, err
		}
		if (ti.Width != 0 && ti.Width != t.Width) || (ti.Height != 0 && ti.Height != t.Height) {
			return nil, fmt.Errorf("%w: image is %dx%d, declared %dx%d", ErrInvalid, t.Width, t.Height, ti.Width, ti.Height)
		}
		return t, nil
	}
	t := texture.NewUintTexture(ti.Width, ti.Height)
	for _, c := range ti.Cells {
		d, err := c.descriptor()
		if err != nil {
			return nil, err
		}
		t.Set(c.X, c.Y, d.Texel())
	}
	return t, nil
}

var quadIndices = [6]uint32{0, 1, 2, 0, 2, 3}

func corners(r [4]float32) [4][2]float32 {
	return [4][2]float32{{r[0], r[1]}, {r[2], r[1]}, {r[2], r[3]}, {r[0], r[3]}}
}

func (s *Scene) addMapQuad(q MapQuad) {
	scale := q.Scale
	if scale == 0 {
		scale = 1
	}
	base := uint32(len(s.MapVertices))
	for _, p := range corners(q.Rect) {
		s.MapVertices = append(s.MapVertices, renderer.MapVertex{
			Position: f32.Vec3{p[0], p[1], q.Z},
			TexCoords: f32.Vec3{
				q.TexOrigin[0] + (p[0]-q.Rect[0])*scale,
				q.TexOrigin[1] + (p[1]-q.Rect[1])*scale,
				0,
			},
		})
	}
	for _, i := range quadIndices {
		s.MapIndices = append(s.MapIndices, base+i)
	}
}

func (s *Scene) addGlyph(g Glyph) {
	col := [4]uint32{255, 255, 255, 255}
	if g.Color != nil {
		col = *g.Color
	}
	uv := corners(g.Atlas)
	base := uint32(len(s.TextVertices))
	for i, p := range corners(g.Rect) {
		s.TextVertices = append(s.TextVertices, renderer.TextVertex{
			Position: f32.Vec3{p[0], p[1], g.Z},
			UV:       f32.Vec3{uv[i][0], uv[i][1], g.Layer},
			Color:    col,
		})
	}
	for _, i := range quadIndices {
		s.TextIndices = append(s.TextIndices, base+i)
	}
}

// Render draws the map quads and then the glyphs into t. Globals carry
// the target size and time.
func (s *Scene) Render(t *raster.Target, depth bool, time float32) (mapStats, textStats raster.Stats, err error) {
	if len(s.MapIndices) > 0 {
		mapStats, err = renderer.DrawMap(t, &s.Map, renderer.MapState(depth), s.MapVertices, s.MapIndices)
		if err != nil {
			return mapStats, textStats, fmt.Errorf("map pass: %w", err)
		}
	}
	if len(s.TextIndices) > 0 {
		text := s.Text
		text.Globals = renderer.Globals{
			ScreenResolution: f32.Vec2{float32(t.Width), float32(t.Height)},
			Time:             time,
		}
		textStats, err = renderer.DrawText(t, &text, renderer.TextState(depth), s.TextVertices, s.TextIndices)
		if err != nil {
			return mapStats, textStats, fmt.Errorf("text pass: %w", err)
		}
	}
	return mapStats, textStats, nil
}
