package frameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/math/f32"

	"tileview/internal/assets"
	"tileview/internal/config"
	"tileview/internal/renderer"
	"tileview/internal/scene"
)

const sceneYAML = `
camera: {left: 0, right: 32, bottom: 16, top: 0, near: 0, far: 16}
tile_index:
  width: 2
  height: 1
  cells:
    - {x: 1, y: 0, tile: 1, layer: 0, alpha_factor: 40}
atlas:
  layers: [atlas.png]
glyph_atlas:
  layers: [glyphs.png]
map_quads:
  - {rect: [0, 0, 32, 16], z: 8}
`

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sceneYAML), 0o644))
	writePNG(t, filepath.Join(dir, "atlas.png"), 32, 32, color.NRGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(dir, "glyphs.png"), 64, 16, color.NRGBA{R: 255, A: 255})

	cfg := config.Default()
	cfg.Rendering.Width, cfg.Rendering.Height = 32, 16
	cache, err := assets.NewCache(t.TempDir(), time.Second)
	require.NoError(t, err)

	srv, err := NewServer(t.Context(), cfg, func(ctx context.Context) (*scene.Scene, error) {
		return scene.Load(ctx, path, cache, cfg.Sampler())
	})
	require.NoError(t, err)
	return srv, path
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame.png?t=0", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
	r, g, b, a := img.At(10, 8).RGBA()
	assert.Equal(t, [4]uint32{0, 0, 0xffff, 0xffff}, [4]uint32{r, g, b, a})
}

func TestFrameBadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, target := range []string{"/frame.png?width=abc", "/frame.png?width=0", "/frame.png?height=100000", "/frame.png?t=x"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestFramePixelLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.cfg.Server.MaxFramePixels = 64 * 64

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame.png?width=64&height=64&t=0", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Each side is within bounds, the area is not.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame.png?width=8000&height=8000&t=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbeMap(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/map?u=20&v=10&z=8", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var s renderer.MapSample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, [2]int32{1, 0}, s.TilePos)
	assert.Equal(t, uint32(1), s.Descriptor.TileIndex)
	assert.Equal(t, uint32(40), s.Descriptor.AlphaFactor)
	assert.Equal(t, f32.Vec2{20, 10}, s.AtlasPixel)
	assert.Equal(t, f32.Vec4{0, 0, 1, 1}, s.Sampled)
}

func TestProbeGlyph(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/glyph?u=10.3&v=5.7&layer=0", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var s renderer.GlyphSample
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.InDelta(t, 9.8, s.TexPixel[0], 1e-4)
	assert.Equal(t, f32.Vec2{10, 6}, s.Corner)
	assert.False(t, s.Discard)
}

func TestProbeBadParams(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe/map?u=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchReloads(t *testing.T) {
	srv, path := newTestServer(t)
	require.Len(t, srv.current().MapVertices, 4)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	require.NoError(t, srv.Watch(ctx, path))

	two := sceneYAML + "  - {rect: [0, 0, 8, 8], z: 9}\n"
	require.NoError(t, os.WriteFile(path, []byte(two), 0o644))

	assert.Eventually(t, func() bool {
		return len(srv.current().MapVertices) == 8
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReloadKeepsSceneOnFailure(t *testing.T) {
	srv, path := newTestServer(t)
	require.NoError(t, os.WriteFile(path, []byte("camera: {}\n"), 0o644))

	assert.ErrorIs(t, srv.Reload(t.Context()), scene.ErrInvalid)
	assert.Len(t, srv.current().MapVertices, 4)
}
