package frameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/image/math/f32"

	"tileview/internal/config"
	"tileview/internal/logging"
	"tileview/internal/raster"
	"tileview/internal/renderer"
	"tileview/internal/scene"
)

const maxFrameSide = 8192

// Loader builds the scene served by a Server.
type Loader func(ctx context.Context) (*scene.Scene, error)

// Server provides HTTP endpoints for rendering and probing a scene
type Server struct {
	cfg    *config.Config
	load   Loader
	start  time.Time
	server *http.Server

	mu    sync.RWMutex
	scene *scene.Scene
}

// NewServer loads the initial scene and returns a server for it.
func NewServer(ctx context.Context, cfg *config.Config, load Loader) (*Server, error) {
	s := &Server{cfg: cfg, load: load, start: time.Now()}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rebuilds the scene. The previous scene keeps serving on failure.
func (s *Server) Reload(ctx context.Context) error {
	sc, err := s.load(ctx)
	if err != nil {
		return fmt.Errorf("loading scene: %w", err)
	}
	s.mu.Lock()
	s.scene = sc
	s.mu.Unlock()
	return nil
}

func (s *Server) current() *scene.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scene
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /frame.png", s.handleFrame)
	mux.HandleFunc("GET /probe/map", s.handleProbeMap)
	mux.HandleFunc("GET /probe/glyph", s.handleProbeGlyph)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start serves on the configured address until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.Logger().Info("frame server listening", "addr", s.cfg.Server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Watch reloads the scene whenever path changes, until ctx is done.
func (s *Server) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(ctx); err != nil {
					logging.Logger().Warn("scene reload failed", "path", path, "err", err)
					continue
				}
				logging.Logger().Info("scene reloaded", "path", path)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Logger().Warn("scene watcher error", "err", err)
			}
		}
	}()
	return nil
}

// handleFrame renders the scene: /frame.png?width=&height=&t=
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, err := intParam(q.Get("width"), s.cfg.Rendering.Width)
	if err != nil {
		http.Error(w, "Invalid width", http.StatusBadRequest)
		return
	}
	height, err := intParam(q.Get("height"), s.cfg.Rendering.Height)
	if err != nil {
		http.Error(w, "Invalid height", http.StatusBadRequest)
		return
	}
	t, err := floatParam(q.Get("t"), float32(time.Since(s.start).Seconds()))
	if err != nil {
		http.Error(w, "Invalid t", http.StatusBadRequest)
		return
	}

	if width > maxFrameSide || height > maxFrameSide || width*height > s.cfg.Server.MaxFramePixels {
		http.Error(w, "Frame too large", http.StatusBadRequest)
		return
	}

	tgt, err := raster.NewTarget(width, height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tgt.Workers = s.cfg.Rendering.Workers
	tgt.Clear(f32.Vec4(s.cfg.Rendering.ClearColor), 1)

	if _, _, err := s.current().Render(tgt, s.cfg.Rendering.DepthTest, t); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, tgt.Image()); err != nil {
		logging.Logger().Warn("frame encode failed", "err", err)
	}
}

// handleProbeMap resolves one map fragment: /probe/map?u=&v=&z=
func (s *Server) handleProbeMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, err1 := floatParam(q.Get("u"), 0)
	v, err2 := floatParam(q.Get("v"), 0)
	z, err3 := floatParam(q.Get("z"), 0)
	if err := errors.Join(err1, err2, err3); err != nil {
		http.Error(w, "Invalid probe coordinates", http.StatusBadRequest)
		return
	}
	sc := s.current()
	in := renderer.MapVarying{TexCoords: f32.Vec3{u, v, 0}, Z: z}
	writeJSON(w, renderer.ResolveMap(&sc.Map, in))
}

// handleProbeGlyph resolves one text fragment at glyph atlas pixel
// coordinates: /probe/glyph?u=&v=&layer=
func (s *Server) handleProbeGlyph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, err1 := floatParam(q.Get("u"), 0)
	v, err2 := floatParam(q.Get("v"), 0)
	layer, err3 := floatParam(q.Get("layer"), 0)
	if err := errors.Join(err1, err2, err3); err != nil {
		http.Error(w, "Invalid probe coordinates", http.StatusBadRequest)
		return
	}
	sc := s.current()
	in := renderer.TextVertexStage(&sc.Text, renderer.TextVertex{UV: f32.Vec3{u, v, layer}})
	writeJSON(w, renderer.ResolveGlyph(&sc.Text, in))
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger().Warn("probe encode failed", "err", err)
	}
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func floatParam(s string, def float32) (float32, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}
