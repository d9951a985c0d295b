package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/image/math/f32"

	"tileview/internal/app"
	"tileview/internal/assets"
	"tileview/internal/config"
	"tileview/internal/frameserver"
	"tileview/internal/logging"
	"tileview/internal/raster"
	"tileview/internal/renderer"
	"tileview/internal/scene"
)

func usage() {
	fmt.Fprintf(os.Stderr, `tileview - tile map and glyph renderer

Usage:
  tileview render  -config FILE -scene FILE -out FILE.png
  tileview serve   -config FILE -scene FILE
  tileview view    -config FILE -scene FILE
  tileview shaders -out DIR
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "render":
		err = runRender(args)
	case "serve":
		err = runServe(args)
	case "view":
		err = runView(args)
	case "shaders":
		err = runShaders(args)
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags shared by the scene commands.
type common struct {
	configPath string
	scenePath  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "configuration file (YAML)")
	fs.StringVar(&c.scenePath, "scene", "", "scene file (YAML)")
}

// setup loads the configuration, installs the logger and returns a scene
// loader bound to it.
func (c *common) setup() (*config.Config, func(context.Context) (*scene.Scene, error), error) {
	if c.scenePath == "" {
		return nil, nil, errors.New("-scene is required")
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	logging.SetLogger(logger)

	cache, err := assets.NewCache(cfg.Assets.CacheDir, cfg.Assets.Timeout)
	if err != nil {
		return nil, nil, err
	}
	load := func(ctx context.Context) (*scene.Scene, error) {
		return scene.Load(ctx, c.scenePath, cache, cfg.Sampler())
	}
	return cfg, load, nil
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var c common
	c.register(fs)
	out := fs.String("out", "frame.png", "output PNG")
	t := fs.Float64("time", 0, "globals time in seconds")
	fs.Parse(args)

	cfg, load, err := c.setup()
	if err != nil {
		return err
	}
	ctx := context.Background()
	sc, err := load(ctx)
	if err != nil {
		return err
	}

	tgt, err := raster.NewTarget(cfg.Rendering.Width, cfg.Rendering.Height)
	if err != nil {
		return err
	}
	tgt.Workers = cfg.Rendering.Workers
	tgt.Clear(f32.Vec4(cfg.Rendering.ClearColor), 1)

	start := time.Now()
	mapStats, textStats, err := sc.Render(tgt, cfg.Rendering.DepthTest, float32(*t))
	if err != nil {
		return err
	}
	logging.Logger().Info("frame rendered",
		"elapsed", time.Since(start),
		"map_written", mapStats.Written,
		"text_written", textStats.Written,
		"text_discarded", textStats.Discarded)

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, tgt.Image()); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", *out, err)
	}
	return f.Close()
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, load, err := c.setup()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := frameserver.NewServer(ctx, cfg, load)
	if err != nil {
		return err
	}
	if cfg.Server.Watch {
		if err := srv.Watch(ctx, c.scenePath); err != nil {
			return fmt.Errorf("watching scene: %w", err)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Stop(shutdown)
	}
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	cfg, load, err := c.setup()
	if err != nil {
		return err
	}
	sc, err := load(context.Background())
	if err != nil {
		return err
	}

	application, err := app.New(cfg, sc)
	if err != nil {
		return err
	}
	defer application.Cleanup()
	return application.Run()
}

func runShaders(args []string) error {
	fs := flag.NewFlagSet("shaders", flag.ExitOnError)
	out := fs.String("out", ".", "output directory")
	fs.Parse(args)

	if err := os.MkdirAll(*out, 0755); err != nil {
		return err
	}
	for _, src := range renderer.Shaders() {
		words, err := renderer.CompileSPIRV(src.WGSL)
		if err != nil {
			return fmt.Errorf("%s shader: %w", src.Name, err)
		}
		path := filepath.Join(*out, src.Name+".spv")
		if err := os.WriteFile(path, spirvBytes(words), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d words)\n", path, len(words))
	}
	return nil
}

func spirvBytes(words []uint32) []byte {
	b := make([]byte, 0, 4*len(words))
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}
