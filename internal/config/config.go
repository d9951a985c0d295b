package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tileview/internal/texture"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config holds application configuration
type Config struct {
	Rendering Rendering `yaml:"rendering"`
	Server    Server    `yaml:"server"`
	Assets    Assets    `yaml:"assets"`
	Log       Log       `yaml:"log"`
}

// Rendering contains rendering parameters
type Rendering struct {
	// Width and Height are the offscreen frame size in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Filter is the atlas sampler filter: nearest or linear.
	Filter string `yaml:"filter"`

	// ClearColor is the RGBA clear value, 0-1 per channel.
	ClearColor [4]float32 `yaml:"clear_color"`

	// DepthTest enables the Less depth test with depth writes.
	DepthTest bool `yaml:"depth_test"`

	// Workers bounds rasterizer parallelism. 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// Server contains frame server settings
type Server struct {
	Addr string `yaml:"addr"`

	// Watch reloads the scene when its file changes.
	Watch bool `yaml:"watch"`

	// MaxFramePixels caps width*height of a requested frame.
	MaxFramePixels int `yaml:"max_frame_pixels"`
}

// Assets contains resource loading settings
type Assets struct {
	CacheDir string        `yaml:"cache_dir"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Log contains logger settings
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Rendering: Rendering{
			Width:      1280,
			Height:     720,
			Filter:     "nearest",
			ClearColor: [4]float32{0.627, 0.765, 0.812, 1.0},
			DepthTest:  true,
		},
		Server: Server{
			Addr:           ":8080",
			MaxFramePixels: 3840 * 2160,
		},
		Assets: Assets{
			CacheDir: ".asset_cache",
			Timeout:  30 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Rendering.Width <= 0 || c.Rendering.Height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalid, c.Rendering.Width, c.Rendering.Height)
	}
	if _, err := texture.ParseFilter(c.Rendering.Filter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for i, v := range c.Rendering.ClearColor {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: clear_color[%d] = %v outside 0-1", ErrInvalid, i, v)
		}
	}
	if c.Server.MaxFramePixels <= 0 {
		return fmt.Errorf("%w: max_frame_pixels must be positive", ErrInvalid)
	}
	if c.Rendering.Workers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalid)
	}
	return nil
}

// Sampler returns the atlas sampler described by the rendering section.
func (c *Config) Sampler() texture.Sampler {
	f, _ := texture.ParseFilter(c.Rendering.Filter)
	return texture.Sampler{Filter: f}
}
