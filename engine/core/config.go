package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	BackendVulkan   = "vulkan"
	BackendHeadless = "headless"
)

// WaitForever is the timeout used by every synchronization wait unless the
// configuration asks for a finite one.
const WaitForever time.Duration = 1<<63 - 1

type ApplicationConfig struct {
	Name   string `toml:"name"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      int32  `toml:"x"`
	Y      int32  `toml:"y"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	Backend string `toml:"backend"`
	// FenceTimeoutMS bounds fence waits. Zero waits forever.
	FenceTimeoutMS uint32     `toml:"fence_timeout_ms"`
	MaxTextures    uint32     `toml:"max_textures"`
	VSync          bool       `toml:"vsync"`
	ClearColor     [4]float32 `toml:"clear_color"`
}

type AssetsConfig struct {
	Root     string `toml:"root"`
	Manifest string `toml:"manifest"`
	Watch    bool   `toml:"watch"`
}

type EngineConfig struct {
	Application ApplicationConfig `toml:"application"`
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	Assets      AssetsConfig      `toml:"assets"`
}

func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Application: ApplicationConfig{
			Name:   "Anima Mesh",
			Width:  1280,
			Height: 720,
			X:      100,
			Y:      100,
		},
		Log: LogConfig{
			Level: "debug",
		},
		Renderer: RendererConfig{
			Backend:     BackendVulkan,
			MaxTextures: 15,
			VSync:       true,
			ClearColor:  [4]float32{0.0, 0.0, 0.2, 1.0},
		},
		Assets: AssetsConfig{
			Root:     "assets",
			Manifest: "assets/manifest.yaml",
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown keys in config '%s': %w\n%s", path, err, strict.String())
		}
		return nil, fmt.Errorf("failed to parse config '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EngineConfig) Validate() error {
	switch c.Renderer.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		return fmt.Errorf("unknown renderer backend '%s'", c.Renderer.Backend)
	}
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("invalid window size %dx%d", c.Application.Width, c.Application.Height)
	}
	if c.Renderer.MaxTextures == 0 {
		return fmt.Errorf("max_textures must be greater than zero")
	}
	return nil
}

// FenceTimeout converts the configured milliseconds into a wait duration.
func (c *RendererConfig) FenceTimeout() time.Duration {
	if c.FenceTimeoutMS == 0 {
		return WaitForever
	}
	return time.Duration(c.FenceTimeoutMS) * time.Millisecond
}
