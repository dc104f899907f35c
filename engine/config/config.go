package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config drives the viewer startup state. It is read once from a TOML file
// and never written back.
type Config struct {
	Window struct {
		Title  string `toml:"title"`
		Width  uint32 `toml:"width"`
		Height uint32 `toml:"height"`
		PosX   uint32 `toml:"pos_x"`
		PosY   uint32 `toml:"pos_y"`
	} `toml:"window"`

	Renderer struct {
		Validation bool `toml:"validation"`
		Msaa       bool `toml:"msaa"`
		Ssao       bool `toml:"ssao"`
		Ibl        bool `toml:"ibl"`
		VSync      bool `toml:"vsync"`
	} `toml:"renderer"`

	Assets struct {
		ShaderDir      string `toml:"shader_dir"`
		ModelPath      string `toml:"model_path"`
		EnvironmentMap string `toml:"environment_map"`
		WatchShaders   bool   `toml:"watch_shaders"`
	} `toml:"assets"`

	Debug bool `toml:"debug"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.Window.Title = "PBR Model Viewer"
	cfg.Window.Width = 1200
	cfg.Window.Height = 800
	cfg.Window.PosX = 100
	cfg.Window.PosY = 100
	cfg.Renderer.Validation = false
	cfg.Renderer.Msaa = false
	cfg.Renderer.Ssao = true
	cfg.Renderer.Ibl = true
	cfg.Assets.ShaderDir = "shaders"
	cfg.Assets.EnvironmentMap = "assets/envmaps/vienna.hdr"
	cfg.Assets.WatchShaders = true
	return cfg
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Window.Width == 0 || cfg.Window.Height == 0 {
		return nil, fmt.Errorf("config %s: window dimensions must be positive", path)
	}
	return cfg, nil
}
