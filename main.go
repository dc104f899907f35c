package main

import (
	"flag"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/quazuo/pbr-model-viewer/engine/assets"
	"github.com/quazuo/pbr-model-viewer/engine/config"
	"github.com/quazuo/pbr-model-viewer/engine/core"
	"github.com/quazuo/pbr-model-viewer/engine/platform"
	"github.com/quazuo/pbr-model-viewer/engine/renderer"
)

// orbitCamera circles the model at a fixed focus point. Scroll and drag
// input can move it through the renderer's exported transform fields; the
// default slowly rotates so a fresh launch shows the whole model.
type orbitCamera struct {
	distance float32
	yaw      float32
	pitch    float32
}

func (c *orbitCamera) position() mgl32.Vec3 {
	cosPitch := float32(math.Cos(float64(c.pitch)))
	return mgl32.Vec3{
		c.distance * cosPitch * float32(math.Sin(float64(c.yaw))),
		c.distance * float32(math.Sin(float64(c.pitch))),
		c.distance * cosPitch * float32(math.Cos(float64(c.yaw))),
	}
}

func (c *orbitCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.position(), mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
}

func (c *orbitCamera) Position() mgl32.Vec3 {
	return c.position()
}

func (c *orbitCamera) update(delta float64) {
	c.yaw += float32(delta) * 0.2
}

func main() {
	configPath := flag.String("config", "viewer.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		core.LogFatal("failed to load configuration: %v", err)
	}
	core.SetLevelFromConfig(cfg.Debug)

	core.EventSystemInitialize()
	if err := core.MetricsInitialize(); err != nil {
		core.LogFatal("failed to initialize metrics: %v", err)
	}

	p := platform.New()
	if err := p.Startup(cfg.Window.Title, cfg.Window.PosX, cfg.Window.PosY, cfg.Window.Width, cfg.Window.Height); err != nil {
		core.LogFatal("platform startup failed: %v", err)
	}
	defer p.Shutdown()

	camera := &orbitCamera{distance: 30, pitch: 0.3}

	r, err := renderer.New(p, cfg, camera, nil, assets.ObjImporter{})
	if err != nil {
		core.LogFatal("renderer startup failed: %v", err)
	}
	defer r.Shutdown()

	if cfg.Assets.WatchShaders {
		watcher, err := assets.NewShaderWatcher(cfg.Assets.ShaderDir)
		if err != nil {
			core.LogWarn("shader watching disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	if cfg.Assets.EnvironmentMap != "" {
		if err := r.LoadEnvironmentMap(cfg.Assets.EnvironmentMap); err != nil {
			core.LogError("environment map load failed: %v", err)
		}
	}
	if cfg.Assets.ModelPath != "" {
		if err := r.LoadModel(cfg.Assets.ModelPath); err != nil {
			core.LogError("model load failed: %v", err)
		}
	}

	clock := core.NewClock()
	clock.Start()

	for !p.ShouldClose() && !r.QuitRequested() {
		p.PumpMessages()
		clock.Update()
		delta := clock.Delta()
		camera.update(delta)

		if err := r.RenderFrame(); err != nil {
			core.LogFatal("frame failed: %v", err)
		}
		core.MetricsUpdate(delta)
	}
}
