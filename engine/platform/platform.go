package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	Window *glfw.Window
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetScrollCallback(scrollCallback)
	p.Window.SetFramebufferSizeCallback(framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	glfw.Terminate()
	return nil
}

// PumpMessages processes pending OS events.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until at least one OS event arrives. Used while the
// window is minimized and the swapchain cannot be recreated.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

// FramebufferExtent returns the current framebuffer size in pixels. Both are
// zero while the window is iconified.
func (p *Platform) FramebufferExtent() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(w), uint32(h)
}

// GetRequiredExtensionNames returns the instance extensions GLFW needs for
// surface creation on the current OS.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

// SetCursorLocked captures or releases the cursor for free-fly camera mode.
func (p *Platform) SetCursorLocked(locked bool) {
	if locked {
		p.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		p.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

func (p *Platform) CursorPos() (float64, float64) {
	return p.Window.GetCursorPos()
}

func scrollCallback(w *glfw.Window, xoff, yoff float64) {}

func framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.EventFire(core.EVENT_CODE_RESIZED, core.EventContext{
		Width:  uint32(width),
		Height: uint32(height),
	})
}
