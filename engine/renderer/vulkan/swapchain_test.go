package vulkan

import (
	"math"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
)

func TestChooseSurfaceFormat(t *testing.T) {
	preferred := vk.SurfaceFormat{
		Format:     vk.FormatB8g8r8a8Unorm,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}
	other := vk.SurfaceFormat{
		Format:     vk.FormatR8g8b8a8Unorm,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}

	got := chooseSurfaceFormat([]vk.SurfaceFormat{other, preferred})
	assert.Equal(t, preferred, got)

	got = chooseSurfaceFormat([]vk.SurfaceFormat{other})
	assert.Equal(t, other, got)
}

func TestChoosePresentMode(t *testing.T) {
	got := choosePresentMode([]vk.PresentMode{
		vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate,
	})
	assert.Equal(t, vk.PresentModeMailbox, got)

	got = choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate})
	assert.Equal(t, vk.PresentModeFifo, got)
}

func TestChooseExtent(t *testing.T) {
	t.Run("fixed surface extent wins", func(t *testing.T) {
		caps := vk.SurfaceCapabilities{
			CurrentExtent: vk.Extent2D{Width: 1280, Height: 720},
		}
		got := chooseExtent(caps, 1920, 1080)
		assert.Equal(t, vk.Extent2D{Width: 1280, Height: 720}, got)
	})

	t.Run("framebuffer size clamped into range", func(t *testing.T) {
		caps := vk.SurfaceCapabilities{
			CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
			MinImageExtent: vk.Extent2D{Width: 64, Height: 64},
			MaxImageExtent: vk.Extent2D{Width: 2048, Height: 2048},
		}
		got := chooseExtent(caps, 4000, 32)
		assert.Equal(t, vk.Extent2D{Width: 2048, Height: 64}, got)

		got = chooseExtent(caps, 800, 600)
		assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, got)
	})
}
