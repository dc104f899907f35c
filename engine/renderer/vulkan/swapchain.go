package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// VulkanSwapchain owns the surface images plus the MSAA color target and
// depth target that frames render into before resolving to the surface.
type VulkanSwapchain struct {
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	Extent      vk.Extent2D
	ImageCount  uint32
	SampleCount vk.SampleCountFlagBits

	images     []vk.Image
	imageViews []vk.ImageView

	colorImage *VulkanImage
	colorView  vk.ImageView
	depthImage *VulkanImage
	depthView  vk.ImageView
}

// chooseSurfaceFormat prefers 8-bit BGRA with an sRGB color space and falls
// back to whatever the surface lists first.
func chooseSurfaceFormat(available []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range available {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return available[0]
}

// choosePresentMode prefers mailbox and falls back to FIFO, which is always
// available.
func choosePresentMode(available []vk.PresentMode) vk.PresentMode {
	for _, mode := range available {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent takes the surface's fixed extent when it has one, otherwise
// clamps the framebuffer size into the supported range.
func chooseExtent(capabilities vk.SurfaceCapabilities, framebufferWidth, framebufferHeight uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  Clamp(framebufferWidth, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: Clamp(framebufferHeight, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

func SwapchainCreate(context *VulkanContext, width, height uint32, samples vk.SampleCountFlagBits) (*VulkanSwapchain, error) {
	sc := &VulkanSwapchain{SampleCount: samples}
	if err := sc.create(context, width, height); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *VulkanSwapchain) create(context *VulkanContext, width, height uint32) error {
	device := context.Device

	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return err
	}
	support := &device.SwapchainSupport

	sc.ImageFormat = chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes)
	sc.Extent = chooseExtent(support.Capabilities, width, height)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainInfo.QueueFamilyIndexCount = 2
		swapchainInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if res := vk.CreateSwapchain(device.LogicalDevice, &swapchainInfo, context.Allocator, &sc.Handle); res != vk.Success {
		return fmt.Errorf("vkCreateSwapchainKHR failed with %s", ResultString(res))
	}

	if res := vk.GetSwapchainImages(device.LogicalDevice, sc.Handle, &sc.ImageCount, nil); res != vk.Success {
		return fmt.Errorf("failed to get swapchain images: %s", ResultString(res))
	}
	sc.images = make([]vk.Image, sc.ImageCount)
	if res := vk.GetSwapchainImages(device.LogicalDevice, sc.Handle, &sc.ImageCount, sc.images); res != vk.Success {
		return fmt.Errorf("failed to get swapchain images: %s", ResultString(res))
	}

	sc.imageViews = make([]vk.ImageView, sc.ImageCount)
	for i, image := range sc.images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   sc.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if res := vk.CreateImageView(device.LogicalDevice, &viewInfo, context.Allocator, &sc.imageViews[i]); res != vk.Success {
			return fmt.Errorf("failed to create swapchain image view: %s", ResultString(res))
		}
	}

	if err := sc.createRenderAttachments(context); err != nil {
		return err
	}

	core.LogInfo("swapchain created (%dx%d, %d images, %dx msaa)",
		sc.Extent.Width, sc.Extent.Height, sc.ImageCount, sc.SampleCount)
	return nil
}

// createRenderAttachments builds the shared MSAA color target and the depth
// target at surface extent and the current sample count.
func (sc *VulkanSwapchain) createRenderAttachments(context *VulkanContext) error {
	if sc.SampleCount > vk.SampleCount1Bit {
		colorImage, err := ImageCreate(context, ImageConfig{
			Width:   sc.Extent.Width,
			Height:  sc.Extent.Height,
			Format:  sc.ImageFormat.Format,
			Tiling:  vk.ImageTilingOptimal,
			Usage:   vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
			Memory:  vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
			Samples: sc.SampleCount,
		})
		if err != nil {
			return err
		}
		sc.colorImage = colorImage
		sc.colorView, err = colorImage.CreateView(context, vk.ImageViewType2d,
			vk.ImageAspectFlags(vk.ImageAspectColorBit), 0, 1, 0, 1)
		if err != nil {
			return err
		}
	}

	if !DeviceDetectDepthFormat(context.Device) {
		return fmt.Errorf("no supported depth format")
	}
	depthImage, err := ImageCreate(context, ImageConfig{
		Width:   sc.Extent.Width,
		Height:  sc.Extent.Height,
		Format:  context.Device.DepthFormat,
		Tiling:  vk.ImageTilingOptimal,
		Usage:   vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		Memory:  vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		Samples: sc.SampleCount,
	})
	if err != nil {
		return err
	}
	sc.depthImage = depthImage
	sc.depthView, err = depthImage.CreateView(context, vk.ImageViewType2d,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit), 0, 1, 0, 1)
	return err
}

// AcquireNextImage returns the acquire result and the image index. Failures
// of the underlying call surface as OutOfDate with index 0 so the caller's
// recreate path handles them uniformly.
func (sc *VulkanSwapchain) AcquireNextImage(context *VulkanContext, available vk.Semaphore) (vk.Result, uint32) {
	var imageIndex uint32
	res := vk.AcquireNextImage(context.Device.LogicalDevice, sc.Handle, vk.MaxUint64, available, vk.NullFence, &imageIndex)
	if res != vk.Success && res != vk.Suboptimal && res != vk.ErrorOutOfDate {
		core.LogWarn("vkAcquireNextImageKHR failed with %s", ResultString(res))
		return vk.ErrorOutOfDate, 0
	}
	return res, imageIndex
}

// RenderTargets yields the attachment pair for one surface image. With MSAA
// the color target is the shared multisample image resolving into the
// surface image; without it the surface image is rendered directly.
//
// Color contents are loaded, not cleared: the frame loop clears the images
// once per frame before any pass begins, since the set of recorded passes
// varies frame to frame.
func (sc *VulkanSwapchain) RenderTargets(imageIndex uint32, clearColor vk.ClearValue) (RenderTarget, RenderTarget) {
	color := RenderTarget{
		Format:      sc.ImageFormat.Format,
		LoadOp:      vk.AttachmentLoadOpLoad,
		ClearValue:  clearColor,
		FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
	}
	if sc.SampleCount > vk.SampleCount1Bit {
		color.View = sc.colorView
		color.ResolveView = sc.imageViews[imageIndex]
	} else {
		color.View = sc.imageViews[imageIndex]
	}

	var depthClear vk.ClearValue
	depthClear.SetDepthStencil(1, 0)
	depth := RenderTarget{
		View:        sc.depthView,
		Format:      sc.depthImage.Format,
		LoadOp:      vk.AttachmentLoadOpClear,
		ClearValue:  depthClear,
		FinalLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	return color, depth
}

func (sc *VulkanSwapchain) DepthFormat() vk.Format {
	return sc.depthImage.Format
}

// Image returns the raw surface image for primary-buffer barriers.
func (sc *VulkanSwapchain) Image(imageIndex uint32) vk.Image {
	return sc.images[imageIndex]
}

// MSAAImage returns the multisample color image, or nil when MSAA is off.
func (sc *VulkanSwapchain) MSAAImage() *VulkanImage {
	return sc.colorImage
}

// Recreate tears down and rebuilds the swapchain for a new extent or sample
// count. The caller must have quiesced the device.
func (sc *VulkanSwapchain) Recreate(context *VulkanContext, width, height uint32, samples vk.SampleCountFlagBits) error {
	sc.destroyResources(context)
	sc.SampleCount = samples
	return sc.create(context, width, height)
}

func (sc *VulkanSwapchain) destroyResources(context *VulkanContext) {
	device := context.Device.LogicalDevice

	if sc.depthView != vk.NullImageView {
		vk.DestroyImageView(device, sc.depthView, context.Allocator)
		sc.depthView = vk.NullImageView
	}
	if sc.depthImage != nil {
		sc.depthImage.Destroy(context)
		sc.depthImage = nil
	}
	if sc.colorView != vk.NullImageView {
		vk.DestroyImageView(device, sc.colorView, context.Allocator)
		sc.colorView = vk.NullImageView
	}
	if sc.colorImage != nil {
		sc.colorImage.Destroy(context)
		sc.colorImage = nil
	}
	for _, view := range sc.imageViews {
		vk.DestroyImageView(device, view, context.Allocator)
	}
	sc.imageViews = nil
	sc.images = nil

	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(device, sc.Handle, context.Allocator)
		sc.Handle = vk.NullSwapchain
	}
}

func (sc *VulkanSwapchain) Destroy(context *VulkanContext) {
	sc.destroyResources(context)
}
