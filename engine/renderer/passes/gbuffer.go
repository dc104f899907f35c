package passes

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

// GBufferNormalFormat holds normals in RGB at half-float precision.
const GBufferNormalFormat = vk.FormatR16g16b16a16Sfloat

// GBufferPositionFormat holds view-space positions in RGB.
const GBufferPositionFormat = vk.FormatR16g16b16a16Sfloat

// GBuffer owns the prepass attachments: normal, view-space position and a
// private depth target, all at swapchain extent with a single sample.
type GBuffer struct {
	Normal   *vulkan.Texture
	Position *vulkan.Texture

	DepthImage   *vulkan.VulkanImage
	DepthView    vk.ImageView
	DepthSampler vk.Sampler

	Width  uint32
	Height uint32
}

func NewGBuffer(context *vulkan.VulkanContext, width, height uint32) (*GBuffer, error) {
	gb := &GBuffer{}
	if err := gb.create(context, width, height); err != nil {
		gb.Destroy(context)
		return nil, err
	}
	return gb, nil
}

func (gb *GBuffer) create(context *vulkan.VulkanContext, width, height uint32) error {
	attachmentUsage := vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)

	normal, err := vulkan.NewTextureBuilder().
		WithFormat(GBufferNormalFormat).
		WithUsage(attachmentUsage).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		Uninitialized(width, height).
		Create(context)
	if err != nil {
		return err
	}
	gb.Normal = normal

	position, err := vulkan.NewTextureBuilder().
		WithFormat(GBufferPositionFormat).
		WithUsage(attachmentUsage).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		Uninitialized(width, height).
		Create(context)
	if err != nil {
		return err
	}
	gb.Position = position

	depthImage, err := vulkan.ImageCreate(context, vulkan.ImageConfig{
		Width:  width,
		Height: height,
		Format: context.Device.DepthFormat,
		Tiling: vk.ImageTilingOptimal,
		Usage:  vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit),
		Memory: vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	})
	if err != nil {
		return err
	}
	gb.DepthImage = depthImage
	gb.DepthView, err = depthImage.CreateView(context, vk.ImageViewType2d,
		vk.ImageAspectFlags(vk.ImageAspectDepthBit), 0, 1, 0, 1)
	if err != nil {
		return err
	}

	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterNearest,
		MinFilter:    vk.FilterNearest,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		MipmapMode:   vk.SamplerMipmapModeNearest,
	}
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &gb.DepthSampler); res != vk.Success {
		return fmt.Errorf("vkCreateSampler failed with %s", vulkan.ResultString(res))
	}

	gb.Width = width
	gb.Height = height
	return nil
}

// Recreate rebuilds the attachments for a new extent. Descriptor sets
// referencing the old textures must be re-committed afterwards.
func (gb *GBuffer) Recreate(context *vulkan.VulkanContext, width, height uint32) error {
	gb.Destroy(context)
	return gb.create(context, width, height)
}

func (gb *GBuffer) Destroy(context *vulkan.VulkanContext) {
	if gb.DepthSampler != vk.NullSampler {
		vk.DestroySampler(context.Device.LogicalDevice, gb.DepthSampler, context.Allocator)
		gb.DepthSampler = vk.NullSampler
	}
	if gb.DepthView != vk.NullImageView {
		vk.DestroyImageView(context.Device.LogicalDevice, gb.DepthView, context.Allocator)
		gb.DepthView = vk.NullImageView
	}
	if gb.DepthImage != nil {
		gb.DepthImage.Destroy(context)
		gb.DepthImage = nil
	}
	if gb.Position != nil {
		gb.Position.Destroy(context)
		gb.Position = nil
	}
	if gb.Normal != nil {
		gb.Normal.Destroy(context)
		gb.Normal = nil
	}
}
