package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// VulkanImage is a single image allocation. Views derived from it are
// subordinate and must not outlive it.
type VulkanImage struct {
	Handle     vk.Image
	Memory     vk.DeviceMemory
	Width      uint32
	Height     uint32
	Format     vk.Format
	MipLevels  uint32
	LayerCount uint32
	IsCubemap  bool
}

type ImageConfig struct {
	Width     uint32
	Height    uint32
	Format    vk.Format
	Tiling    vk.ImageTiling
	Usage     vk.ImageUsageFlags
	Memory    vk.MemoryPropertyFlags
	MipLevels uint32
	Layers    uint32
	Cubemap   bool
	Samples   vk.SampleCountFlagBits
}

func ImageCreate(context *VulkanContext, cfg ImageConfig) (*VulkanImage, error) {
	if cfg.MipLevels == 0 {
		cfg.MipLevels = 1
	}
	if cfg.Layers == 0 {
		cfg.Layers = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = vk.SampleCount1Bit
	}
	if cfg.Cubemap && cfg.Layers != 6 {
		return nil, fmt.Errorf("cubemap image requires 6 layers, got %d", cfg.Layers)
	}

	var flags vk.ImageCreateFlags
	if cfg.Cubemap {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    cfg.Format,
		Extent: vk.Extent3D{
			Width:  cfg.Width,
			Height: cfg.Height,
			Depth:  1,
		},
		MipLevels:     cfg.MipLevels,
		ArrayLayers:   cfg.Layers,
		Samples:       cfg.Samples,
		Tiling:        cfg.Tiling,
		Usage:         cfg.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageInfo, context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreateImage failed with %s", ResultString(res))
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, handle, &memReqs)
	memReqs.Deref()

	memoryIndex := context.FindMemoryIndex(memReqs.MemoryTypeBits, uint32(cfg.Memory))
	if memoryIndex < 0 {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("no suitable memory type for %dx%d image", cfg.Width, cfg.Height)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyImage(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("vkAllocateMemory failed with %s", ResultString(res))
	}
	vk.BindImageMemory(context.Device.LogicalDevice, handle, memory, 0)

	return &VulkanImage{
		Handle:     handle,
		Memory:     memory,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     cfg.Format,
		MipLevels:  cfg.MipLevels,
		LayerCount: cfg.Layers,
		IsCubemap:  cfg.Cubemap,
	}, nil
}

// CreateView creates a view over a mip/layer range of the image.
func (img *VulkanImage) CreateView(context *VulkanContext, viewType vk.ImageViewType, aspect vk.ImageAspectFlags, baseMip, mipCount, baseLayer, layerCount uint32) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.Handle,
		ViewType: viewType,
		Format:   img.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   baseMip,
			LevelCount:     mipCount,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, fmt.Errorf("vkCreateImageView failed with %s", ResultString(res))
	}
	return view, nil
}

func (img *VulkanImage) Destroy(context *VulkanContext) {
	if img.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, img.Handle, context.Allocator)
		img.Handle = vk.NullImage
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, img.Memory, context.Allocator)
		img.Memory = vk.NullDeviceMemory
	}
}

// transitionMasks holds the access masks and pipeline stages for one layout
// transition pair.
type transitionMasks struct {
	srcAccess vk.AccessFlags
	dstAccess vk.AccessFlags
	srcStage  vk.PipelineStageFlags
	dstStage  vk.PipelineStageFlags
}

type layoutPair struct {
	old vk.ImageLayout
	new vk.ImageLayout
}

// The finite set of transitions the renderer performs. Anything else is a
// programming error and fails with ErrUnsupportedTransition.
var supportedTransitions = map[layoutPair]transitionMasks{
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferSrcOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal}: {
		srcAccess: 0,
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		dstAccess: vk.AccessFlags(vk.AccessTransferReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
	{vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferDstOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		dstAccess: vk.AccessFlags(vk.AccessTransferWriteBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
	},
	{vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		dstAccess: vk.AccessFlags(vk.AccessShaderReadBit),
		srcStage:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		dstStage:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
	},
}

func lookupTransition(oldLayout, newLayout vk.ImageLayout) (transitionMasks, error) {
	masks, ok := supportedTransitions[layoutPair{oldLayout, newLayout}]
	if !ok {
		return transitionMasks{}, fmt.Errorf("%w: %d -> %d", core.ErrUnsupportedTransition, oldLayout, newLayout)
	}
	return masks, nil
}

// RecordTransition records a layout transition barrier covering all mips and
// layers of the image into cb.
func (img *VulkanImage) RecordTransition(cb vk.CommandBuffer, oldLayout, newLayout vk.ImageLayout) error {
	return img.RecordTransitionRange(cb, oldLayout, newLayout, 0, img.MipLevels)
}

// RecordTransitionRange transitions a contiguous mip range across all layers.
func (img *VulkanImage) RecordTransitionRange(cb vk.CommandBuffer, oldLayout, newLayout vk.ImageLayout, baseMip, mipCount uint32) error {
	masks, err := lookupTransition(oldLayout, newLayout)
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SrcAccessMask:       masks.srcAccess,
		DstAccessMask:       masks.dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   baseMip,
			LevelCount:     mipCount,
			BaseArrayLayer: 0,
			LayerCount:     img.LayerCount,
		},
	}

	vk.CmdPipelineBarrier(cb, masks.srcStage, masks.dstStage, 0,
		0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	return nil
}

// TransitionLayout performs the transition on a one-time command buffer and
// waits for the graphics queue to drain.
func (img *VulkanImage) TransitionLayout(context *VulkanContext, oldLayout, newLayout vk.ImageLayout) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	if err := img.RecordTransition(cb.Handle, oldLayout, newLayout); err != nil {
		return err
	}
	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}

// CopyFromBuffer copies tightly packed pixel data for all layers out of a
// staging buffer into mip 0. The image must be in transfer-dst layout.
func (img *VulkanImage) CopyFromBuffer(context *VulkanContext, buffer vk.Buffer) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     img.LayerCount,
		},
		ImageExtent: vk.Extent3D{
			Width:  img.Width,
			Height: img.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.Handle, buffer, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}

// GenerateMipmaps fills mips 1..N-1 with a top-down linear blit chain and
// leaves every level in finalLayout. Mip 0 must be in transfer-dst layout.
func (img *VulkanImage) GenerateMipmaps(context *VulkanContext, finalLayout vk.ImageLayout) error {
	if !context.Device.FormatSupportsLinearBlit(img.Format) {
		return fmt.Errorf("%w: format %d", core.ErrNoLinearBlitSupport, img.Format)
	}

	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	toSrc, err := lookupTransition(vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)
	if err != nil {
		return err
	}
	toFinal, err := lookupTransition(vk.ImageLayoutTransferSrcOptimal, finalLayout)
	if err != nil {
		return err
	}
	lastToFinal, err := lookupTransition(vk.ImageLayoutTransferDstOptimal, finalLayout)
	if err != nil {
		return err
	}

	mipBarrier := func(level uint32, masks transitionMasks, oldLayout, newLayout vk.ImageLayout) {
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.Handle,
			SrcAccessMask:       masks.srcAccess,
			DstAccessMask:       masks.dstAccess,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   level,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     img.LayerCount,
			},
		}
		vk.CmdPipelineBarrier(cb.Handle, masks.srcStage, masks.dstStage, 0,
			0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	}

	srcWidth := int32(img.Width)
	srcHeight := int32(img.Height)
	for i := uint32(1); i < img.MipLevels; i++ {
		mipBarrier(i-1, toSrc, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)

		dstWidth := max(srcWidth/2, 1)
		dstHeight := max(srcHeight/2, 1)

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       i - 1,
				BaseArrayLayer: 0,
				LayerCount:     img.LayerCount,
			},
			SrcOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: srcWidth, Y: srcHeight, Z: 1},
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       i,
				BaseArrayLayer: 0,
				LayerCount:     img.LayerCount,
			},
			DstOffsets: [2]vk.Offset3D{
				{X: 0, Y: 0, Z: 0},
				{X: dstWidth, Y: dstHeight, Z: 1},
			},
		}
		vk.CmdBlitImage(cb.Handle,
			img.Handle, vk.ImageLayoutTransferSrcOptimal,
			img.Handle, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)

		mipBarrier(i-1, toFinal, vk.ImageLayoutTransferSrcOptimal, finalLayout)

		srcWidth = dstWidth
		srcHeight = dstHeight
	}

	mipBarrier(img.MipLevels-1, lastToFinal, vk.ImageLayoutTransferDstOptimal, finalLayout)

	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}
