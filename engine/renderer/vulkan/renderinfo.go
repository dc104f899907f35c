package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// RenderTarget describes one attachment binding for a render info. A
// non-null ResolveView adds a single-sample resolve attachment for it.
type RenderTarget struct {
	View        vk.ImageView
	ResolveView vk.ImageView
	Format      vk.Format
	LoadOp      vk.AttachmentLoadOp
	ClearValue  vk.ClearValue
	FinalLayout vk.ImageLayout
}

type renderPassParams struct {
	colorFormats      []vk.Format
	depthFormat       vk.Format
	samples           vk.SampleCountFlagBits
	viewMask          uint32
	colorLoadOps      []vk.AttachmentLoadOp
	colorFinalLayouts []vk.ImageLayout
	resolveFormats    []vk.Format
	depthFinalLayout  vk.ImageLayout
}

// createRenderPass builds a single-subpass render pass. Passes built from the
// same formats and sample count are compatible regardless of their ops, which
// is what lets pipelines and render infos build theirs independently.
func createRenderPass(context *VulkanContext, params renderPassParams) (vk.RenderPass, error) {
	var attachments []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	var resolveRefs []vk.AttachmentReference

	for i, format := range params.colorFormats {
		loadOp := vk.AttachmentLoadOpClear
		if params.colorLoadOps != nil {
			loadOp = params.colorLoadOps[i]
		}
		finalLayout := vk.ImageLayoutColorAttachmentOptimal
		if params.colorFinalLayouts != nil {
			finalLayout = params.colorFinalLayouts[i]
		}
		initialLayout := vk.ImageLayoutUndefined
		if loadOp == vk.AttachmentLoadOpLoad {
			initialLayout = finalLayout
		}

		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         format,
			Samples:        params.samples,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    finalLayout,
		})
	}

	if params.resolveFormats != nil {
		for i, format := range params.resolveFormats {
			if format == vk.FormatUndefined {
				resolveRefs = append(resolveRefs, vk.AttachmentReference{
					Attachment: vk.AttachmentUnused,
				})
				continue
			}
			finalLayout := vk.ImageLayoutColorAttachmentOptimal
			if params.colorFinalLayouts != nil {
				finalLayout = params.colorFinalLayouts[i]
			}
			resolveRefs = append(resolveRefs, vk.AttachmentReference{
				Attachment: uint32(len(attachments)),
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			})
			attachments = append(attachments, vk.AttachmentDescription{
				Format:         format,
				Samples:        vk.SampleCount1Bit,
				LoadOp:         vk.AttachmentLoadOpDontCare,
				StoreOp:        vk.AttachmentStoreOpStore,
				StencilLoadOp:  vk.AttachmentLoadOpDontCare,
				StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout:  vk.ImageLayoutUndefined,
				FinalLayout:    finalLayout,
			})
		}
	}

	var depthRef *vk.AttachmentReference
	if params.depthFormat != vk.FormatUndefined {
		depthFinal := params.depthFinalLayout
		if depthFinal == vk.ImageLayoutUndefined {
			depthFinal = vk.ImageLayoutDepthStencilAttachmentOptimal
		}
		depthRef = &vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         params.depthFormat,
			Samples:        params.samples,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    depthFinal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}
	if len(resolveRefs) > 0 {
		subpass.PResolveAttachments = resolveRefs
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentWriteBit),
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	if params.viewMask != 0 {
		passInfo.PNext = unsafe.Pointer(&vk.RenderPassMultiviewCreateInfo{
			SType:            vk.StructureTypeRenderPassMultiviewCreateInfo,
			SubpassCount:     1,
			PViewMasks:       []uint32{params.viewMask},
			CorrelationMaskCount: 1,
			PCorrelationMasks:    []uint32{params.viewMask},
		})
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(context.Device.LogicalDevice, &passInfo, context.Allocator, &renderPass); res != vk.Success {
		return vk.NullRenderPass, fmt.Errorf("vkCreateRenderPass failed with %s", ResultString(res))
	}
	return renderPass, nil
}

// RenderInfo binds a pipeline to a concrete set of attachments. The pass and
// framebuffer are resolved once at construction and reused every frame.
type RenderInfo struct {
	Pipeline *Pipeline

	renderPass  vk.RenderPass
	framebuffer vk.Framebuffer
	extent      vk.Extent2D
	clearValues []vk.ClearValue
}

// NewRenderInfo validates the targets against the pipeline's frozen formats
// and compiles the attachment state. The render info retains the pipeline.
func NewRenderInfo(context *VulkanContext, pipeline *Pipeline, width, height uint32, colorTargets []RenderTarget, depthTarget *RenderTarget) (*RenderInfo, error) {
	if len(colorTargets) != len(pipeline.ColorFormats) {
		return nil, fmt.Errorf("render info has %d color targets but pipeline declares %d formats",
			len(colorTargets), len(pipeline.ColorFormats))
	}
	for i, target := range colorTargets {
		if target.Format != pipeline.ColorFormats[i] {
			return nil, fmt.Errorf("color target %d format %d does not match pipeline format %d",
				i, target.Format, pipeline.ColorFormats[i])
		}
	}
	if (depthTarget != nil) != (pipeline.DepthFormat != vk.FormatUndefined) {
		return nil, fmt.Errorf("render info depth target does not match pipeline depth format")
	}
	if depthTarget != nil && depthTarget.Format != pipeline.DepthFormat {
		return nil, fmt.Errorf("depth target format %d does not match pipeline format %d",
			depthTarget.Format, pipeline.DepthFormat)
	}

	params := renderPassParams{
		colorFormats:      make([]vk.Format, len(colorTargets)),
		samples:           pipeline.SampleCount,
		colorLoadOps:      make([]vk.AttachmentLoadOp, len(colorTargets)),
		colorFinalLayouts: make([]vk.ImageLayout, len(colorTargets)),
	}
	if pipeline.ViewCount > 1 {
		params.viewMask = (1 << pipeline.ViewCount) - 1
	}

	hasResolve := false
	resolveFormats := make([]vk.Format, len(colorTargets))
	attachments := make([]vk.ImageView, 0, len(colorTargets)+2)
	clearValues := make([]vk.ClearValue, 0, len(colorTargets)+1)
	for i, target := range colorTargets {
		params.colorFormats[i] = target.Format
		params.colorLoadOps[i] = target.LoadOp
		params.colorFinalLayouts[i] = target.FinalLayout
		attachments = append(attachments, target.View)
		clearValues = append(clearValues, target.ClearValue)
		if target.ResolveView != vk.NullImageView {
			hasResolve = true
			resolveFormats[i] = target.Format
		}
	}
	if hasResolve {
		params.resolveFormats = resolveFormats
		for i, target := range colorTargets {
			if resolveFormats[i] != vk.FormatUndefined {
				attachments = append(attachments, target.ResolveView)
				clearValues = append(clearValues, target.ClearValue)
			}
		}
	}
	if depthTarget != nil {
		params.depthFormat = depthTarget.Format
		params.depthFinalLayout = depthTarget.FinalLayout
		attachments = append(attachments, depthTarget.View)
		clearValues = append(clearValues, depthTarget.ClearValue)
	}

	renderPass, err := createRenderPass(context, params)
	if err != nil {
		return nil, err
	}

	layers := uint32(1)
	framebufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          layers,
	}
	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(context.Device.LogicalDevice, &framebufferInfo, context.Allocator, &framebuffer); res != vk.Success {
		vk.DestroyRenderPass(context.Device.LogicalDevice, renderPass, context.Allocator)
		return nil, fmt.Errorf("vkCreateFramebuffer failed with %s", ResultString(res))
	}

	return &RenderInfo{
		Pipeline:    pipeline.Retain(),
		renderPass:  renderPass,
		framebuffer: framebuffer,
		extent:      vk.Extent2D{Width: width, Height: height},
		clearValues: clearValues,
	}, nil
}

// Begin starts the pass. When usesSecondaries is set the primary buffer may
// only execute secondaries recorded against InheritanceInfo.
func (ri *RenderInfo) Begin(cb vk.CommandBuffer, usesSecondaries bool) {
	contents := vk.SubpassContentsInline
	if usesSecondaries {
		contents = vk.SubpassContentsSecondaryCommandBuffers
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  ri.renderPass,
		Framebuffer: ri.framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: ri.extent,
		},
		ClearValueCount: uint32(len(ri.clearValues)),
		PClearValues:    ri.clearValues,
	}
	vk.CmdBeginRenderPass(cb, &beginInfo, contents)
}

func (ri *RenderInfo) End(cb vk.CommandBuffer) {
	vk.CmdEndRenderPass(cb)
}

// InheritanceInfo describes this pass for secondary command buffers. A
// secondary recorded with it must be executed inside this exact pass.
func (ri *RenderInfo) InheritanceInfo() *vk.CommandBufferInheritanceInfo {
	return &vk.CommandBufferInheritanceInfo{
		SType:       vk.StructureTypeCommandBufferInheritanceInfo,
		RenderPass:  ri.renderPass,
		Subpass:     0,
		Framebuffer: ri.framebuffer,
	}
}

// BindPipeline binds the pipeline and supplies the flipped viewport.
func (ri *RenderInfo) BindPipeline(cb vk.CommandBuffer) {
	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, ri.Pipeline.Handle)
	ri.SetViewportScissor(cb)
}

// SetViewportScissor supplies the dynamic viewport and scissor. The viewport
// has negative height and a y offset of the full height, flipping clip-space
// y to point up in image space.
func (ri *RenderInfo) SetViewportScissor(cb vk.CommandBuffer) {
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(ri.extent.Height),
		Width:    float32(ri.extent.Width),
		Height:   -float32(ri.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: ri.extent,
	}
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{scissor})
}

func (ri *RenderInfo) Destroy(context *VulkanContext) {
	vk.DestroyFramebuffer(context.Device.LogicalDevice, ri.framebuffer, context.Allocator)
	vk.DestroyRenderPass(context.Device.LogicalDevice, ri.renderPass, context.Allocator)
	ri.Pipeline.Release(context)
}
