package passes

import (
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

// Overlay is the external GUI backend. Render is called inside a secondary
// command buffer whose inherited attachment format and sample count the
// backend was initialized against.
type Overlay interface {
	Render(cb vk.CommandBuffer) error
}

// OverlayReiniter is implemented by overlay backends whose own pipelines are
// tied to the attachment sample count and must be rebuilt with the pass.
type OverlayReiniter interface {
	Reinit(colorFormat vk.Format, samples vk.SampleCountFlagBits) error
}

// GUI records the overlay draw. It always records, even with no overlay
// attached, so a frame with every other pass skipped still presents.
type GUI struct {
	overlay Overlay

	renderInfos []*vulkan.RenderInfo
	pipeline    *vulkan.Pipeline

	secondaries secondarySet
}

func NewGUI(context *vulkan.VulkanContext, overlay Overlay, colorFormat vk.Format, samples vk.SampleCountFlagBits) (*GUI, error) {
	g := &GUI{overlay: overlay}
	if err := g.buildPipeline(context, colorFormat, samples); err != nil {
		return nil, err
	}

	var err error
	g.secondaries, err = newSecondarySet(context)
	if err != nil {
		g.Destroy(context)
		return nil, err
	}
	return g, nil
}

// buildPipeline compiles a pass-shaped pipeline that owns the attachment
// contract the overlay inherits. The overlay binds its own pipelines inside
// the secondary buffer.
func (g *GUI) buildPipeline(context *vulkan.VulkanContext, colorFormat vk.Format, samples vk.SampleCountFlagBits) error {
	pipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader("shaders/gui.vert.spv").
		WithFragmentShader("shaders/gui.frag.spv").
		WithColorFormats(colorFormat).
		WithSampleCount(samples).
		WithDepthStencil(vk.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  vk.False,
			DepthWriteEnable: vk.False,
		}).
		Create(context)
	if err != nil {
		return err
	}
	g.pipeline = pipeline
	return nil
}

// RebuildPipeline re-initializes the pass for a new sample count, taking
// the overlay backend with it when the backend opts in.
func (g *GUI) RebuildPipeline(context *vulkan.VulkanContext, colorFormat vk.Format, samples vk.SampleCountFlagBits) error {
	g.dropRenderInfos(context)
	if g.pipeline != nil {
		g.pipeline.Release(context)
		g.pipeline = nil
	}
	if err := g.buildPipeline(context, colorFormat, samples); err != nil {
		return err
	}
	if reiniter, ok := g.overlay.(OverlayReiniter); ok {
		return reiniter.Reinit(colorFormat, samples)
	}
	return nil
}

func (g *GUI) RebuildTargets(context *vulkan.VulkanContext, swapchain *vulkan.VulkanSwapchain) error {
	g.dropRenderInfos(context)

	for i := uint32(0); i < swapchain.ImageCount; i++ {
		color, _ := swapchain.RenderTargets(i, vk.ClearValue{})
		renderInfo, err := vulkan.NewRenderInfo(context, g.pipeline,
			swapchain.Extent.Width, swapchain.Extent.Height,
			[]vulkan.RenderTarget{color}, nil)
		if err != nil {
			return err
		}
		g.renderInfos = append(g.renderInfos, renderInfo)
	}
	return nil
}

func (g *GUI) dropRenderInfos(context *vulkan.VulkanContext) {
	for _, ri := range g.renderInfos {
		ri.Destroy(context)
	}
	g.renderInfos = nil
}

// Record captures the overlay into the slot's secondary buffer.
func (g *GUI) Record(slot int, imageIndex uint32) error {
	renderInfo := g.renderInfos[imageIndex]
	cb := g.secondaries.buffers[slot]
	if err := cb.BeginSecondary(renderInfo.InheritanceInfo()); err != nil {
		return err
	}

	if g.overlay != nil {
		renderInfo.SetViewportScissor(cb.Handle)
		if err := g.overlay.Render(cb.Handle); err != nil {
			return err
		}
	}

	if err := cb.End(); err != nil {
		return err
	}
	g.secondaries.recorded[slot] = true
	return nil
}

func (g *GUI) ResetFlag(slot int) { g.secondaries.ResetFlag(slot) }
func (g *GUI) Recorded(slot int) (vk.CommandBuffer, bool) { return g.secondaries.Recorded(slot) }

func (g *GUI) RenderInfo(imageIndex uint32) *vulkan.RenderInfo {
	return g.renderInfos[imageIndex]
}

func (g *GUI) Destroy(context *vulkan.VulkanContext) {
	g.secondaries.destroy(context)
	g.dropRenderInfos(context)
	if g.pipeline != nil {
		g.pipeline.Release(context)
	}
}
