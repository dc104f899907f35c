package passes

import (
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	debugVertShader = "shaders/debug.vert.spv"
	debugFragShader = "shaders/debug.frag.spv"
)

// DebugQuadSource selects which intermediate texture the overlay shows.
type DebugQuadSource int

const (
	DebugQuadNormals DebugQuadSource = iota
	DebugQuadPositions
	DebugQuadSSAO
)

// Debug blits an intermediate render target onto a corner quad, used to
// inspect the G-buffer and occlusion output at runtime.
type Debug struct {
	pipeline    *vulkan.Pipeline
	renderInfos []*vulkan.RenderInfo

	setLayout vk.DescriptorSetLayout
	sets      [vulkan.MaxFramesInFlight]*vulkan.DescriptorSet

	quad *vulkan.VulkanBuffer

	colorFormat vk.Format
	samples     vk.SampleCountFlagBits

	secondaries secondarySet
}

func NewDebug(context *vulkan.VulkanContext, pool vk.DescriptorPool, quad *vulkan.VulkanBuffer,
	colorFormat vk.Format, samples vk.SampleCountFlagBits) (*Debug, error) {
	d := &Debug{
		quad:        quad,
		colorFormat: colorFormat,
		samples:     samples,
	}

	layout, err := vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return nil, err
	}
	d.setLayout = layout

	for i := range d.sets {
		set, err := vulkan.AllocateDescriptorSet(context, pool, layout)
		if err != nil {
			d.Destroy(context, pool)
			return nil, err
		}
		d.sets[i] = set
	}

	if err := d.buildPipeline(context); err != nil {
		d.Destroy(context, pool)
		return nil, err
	}

	d.secondaries, err = newSecondarySet(context)
	if err != nil {
		d.Destroy(context, pool)
		return nil, err
	}
	return d, nil
}

func (d *Debug) buildPipeline(context *vulkan.VulkanContext) error {
	pipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader(debugVertShader).
		WithFragmentShader(debugFragShader).
		WithVertexInput(
			[]vk.VertexInputBindingDescription{model.SkyboxBindingDescription()},
			model.SkyboxAttributeDescriptions()).
		WithDescriptorLayouts(d.setLayout).
		WithColorFormats(d.colorFormat).
		WithSampleCount(d.samples).
		WithDepthStencil(vk.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  vk.False,
			DepthWriteEnable: vk.False,
		}).
		Create(context)
	if err != nil {
		return err
	}
	d.pipeline = pipeline
	return nil
}

// RebuildPipeline recompiles for a new sample count. Device must be idle.
func (d *Debug) RebuildPipeline(context *vulkan.VulkanContext, samples vk.SampleCountFlagBits) error {
	d.dropRenderInfos(context)
	if d.pipeline != nil {
		d.pipeline.Release(context)
		d.pipeline = nil
	}
	d.samples = samples
	return d.buildPipeline(context)
}

// RebuildTargets binds the overlay to the swapchain's per-image attachments.
func (d *Debug) RebuildTargets(context *vulkan.VulkanContext, swapchain *vulkan.VulkanSwapchain) error {
	d.dropRenderInfos(context)

	for i := uint32(0); i < swapchain.ImageCount; i++ {
		color, _ := swapchain.RenderTargets(i, vk.ClearValue{})
		renderInfo, err := vulkan.NewRenderInfo(context, d.pipeline,
			swapchain.Extent.Width, swapchain.Extent.Height,
			[]vulkan.RenderTarget{color}, nil)
		if err != nil {
			return err
		}
		d.renderInfos = append(d.renderInfos, renderInfo)
	}
	return nil
}

func (d *Debug) dropRenderInfos(context *vulkan.VulkanContext) {
	for _, ri := range d.renderInfos {
		ri.Destroy(context)
	}
	d.renderInfos = nil
}

// SetSource points the slot's overlay at the given texture.
func (d *Debug) SetSource(context *vulkan.VulkanContext, slot int, texture *vulkan.Texture) {
	d.sets[slot].QueueCombinedImageSampler(0, texture.View, texture.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)
}

// Record draws the inspection quad. Skipped when the overlay is disabled.
func (d *Debug) Record(slot int, imageIndex uint32, enabled bool) error {
	if !enabled {
		return nil
	}

	renderInfo := d.renderInfos[imageIndex]
	cb := d.secondaries.buffers[slot]
	if err := cb.BeginSecondary(renderInfo.InheritanceInfo()); err != nil {
		return err
	}

	renderInfo.BindPipeline(cb.Handle)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, d.pipeline.Layout,
		0, 1, []vk.DescriptorSet{d.sets[slot].Handle}, 0, nil)
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{d.quad.Handle}, []vk.DeviceSize{0})
	vk.CmdDraw(cb.Handle, uint32(len(model.QuadVertices)), 1, 0, 0)

	if err := cb.End(); err != nil {
		return err
	}
	d.secondaries.recorded[slot] = true
	return nil
}

func (d *Debug) ResetFlag(slot int) { d.secondaries.ResetFlag(slot) }
func (d *Debug) Recorded(slot int) (vk.CommandBuffer, bool) { return d.secondaries.Recorded(slot) }

func (d *Debug) RenderInfo(imageIndex uint32) *vulkan.RenderInfo {
	return d.renderInfos[imageIndex]
}

func (d *Debug) Reload(context *vulkan.VulkanContext) error {
	return d.pipeline.Reload(context)
}

func (d *Debug) Destroy(context *vulkan.VulkanContext, pool vk.DescriptorPool) {
	d.secondaries.destroy(context)
	d.dropRenderInfos(context)
	if d.pipeline != nil {
		d.pipeline.Release(context)
	}
	for _, set := range d.sets {
		if set != nil {
			set.Destroy(context, pool)
		}
	}
	if d.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, d.setLayout, context.Allocator)
	}
}
