package passes

import (
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	prepassVertShader = "shaders/prepass.vert.spv"
	prepassFragShader = "shaders/prepass.frag.spv"
)

// Prepass fills the G-buffer with normals and view-space positions ahead of
// the SSAO pass.
type Prepass struct {
	pipeline   *vulkan.Pipeline
	renderInfo *vulkan.RenderInfo

	setLayout vk.DescriptorSetLayout
	sets      [vulkan.MaxFramesInFlight]*vulkan.DescriptorSet

	secondaries secondarySet
}

func NewPrepass(context *vulkan.VulkanContext, pool vk.DescriptorPool, gbuffer *GBuffer, uniformBuffers [vulkan.MaxFramesInFlight]*vulkan.VulkanBuffer, uniformSize vk.DeviceSize) (*Prepass, error) {
	p := &Prepass{}

	layout, err := vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return nil, err
	}
	p.setLayout = layout

	for i := range p.sets {
		set, err := vulkan.AllocateDescriptorSet(context, pool, layout)
		if err != nil {
			p.Destroy(context, pool)
			return nil, err
		}
		set.QueueUniformBuffer(0, uniformBuffers[i], 0, uniformSize).Commit(context)
		p.sets[i] = set
	}

	bindings := []vk.VertexInputBindingDescription{
		model.VertexBindingDescription(),
		model.InstanceBindingDescription(),
	}
	attributes := append(model.VertexAttributeDescriptions(), model.InstanceAttributeDescriptions(5)...)

	pipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader(prepassVertShader).
		WithFragmentShader(prepassFragShader).
		WithVertexInput(bindings, attributes).
		WithDescriptorLayouts(layout).
		WithColorFormats(GBufferNormalFormat, GBufferPositionFormat).
		WithDepthFormat(context.Device.DepthFormat).
		Create(context)
	if err != nil {
		p.Destroy(context, pool)
		return nil, err
	}
	p.pipeline = pipeline

	if err := p.RebuildTargets(context, gbuffer); err != nil {
		p.Destroy(context, pool)
		return nil, err
	}

	p.secondaries, err = newSecondarySet(context)
	if err != nil {
		p.Destroy(context, pool)
		return nil, err
	}
	return p, nil
}

// RebuildTargets re-binds the pass to the G-buffer attachments. Called after
// a resize recreates them.
func (p *Prepass) RebuildTargets(context *vulkan.VulkanContext, gbuffer *GBuffer) error {
	if p.renderInfo != nil {
		p.renderInfo.Destroy(context)
		p.renderInfo = nil
	}

	var clearColor vk.ClearValue
	clearColor.SetColor([]float32{0, 0, 0, 0})
	var clearDepth vk.ClearValue
	clearDepth.SetDepthStencil(1, 0)

	colorTargets := []vulkan.RenderTarget{
		{
			View:        gbuffer.Normal.View,
			Format:      GBufferNormalFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clearColor,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		},
		{
			View:        gbuffer.Position.View,
			Format:      GBufferPositionFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clearColor,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		},
	}
	depthTarget := &vulkan.RenderTarget{
		View:        gbuffer.DepthView,
		Format:      context.Device.DepthFormat,
		LoadOp:      vk.AttachmentLoadOpClear,
		ClearValue:  clearDepth,
		FinalLayout: vk.ImageLayoutDepthStencilReadOnlyOptimal,
	}

	renderInfo, err := vulkan.NewRenderInfo(context, p.pipeline, gbuffer.Width, gbuffer.Height, colorTargets, depthTarget)
	if err != nil {
		return err
	}
	p.renderInfo = renderInfo
	return nil
}

// Record fills the slot's secondary buffer with the model draw. Skipped when
// no geometry is loaded.
func (p *Prepass) Record(slot int, geometry *SceneGeometry) error {
	if geometry == nil {
		return nil
	}

	cb := p.secondaries.buffers[slot]
	if err := cb.BeginSecondary(p.renderInfo.InheritanceInfo()); err != nil {
		return err
	}

	p.renderInfo.BindPipeline(cb.Handle)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, p.pipeline.Layout,
		0, 1, []vk.DescriptorSet{p.sets[slot].Handle}, 0, nil)
	drawGeometry(cb.Handle, p.pipeline.Layout, geometry, false)

	if err := cb.End(); err != nil {
		return err
	}
	p.secondaries.recorded[slot] = true
	return nil
}

func (p *Prepass) ResetFlag(slot int) { p.secondaries.ResetFlag(slot) }
func (p *Prepass) Recorded(slot int) (vk.CommandBuffer, bool) { return p.secondaries.Recorded(slot) }
func (p *Prepass) RenderInfo() *vulkan.RenderInfo             { return p.renderInfo }

// Reload swaps in freshly compiled shaders. The device must be idle.
func (p *Prepass) Reload(context *vulkan.VulkanContext) error {
	return p.pipeline.Reload(context)
}

func (p *Prepass) Destroy(context *vulkan.VulkanContext, pool vk.DescriptorPool) {
	p.secondaries.destroy(context)
	if p.renderInfo != nil {
		p.renderInfo.Destroy(context)
	}
	if p.pipeline != nil {
		p.pipeline.Release(context)
	}
	for _, set := range p.sets {
		if set != nil {
			set.Destroy(context, pool)
		}
	}
	if p.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, p.setLayout, context.Allocator)
	}
}
