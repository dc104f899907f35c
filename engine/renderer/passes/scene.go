package passes

import (
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	skyboxVertShader = "shaders/skybox.vert.spv"
	skyboxFragShader = "shaders/skybox.frag.spv"
	sceneVertShader  = "shaders/scene.vert.spv"
	sceneFragShader  = "shaders/scene.frag.spv"
)

// SceneOptions are the user toggles that force a pipeline recompile.
type SceneOptions struct {
	Wireframe bool
	CullBack  bool
	Samples   vk.SampleCountFlagBits
}

// Scene renders the skybox followed by the lit model into the swapchain
// attachments, both inside a single secondary command buffer.
type Scene struct {
	skyboxPipeline *vulkan.Pipeline
	scenePipeline  *vulkan.Pipeline
	renderInfos    []*vulkan.RenderInfo

	frameSetLayout    vk.DescriptorSetLayout
	materialSetLayout vk.DescriptorSetLayout
	iblSetLayout      vk.DescriptorSetLayout
	skyboxSetLayout   vk.DescriptorSetLayout

	frameSets  [vulkan.MaxFramesInFlight]*vulkan.DescriptorSet
	skyboxSets [vulkan.MaxFramesInFlight]*vulkan.DescriptorSet

	materialSet *vulkan.DescriptorSet
	iblSet      *vulkan.DescriptorSet

	cube *vulkan.VulkanBuffer

	opts        SceneOptions
	colorFormat vk.Format
	depthFormat vk.Format

	secondaries secondarySet
}

func NewScene(context *vulkan.VulkanContext, pool vk.DescriptorPool,
	uniformBuffers [vulkan.MaxFramesInFlight]*vulkan.VulkanBuffer, uniformSize vk.DeviceSize,
	cube *vulkan.VulkanBuffer, colorFormat vk.Format, opts SceneOptions) (*Scene, error) {
	s := &Scene{
		cube:        cube,
		opts:        opts,
		colorFormat: colorFormat,
		depthFormat: context.Device.DepthFormat,
	}

	if err := s.createLayouts(context); err != nil {
		return nil, err
	}

	for i := range s.frameSets {
		frameSet, err := vulkan.AllocateDescriptorSet(context, pool, s.frameSetLayout)
		if err != nil {
			s.Destroy(context, pool)
			return nil, err
		}
		frameSet.QueueUniformBuffer(0, uniformBuffers[i], 0, uniformSize)
		s.frameSets[i] = frameSet

		skyboxSet, err := vulkan.AllocateDescriptorSet(context, pool, s.skyboxSetLayout)
		if err != nil {
			s.Destroy(context, pool)
			return nil, err
		}
		skyboxSet.QueueUniformBuffer(0, uniformBuffers[i], 0, uniformSize)
		s.skyboxSets[i] = skyboxSet
	}

	materialSet, err := vulkan.AllocateDescriptorSet(context, pool, s.materialSetLayout)
	if err != nil {
		s.Destroy(context, pool)
		return nil, err
	}
	s.materialSet = materialSet

	iblSet, err := vulkan.AllocateDescriptorSet(context, pool, s.iblSetLayout)
	if err != nil {
		s.Destroy(context, pool)
		return nil, err
	}
	s.iblSet = iblSet

	if err := s.buildPipelines(context); err != nil {
		s.Destroy(context, pool)
		return nil, err
	}

	s.secondaries, err = newSecondarySet(context)
	if err != nil {
		s.Destroy(context, pool)
		return nil, err
	}
	return s, nil
}

func (s *Scene) createLayouts(context *vulkan.VulkanContext) error {
	var err error
	s.frameSetLayout, err = vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return err
	}

	s.materialSetLayout, err = vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, model.MaterialTexArraySize,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return err
	}

	s.iblSetLayout, err = vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(2, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return err
	}

	s.skyboxSetLayout, err = vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	return err
}

func (s *Scene) buildPipelines(context *vulkan.VulkanContext) error {
	skyboxPipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader(skyboxVertShader).
		WithFragmentShader(skyboxFragShader).
		WithVertexInput(
			[]vk.VertexInputBindingDescription{model.SkyboxBindingDescription()},
			model.SkyboxAttributeDescriptions()).
		WithDescriptorLayouts(s.skyboxSetLayout).
		WithColorFormats(s.colorFormat).
		WithDepthFormat(s.depthFormat).
		WithSampleCount(s.opts.Samples).
		WithRasterizer(vk.PipelineRasterizationStateCreateInfo{
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1,
		}).
		WithDepthStencil(vk.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  vk.False,
			DepthWriteEnable: vk.False,
		}).
		Create(context)
	if err != nil {
		return err
	}
	s.skyboxPipeline = skyboxPipeline

	polygonMode := vk.PolygonModeFill
	if s.opts.Wireframe {
		polygonMode = vk.PolygonModeLine
	}
	cullMode := vk.CullModeFlags(vk.CullModeNone)
	if s.opts.CullBack {
		cullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	bindings := []vk.VertexInputBindingDescription{
		model.VertexBindingDescription(),
		model.InstanceBindingDescription(),
	}
	attributes := append(model.VertexAttributeDescriptions(), model.InstanceAttributeDescriptions(5)...)

	scenePipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader(sceneVertShader).
		WithFragmentShader(sceneFragShader).
		WithVertexInput(bindings, attributes).
		WithDescriptorLayouts(s.frameSetLayout, s.materialSetLayout, s.iblSetLayout).
		WithPushConstants(vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			Offset:     0,
			Size:       4,
		}).
		WithColorFormats(s.colorFormat).
		WithDepthFormat(s.depthFormat).
		WithSampleCount(s.opts.Samples).
		WithRasterizer(vk.PipelineRasterizationStateCreateInfo{
			PolygonMode: polygonMode,
			CullMode:    cullMode,
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1,
		}).
		Create(context)
	if err != nil {
		return err
	}
	s.scenePipeline = scenePipeline
	return nil
}

// RebuildPipelines recompiles both pipelines for new toggles or a new sample
// count. The device must be idle; targets must be rebuilt afterwards.
func (s *Scene) RebuildPipelines(context *vulkan.VulkanContext, opts SceneOptions) error {
	s.dropRenderInfos(context)
	if s.scenePipeline != nil {
		s.scenePipeline.Release(context)
		s.scenePipeline = nil
	}
	if s.skyboxPipeline != nil {
		s.skyboxPipeline.Release(context)
		s.skyboxPipeline = nil
	}
	s.opts = opts
	return s.buildPipelines(context)
}

// RebuildTargets binds the pass to the swapchain's per-image attachments.
func (s *Scene) RebuildTargets(context *vulkan.VulkanContext, swapchain *vulkan.VulkanSwapchain, clearColor vk.ClearValue) error {
	s.dropRenderInfos(context)

	for i := uint32(0); i < swapchain.ImageCount; i++ {
		color, depth := swapchain.RenderTargets(i, clearColor)
		renderInfo, err := vulkan.NewRenderInfo(context, s.scenePipeline,
			swapchain.Extent.Width, swapchain.Extent.Height,
			[]vulkan.RenderTarget{color}, &depth)
		if err != nil {
			return err
		}
		s.renderInfos = append(s.renderInfos, renderInfo)
	}
	return nil
}

func (s *Scene) dropRenderInfos(context *vulkan.VulkanContext) {
	for _, ri := range s.renderInfos {
		ri.Destroy(context)
	}
	s.renderInfos = nil
}

// SetSSAO points each frame set's occlusion binding at the given texture.
func (s *Scene) SetSSAO(context *vulkan.VulkanContext, ssao *vulkan.Texture) {
	for _, set := range s.frameSets {
		set.QueueCombinedImageSampler(1, ssao.View, ssao.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
			Commit(context)
	}
}

// SetSkybox binds the environment cubemap sampled behind the scene.
func (s *Scene) SetSkybox(context *vulkan.VulkanContext, skybox *vulkan.Texture) {
	for _, set := range s.skyboxSets {
		set.QueueCombinedImageSampler(1, skybox.View, skybox.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
			Commit(context)
	}
}

// SetMaterials fills the arrayed material binding. views must already be
// padded to the array capacity.
func (s *Scene) SetMaterials(context *vulkan.VulkanContext, views []vk.ImageView, sampler vk.Sampler) {
	s.materialSet.QueueCombinedImageSamplerArray(0, views, sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)
}

// SetIBL binds the irradiance cube, prefiltered cube and BRDF LUT.
func (s *Scene) SetIBL(context *vulkan.VulkanContext, irradiance, prefiltered, brdfLut *vulkan.Texture) {
	s.iblSet.
		QueueCombinedImageSampler(0, irradiance.View, irradiance.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		QueueCombinedImageSampler(1, prefiltered.View, prefiltered.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		QueueCombinedImageSampler(2, brdfLut.View, brdfLut.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)
}

// Record draws the skybox and, when geometry is loaded, the model itself.
func (s *Scene) Record(slot int, imageIndex uint32, geometry *SceneGeometry, skyboxReady bool) error {
	if geometry == nil && !skyboxReady {
		return nil
	}

	renderInfo := s.renderInfos[imageIndex]
	cb := s.secondaries.buffers[slot]
	if err := cb.BeginSecondary(renderInfo.InheritanceInfo()); err != nil {
		return err
	}

	if skyboxReady {
		vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, s.skyboxPipeline.Handle)
		renderInfo.SetViewportScissor(cb.Handle)
		vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, s.skyboxPipeline.Layout,
			0, 1, []vk.DescriptorSet{s.skyboxSets[slot].Handle}, 0, nil)
		vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{s.cube.Handle}, []vk.DeviceSize{0})
		vk.CmdDraw(cb.Handle, uint32(len(model.CubeVertices)), 1, 0, 0)
	}

	if geometry != nil {
		vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, s.scenePipeline.Handle)
		renderInfo.SetViewportScissor(cb.Handle)
		vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, s.scenePipeline.Layout,
			0, 3, []vk.DescriptorSet{
				s.frameSets[slot].Handle,
				s.materialSet.Handle,
				s.iblSet.Handle,
			}, 0, nil)
		drawGeometry(cb.Handle, s.scenePipeline.Layout, geometry, true)
	}

	if err := cb.End(); err != nil {
		return err
	}
	s.secondaries.recorded[slot] = true
	return nil
}

func (s *Scene) ResetFlag(slot int) { s.secondaries.ResetFlag(slot) }
func (s *Scene) Recorded(slot int) (vk.CommandBuffer, bool) { return s.secondaries.Recorded(slot) }

// RenderInfo returns the pass's render info for one swapchain image.
func (s *Scene) RenderInfo(imageIndex uint32) *vulkan.RenderInfo {
	return s.renderInfos[imageIndex]
}

func (s *Scene) Reload(context *vulkan.VulkanContext) error {
	if err := s.skyboxPipeline.Reload(context); err != nil {
		return err
	}
	return s.scenePipeline.Reload(context)
}

func (s *Scene) Destroy(context *vulkan.VulkanContext, pool vk.DescriptorPool) {
	s.secondaries.destroy(context)
	s.dropRenderInfos(context)
	if s.scenePipeline != nil {
		s.scenePipeline.Release(context)
	}
	if s.skyboxPipeline != nil {
		s.skyboxPipeline.Release(context)
	}
	for _, set := range s.frameSets {
		if set != nil {
			set.Destroy(context, pool)
		}
	}
	for _, set := range s.skyboxSets {
		if set != nil {
			set.Destroy(context, pool)
		}
	}
	if s.materialSet != nil {
		s.materialSet.Destroy(context, pool)
	}
	if s.iblSet != nil {
		s.iblSet.Destroy(context, pool)
	}
	for _, layout := range []vk.DescriptorSetLayout{s.frameSetLayout, s.materialSetLayout, s.iblSetLayout, s.skyboxSetLayout} {
		if layout != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, layout, context.Allocator)
		}
	}
}
