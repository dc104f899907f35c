package passes

import (
	"math/rand"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	ssaoVertShader = "shaders/ssao.vert.spv"
	ssaoFragShader = "shaders/ssao.frag.spv"

	ssaoNoiseDim = 4
)

// SSAOFormat is the single-channel-quality occlusion output, stored as 8-bit
// RGBA so the scene pass can sample it like any other texture.
const SSAOFormat = vk.FormatR8g8b8a8Unorm

// ssaoNoisePixels builds the 4x4 rotation noise tile: 16 float RGBA texels
// with x and y uniform in [-1,1] and z zero.
func ssaoNoisePixels(rng *rand.Rand) []float32 {
	pixels := make([]float32, ssaoNoiseDim*ssaoNoiseDim*4)
	for i := 0; i < ssaoNoiseDim*ssaoNoiseDim; i++ {
		pixels[i*4+0] = rng.Float32()*2 - 1
		pixels[i*4+1] = rng.Float32()*2 - 1
		pixels[i*4+2] = 0
		pixels[i*4+3] = 0
	}
	return pixels
}

// SSAO draws a full-screen ambient-occlusion estimate from the G-buffer.
type SSAO struct {
	Output *vulkan.Texture

	noise      *vulkan.Texture
	pipeline   *vulkan.Pipeline
	renderInfo *vulkan.RenderInfo

	setLayout vk.DescriptorSetLayout
	sets      [vulkan.MaxFramesInFlight]*vulkan.DescriptorSet

	quad *vulkan.VulkanBuffer

	secondaries secondarySet
}

func NewSSAO(context *vulkan.VulkanContext, pool vk.DescriptorPool, gbuffer *GBuffer,
	uniformBuffers [vulkan.MaxFramesInFlight]*vulkan.VulkanBuffer, uniformSize vk.DeviceSize,
	quad *vulkan.VulkanBuffer) (*SSAO, error) {
	s := &SSAO{quad: quad}

	rng := rand.New(rand.NewSource(1))
	noise, err := vulkan.NewTextureBuilder().
		WithFormat(vk.FormatR32g32b32a32Sfloat).
		WithSamplerAddressMode(vk.SamplerAddressModeRepeat).
		FromMemory(floatBytes(ssaoNoisePixels(rng)), ssaoNoiseDim, ssaoNoiseDim).
		Create(context)
	if err != nil {
		return nil, err
	}
	s.noise = noise

	layout, err := vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(2, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(3, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		AddBinding(4, vk.DescriptorTypeCombinedImageSampler, 1, vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		s.Destroy(context, pool)
		return nil, err
	}
	s.setLayout = layout

	for i := range s.sets {
		set, err := vulkan.AllocateDescriptorSet(context, pool, layout)
		if err != nil {
			s.Destroy(context, pool)
			return nil, err
		}
		set.QueueUniformBuffer(0, uniformBuffers[i], 0, uniformSize)
		s.sets[i] = set
	}

	pipeline, err := vulkan.NewPipelineBuilder().
		WithVertexShader(ssaoVertShader).
		WithFragmentShader(ssaoFragShader).
		WithVertexInput(
			[]vk.VertexInputBindingDescription{model.SkyboxBindingDescription()},
			model.SkyboxAttributeDescriptions()).
		WithDescriptorLayouts(layout).
		WithColorFormats(SSAOFormat).
		WithDepthStencil(vk.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  vk.False,
			DepthWriteEnable: vk.False,
		}).
		Create(context)
	if err != nil {
		s.Destroy(context, pool)
		return nil, err
	}
	s.pipeline = pipeline

	if err := s.RebuildTargets(context, gbuffer, gbuffer.Width, gbuffer.Height); err != nil {
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

// RebuildTargets recreates the occlusion output for a new extent and points
// every slot's descriptor set at the current G-buffer attachments.
func (s *SSAO) RebuildTargets(context *vulkan.VulkanContext, gbuffer *GBuffer, width, height uint32) error {
	if s.renderInfo != nil {
		s.renderInfo.Destroy(context)
		s.renderInfo = nil
	}
	if s.Output != nil {
		s.Output.Destroy(context)
		s.Output = nil
	}

	output, err := vulkan.NewTextureBuilder().
		WithFormat(SSAOFormat).
		WithUsage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		Uninitialized(width, height).
		Create(context)
	if err != nil {
		return err
	}
	s.Output = output

	var clear vk.ClearValue
	clear.SetColor([]float32{1, 1, 1, 1})
	renderInfo, err := vulkan.NewRenderInfo(context, s.pipeline, width, height,
		[]vulkan.RenderTarget{{
			View:        output.View,
			Format:      SSAOFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clear,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}}, nil)
	if err != nil {
		return err
	}
	s.renderInfo = renderInfo

	for _, set := range s.sets {
		if set == nil {
			continue
		}
		set.QueueCombinedImageSampler(1, gbuffer.DepthView, gbuffer.DepthSampler, vk.ImageLayoutDepthStencilReadOnlyOptimal).
			QueueCombinedImageSampler(2, gbuffer.Normal.View, gbuffer.Normal.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
			QueueCombinedImageSampler(3, gbuffer.Position.View, gbuffer.Position.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
			QueueCombinedImageSampler(4, s.noise.View, s.noise.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
			Commit(context)
	}
	return nil
}

// Record draws the occlusion quad. Skipped when disabled or when there is no
// loaded model, in which case the scene shader must ignore the output.
func (s *SSAO) Record(slot int, enabled bool, geometry *SceneGeometry) error {
	if !enabled || geometry == nil {
		return nil
	}

	cb := s.secondaries.buffers[slot]
	if err := cb.BeginSecondary(s.renderInfo.InheritanceInfo()); err != nil {
		return err
	}

	s.renderInfo.BindPipeline(cb.Handle)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, s.pipeline.Layout,
		0, 1, []vk.DescriptorSet{s.sets[slot].Handle}, 0, nil)
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{s.quad.Handle}, []vk.DeviceSize{0})
	vk.CmdDraw(cb.Handle, uint32(len(model.QuadVertices)), 1, 0, 0)

	if err := cb.End(); err != nil {
		return err
	}
	s.secondaries.recorded[slot] = true
	return nil
}

func (s *SSAO) ResetFlag(slot int) { s.secondaries.ResetFlag(slot) }
func (s *SSAO) Recorded(slot int) (vk.CommandBuffer, bool) { return s.secondaries.Recorded(slot) }
func (s *SSAO) RenderInfo() *vulkan.RenderInfo { return s.renderInfo }

func (s *SSAO) Reload(context *vulkan.VulkanContext) error {
	return s.pipeline.Reload(context)
}

func (s *SSAO) Destroy(context *vulkan.VulkanContext, pool vk.DescriptorPool) {
	s.secondaries.destroy(context)
	if s.renderInfo != nil {
		s.renderInfo.Destroy(context)
	}
	if s.pipeline != nil {
		s.pipeline.Release(context)
	}
	if s.Output != nil {
		s.Output.Destroy(context)
	}
	for _, set := range s.sets {
		if set != nil {
			set.Destroy(context, pool)
		}
	}
	if s.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, s.setLayout, context.Allocator)
	}
	if s.noise != nil {
		s.noise.Destroy(context)
	}
}
