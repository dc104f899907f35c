package ibl

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	// CubeFormat is the pixel format of every captured HDR cube.
	CubeFormat = vk.FormatR32g32b32a32Sfloat
	// LutFormat backs the BRDF integration table. Only the RG channels carry
	// data.
	LutFormat = vk.FormatR8g8b8a8Unorm

	SkyboxSize     = 2048
	IrradianceSize = 64
	PrefilterSize  = 128
	LutSize        = 512

	// PrefilterMipLevels is the number of roughness levels authored into the
	// prefiltered cube. Each mip is rendered explicitly, never blitted.
	PrefilterMipLevels = 5
)

const (
	cubeVertShader     = "shaders/sphere_to_cube.vert.spv"
	sphereToCubeShader = "shaders/sphere_to_cube.frag.spv"
	irradianceShader   = "shaders/convolute.frag.spv"
	prefilterShader    = "shaders/prefilter.frag.spv"
	brdfLutVertShader  = "shaders/brdf.vert.spv"
	brdfLutFragShader  = "shaders/brdf.frag.spv"
)

// AssetSet holds the four textures the lighting pass samples. The skybox cube
// is also what the background draw samples directly.
type AssetSet struct {
	Skybox      *vulkan.Texture
	Irradiance  *vulkan.Texture
	Prefiltered *vulkan.Texture
	BrdfLut     *vulkan.Texture
}

// CaptureEngine bakes an equirectangular environment map into the cubemaps
// used for image-based lighting. Capture runs offline on the graphics queue
// with one-time command buffers and an idle wait after every phase, so no
// frame may be in flight while it runs.
type CaptureEngine struct {
	setLayout vk.DescriptorSetLayout
	set       *vulkan.DescriptorSet

	skyboxPipeline     *vulkan.Pipeline
	irradiancePipeline *vulkan.Pipeline
	prefilterPipeline  *vulkan.Pipeline
	lutPipeline        *vulkan.Pipeline

	cube *vulkan.VulkanBuffer
	quad *vulkan.VulkanBuffer

	uniformBuffer *vulkan.VulkanBuffer
	uniformSize   vk.DeviceSize

	assets AssetSet
}

// NewCaptureEngine compiles the capture pipelines and integrates the BRDF
// lookup table. The table depends only on the integration shader, so it is
// rendered here once and survives every later environment change. The uniform
// buffer must hold the six cube face views and the capture projection before
// Capture is called.
func NewCaptureEngine(context *vulkan.VulkanContext, pool vk.DescriptorPool, cube, quad *vulkan.VulkanBuffer,
	uniformBuffer *vulkan.VulkanBuffer, uniformSize vk.DeviceSize) (*CaptureEngine, error) {
	e := &CaptureEngine{
		cube:          cube,
		quad:          quad,
		uniformBuffer: uniformBuffer,
		uniformSize:   uniformSize,
	}

	layout, err := vulkan.NewDescriptorLayoutBuilder().
		AddBinding(0, vk.DescriptorTypeUniformBuffer, 1,
			vk.ShaderStageFlags(vk.ShaderStageVertexBit)).
		AddBinding(1, vk.DescriptorTypeCombinedImageSampler, 1,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit)).
		Create(context)
	if err != nil {
		return nil, err
	}
	e.setLayout = layout

	e.set, err = vulkan.AllocateDescriptorSet(context, pool, layout)
	if err != nil {
		e.Destroy(context, pool)
		return nil, err
	}

	if err := e.createPipelines(context); err != nil {
		e.Destroy(context, pool)
		return nil, err
	}

	if err := e.renderBrdfLut(context); err != nil {
		e.Destroy(context, pool)
		return nil, err
	}
	return e, nil
}

func (e *CaptureEngine) createPipelines(context *vulkan.VulkanContext) error {
	depthOff := vk.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  vk.False,
		DepthWriteEnable: vk.False,
	}
	insideOut := vk.PipelineRasterizationStateCreateInfo{
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}

	cubePipeline := func(fragShader string, pushRange []vk.PushConstantRange) (*vulkan.Pipeline, error) {
		builder := vulkan.NewPipelineBuilder().
			WithVertexShader(cubeVertShader).
			WithFragmentShader(fragShader).
			WithVertexInput(
				[]vk.VertexInputBindingDescription{model.SkyboxBindingDescription()},
				model.SkyboxAttributeDescriptions()).
			WithDescriptorLayouts(e.setLayout).
			WithColorFormats(CubeFormat).
			WithRasterizer(insideOut).
			WithDepthStencil(depthOff).
			ForViews(6)
		if pushRange != nil {
			builder = builder.WithPushConstants(pushRange...)
		}
		return builder.Create(context)
	}

	pipeline, err := cubePipeline(sphereToCubeShader, nil)
	if err != nil {
		return err
	}
	e.skyboxPipeline = pipeline

	pipeline, err = cubePipeline(irradianceShader, nil)
	if err != nil {
		return err
	}
	e.irradiancePipeline = pipeline

	pipeline, err = cubePipeline(prefilterShader, []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		Offset:     0,
		Size:       4,
	}})
	if err != nil {
		return err
	}
	e.prefilterPipeline = pipeline

	pipeline, err = vulkan.NewPipelineBuilder().
		WithVertexShader(brdfLutVertShader).
		WithFragmentShader(brdfLutFragShader).
		WithVertexInput(
			[]vk.VertexInputBindingDescription{model.SkyboxBindingDescription()},
			model.SkyboxAttributeDescriptions()).
		WithColorFormats(LutFormat).
		WithRasterizer(insideOut).
		WithDepthStencil(depthOff).
		Create(context)
	if err != nil {
		return err
	}
	e.lutPipeline = pipeline
	return nil
}

// Assets returns the current IBL outputs. Cube entries are nil until the
// first Capture succeeds; the BRDF LUT is valid from construction.
func (e *CaptureEngine) Assets() AssetSet {
	return e.assets
}

// Capture rebuilds the skybox, irradiance and prefiltered cubes from the
// equirectangular map at path. Existing cubes are destroyed first, so the
// caller must have quiesced the device and must rebind descriptor sets that
// referenced them.
func (e *CaptureEngine) Capture(context *vulkan.VulkanContext, path string) error {
	core.LogInfo("capturing environment map %s", path)

	e.destroyCubes(context)

	equirect, err := vulkan.NewTextureBuilder().
		FromPaths(path).
		AsHDR().
		WithFormat(CubeFormat).
		WithLayout(vk.ImageLayoutShaderReadOnlyOptimal).
		WithUsage(vk.ImageUsageFlags(vk.ImageUsageSampledBit)).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		Create(context)
	if err != nil {
		return fmt.Errorf("failed to load environment map: %w", err)
	}
	defer equirect.Destroy(context)

	if err := e.captureSkybox(context, equirect); err != nil {
		return err
	}
	if err := e.captureIrradiance(context); err != nil {
		return err
	}
	if err := e.capturePrefiltered(context); err != nil {
		return err
	}

	core.LogInfo("environment capture complete")
	return nil
}

func (e *CaptureEngine) newCubeTexture(context *vulkan.VulkanContext, size uint32, mipmaps bool) (*vulkan.Texture, error) {
	builder := vulkan.NewTextureBuilder().
		Uninitialized(size, size).
		AsCubemap().
		WithFormat(CubeFormat).
		WithLayout(vk.ImageLayoutShaderReadOnlyOptimal).
		WithUsage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge)
	if mipmaps {
		builder = builder.WithMipmaps()
	}
	return builder.Create(context)
}

// drawCube replays the unit cube once through a multiview render info whose
// six layers are the faces of the target mip.
func (e *CaptureEngine) drawCube(context *vulkan.VulkanContext, renderInfo *vulkan.RenderInfo,
	pipeline *vulkan.Pipeline, roughness *float32) error {
	cb, err := vulkan.AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	renderInfo.Begin(cb.Handle, false)
	renderInfo.BindPipeline(cb.Handle)
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, pipeline.Layout,
		0, 1, []vk.DescriptorSet{e.set.Handle}, 0, nil)
	if roughness != nil {
		vk.CmdPushConstants(cb.Handle, pipeline.Layout,
			vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			0, uint32(unsafe.Sizeof(*roughness)), unsafe.Pointer(roughness))
	}
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{e.cube.Handle}, []vk.DeviceSize{0})
	vk.CmdDraw(cb.Handle, uint32(len(model.CubeVertices)), 1, 0, 0)
	renderInfo.End(cb.Handle)

	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}

// captureSkybox unwraps the equirectangular map onto a cube in a single
// multiview draw, then generates the full mip chain the prefilter phase
// samples from.
func (e *CaptureEngine) captureSkybox(context *vulkan.VulkanContext, equirect *vulkan.Texture) error {
	skybox, err := e.newCubeTexture(context, SkyboxSize, true)
	if err != nil {
		return err
	}

	e.set.
		QueueUniformBuffer(0, e.uniformBuffer, 0, e.uniformSize).
		QueueCombinedImageSampler(1, equirect.View, equirect.Sampler, vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)

	var clear vk.ClearValue
	clear.SetColor([]float32{0, 0, 0, 1})
	renderInfo, err := vulkan.NewRenderInfo(context, e.skyboxPipeline, SkyboxSize, SkyboxSize,
		[]vulkan.RenderTarget{{
			View:        skybox.MipViews[0],
			Format:      CubeFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clear,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}}, nil)
	if err != nil {
		skybox.Destroy(context)
		return err
	}
	defer renderInfo.Destroy(context)

	if err := e.drawCube(context, renderInfo, e.skyboxPipeline, nil); err != nil {
		skybox.Destroy(context)
		return err
	}

	// The draw left only the base mip in shader-read layout; the rest of the
	// chain is still undefined. Bring everything to transfer-dst before
	// blitting the chain down.
	if err := e.regenerateMips(context, skybox); err != nil {
		skybox.Destroy(context)
		return err
	}

	e.assets.Skybox = skybox
	return nil
}

// captureIrradiance convolves the skybox into a small diffuse irradiance
// cube.
func (e *CaptureEngine) captureIrradiance(context *vulkan.VulkanContext) error {
	irradiance, err := e.newCubeTexture(context, IrradianceSize, true)
	if err != nil {
		return err
	}

	e.set.
		QueueUniformBuffer(0, e.uniformBuffer, 0, e.uniformSize).
		QueueCombinedImageSampler(1, e.assets.Skybox.View, e.assets.Skybox.Sampler,
			vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)

	var clear vk.ClearValue
	clear.SetColor([]float32{0, 0, 0, 1})
	renderInfo, err := vulkan.NewRenderInfo(context, e.irradiancePipeline, IrradianceSize, IrradianceSize,
		[]vulkan.RenderTarget{{
			View:        irradiance.MipViews[0],
			Format:      CubeFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clear,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}}, nil)
	if err != nil {
		irradiance.Destroy(context)
		return err
	}
	defer renderInfo.Destroy(context)

	if err := e.drawCube(context, renderInfo, e.irradiancePipeline, nil); err != nil {
		irradiance.Destroy(context)
		return err
	}
	if err := e.regenerateMips(context, irradiance); err != nil {
		irradiance.Destroy(context)
		return err
	}

	e.assets.Irradiance = irradiance
	return nil
}

// capturePrefiltered renders the split-sum specular cube. Every mip level is
// drawn explicitly at its own roughness; nothing is blitted between levels.
func (e *CaptureEngine) capturePrefiltered(context *vulkan.VulkanContext) error {
	prefiltered, err := vulkan.NewTextureBuilder().
		Uninitialized(PrefilterSize, PrefilterSize).
		AsCubemap().
		WithFormat(CubeFormat).
		WithLayout(vk.ImageLayoutShaderReadOnlyOptimal).
		WithUsage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		WithMipmaps().
		Create(context)
	if err != nil {
		return err
	}
	if got := prefiltered.MipLevels(); got < PrefilterMipLevels {
		prefiltered.Destroy(context)
		return fmt.Errorf("prefiltered cube has %d mips, need %d", got, PrefilterMipLevels)
	}

	e.set.
		QueueUniformBuffer(0, e.uniformBuffer, 0, e.uniformSize).
		QueueCombinedImageSampler(1, e.assets.Skybox.View, e.assets.Skybox.Sampler,
			vk.ImageLayoutShaderReadOnlyOptimal).
		Commit(context)

	var clear vk.ClearValue
	clear.SetColor([]float32{0, 0, 0, 1})

	for mip := uint32(0); mip < PrefilterMipLevels; mip++ {
		extent := uint32(PrefilterSize) >> mip
		renderInfo, err := vulkan.NewRenderInfo(context, e.prefilterPipeline, extent, extent,
			[]vulkan.RenderTarget{{
				View:        prefiltered.MipViews[mip],
				Format:      CubeFormat,
				LoadOp:      vk.AttachmentLoadOpClear,
				ClearValue:  clear,
				FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}, nil)
		if err != nil {
			prefiltered.Destroy(context)
			return err
		}

		roughness := float32(mip) / float32(PrefilterMipLevels-1)
		err = e.drawCube(context, renderInfo, e.prefilterPipeline, &roughness)
		renderInfo.Destroy(context)
		if err != nil {
			prefiltered.Destroy(context)
			return err
		}
	}

	// Mips above the authored range were never rendered and stay unread; the
	// sampler's MaxLod still spans them, so fill them from the last authored
	// level to keep extreme-roughness lookups defined.
	if got := prefiltered.MipLevels(); got > PrefilterMipLevels {
		if err := e.fillTrailingMips(context, prefiltered, PrefilterMipLevels); err != nil {
			prefiltered.Destroy(context)
			return err
		}
	}

	e.assets.Prefiltered = prefiltered
	return nil
}

// renderBrdfLut integrates the environment BRDF into a 2D lookup table. The
// integration has no inputs, so the table never changes after startup.
func (e *CaptureEngine) renderBrdfLut(context *vulkan.VulkanContext) error {
	lut, err := vulkan.NewTextureBuilder().
		Uninitialized(LutSize, LutSize).
		WithFormat(LutFormat).
		WithLayout(vk.ImageLayoutShaderReadOnlyOptimal).
		WithUsage(vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit)).
		WithSamplerAddressMode(vk.SamplerAddressModeClampToEdge).
		Create(context)
	if err != nil {
		return err
	}

	var clear vk.ClearValue
	clear.SetColor([]float32{0, 0, 0, 1})
	renderInfo, err := vulkan.NewRenderInfo(context, e.lutPipeline, LutSize, LutSize,
		[]vulkan.RenderTarget{{
			View:        lut.View,
			Format:      LutFormat,
			LoadOp:      vk.AttachmentLoadOpClear,
			ClearValue:  clear,
			FinalLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}}, nil)
	if err != nil {
		lut.Destroy(context)
		return err
	}
	defer renderInfo.Destroy(context)

	cb, err := vulkan.AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		lut.Destroy(context)
		return err
	}

	renderInfo.Begin(cb.Handle, false)
	renderInfo.BindPipeline(cb.Handle)
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{e.quad.Handle}, []vk.DeviceSize{0})
	vk.CmdDraw(cb.Handle, uint32(len(model.QuadVertices)), 1, 0, 0)
	renderInfo.End(cb.Handle)

	if err := cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue); err != nil {
		lut.Destroy(context)
		return err
	}

	e.assets.BrdfLut = lut
	core.LogDebug("BRDF lookup table integrated")
	return nil
}

// regenerateMips rebuilds a cube's mip chain after its base level was
// rendered. Only mip 0 is in shader-read layout; the rest carry no content
// yet and enter the transfer as undefined.
func (e *CaptureEngine) regenerateMips(context *vulkan.VulkanContext, texture *vulkan.Texture) error {
	image := texture.Image

	cb, err := vulkan.AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	if err := image.RecordTransitionRange(cb.Handle,
		vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferDstOptimal, 0, 1); err != nil {
		return err
	}
	if image.MipLevels > 1 {
		if err := image.RecordTransitionRange(cb.Handle,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, 1, image.MipLevels-1); err != nil {
			return err
		}
	}
	if err := cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue); err != nil {
		return err
	}

	return image.GenerateMipmaps(context, vk.ImageLayoutShaderReadOnlyOptimal)
}

// fillTrailingMips blits the last authored mip into every remaining level.
func (e *CaptureEngine) fillTrailingMips(context *vulkan.VulkanContext, texture *vulkan.Texture, firstUnrendered uint32) error {
	image := texture.Image

	cb, err := vulkan.AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	if err := image.RecordTransitionRange(cb.Handle,
		vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal,
		firstUnrendered-1, 1); err != nil {
		return err
	}
	if err := image.RecordTransitionRange(cb.Handle,
		vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		firstUnrendered, image.MipLevels-firstUnrendered); err != nil {
		return err
	}

	srcExtent := int32(image.Width >> (firstUnrendered - 1))
	for mip := firstUnrendered; mip < image.MipLevels; mip++ {
		dstExtent := int32(image.Width >> mip)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       firstUnrendered - 1,
				BaseArrayLayer: 0,
				LayerCount:     image.LayerCount,
			},
			SrcOffsets: [2]vk.Offset3D{{}, {X: srcExtent, Y: srcExtent, Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       mip,
				BaseArrayLayer: 0,
				LayerCount:     image.LayerCount,
			},
			DstOffsets: [2]vk.Offset3D{{}, {X: dstExtent, Y: dstExtent, Z: 1}},
		}
		vk.CmdBlitImage(cb.Handle,
			image.Handle, vk.ImageLayoutTransferSrcOptimal,
			image.Handle, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)
	}

	if err := image.RecordTransitionRange(cb.Handle,
		vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		firstUnrendered-1, 1); err != nil {
		return err
	}
	if err := image.RecordTransitionRange(cb.Handle,
		vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
		firstUnrendered, image.MipLevels-firstUnrendered); err != nil {
		return err
	}

	return cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue)
}

func (e *CaptureEngine) destroyCubes(context *vulkan.VulkanContext) {
	if e.assets.Skybox != nil {
		e.assets.Skybox.Destroy(context)
		e.assets.Skybox = nil
	}
	if e.assets.Irradiance != nil {
		e.assets.Irradiance.Destroy(context)
		e.assets.Irradiance = nil
	}
	if e.assets.Prefiltered != nil {
		e.assets.Prefiltered.Destroy(context)
		e.assets.Prefiltered = nil
	}
}

func (e *CaptureEngine) Destroy(context *vulkan.VulkanContext, pool vk.DescriptorPool) {
	e.destroyCubes(context)
	if e.assets.BrdfLut != nil {
		e.assets.BrdfLut.Destroy(context)
		e.assets.BrdfLut = nil
	}
	for _, p := range []*vulkan.Pipeline{e.skyboxPipeline, e.irradiancePipeline, e.prefilterPipeline, e.lutPipeline} {
		if p != nil {
			p.Release(context)
		}
	}
	if e.set != nil {
		e.set.Destroy(context, pool)
	}
	if e.setLayout != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, e.setLayout, context.Allocator)
	}
}
