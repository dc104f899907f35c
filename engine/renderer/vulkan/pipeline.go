package vulkan

import (
	"fmt"
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/assets"
	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// Pipeline is a compiled shader graph. Its sample count and attachment
// formats are frozen at creation and consumers must match them.
//
// Ownership is shared between the render infos drawing with it, so handle
// destruction is refcounted. Retain before storing, Release when dropping.
type Pipeline struct {
	Handle vk.Pipeline
	Layout vk.PipelineLayout

	SampleCount  vk.SampleCountFlagBits
	ColorFormats []vk.Format
	DepthFormat  vk.Format
	ViewCount    uint32

	refs    atomic.Int32
	builder *PipelineBuilder
}

func (p *Pipeline) Retain() *Pipeline {
	p.refs.Add(1)
	return p
}

// Release drops one reference and destroys the handles when it was the last.
func (p *Pipeline) Release(context *VulkanContext) {
	if p.refs.Add(-1) > 0 {
		return
	}
	if p.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, p.Handle, context.Allocator)
		p.Handle = vk.NullPipeline
	}
	if p.Layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, p.Layout, context.Allocator)
		p.Layout = vk.NullPipelineLayout
	}
}

// Reload rebuilds the pipeline in place from its original configuration,
// re-reading the shader binaries from disk. The caller must quiesce the GPU
// first.
func (p *Pipeline) Reload(context *VulkanContext) error {
	rebuilt, err := p.builder.build(context)
	if err != nil {
		return err
	}

	vk.DestroyPipeline(context.Device.LogicalDevice, p.Handle, context.Allocator)
	vk.DestroyPipelineLayout(context.Device.LogicalDevice, p.Layout, context.Allocator)
	p.Handle = rebuilt.Handle
	p.Layout = rebuilt.Layout
	core.LogInfo("reloaded pipeline (%s)", p.builder.vertexShaderPath)
	return nil
}

// PipelineBuilder accumulates graphics pipeline state. Topology is always a
// triangle list and viewport/scissor are dynamic.
type PipelineBuilder struct {
	vertexShaderPath   string
	fragmentShaderPath string

	vertexBindings   []vk.VertexInputBindingDescription
	vertexAttributes []vk.VertexInputAttributeDescription

	setLayouts    []vk.DescriptorSetLayout
	pushConstants []vk.PushConstantRange

	rasterizerOverride   *vk.PipelineRasterizationStateCreateInfo
	multisampleOverride  *vk.PipelineMultisampleStateCreateInfo
	depthStencilOverride *vk.PipelineDepthStencilStateCreateInfo

	viewCount    uint32
	colorFormats []vk.Format
	depthFormat  vk.Format
	sampleCount  vk.SampleCountFlagBits
}

func NewPipelineBuilder() *PipelineBuilder {
	return &PipelineBuilder{
		viewCount:   1,
		depthFormat: vk.FormatUndefined,
		sampleCount: vk.SampleCount1Bit,
	}
}

func (b *PipelineBuilder) WithVertexShader(path string) *PipelineBuilder {
	b.vertexShaderPath = path
	return b
}

func (b *PipelineBuilder) WithFragmentShader(path string) *PipelineBuilder {
	b.fragmentShaderPath = path
	return b
}

func (b *PipelineBuilder) WithVertexInput(bindings []vk.VertexInputBindingDescription, attributes []vk.VertexInputAttributeDescription) *PipelineBuilder {
	b.vertexBindings = bindings
	b.vertexAttributes = attributes
	return b
}

func (b *PipelineBuilder) WithDescriptorLayouts(layouts ...vk.DescriptorSetLayout) *PipelineBuilder {
	b.setLayouts = layouts
	return b
}

func (b *PipelineBuilder) WithPushConstants(ranges ...vk.PushConstantRange) *PipelineBuilder {
	b.pushConstants = ranges
	return b
}

func (b *PipelineBuilder) WithRasterizer(state vk.PipelineRasterizationStateCreateInfo) *PipelineBuilder {
	b.rasterizerOverride = &state
	return b
}

func (b *PipelineBuilder) WithMultisampling(state vk.PipelineMultisampleStateCreateInfo) *PipelineBuilder {
	b.multisampleOverride = &state
	return b
}

func (b *PipelineBuilder) WithDepthStencil(state vk.PipelineDepthStencilStateCreateInfo) *PipelineBuilder {
	b.depthStencilOverride = &state
	return b
}

// ForViews enables multiview rendering across count layers. 1 disables it.
func (b *PipelineBuilder) ForViews(count uint32) *PipelineBuilder {
	b.viewCount = count
	return b
}

func (b *PipelineBuilder) WithColorFormats(formats ...vk.Format) *PipelineBuilder {
	b.colorFormats = formats
	return b
}

func (b *PipelineBuilder) WithDepthFormat(format vk.Format) *PipelineBuilder {
	b.depthFormat = format
	return b
}

func (b *PipelineBuilder) WithSampleCount(samples vk.SampleCountFlagBits) *PipelineBuilder {
	b.sampleCount = samples
	return b
}

func (b *PipelineBuilder) viewMask() uint32 {
	if b.viewCount <= 1 {
		return 0
	}
	return (1 << b.viewCount) - 1
}

func createShaderModule(context *VulkanContext, words []uint32) (vk.ShaderModule, error) {
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words)) * 4,
		PCode:    words,
	}

	var module vk.ShaderModule
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &moduleInfo, context.Allocator, &module); res != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("vkCreateShaderModule failed with %s", ResultString(res))
	}
	return module, nil
}

// Create compiles the pipeline. The builder is retained inside the result so
// Reload can rebuild after a shader change.
func (b *PipelineBuilder) Create(context *VulkanContext) (*Pipeline, error) {
	pipeline, err := b.build(context)
	if err != nil {
		return nil, err
	}
	pipeline.builder = b
	pipeline.Retain()
	return pipeline, nil
}

func (b *PipelineBuilder) build(context *VulkanContext) (*Pipeline, error) {
	if b.vertexShaderPath == "" || b.fragmentShaderPath == "" {
		return nil, fmt.Errorf("pipeline builder requires both vertex and fragment shaders")
	}
	if len(b.colorFormats) == 0 && b.depthFormat == vk.FormatUndefined {
		return nil, fmt.Errorf("pipeline builder requires at least one attachment format")
	}

	device := context.Device.LogicalDevice

	vertWords, err := assets.LoadShaderSPIRV(b.vertexShaderPath)
	if err != nil {
		return nil, err
	}
	fragWords, err := assets.LoadShaderSPIRV(b.fragmentShaderPath)
	if err != nil {
		return nil, err
	}

	vertModule, err := createShaderModule(context, vertWords)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device, vertModule, context.Allocator)

	fragModule, err := createShaderModule(context, fragWords)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device, fragModule, context.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  SafeString("main"),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  SafeString("main"),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(b.vertexBindings)),
		PVertexBindingDescriptions:      b.vertexBindings,
		VertexAttributeDescriptionCount: uint32(len(b.vertexAttributes)),
		PVertexAttributeDescriptions:    b.vertexAttributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if b.rasterizerOverride != nil {
		rasterizer = *b.rasterizerOverride
		rasterizer.SType = vk.StructureTypePipelineRasterizationStateCreateInfo
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples:  b.sampleCount,
		SampleShadingEnable:   vk.False,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}
	if b.multisampleOverride != nil {
		multisampling = *b.multisampleOverride
		multisampling.SType = vk.StructureTypePipelineMultisampleStateCreateInfo
		multisampling.RasterizationSamples = b.sampleCount
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.True,
		DepthWriteEnable:      vk.True,
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}
	if b.depthStencilOverride != nil {
		depthStencil = *b.depthStencilOverride
		depthStencil.SType = vk.StructureTypePipelineDepthStencilStateCreateInfo
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(b.colorFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(
				vk.ColorComponentRBit | vk.ColorComponentGBit |
					vk.ColorComponentBBit | vk.ColorComponentABit),
			BlendEnable:         vk.True,
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
		}
	}

	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(b.setLayouts)),
		PSetLayouts:            b.setLayouts,
		PushConstantRangeCount: uint32(len(b.pushConstants)),
		PPushConstantRanges:    b.pushConstants,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(device, &layoutInfo, context.Allocator, &layout); res != vk.Success {
		return nil, fmt.Errorf("vkCreatePipelineLayout failed with %s", ResultString(res))
	}

	// A throwaway pass defines the attachment compatibility class. Render
	// infos build their own passes from the same formats.
	renderPass, err := createRenderPass(context, renderPassParams{
		colorFormats: b.colorFormats,
		depthFormat:  b.depthFormat,
		samples:      b.sampleCount,
		viewMask:     b.viewMask(),
	})
	if err != nil {
		vk.DestroyPipelineLayout(device, layout, context.Allocator)
		return nil, err
	}
	defer vk.DestroyRenderPass(device, renderPass, context.Allocator)

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
	}

	handles := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(device, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo}, context.Allocator, handles); res != vk.Success {
		vk.DestroyPipelineLayout(device, layout, context.Allocator)
		return nil, fmt.Errorf("vkCreateGraphicsPipelines failed with %s", ResultString(res))
	}

	return &Pipeline{
		Handle:       handles[0],
		Layout:       layout,
		SampleCount:  b.sampleCount,
		ColorFormats: b.colorFormats,
		DepthFormat:  b.depthFormat,
		ViewCount:    b.viewCount,
	}, nil
}
