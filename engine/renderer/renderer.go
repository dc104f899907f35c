package renderer

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/config"
	"github.com/quazuo/pbr-model-viewer/engine/containers"
	"github.com/quazuo/pbr-model-viewer/engine/core"
	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/platform"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/ibl"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/passes"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

const (
	nearPlane = 0.1
	farPlane  = 500.0

	deferredQueueCapacity = 64
	frameTimeoutNs        = 3_000_000_000
)

// backgroundColor is both the primary buffer's clear color and the clear
// value handed to passes that own a clearing attachment.
var backgroundColor = []float32{0.02, 0.02, 0.03, 1}

// Camera supplies the view transform. The math behind it lives with the
// caller; the renderer only reads the results once per frame.
type Camera interface {
	ViewMatrix() mgl32.Mat4
	Position() mgl32.Vec3
}

// ModelTransform is the user-adjustable placement of the loaded model,
// applied on top of the automatic normalization scale.
type ModelTransform struct {
	Scale       float32
	Rotation    mgl32.Quat
	Translation mgl32.Vec3
}

func DefaultModelTransform() ModelTransform {
	return ModelTransform{Scale: 1, Rotation: mgl32.QuatIdent()}
}

// LightState is the single directional light of the scene.
type LightState struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// frameSlot owns everything one in-flight frame needs: a primary command
// buffer, a persistently mapped uniform buffer, the acquire/present binary
// semaphores and the timeline the host waits on before reusing the slot.
type frameSlot struct {
	commandBuffer  *vulkan.VulkanCommandBuffer
	uniformBuffer  *vulkan.VulkanBuffer
	imageAvailable vk.Semaphore
	readyToPresent vk.Semaphore
	timeline       *vulkan.Timeline
}

// Renderer drives the whole frame loop: slot rotation, uniform updates,
// pass recording, primary assembly, submission and presentation.
type Renderer struct {
	platform *platform.Platform
	context  *vulkan.VulkanContext

	swapchain      *vulkan.VulkanSwapchain
	descriptorPool vk.DescriptorPool

	slots      [vulkan.MaxFramesInFlight]*frameSlot
	frameIndex int

	deferred *containers.RingQueue[func() error]

	cube *vulkan.VulkanBuffer
	quad *vulkan.VulkanBuffer

	gbuffer *passes.GBuffer
	prepass *passes.Prepass
	ssao    *passes.SSAO
	scene   *passes.Scene
	debug   *passes.Debug
	gui     *passes.GUI
	capture *ibl.CaptureEngine

	importer        model.Importer
	geometry        *passes.SceneGeometry
	materialViews   []*vulkan.Texture
	fallbackTexture *vulkan.Texture
	normalization   float32

	camera    Camera
	Transform ModelTransform
	Light     LightState

	fieldOfView float32
	clearColor  vk.ClearValue

	msaaEnabled  bool
	ssaoEnabled  bool
	iblEnabled   bool
	wireframe    bool
	cullBack     bool
	debugEnabled bool
	debugSource  passes.DebugQuadSource

	skyboxReady     bool
	resizeRequested bool
	quitRequested   bool
}

// New brings up the full GPU stack: context, swapchain, frame slots, every
// pass, and the IBL capture engine (which integrates the BRDF table
// immediately). Asset loading is left to the caller.
func New(p *platform.Platform, cfg *config.Config, camera Camera, overlay passes.Overlay, importer model.Importer) (*Renderer, error) {
	r := &Renderer{
		platform:      p,
		importer:      importer,
		camera:        camera,
		Transform:     DefaultModelTransform(),
		Light:         LightState{Direction: mgl32.Vec3{1, -1, 1}.Normalize(), Color: mgl32.Vec3{1, 1, 1}, Intensity: 3},
		fieldOfView:   80,
		msaaEnabled:   cfg.Renderer.Msaa,
		ssaoEnabled:   cfg.Renderer.Ssao,
		iblEnabled:    cfg.Renderer.Ibl,
		normalization: 1,
		deferred:      containers.NewRingQueue[func() error](deferredQueueCapacity),
	}
	r.clearColor.SetColor(backgroundColor)

	context, err := vulkan.NewContext(p, cfg.Window.Title, cfg.Renderer.Validation)
	if err != nil {
		return nil, err
	}
	r.context = context

	width, height := p.FramebufferExtent()
	swapchain, err := vulkan.SwapchainCreate(context, width, height, r.sampleCount())
	if err != nil {
		r.Shutdown()
		return nil, err
	}
	r.swapchain = swapchain

	if err := r.createDescriptorPool(); err != nil {
		r.Shutdown()
		return nil, err
	}
	if err := r.createFrameSlots(); err != nil {
		r.Shutdown()
		return nil, err
	}
	if err := r.createStaticGeometry(); err != nil {
		r.Shutdown()
		return nil, err
	}

	// The capture engine reads the cube face views from slot 0's uniform
	// buffer, so seed every slot before anything renders.
	r.writeUniforms()

	if err := r.createPasses(overlay); err != nil {
		r.Shutdown()
		return nil, err
	}

	r.capture, err = ibl.NewCaptureEngine(context, r.descriptorPool, r.cube, r.quad,
		r.slots[0].uniformBuffer, vk.DeviceSize(FrameUniformsSize))
	if err != nil {
		r.Shutdown()
		return nil, err
	}

	r.registerEvents()

	core.LogInfo("renderer initialized (%dx%d, %d frames in flight)", width, height, vulkan.MaxFramesInFlight)
	return r, nil
}

func (r *Renderer) sampleCount() vk.SampleCountFlagBits {
	if r.msaaEnabled {
		return r.context.Device.MaxSampleCount
	}
	return vk.SampleCount1Bit
}

func (r *Renderer) createDescriptorPool() error {
	pool, err := vulkan.CreateDescriptorPool(r.context, 256, map[vk.DescriptorType]uint32{
		vk.DescriptorTypeUniformBuffer:        64,
		vk.DescriptorTypeCombinedImageSampler: 512,
	})
	if err != nil {
		return err
	}
	r.descriptorPool = pool
	return nil
}

func (r *Renderer) createFrameSlots() error {
	for i := range r.slots {
		cb, err := vulkan.NewVulkanCommandBuffer(r.context, r.context.Device.GraphicsCommandPool, true)
		if err != nil {
			return err
		}

		uniform, err := vulkan.NewUniformBuffer(r.context, vk.DeviceSize(FrameUniformsSize))
		if err != nil {
			return err
		}
		if err := uniform.Map(r.context); err != nil {
			return err
		}

		imageAvailable, err := vulkan.NewBinarySemaphore(r.context)
		if err != nil {
			return err
		}
		readyToPresent, err := vulkan.NewBinarySemaphore(r.context)
		if err != nil {
			return err
		}
		timeline, err := vulkan.NewTimeline(r.context)
		if err != nil {
			return err
		}

		r.slots[i] = &frameSlot{
			commandBuffer:  cb,
			uniformBuffer:  uniform,
			imageAvailable: imageAvailable,
			readyToPresent: readyToPresent,
			timeline:       timeline,
		}
	}
	return nil
}

func (r *Renderer) createStaticGeometry() error {
	cube, err := vulkan.NewDeviceLocalBuffer(r.context, skyboxVertexBytes(model.CubeVertices),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return err
	}
	r.cube = cube

	quad, err := vulkan.NewDeviceLocalBuffer(r.context, skyboxVertexBytes(model.QuadVertices),
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return err
	}
	r.quad = quad

	fallback, err := vulkan.NewTextureBuilder().
		FromMemory([]byte{255, 255, 255, 255}, 1, 1).
		WithFormat(vk.FormatR8g8b8a8Unorm).
		Create(r.context)
	if err != nil {
		return err
	}
	r.fallbackTexture = fallback
	return nil
}

func (r *Renderer) createPasses(overlay passes.Overlay) error {
	var uniformBuffers [vulkan.MaxFramesInFlight]*vulkan.VulkanBuffer
	for i, slot := range r.slots {
		uniformBuffers[i] = slot.uniformBuffer
	}
	uniformSize := vk.DeviceSize(FrameUniformsSize)
	extent := r.swapchain.Extent

	gbuffer, err := passes.NewGBuffer(r.context, extent.Width, extent.Height)
	if err != nil {
		return err
	}
	r.gbuffer = gbuffer

	r.prepass, err = passes.NewPrepass(r.context, r.descriptorPool, gbuffer, uniformBuffers, uniformSize)
	if err != nil {
		return err
	}

	r.ssao, err = passes.NewSSAO(r.context, r.descriptorPool, gbuffer, uniformBuffers, uniformSize, r.quad)
	if err != nil {
		return err
	}

	r.scene, err = passes.NewScene(r.context, r.descriptorPool, uniformBuffers, uniformSize,
		r.cube, r.swapchain.ImageFormat, passes.SceneOptions{
			Wireframe: r.wireframe,
			CullBack:  r.cullBack,
			Samples:   r.swapchain.SampleCount,
		})
	if err != nil {
		return err
	}
	r.scene.SetSSAO(r.context, r.ssao.Output)
	if err := r.scene.RebuildTargets(r.context, r.swapchain, r.clearColor); err != nil {
		return err
	}

	r.debug, err = passes.NewDebug(r.context, r.descriptorPool, r.quad,
		r.swapchain.ImageFormat, r.swapchain.SampleCount)
	if err != nil {
		return err
	}
	if err := r.debug.RebuildTargets(r.context, r.swapchain); err != nil {
		return err
	}
	r.applyDebugSource()

	r.gui, err = passes.NewGUI(r.context, overlay, r.swapchain.ImageFormat, r.swapchain.SampleCount)
	if err != nil {
		return err
	}
	return r.gui.RebuildTargets(r.context, r.swapchain)
}

func (r *Renderer) registerEvents() {
	core.EventRegister(core.EVENT_CODE_RESIZED, func(code core.SystemEventCode, context core.EventContext) bool {
		r.resizeRequested = true
		return false
	})
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, func(code core.SystemEventCode, context core.EventContext) bool {
		r.quitRequested = true
		return false
	})
	core.EventRegister(core.EVENT_CODE_SHADER_CHANGED, func(code core.SystemEventCode, context core.EventContext) bool {
		path := context.Path
		r.Defer(func() error {
			core.LogInfo("reloading pipelines after shader change: %s", path)
			r.context.Device.WaitIdle()
			return r.reloadPipelines()
		})
		return true
	})
	core.EventRegister(core.EVENT_CODE_ENVMAP_REQUESTED, func(code core.SystemEventCode, context core.EventContext) bool {
		path := context.Path
		r.Defer(func() error {
			return r.LoadEnvironmentMap(path)
		})
		return true
	})
	core.EventRegister(core.EVENT_CODE_MODEL_REQUESTED, func(code core.SystemEventCode, context core.EventContext) bool {
		path := context.Path
		r.Defer(func() error {
			return r.LoadModel(path)
		})
		return true
	})
}

// Defer queues an action to run at the start of a subsequent frame, outside
// any recording.
func (r *Renderer) Defer(action func() error) {
	if err := r.deferred.Enqueue(action); err != nil {
		core.LogError("deferred action queue overflow, action dropped")
	}
}

func (r *Renderer) reloadPipelines() error {
	for _, reload := range []func(*vulkan.VulkanContext) error{
		r.prepass.Reload,
		r.ssao.Reload,
		r.scene.Reload,
		r.debug.Reload,
	} {
		if err := reload(r.context); err != nil {
			return err
		}
	}
	return nil
}

// QuitRequested reports whether the application asked the loop to stop.
func (r *Renderer) QuitRequested() bool {
	return r.quitRequested
}

// --- asset loading ---------------------------------------------------------

// LoadModel replaces the scene geometry and material set. Quiesces the
// device, so it must not run while a frame is being recorded.
func (r *Renderer) LoadModel(path string) error {
	core.LogInfo("loading model %s", path)
	r.context.Device.WaitIdle()

	loaded, err := r.importer.Load(path)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", path, err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	r.destroyGeometry()

	geometry, err := r.uploadGeometry(loaded)
	if err != nil {
		return err
	}
	if err := r.loadMaterials(loaded); err != nil {
		geometry.Destroy(r.context)
		return err
	}

	r.geometry = geometry
	r.normalization = loaded.NormalizationScale()
	core.LogInfo("model loaded: %d meshes, %d materials, normalization scale %.3f",
		len(loaded.Meshes), len(loaded.Materials), r.normalization)
	return nil
}

func (r *Renderer) uploadGeometry(loaded *model.Model) (*passes.SceneGeometry, error) {
	vertexBytes := unsafe.Slice((*byte)(unsafe.Pointer(&loaded.Vertices[0])),
		len(loaded.Vertices)*int(unsafe.Sizeof(model.Vertex{})))
	vertex, err := vulkan.NewDeviceLocalBuffer(r.context, vertexBytes,
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return nil, err
	}

	indexBytes := unsafe.Slice((*byte)(unsafe.Pointer(&loaded.Indices[0])), len(loaded.Indices)*4)
	index, err := vulkan.NewDeviceLocalBuffer(r.context, indexBytes,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if err != nil {
		vertex.Destroy(r.context)
		return nil, err
	}

	instanceBytes := unsafe.Slice((*byte)(unsafe.Pointer(&loaded.Instances[0])),
		len(loaded.Instances)*int(unsafe.Sizeof(mgl32.Mat4{})))
	instance, err := vulkan.NewDeviceLocalBuffer(r.context, instanceBytes,
		vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		vertex.Destroy(r.context)
		index.Destroy(r.context)
		return nil, err
	}

	return &passes.SceneGeometry{
		Vertex:       vertex,
		Index:        index,
		Instance:     instance,
		Meshes:       loaded.Meshes,
		HasMaterials: len(loaded.Materials) > 0,
	}, nil
}

// loadMaterials builds three texture slots per material (base color, normal,
// merged occlusion/roughness/metallic) and pads the arrayed binding with the
// fallback view.
func (r *Renderer) loadMaterials(loaded *model.Model) error {
	views := make([]vk.ImageView, 0, model.MaterialTexArraySize)

	for i := range loaded.Materials {
		mat := &loaded.Materials[i]

		baseColor, err := r.loadMaterialMap(mat.BaseColorPath, vk.FormatR8g8b8a8Srgb)
		if err != nil {
			return err
		}
		normalMap, err := r.loadMaterialMap(mat.NormalPath, vk.FormatR8g8b8a8Unorm)
		if err != nil {
			return err
		}
		orm, err := r.loadOrmMap(mat)
		if err != nil {
			return err
		}

		for _, tex := range []*vulkan.Texture{baseColor, normalMap, orm} {
			if tex != nil {
				r.materialViews = append(r.materialViews, tex)
				views = append(views, tex.View)
			} else {
				views = append(views, r.fallbackTexture.View)
			}
		}
	}

	for len(views) < model.MaterialTexArraySize {
		views = append(views, r.fallbackTexture.View)
	}

	r.scene.SetMaterials(r.context, views, r.fallbackTexture.Sampler)
	return nil
}

func (r *Renderer) loadMaterialMap(path string, format vk.Format) (*vulkan.Texture, error) {
	if path == "" {
		return nil, nil
	}
	return vulkan.NewTextureBuilder().
		FromPaths(path).
		WithFormat(format).
		WithMipmaps().
		Create(r.context)
}

// loadOrmMap merges the occlusion, roughness and metallic maps into one
// texture; missing channels fall back to fully lit, fully rough, non-metal.
func (r *Renderer) loadOrmMap(mat *model.Material) (*vulkan.Texture, error) {
	if !mat.HasOrmMaps() {
		return nil, nil
	}

	swizzle := vulkan.SwizzleIdentity
	if mat.AOPath == "" {
		swizzle[0] = vulkan.SwizzleOne
	}
	if mat.RoughnessPath == "" {
		swizzle[1] = vulkan.SwizzleOne
	}
	if mat.MetallicPath == "" {
		swizzle[2] = vulkan.SwizzleZero
	}

	return vulkan.NewTextureBuilder().
		FromPaths(mat.AOPath, mat.RoughnessPath, mat.MetallicPath).
		AsSeparateChannels().
		WithFormat(vk.FormatR8g8b8a8Unorm).
		WithSwizzle(swizzle).
		WithMipmaps().
		Create(r.context)
}

func (r *Renderer) destroyGeometry() {
	if r.geometry != nil {
		r.geometry.Destroy(r.context)
		r.geometry = nil
	}
	for _, tex := range r.materialViews {
		tex.Destroy(r.context)
	}
	r.materialViews = nil
}

// LoadEnvironmentMap rebuilds the IBL cubes from a new equirectangular map
// and rebinds the descriptor sets that sample them.
func (r *Renderer) LoadEnvironmentMap(path string) error {
	r.context.Device.WaitIdle()

	if err := r.capture.Capture(r.context, path); err != nil {
		return err
	}

	assets := r.capture.Assets()
	r.scene.SetSkybox(r.context, assets.Skybox)
	r.scene.SetIBL(r.context, assets.Irradiance, assets.Prefiltered, assets.BrdfLut)
	r.skyboxReady = true
	return nil
}

// --- runtime toggles -------------------------------------------------------

func (r *Renderer) SetSSAOEnabled(enabled bool) { r.ssaoEnabled = enabled }
func (r *Renderer) SetIBLEnabled(enabled bool)  { r.iblEnabled = enabled }
func (r *Renderer) SetFieldOfView(deg float32)  { r.fieldOfView = deg }

func (r *Renderer) SetDebugOverlay(enabled bool, source passes.DebugQuadSource) {
	r.debugEnabled = enabled
	if r.debugSource == source {
		return
	}
	r.debugSource = source
	r.Defer(func() error {
		r.context.Device.WaitIdle()
		r.applyDebugSource()
		return nil
	})
}

func (r *Renderer) applyDebugSource() {
	var texture *vulkan.Texture
	switch r.debugSource {
	case passes.DebugQuadNormals:
		texture = r.gbuffer.Normal
	case passes.DebugQuadPositions:
		texture = r.gbuffer.Position
	case passes.DebugQuadSSAO:
		texture = r.ssao.Output
	}
	for slot := 0; slot < vulkan.MaxFramesInFlight; slot++ {
		r.debug.SetSource(r.context, slot, texture)
	}
}

// SetWireframe defers a scene pipeline rebuild to the next frame start.
func (r *Renderer) SetWireframe(enabled bool) {
	if r.wireframe == enabled {
		return
	}
	r.wireframe = enabled
	r.deferSceneRebuild()
}

// SetCullBack defers a scene pipeline rebuild to the next frame start.
func (r *Renderer) SetCullBack(enabled bool) {
	if r.cullBack == enabled {
		return
	}
	r.cullBack = enabled
	r.deferSceneRebuild()
}

func (r *Renderer) deferSceneRebuild() {
	r.Defer(func() error {
		r.context.Device.WaitIdle()
		if err := r.scene.RebuildPipelines(r.context, passes.SceneOptions{
			Wireframe: r.wireframe,
			CullBack:  r.cullBack,
			Samples:   r.swapchain.SampleCount,
		}); err != nil {
			return err
		}
		return r.scene.RebuildTargets(r.context, r.swapchain, r.clearColor)
	})
}

// SetMSAA defers a swapchain and pipeline rebuild at the new sample count.
// The GUI backend is re-initialized along with its pass.
func (r *Renderer) SetMSAA(enabled bool) {
	if r.msaaEnabled == enabled {
		return
	}
	r.msaaEnabled = enabled
	r.Defer(func() error {
		r.context.Device.WaitIdle()
		return r.recreateSwapchain()
	})
}

// --- frame loop ------------------------------------------------------------

// RenderFrame runs one full frame: deferred actions, slot wait, uniform
// update, acquire, pass recording, primary assembly, submit and present.
func (r *Renderer) RenderFrame() error {
	if err := r.drainDeferred(); err != nil {
		return err
	}
	if r.resizeRequested {
		r.resizeRequested = false
		if err := r.recreateSwapchain(); err != nil {
			return err
		}
	}

	slot := r.slots[r.frameIndex]

	if target := slot.timeline.Signaled(); target > 0 {
		if err := slot.timeline.WaitValue(r.context, target, frameTimeoutNs); err != nil {
			return err
		}
	}

	r.writeSlotUniforms(r.frameIndex)

	res, imageIndex := r.swapchain.AcquireNextImage(r.context, slot.imageAvailable)
	if res == vk.ErrorOutOfDate {
		return r.recreateSwapchain()
	}
	if res != vk.Success && res != vk.Suboptimal {
		return fmt.Errorf("swapchain acquire failed with %s", vulkan.ResultString(res))
	}

	if err := r.recordPasses(r.frameIndex, imageIndex); err != nil {
		return err
	}
	if err := r.recordPrimary(slot, imageIndex); err != nil {
		return err
	}
	if err := r.submit(slot); err != nil {
		return err
	}

	presentRes := r.present(slot, imageIndex)
	if presentRes == vk.ErrorOutOfDate || presentRes == vk.Suboptimal {
		if err := r.recreateSwapchain(); err != nil {
			return err
		}
	} else if presentRes != vk.Success {
		return fmt.Errorf("swapchain present failed with %s", vulkan.ResultString(presentRes))
	}

	r.frameIndex = (r.frameIndex + 1) % vulkan.MaxFramesInFlight
	return nil
}

func (r *Renderer) drainDeferred() error {
	for !r.deferred.IsEmpty() {
		action, err := r.deferred.Dequeue()
		if err != nil {
			if errors.Is(err, containers.ErrQueueEmpty) {
				return nil
			}
			return err
		}
		if err := action(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) writeUniforms() {
	for i := range r.slots {
		r.writeSlotUniforms(i)
	}
}

func (r *Renderer) writeSlotUniforms(slot int) {
	extent := r.swapchain.Extent
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}

	view := r.camera.ViewMatrix()
	proj := mgl32.Perspective(mgl32.DegToRad(r.fieldOfView), aspect, nearPlane, farPlane)
	modelMatrix := mgl32.Translate3D(r.Transform.Translation.Elem()).
		Mul4(r.Transform.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(
			r.Transform.Scale*r.normalization,
			r.Transform.Scale*r.normalization,
			r.Transform.Scale*r.normalization))

	uniforms := FrameUniforms{
		Model:               modelMatrix,
		View:                view,
		Proj:                proj,
		InverseVP:           proj.Mul4(view).Inv(),
		CubemapCaptureViews: CubemapFaceViews(),
		CubemapCaptureProj:  CubemapCaptureProjection(),
		LightDirection:      r.Light.Direction.Normalize().Vec4(0),
		LightColor:          r.Light.Color.Mul(r.Light.Intensity).Vec4(1),
		CameraPosition:      r.camera.Position().Vec4(1),
		NearPlane:           nearPlane,
		FarPlane:            farPlane,
	}
	if r.ssaoEnabled && r.geometry != nil {
		uniforms.UseSsao = 1
	}
	if r.iblEnabled && r.skyboxReady {
		uniforms.UseIbl = 1
	}

	if err := r.slots[slot].uniformBuffer.Write(uniforms.Bytes(), 0); err != nil {
		core.LogError("uniform write failed: %v", err)
	}
}

// recordPasses resets every recorded flag, then lets each pass decide
// whether it has work this frame.
func (r *Renderer) recordPasses(slot int, imageIndex uint32) error {
	r.prepass.ResetFlag(slot)
	r.ssao.ResetFlag(slot)
	r.scene.ResetFlag(slot)
	r.debug.ResetFlag(slot)
	r.gui.ResetFlag(slot)

	if err := r.prepass.Record(slot, r.geometry); err != nil {
		return err
	}
	if err := r.ssao.Record(slot, r.ssaoEnabled, r.geometry); err != nil {
		return err
	}
	if err := r.scene.Record(slot, imageIndex, r.geometry, r.skyboxReady); err != nil {
		return err
	}
	if err := r.debug.Record(slot, imageIndex, r.debugEnabled); err != nil {
		return err
	}
	return r.gui.Record(slot, imageIndex)
}

// recordPrimary assembles the frame: clear the targets, then replay every
// recorded secondary inside its own render pass instance, then hand the
// swapchain image to the presentation engine.
func (r *Renderer) recordPrimary(slot *frameSlot, imageIndex uint32) error {
	cb := slot.commandBuffer
	cb.Reset()
	if err := cb.Begin(true, false, false); err != nil {
		return err
	}

	r.clearRenderTargets(cb.Handle, imageIndex)

	type passEntry struct {
		renderInfo *vulkan.RenderInfo
		recorded   func(int) (vk.CommandBuffer, bool)
	}
	entries := []passEntry{
		{r.prepass.RenderInfo(), r.prepass.Recorded},
		{r.ssao.RenderInfo(), r.ssao.Recorded},
		{r.scene.RenderInfo(imageIndex), r.scene.Recorded},
		{r.debug.RenderInfo(imageIndex), r.debug.Recorded},
		{r.gui.RenderInfo(imageIndex), r.gui.Recorded},
	}
	for _, entry := range entries {
		secondary, ok := entry.recorded(r.frameIndex)
		if !ok {
			continue
		}
		entry.renderInfo.Begin(cb.Handle, true)
		vk.CmdExecuteCommands(cb.Handle, 1, []vk.CommandBuffer{secondary})
		entry.renderInfo.End(cb.Handle)
	}

	r.transitionToPresent(cb.Handle, imageIndex)
	return cb.End()
}

// clearRenderTargets wipes the swapchain image (and the MSAA color image
// when present) with the background color before any pass runs. Every pass
// then loads, so a frame where only the GUI records still presents a clean
// background.
func (r *Renderer) clearRenderTargets(cb vk.CommandBuffer, imageIndex uint32) {
	clearColor := vk.ClearColorValue{}
	copy((*[4]float32)(unsafe.Pointer(&clearColor))[:], backgroundColor)
	clearRange := vk.ImageSubresourceRange{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}

	images := []vk.Image{r.swapchain.Image(imageIndex)}
	if msaa := r.swapchain.MSAAImage(); msaa != nil {
		images = append(images, msaa.Handle)
	}

	for _, image := range images {
		r.recordImageBarrier(cb, image,
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit))
		vk.CmdClearColorImage(cb, image, vk.ImageLayoutTransferDstOptimal,
			&clearColor, 1, []vk.ImageSubresourceRange{clearRange})
		r.recordImageBarrier(cb, image,
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit|vk.AccessColorAttachmentReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
	}
}

func (r *Renderer) transitionToPresent(cb vk.CommandBuffer, imageIndex uint32) {
	r.recordImageBarrier(cb, r.swapchain.Image(imageIndex),
		vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), 0,
		vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit))
}

func (r *Renderer) recordImageBarrier(cb vk.CommandBuffer, image vk.Image,
	oldLayout, newLayout vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags,
	srcStage, dstStage vk.PipelineStageFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (r *Renderer) submit(slot *frameSlot) error {
	signalValue := slot.timeline.Advance()

	timelineInfo := vk.TimelineSemaphoreSubmitInfo{
		SType:                     vk.StructureTypeTimelineSemaphoreSubmitInfo,
		WaitSemaphoreValueCount:   1,
		PWaitSemaphoreValues:      []uint64{0},
		SignalSemaphoreValueCount: 2,
		PSignalSemaphoreValues:    []uint64{signalValue, 0},
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		PNext:              unsafe.Pointer(&timelineInfo),
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.imageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageVertexInputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{slot.commandBuffer.Handle},
		SignalSemaphoreCount: 2,
		PSignalSemaphores:    []vk.Semaphore{slot.timeline.Handle, slot.readyToPresent},
	}

	if res := vk.QueueSubmit(r.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("queue submit failed with %s", vulkan.ResultString(res))
	}
	slot.commandBuffer.UpdateSubmitted()
	return nil
}

func (r *Renderer) present(slot *frameSlot, imageIndex uint32) vk.Result {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.readyToPresent},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.swapchain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return vk.QueuePresent(r.context.Device.PresentQueue, &presentInfo)
}

// recreateSwapchain rebuilds the swapchain and every resource keyed to its
// extent or sample count. Blocks on the platform's event pump while the
// framebuffer reports a zero extent.
func (r *Renderer) recreateSwapchain() error {
	width, height := r.platform.FramebufferExtent()
	for width == 0 || height == 0 {
		r.platform.WaitMessages()
		width, height = r.platform.FramebufferExtent()
	}

	r.context.Device.WaitIdle()

	previousSamples := r.swapchain.SampleCount
	if err := r.swapchain.Recreate(r.context, width, height, r.sampleCount()); err != nil {
		return err
	}
	sampleCountChanged := r.swapchain.SampleCount != previousSamples

	if err := r.gbuffer.Recreate(r.context, r.swapchain.Extent.Width, r.swapchain.Extent.Height); err != nil {
		return err
	}
	if err := r.prepass.RebuildTargets(r.context, r.gbuffer); err != nil {
		return err
	}
	if err := r.ssao.RebuildTargets(r.context, r.gbuffer, r.swapchain.Extent.Width, r.swapchain.Extent.Height); err != nil {
		return err
	}
	r.scene.SetSSAO(r.context, r.ssao.Output)

	if sampleCountChanged {
		if err := r.scene.RebuildPipelines(r.context, passes.SceneOptions{
			Wireframe: r.wireframe,
			CullBack:  r.cullBack,
			Samples:   r.swapchain.SampleCount,
		}); err != nil {
			return err
		}
		if err := r.debug.RebuildPipeline(r.context, r.swapchain.SampleCount); err != nil {
			return err
		}
		if err := r.gui.RebuildPipeline(r.context, r.swapchain.ImageFormat, r.swapchain.SampleCount); err != nil {
			return err
		}
	}

	if err := r.scene.RebuildTargets(r.context, r.swapchain, r.clearColor); err != nil {
		return err
	}
	if err := r.debug.RebuildTargets(r.context, r.swapchain); err != nil {
		return err
	}
	r.applyDebugSource()

	core.LogDebug("swapchain recreated at %dx%d", width, height)
	return r.gui.RebuildTargets(r.context, r.swapchain)
}

// Shutdown quiesces the device and tears everything down in reverse
// construction order. Safe to call on a partially constructed renderer.
func (r *Renderer) Shutdown() {
	if r.context == nil {
		return
	}
	if r.context.Device != nil && r.context.Device.LogicalDevice != nil {
		r.context.Device.WaitIdle()
	}

	r.destroyGeometry()
	if r.capture != nil {
		r.capture.Destroy(r.context, r.descriptorPool)
	}
	if r.gui != nil {
		r.gui.Destroy(r.context)
	}
	if r.debug != nil {
		r.debug.Destroy(r.context, r.descriptorPool)
	}
	if r.scene != nil {
		r.scene.Destroy(r.context, r.descriptorPool)
	}
	if r.ssao != nil {
		r.ssao.Destroy(r.context, r.descriptorPool)
	}
	if r.prepass != nil {
		r.prepass.Destroy(r.context, r.descriptorPool)
	}
	if r.gbuffer != nil {
		r.gbuffer.Destroy(r.context)
	}
	if r.fallbackTexture != nil {
		r.fallbackTexture.Destroy(r.context)
	}
	if r.quad != nil {
		r.quad.Destroy(r.context)
	}
	if r.cube != nil {
		r.cube.Destroy(r.context)
	}

	for _, slot := range r.slots {
		if slot == nil {
			continue
		}
		if slot.timeline != nil {
			slot.timeline.Destroy(r.context)
		}
		vulkan.DestroySemaphore(r.context, slot.readyToPresent)
		vulkan.DestroySemaphore(r.context, slot.imageAvailable)
		if slot.uniformBuffer != nil {
			slot.uniformBuffer.Destroy(r.context)
		}
		if slot.commandBuffer != nil {
			slot.commandBuffer.Free(r.context, r.context.Device.GraphicsCommandPool)
		}
	}

	if r.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(r.context.Device.LogicalDevice, r.descriptorPool, r.context.Allocator)
	}
	if r.swapchain != nil {
		r.swapchain.Destroy(r.context)
	}
	r.context.Destroy()
	r.context = nil
}

func skyboxVertexBytes(vertices []model.SkyboxVertex) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&vertices[0])),
		len(vertices)*int(unsafe.Sizeof(model.SkyboxVertex{})))
}
