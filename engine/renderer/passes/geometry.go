package passes

import (
	"encoding/binary"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/model"
	"github.com/quazuo/pbr-model-viewer/engine/renderer/vulkan"
)

// SceneGeometry is the uploaded form of a model: every mesh packed into one
// vertex buffer, one index buffer and one instance-transform buffer.
type SceneGeometry struct {
	Vertex   *vulkan.VulkanBuffer
	Index    *vulkan.VulkanBuffer
	Instance *vulkan.VulkanBuffer

	Meshes       []model.Mesh
	HasMaterials bool
}

func (g *SceneGeometry) Destroy(context *vulkan.VulkanContext) {
	if g.Instance != nil {
		g.Instance.Destroy(context)
	}
	if g.Index != nil {
		g.Index.Destroy(context)
	}
	if g.Vertex != nil {
		g.Vertex.Destroy(context)
	}
}

// drawGeometry binds the packed buffers and issues one indexed draw per
// mesh, advancing index, vertex and instance offsets through the shared
// buffers. When the model carries materials the mesh's material ID is pushed
// to the fragment stage first.
func drawGeometry(cb vk.CommandBuffer, layout vk.PipelineLayout, geometry *SceneGeometry, pushMaterial bool) {
	vk.CmdBindVertexBuffers(cb, 0, 2,
		[]vk.Buffer{geometry.Vertex.Handle, geometry.Instance.Handle},
		[]vk.DeviceSize{0, 0})
	vk.CmdBindIndexBuffer(cb, geometry.Index.Handle, 0, vk.IndexTypeUint32)

	for i := range geometry.Meshes {
		mesh := &geometry.Meshes[i]
		if pushMaterial && geometry.HasMaterials {
			materialID := mesh.MaterialID
			vk.CmdPushConstants(cb, layout,
				vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
				0, uint32(unsafe.Sizeof(materialID)), unsafe.Pointer(&materialID))
		}
		vk.CmdDrawIndexed(cb, mesh.IndexCount, mesh.InstanceCount,
			mesh.FirstIndex, mesh.VertexOffset, mesh.FirstInstance)
	}
}

// secondarySet is the per-slot secondary command buffer bookkeeping shared
// by every pass recorder.
type secondarySet struct {
	buffers  [vulkan.MaxFramesInFlight]*vulkan.VulkanCommandBuffer
	recorded [vulkan.MaxFramesInFlight]bool
}

func newSecondarySet(context *vulkan.VulkanContext) (secondarySet, error) {
	var set secondarySet
	for i := range set.buffers {
		cb, err := vulkan.NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool, false)
		if err != nil {
			return set, err
		}
		set.buffers[i] = cb
	}
	return set, nil
}

// ResetFlag clears the recorded-this-frame flag for the slot. Called at the
// start of every frame before the passes run.
func (s *secondarySet) ResetFlag(slot int) {
	s.recorded[slot] = false
}

// Recorded returns the slot's secondary buffer if the pass recorded into it
// this frame.
func (s *secondarySet) Recorded(slot int) (vk.CommandBuffer, bool) {
	if !s.recorded[slot] {
		return nil, false
	}
	return s.buffers[slot].Handle, true
}

func (s *secondarySet) destroy(context *vulkan.VulkanContext) {
	for _, cb := range s.buffers {
		if cb != nil {
			cb.Free(context, context.Device.GraphicsCommandPool)
		}
	}
}

// floatBytes reinterprets float pixels as the raw bytes a staging upload
// expects.
func floatBytes(floats []float32) []byte {
	out := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
