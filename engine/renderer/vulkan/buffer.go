package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// VulkanBuffer wraps a buffer with its backing allocation. A host-visible
// buffer may be mapped at most once; Unmap is required before Destroy.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   vk.DeviceSize
	Mapped unsafe.Pointer
}

// NewBuffer creates a buffer with the given usage and memory properties.
func NewBuffer(context *VulkanContext, size vk.DeviceSize, usage vk.BufferUsageFlags, memoryFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreateBuffer failed with %s", ResultString(res))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, handle, &memReqs)
	memReqs.Deref()

	memoryIndex := context.FindMemoryIndex(memReqs.MemoryTypeBits, uint32(memoryFlags))
	if memoryIndex < 0 {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("no suitable memory type for buffer of size %d", size)
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocInfo, context.Allocator, &memory); res != vk.Success {
		vk.DestroyBuffer(context.Device.LogicalDevice, handle, context.Allocator)
		return nil, fmt.Errorf("vkAllocateMemory failed with %s", ResultString(res))
	}
	vk.BindBufferMemory(context.Device.LogicalDevice, handle, memory, 0)

	return &VulkanBuffer{
		Handle: handle,
		Memory: memory,
		Size:   size,
	}, nil
}

// NewDeviceLocalBuffer uploads data into a device-local buffer through a
// transient staging buffer and a blocking copy on the graphics queue.
func NewDeviceLocalBuffer(context *VulkanContext, data []byte, usage vk.BufferUsageFlags) (*VulkanBuffer, error) {
	size := vk.DeviceSize(len(data))

	staging, err := NewBuffer(context, size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(context)

	if err := staging.Map(context); err != nil {
		return nil, err
	}
	vk.Memcopy(staging.Mapped, data)
	staging.Unmap(context)

	deviceLocal, err := NewBuffer(context, size,
		usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	if err := copyBuffer(context, staging.Handle, deviceLocal.Handle, size); err != nil {
		deviceLocal.Destroy(context)
		return nil, err
	}
	return deviceLocal, nil
}

// NewUniformBuffer creates a host-visible, host-coherent uniform buffer and
// maps it persistently. The mapping stays valid for the buffer's lifetime.
func NewUniformBuffer(context *VulkanContext, size vk.DeviceSize) (*VulkanBuffer, error) {
	buffer, err := NewBuffer(context, size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	if err := buffer.Map(context); err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	return buffer, nil
}

// Map maps the whole buffer. Mapping an already-mapped buffer is an error.
func (b *VulkanBuffer) Map(context *VulkanContext) error {
	if b.Mapped != nil {
		return fmt.Errorf("buffer is already mapped")
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, b.Memory, 0, b.Size, 0, &ptr); res != vk.Success {
		return fmt.Errorf("vkMapMemory failed with %s", ResultString(res))
	}
	b.Mapped = ptr
	return nil
}

func (b *VulkanBuffer) Unmap(context *VulkanContext) {
	if b.Mapped == nil {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, b.Memory)
	b.Mapped = nil
}

// Write copies data into the persistent mapping at the given offset.
func (b *VulkanBuffer) Write(data []byte, offset uintptr) error {
	if b.Mapped == nil {
		return fmt.Errorf("buffer is not mapped")
	}
	if vk.DeviceSize(offset)+vk.DeviceSize(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at offset %d exceeds buffer size %d", len(data), offset, b.Size)
	}
	vk.Memcopy(unsafe.Pointer(uintptr(b.Mapped)+offset), data)
	return nil
}

func (b *VulkanBuffer) Destroy(context *VulkanContext) {
	if b.Mapped != nil {
		b.Unmap(context)
	}
	if b.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, b.Handle, context.Allocator)
		b.Handle = vk.NullBuffer
	}
	if b.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, b.Memory, context.Allocator)
		b.Memory = vk.NullDeviceMemory
	}
}

func copyBuffer(context *VulkanContext, src, dst vk.Buffer, size vk.DeviceSize) error {
	cb, err := AllocateAndBeginSingleUse(context, context.Device.GraphicsCommandPool)
	if err != nil {
		return err
	}

	region := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	}
	vk.CmdCopyBuffer(cb.Handle, src, dst, 1, []vk.BufferCopy{region})

	if err := cb.EndSingleUse(context, context.Device.GraphicsCommandPool, context.Device.GraphicsQueue); err != nil {
		core.LogError("buffer copy submission failed: %s", err)
		return err
	}
	return nil
}
