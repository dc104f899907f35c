package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// MaxFramesInFlight is the number of frame slots cycled by the render loop.
// Each slot owns its own synchronization primitives and command buffers.
const MaxFramesInFlight = 3

// TimelineCounter is the host-side bookkeeping of a timeline semaphore.
// The signaled value only ever grows.
type TimelineCounter struct {
	lastSignaled uint64
}

// Signaled returns the most recent value the GPU was asked to signal.
func (tc *TimelineCounter) Signaled() uint64 {
	return tc.lastSignaled
}

// Advance reserves the next value to signal and returns it.
func (tc *TimelineCounter) Advance() uint64 {
	tc.lastSignaled++
	return tc.lastSignaled
}

// Timeline wraps a Vulkan timeline semaphore together with its host-side
// counter. The host formulates waits by value; no reset ever happens.
type Timeline struct {
	Handle vk.Semaphore
	TimelineCounter
}

// NewTimeline creates a timeline semaphore with an initial value of zero.
func NewTimeline(context *VulkanContext) (*Timeline, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&vk.SemaphoreTypeCreateInfo{
			SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
			SemaphoreType: vk.SemaphoreTypeTimeline,
			InitialValue:  0,
		}),
	}

	var handle vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &handle); res != vk.Success {
		return nil, fmt.Errorf("failed to create timeline semaphore: %s", ResultString(res))
	}
	return &Timeline{Handle: handle}, nil
}

// WaitValue blocks the host until the semaphore reaches at least value.
func (t *Timeline) WaitValue(context *VulkanContext, value uint64, timeoutNs uint64) error {
	waitInfo := vk.SemaphoreWaitInfo{
		SType:          vk.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    []vk.Semaphore{t.Handle},
		PValues:        []uint64{value},
	}
	if res := vk.WaitSemaphores(context.Device.LogicalDevice, &waitInfo, timeoutNs); res != vk.Success {
		return fmt.Errorf("timeline semaphore wait for value %d failed: %s", value, ResultString(res))
	}
	return nil
}

// CounterValue reads the current GPU-side value.
func (t *Timeline) CounterValue(context *VulkanContext) (uint64, error) {
	var value uint64
	if res := vk.GetSemaphoreCounterValue(context.Device.LogicalDevice, t.Handle, &value); res != vk.Success {
		return 0, fmt.Errorf("failed to read timeline semaphore value: %s", ResultString(res))
	}
	return value, nil
}

func (t *Timeline) Destroy(context *VulkanContext) {
	if t.Handle != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, t.Handle, context.Allocator)
		t.Handle = vk.NullSemaphore
	}
}

// NewBinarySemaphore creates a plain binary semaphore for the
// acquire/present handshake.
func NewBinarySemaphore(context *VulkanContext) (vk.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if res := vk.CreateSemaphore(context.Device.LogicalDevice, &semaphoreCreateInfo, context.Allocator, &handle); res != vk.Success {
		core.LogError("failed to create semaphore: %s", ResultString(res))
		return vk.NullSemaphore, fmt.Errorf("failed to create semaphore: %s", ResultString(res))
	}
	return handle, nil
}

func DestroySemaphore(context *VulkanContext, semaphore vk.Semaphore) {
	if semaphore != vk.NullSemaphore {
		vk.DestroySemaphore(context.Device.LogicalDevice, semaphore, context.Allocator)
	}
}
