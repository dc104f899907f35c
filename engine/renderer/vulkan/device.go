package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
)

// Device extensions every candidate GPU has to offer. Timeline semaphores
// and multiview are also requested as features below.
var requiredDeviceExtensions = []string{
	vk.KhrSwapchainExtensionName,
	"VK_KHR_maintenance2",
	"VK_KHR_synchronization2",
	"VK_KHR_timeline_semaphore",
	"VK_KHR_dynamic_rendering",
	"VK_KHR_multiview",
}

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
	// Highest sample count usable for both color and depth framebuffers.
	MaxSampleCount vk.SampleCountFlagBits
}

type vulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

// DeviceCreate selects a physical device satisfying the renderer requirements
// and creates the logical device, queues and graphics command pool.
func DeviceCreate(context *VulkanContext) error {
	if err := selectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	presentSharesGraphicsQueue := context.Device.GraphicsQueueIndex == context.Device.PresentQueueIndex
	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	if !presentSharesGraphicsQueue {
		indices = append(indices, uint32(context.Device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
		FillModeNonSolid:  vk.True,
	}

	extensionNames := make([]string, len(requiredDeviceExtensions))
	copy(extensionNames, requiredDeviceExtensions)
	if deviceHasExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: SafeStrings(extensionNames),
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:             vk.StructureTypePhysicalDeviceVulkan12Features,
			TimelineSemaphore: vk.True,
			PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan11Features{
				SType:     vk.StructureTypePhysicalDeviceVulkan11Features,
				Multiview: vk.True,
			}),
		}),
	}

	if res := vk.CreateDevice(
		context.Device.PhysicalDevice,
		&deviceCreateInfo,
		context.Allocator,
		&context.Device.LogicalDevice); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed with %s", ResultString(res))
	}
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(
		context.Device.LogicalDevice,
		uint32(context.Device.GraphicsQueueIndex),
		0,
		&context.Device.GraphicsQueue)
	vk.GetDeviceQueue(
		context.Device.LogicalDevice,
		uint32(context.Device.PresentQueueIndex),
		0,
		&context.Device.PresentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(
		context.Device.LogicalDevice,
		&poolCreateInfo,
		context.Allocator,
		&context.Device.GraphicsCommandPool); res != vk.Success {
		return fmt.Errorf("vkCreateCommandPool failed with %s", ResultString(res))
	}
	core.LogInfo("Graphics command pool created.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	context.Device.GraphicsQueue = nil
	context.Device.PresentQueue = nil

	core.LogInfo("Destroying command pools...")
	vk.DestroyCommandPool(
		context.Device.LogicalDevice,
		context.Device.GraphicsCommandPool,
		context.Allocator)

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.SwapchainSupport = VulkanSwapchainSupportInfo{}
	context.Device.GraphicsQueueIndex = -1
	context.Device.PresentQueueIndex = -1
}

// WaitIdle blocks until the device has drained all queues.
func (d *VulkanDevice) WaitIdle() {
	vk.DeviceWaitIdle(d.LogicalDevice)
}

// QueueWaitIdle blocks until the graphics queue has drained.
func (d *VulkanDevice) QueueWaitIdle() error {
	if res := vk.QueueWaitIdle(d.GraphicsQueue); res != vk.Success {
		return fmt.Errorf("vkQueueWaitIdle failed with %s", ResultString(res))
	}
	return nil
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities); res != vk.Success {
		return fmt.Errorf("failed to get surface capabilities: %s", ResultString(res))
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, nil); res != vk.Success {
		return fmt.Errorf("failed to get surface formats: %s", ResultString(res))
	}
	if supportInfo.FormatCount != 0 {
		supportInfo.Formats = make([]vk.SurfaceFormat, supportInfo.FormatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &supportInfo.FormatCount, supportInfo.Formats); res != vk.Success {
			return fmt.Errorf("failed to get surface formats: %s", ResultString(res))
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, nil); res != vk.Success {
		return fmt.Errorf("failed to get surface present modes: %s", ResultString(res))
	}
	if supportInfo.PresentModeCount != 0 {
		supportInfo.PresentModes = make([]vk.PresentMode, supportInfo.PresentModeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &supportInfo.PresentModeCount, supportInfo.PresentModes); res != vk.Success {
			return fmt.Errorf("failed to get surface present modes: %s", ResultString(res))
		}
	}
	return nil
}

// DeviceDetectDepthFormat picks the first depth format with optimal-tiling
// depth/stencil attachment support.
func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

// FormatSupportsLinearBlit reports whether the format can be sampled with a
// linear filter during vkCmdBlitImage, which mipmap generation relies on.
func (d *VulkanDevice) FormatSupportsLinearBlit(format vk.Format) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, format, &properties)
	properties.Deref()
	return properties.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageFilterLinearBit) != 0
}

func selectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices failed with %s", ResultString(res))
	}
	if physicalDeviceCount == 0 {
		core.LogError("No devices which support Vulkan were found.")
		return core.ErrNoSuitableGPU
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return fmt.Errorf("vkEnumeratePhysicalDevices failed with %s", ResultString(res))
	}

	context.Device = &VulkanDevice{
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
	}

	for _, candidate := range physicalDevices {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(candidate, &properties)
		properties.Deref()
		properties.Limits.Deref()

		features := vk.PhysicalDeviceFeatures{}
		vk.GetPhysicalDeviceFeatures(candidate, &features)
		features.Deref()

		memory := vk.PhysicalDeviceMemoryProperties{}
		vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
		memory.Deref()

		queueInfo, ok := findQueueFamilies(candidate, context.Surface)
		if !ok {
			core.LogInfo("Device '%s' lacks a graphics+compute or present queue family, skipping.", properties.DeviceName)
			continue
		}

		if features.SamplerAnisotropy == vk.False || features.FillModeNonSolid == vk.False {
			core.LogInfo("Device '%s' lacks required features, skipping.", properties.DeviceName)
			continue
		}

		if !deviceHasExtensions(candidate, requiredDeviceExtensions) {
			core.LogInfo("Device '%s' lacks required extensions, skipping.", properties.DeviceName)
			continue
		}

		support := VulkanSwapchainSupportInfo{}
		if err := DeviceQuerySwapchainSupport(candidate, context.Surface, &support); err != nil {
			continue
		}
		if support.FormatCount < 1 || support.PresentModeCount < 1 {
			core.LogInfo("Required swapchain support not present, skipping device.")
			continue
		}

		core.LogInfo("Selected device: '%s'.", properties.DeviceName)
		core.LogInfo(
			"Vulkan API version: %d.%d.%d",
			vk.Version.Major(vk.Version(properties.ApiVersion)),
			vk.Version.Minor(vk.Version(properties.ApiVersion)),
			vk.Version.Patch(vk.Version(properties.ApiVersion)),
		)

		context.Device.PhysicalDevice = candidate
		context.Device.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
		context.Device.PresentQueueIndex = queueInfo.PresentFamilyIndex
		context.Device.Properties = properties
		context.Device.Features = features
		context.Device.Memory = memory
		context.Device.SwapchainSupport = support
		context.Device.MaxSampleCount = maxUsableSampleCount(&properties)
		break
	}

	if context.Device.PhysicalDevice == nil {
		core.LogError("No physical devices were found which meet the requirements.")
		return core.ErrNoSuitableGPU
	}

	core.LogInfo("Physical device selected. Max framebuffer sample count: %d.", context.Device.MaxSampleCount)
	return nil
}

// findQueueFamilies looks for a family covering both graphics and compute,
// and a family that can present to the surface. One family may satisfy both.
func findQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) (vulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := vulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	graphicsCompute := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()

		if info.GraphicsFamilyIndex < 0 && queueFamilies[i].QueueFlags&graphicsCompute == graphicsCompute {
			info.GraphicsFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32 = vk.False
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		if supportsPresent == vk.True && info.PresentFamilyIndex < 0 {
			info.PresentFamilyIndex = int32(i)
		}
	}

	return info, info.GraphicsFamilyIndex >= 0 && info.PresentFamilyIndex >= 0
}

func deviceHasExtensions(device vk.PhysicalDevice, names []string) bool {
	for _, name := range names {
		if !deviceHasExtension(device, name) {
			core.LogInfo("Required extension not found: '%s'.", name)
			return false
		}
	}
	return true
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var availableExtensionCount uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, nil); res != vk.Success {
		return false
	}
	if availableExtensionCount == 0 {
		return false
	}
	availableExtensions := make([]vk.ExtensionProperties, availableExtensionCount)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &availableExtensionCount, availableExtensions); res != vk.Success {
		return false
	}
	for i := range availableExtensions {
		availableExtensions[i].Deref()
		end := FindFirstZeroInByteArray(availableExtensions[i].ExtensionName[:])
		if name == vk.ToString(availableExtensions[i].ExtensionName[:end+1]) {
			return true
		}
	}
	return false
}

// maxUsableSampleCount intersects the color and depth framebuffer sample
// counts reported by the device limits.
func maxUsableSampleCount(properties *vk.PhysicalDeviceProperties) vk.SampleCountFlagBits {
	counts := properties.Limits.FramebufferColorSampleCounts & properties.Limits.FramebufferDepthSampleCounts
	for _, bit := range []vk.SampleCountFlagBits{
		vk.SampleCount64Bit, vk.SampleCount32Bit, vk.SampleCount16Bit,
		vk.SampleCount8Bit, vk.SampleCount4Bit, vk.SampleCount2Bit,
	} {
		if counts&vk.SampleCountFlags(bit) != 0 {
			return bit
		}
	}
	return vk.SampleCount1Bit
}
