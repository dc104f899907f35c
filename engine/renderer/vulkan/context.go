package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/quazuo/pbr-model-viewer/engine/core"
	"github.com/quazuo/pbr-model-viewer/engine/platform"
)

// VulkanContext bundles the instance-level and device-level handles shared by
// every subsystem of the renderer. It is created once at startup, passed by
// pointer, and never copied.
type VulkanContext struct {
	// The framebuffer's current width.
	FramebufferWidth uint32
	// The framebuffer's current height.
	FramebufferHeight uint32

	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback
	validation     bool

	Device *VulkanDevice
}

// NewContext creates the Vulkan instance, optional validation layer and debug
// messenger, the window surface and the logical device.
func NewContext(p *platform.Platform, appName string, validation bool) (*VulkanContext, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("vulkan loader not available: GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vulkan: %w", err)
	}

	ctx := &VulkanContext{
		Allocator:  nil,
		validation: validation,
	}
	ctx.FramebufferWidth, ctx.FramebufferHeight = p.FramebufferExtent()

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   SafeString(appName),
		PEngineName:        SafeString("pbr-model-viewer"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{vk.KhrSurfaceExtensionName}
	requiredExtensions = append(requiredExtensions, p.GetRequiredExtensionNames()...)

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}

	if validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = SafeStrings(requiredExtensions)

	validationLayers := []string{}
	if validation {
		validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := verifyValidationLayers(validationLayers); err != nil {
			return nil, err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(validationLayers))
	createInfo.PpEnabledLayerNames = SafeStrings(validationLayers)

	if res := vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance); res != vk.Success {
		return nil, fmt.Errorf("failed to create vulkan instance: %s", ResultString(res))
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		return nil, err
	}
	core.LogInfo("Vulkan instance created.")

	if validation {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if res := vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, nil, &dbg); res != vk.Success {
			return nil, fmt.Errorf("failed to create debug messenger: %s", ResultString(res))
		}
		ctx.debugMessenger = dbg
	}

	surface, err := p.Window.CreateWindowSurface(ctx.Instance, nil)
	if err != nil {
		core.LogError("vulkan surface creation failed: %s", err)
		return nil, core.ErrSurfaceCreation
	}
	ctx.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(ctx); err != nil {
		return nil, err
	}

	return ctx, nil
}

// Destroy tears the context down. The device must be idle.
func (vc *VulkanContext) Destroy() {
	DeviceDestroy(vc)

	if vc.Surface != vk.NullSurface {
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}
	if vc.validation && vc.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
	}
	vk.DestroyInstance(vc.Instance, vc.Allocator)
}

// FindMemoryIndex returns the index of a memory type satisfying typeFilter
// and propertyFlags, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func verifyValidationLayers(required []string) error {
	var availableLayerCount uint32
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", ResultString(res))
	}
	availableLayers := make([]vk.LayerProperties, availableLayerCount)
	if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
		return fmt.Errorf("failed to enumerate instance layers: %s", ResultString(res))
	}

	for _, name := range required {
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
			if name == vk.ToString(availableLayers[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			core.LogError("required validation layer is missing: %s", name)
			return core.ErrValidationLayerMissing
		}
	}
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
