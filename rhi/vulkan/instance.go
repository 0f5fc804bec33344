package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// createInstance builds the VkInstance: application info, required
// surface extensions (from the platform layer), optional debug
// extensions and validation layers when EnableValidation is set.
// Grounded on backend.go's Initialize, generalized off the platform's
// hardcoded window and given a real RequiredInstanceExtensions source
// instead of the teacher's never-defined GetRequiredExtensionNames.
func (d *Device) createInstance(appName string, appVersion uint32, requiredExtensions []string, enableValidation bool) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   SafeString(appName),
		ApplicationVersion: appVersion,
		PEngineName:        SafeString("monster-rhi"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion12,
	}

	extensions := append([]string{}, requiredExtensions...)
	if enableValidation {
		extensions = append(extensions, "VK_EXT_debug_report")
	}

	var layers []string
	if enableValidation {
		layerName := "VK_LAYER_KHRONOS_validation"
		if !d.validationLayerAvailable(layerName) {
			corex.LogWarn("validation layer %s not available, continuing without it", layerName)
		} else {
			layers = append(layers, layerName)
		}
	}

	extStrs := SafeStrings(extensions)
	layerStrs := SafeStrings(layers)

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extStrs)),
		PpEnabledExtensionNames: extStrs,
		EnabledLayerCount:       uint32(len(layerStrs)),
		PpEnabledLayerNames:     layerStrs,
	}

	var instance vk.Instance
	if result := vk.CreateInstance(&createInfo, nil, &instance); result != vk.Success {
		corex.LogError("vkCreateInstance failed: %s", ResultString(result, true))
		return rhi.ErrMissingRequiredExtension
	}
	d.instance = instance
	vk.InitInstance(instance)

	if enableValidation {
		if err := d.createDebugMessenger(); err != nil {
			corex.LogWarn("failed to create debug messenger: %s", err)
		}
	}
	return nil
}

func (d *Device) validationLayerAvailable(name string) bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	if count == 0 {
		return false
	}
	props := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, props)
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Device) createDebugMessenger() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugCallback,
	}
	var messenger vk.DebugReportCallback
	if result := vk.CreateDebugReportCallback(d.instance, &createInfo, nil, &messenger); result != vk.Success {
		return fmt.Errorf("vkCreateDebugReportCallbackEXT failed: %s", ResultString(result, true))
	}
	d.debugMessenger = messenger
	return nil
}

// debugCallback relays validation-layer messages into the ambient
// logger at a severity matching the VkDebugReportFlags bit that fired,
// grounded on backend.go's dbgCallbackFunc.
func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64,
	location uint, messageCode int32, pLayerPrefix, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		corex.LogError("validation: %s", pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		corex.LogWarn("validation: %s", pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		corex.LogWarn("validation(perf): %s", pMessage)
	default:
		corex.LogDebug("validation: %s", pMessage)
	}
	return vk.Bool32(vk.False)
}
