package vulkan

import (
	vk "github.com/goki/vulkan"
)

// ResultString renders a VkResult the way the engine's debug log lines
// do: a short code, or the full Khronos description when extended is
// requested.
func ResultString(result vk.Result, extended bool) string {
	switch result {
	default:
		fallthrough
	case vk.Success:
		return pick(!extended, "VK_SUCCESS", "VK_SUCCESS Command successfully completed")
	case vk.NotReady:
		return pick(!extended, "VK_NOT_READY", "VK_NOT_READY A fence or query has not yet completed")
	case vk.Timeout:
		return pick(!extended, "VK_TIMEOUT", "VK_TIMEOUT A wait operation has not completed in the specified time")
	case vk.EventSet:
		return pick(!extended, "VK_EVENT_SET", "VK_EVENT_SET An event is signaled")
	case vk.EventReset:
		return pick(!extended, "VK_EVENT_RESET", "VK_EVENT_RESET An event is unsignaled")
	case vk.Incomplete:
		return pick(!extended, "VK_INCOMPLETE", "VK_INCOMPLETE A return array was too small for the result")
	case vk.Suboptimal:
		return pick(!extended, "VK_SUBOPTIMAL_KHR", "VK_SUBOPTIMAL_KHR the swapchain no longer matches the surface exactly but can still present")
	case vk.ErrorOutOfHostMemory:
		return pick(!extended, "VK_ERROR_OUT_OF_HOST_MEMORY", "VK_ERROR_OUT_OF_HOST_MEMORY a host memory allocation has failed")
	case vk.ErrorOutOfDeviceMemory:
		return pick(!extended, "VK_ERROR_OUT_OF_DEVICE_MEMORY", "VK_ERROR_OUT_OF_DEVICE_MEMORY a device memory allocation has failed")
	case vk.ErrorInitializationFailed:
		return pick(!extended, "VK_ERROR_INITIALIZATION_FAILED", "VK_ERROR_INITIALIZATION_FAILED initialization could not be completed for implementation-specific reasons")
	case vk.ErrorDeviceLost:
		return pick(!extended, "VK_ERROR_DEVICE_LOST", "VK_ERROR_DEVICE_LOST the logical or physical device has been lost")
	case vk.ErrorMemoryMapFailed:
		return pick(!extended, "VK_ERROR_MEMORY_MAP_FAILED", "VK_ERROR_MEMORY_MAP_FAILED mapping of a memory object has failed")
	case vk.ErrorLayerNotPresent:
		return pick(!extended, "VK_ERROR_LAYER_NOT_PRESENT", "VK_ERROR_LAYER_NOT_PRESENT a requested layer is not present or could not be loaded")
	case vk.ErrorExtensionNotPresent:
		return pick(!extended, "VK_ERROR_EXTENSION_NOT_PRESENT", "VK_ERROR_EXTENSION_NOT_PRESENT a requested extension is not supported")
	case vk.ErrorFeatureNotPresent:
		return pick(!extended, "VK_ERROR_FEATURE_NOT_PRESENT", "VK_ERROR_FEATURE_NOT_PRESENT a requested feature is not supported")
	case vk.ErrorIncompatibleDriver:
		return pick(!extended, "VK_ERROR_INCOMPATIBLE_DRIVER", "VK_ERROR_INCOMPATIBLE_DRIVER the requested Vulkan version is not supported or is incompatible")
	case vk.ErrorTooManyObjects:
		return pick(!extended, "VK_ERROR_TOO_MANY_OBJECTS", "VK_ERROR_TOO_MANY_OBJECTS too many objects of that type already exist")
	case vk.ErrorFormatNotSupported:
		return pick(!extended, "VK_ERROR_FORMAT_NOT_SUPPORTED", "VK_ERROR_FORMAT_NOT_SUPPORTED a requested format is not supported on this device")
	case vk.ErrorFragmentedPool:
		return pick(!extended, "VK_ERROR_FRAGMENTED_POOL", "VK_ERROR_FRAGMENTED_POOL a pool allocation failed due to pool fragmentation")
	case vk.ErrorSurfaceLost:
		return pick(!extended, "VK_ERROR_SURFACE_LOST_KHR", "VK_ERROR_SURFACE_LOST_KHR the surface is no longer available")
	case vk.ErrorNativeWindowInUse:
		return pick(!extended, "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR the window is already in use")
	case vk.ErrorOutOfDate:
		return pick(!extended, "VK_ERROR_OUT_OF_DATE_KHR", "VK_ERROR_OUT_OF_DATE_KHR the surface changed in a way incompatible with the swapchain")
	case vk.ErrorOutOfPoolMemory:
		return pick(!extended, "VK_ERROR_OUT_OF_POOL_MEMORY", "VK_ERROR_OUT_OF_POOL_MEMORY a pool memory allocation has failed")
	case vk.ErrorInvalidExternalHandle:
		return pick(!extended, "VK_ERROR_INVALID_EXTERNAL_HANDLE", "VK_ERROR_INVALID_EXTERNAL_HANDLE an external handle is not valid for its type")
	case vk.ErrorFragmentation:
		return pick(!extended, "VK_ERROR_FRAGMENTATION", "VK_ERROR_FRAGMENTATION a descriptor pool creation failed due to fragmentation")
	case vk.ErrorUnknown:
		return pick(!extended, "VK_ERROR_UNKNOWN", "VK_ERROR_UNKNOWN an unknown error occurred")
	}
}

// IsSuccess reports whether result is a success code (including the
// non-fatal SUBOPTIMAL/INCOMPLETE family) rather than an error code.
func IsSuccess(result vk.Result) bool {
	switch result {
	case vk.Success, vk.NotReady, vk.Timeout, vk.EventSet, vk.EventReset,
		vk.Incomplete, vk.Suboptimal:
		return true
	default:
		return false
	}
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

var nulTerminator = "\x00"

// SafeString null-terminates a Go string for C interop, the way every
// Vulkan extension/layer name list needs to be passed.
func SafeString(s string) string {
	if len(s) == 0 {
		return nulTerminator
	}
	if s[len(s)-1] != 0 {
		return s + nulTerminator
	}
	return s
}

func SafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = SafeString(s)
	}
	return out
}
