package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// selectPhysicalDevice enumerates physical devices and scores them
// discrete ≫ integrated ≫ other, requiring swapchain support and the
// VK_KHR_swapchain extension. Grounded on device.go's
// SelectPhysicalDevice/PhysicalDeviceMeetsRequirements.
func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if result := vk.EnumeratePhysicalDevices(d.instance, &count, nil); result != vk.Success || count == 0 {
		return rhi.ErrNoSuitableDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	var best vk.PhysicalDevice
	var bestScore int
	found := false

	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		score := 1
		switch props.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			score = 3
		case vk.PhysicalDeviceTypeIntegratedGpu:
			score = 2
		}

		if !d.deviceSupportsSwapchain(pd) {
			continue
		}
		if !d.deviceHasPresentableQueue(pd) {
			continue
		}

		if score > bestScore || !found {
			best = pd
			bestScore = score
			found = true
		}
	}

	if !found {
		return rhi.ErrNoSuitableDevice
	}
	d.physicalDevice = best
	vk.GetPhysicalDeviceMemoryProperties(best, &d.memoryProperties)
	d.depthFormat = d.detectDepthFormat()

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(best, &props)
	props.Deref()
	corex.LogInfo("selected physical device: %s (type=%d)", vk.ToString(props.DeviceName[:]), props.DeviceType)
	return nil
}

func (d *Device) deviceSupportsSwapchain(pd vk.PhysicalDevice) bool {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil)
	if count == 0 {
		return false
	}
	props := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(pd, "", &count, props)
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.ExtensionName[:]) == "VK_KHR_swapchain" {
			return true
		}
	}
	return false
}

func (d *Device) deviceHasPresentableQueue(pd vk.PhysicalDevice) bool {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	if count == 0 {
		return false
	}
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		var presentSupport vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, d.surface, &presentSupport)
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && presentSupport.B() {
			return true
		}
	}
	return false
}

// detectDepthFormat prefers D32_SFLOAT, then D32_SFLOAT_S8_UINT, then
// D24_UNORM_S8_UINT — the exact order spec §4.2 names.
func (d *Device) detectDepthFormat() vk.Format {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physicalDevice, f, &props)
		props.Deref()
		want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
		if vk.FormatFeatureFlags(props.LinearTilingFeatures)&want == want ||
			vk.FormatFeatureFlags(props.OptimalTilingFeatures)&want == want {
			return f
		}
	}
	return vk.FormatD32Sfloat
}

// createLogicalDevice picks queue families (graphics/present/transfer,
// sharing a family where possible), creates the logical device with
// the swapchain extension, and retrieves the queues plus a reset-
// capable graphics command pool. Grounded on device.go's DeviceCreate.
func (d *Device) createLogicalDevice() error {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &count, families)

	graphicsIdx, presentIdx, transferIdx := -1, -1, -1
	minTransferScore := 255

	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		flags := families[i].QueueFlags

		currentScore := 0
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			graphicsIdx = int(i)
			currentScore++
		}
		if flags&vk.QueueFlags(vk.QueueTransferBit) != 0 {
			currentScore++
			if currentScore <= minTransferScore {
				minTransferScore = currentScore
				transferIdx = int(i)
			}
		}
		var presentSupport vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(d.physicalDevice, i, d.surface, &presentSupport)
		if presentSupport.B() {
			presentIdx = int(i)
		}
	}
	if transferIdx == -1 {
		transferIdx = graphicsIdx
	}
	if graphicsIdx == -1 || presentIdx == -1 {
		return rhi.ErrNoSuitableDevice
	}

	uniqueFamilies := map[int]bool{graphicsIdx: true, presentIdx: true, transferIdx: true}
	priority := []float32{1.0}
	var queueCreateInfos []vk.DeviceQueueCreateInfo
	for idx := range uniqueFamilies {
		queueCreateInfos = append(queueCreateInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(idx),
			QueueCount:       1,
			PQueuePriorities: priority,
		})
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{SamplerAnisotropy: vk.True}
	extensions := SafeStrings([]string{"VK_KHR_swapchain"})

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var device vk.Device
	if result := vk.CreateDevice(d.physicalDevice, &createInfo, nil, &device); result != vk.Success {
		corex.LogError("vkCreateDevice failed: %s", ResultString(result, true))
		return rhi.ErrNoSuitableDevice
	}
	d.logicalDevice = device
	vk.InitDevice(device)

	d.graphicsQueueIndex, d.presentQueueIndex, d.transferQueueIndex = uint32(graphicsIdx), uint32(presentIdx), uint32(transferIdx)
	vk.GetDeviceQueue(device, d.graphicsQueueIndex, 0, &d.graphicsQueue)
	vk.GetDeviceQueue(device, d.presentQueueIndex, 0, &d.presentQueue)
	vk.GetDeviceQueue(device, d.transferQueueIndex, 0, &d.transferQueue)

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.graphicsQueueIndex,
	}
	if result := vk.CreateCommandPool(device, &poolInfo, nil, &d.graphicsCommandPool); result != vk.Success {
		return rhi.ErrNoSuitableDevice
	}
	return nil
}
