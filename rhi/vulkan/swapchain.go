package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// Swapchain owns the platform's queue of presentable images, their
// views, the depth attachment, and the per-image render-finished
// semaphores the spec requires (one per swapchain image, not per
// frame slot — spec §4.2). Grounded on swapchain.go.
type Swapchain struct {
	device vk.Device

	handle      vk.Swapchain
	imageFormat vk.Format
	extent      vk.Extent2D

	images []vk.Image
	views  []vk.ImageView

	depthImage  vk.Image
	depthMemory vk.DeviceMemory
	depthView   vk.ImageView

	renderFinished []vk.Semaphore
	imageFences    []vk.Fence // per-image fence tracking (spec §4.2 per-frame contract)
}

func (d *Device) createSwapchain(width, height uint32) error {
	sc, err := d.buildSwapchain(width, height, vk.NullSwapchain)
	if err != nil {
		return err
	}
	d.swapchain = sc
	return nil
}

func (d *Device) buildSwapchain(width, height uint32, old vk.Swapchain) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	vk.GetPhysicalDeviceSurfaceCapabilities(d.physicalDevice, d.surface, &caps)
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.physicalDevice, d.surface, &formatCount, formats)

	chosenFormat := formats[0]
	chosenFormat.Deref()
	for _, f := range formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			chosenFormat = f
			break
		}
	}

	var presentModeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &presentModeCount, nil)
	presentModes := make([]vk.PresentMode, presentModeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physicalDevice, d.surface, &presentModeCount, presentModes)

	presentMode := vk.PresentModeFifo
	for _, pm := range presentModes {
		if pm == vk.PresentModeMailbox {
			presentMode = pm
			break
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, rhi.ErrSwapchainCreationFailed
	}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	sharingMode := vk.SharingModeExclusive
	var queueFamilyIndices []uint32
	if d.graphicsQueueIndex != d.presentQueueIndex {
		sharingMode = vk.SharingModeConcurrent
		queueFamilyIndices = []uint32{d.graphicsQueueIndex, d.presentQueueIndex}
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      chosenFormat.Format,
		ImageColorSpace:  chosenFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: sharingMode,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if len(queueFamilyIndices) > 0 {
		createInfo.QueueFamilyIndexCount = uint32(len(queueFamilyIndices))
		createInfo.PQueueFamilyIndices = queueFamilyIndices
	}

	var handle vk.Swapchain
	if result := vk.CreateSwapchain(d.logicalDevice, &createInfo, nil, &handle); result != vk.Success {
		corex.LogError("vkCreateSwapchainKHR failed: %s", ResultString(result, true))
		return nil, rhi.ErrSwapchainCreationFailed
	}

	var imgCount uint32
	vk.GetSwapchainImages(d.logicalDevice, handle, &imgCount, nil)
	images := make([]vk.Image, imgCount)
	vk.GetSwapchainImages(d.logicalDevice, handle, &imgCount, images)

	views := make([]vk.ImageView, imgCount)
	for i, img := range images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vk.ImageViewType2d,
			Format:   chosenFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		vk.CreateImageView(d.logicalDevice, &viewInfo, nil, &views[i])
	}

	renderFinished := make([]vk.Semaphore, imgCount)
	for i := range renderFinished {
		semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		vk.CreateSemaphore(d.logicalDevice, &semInfo, nil, &renderFinished[i])
	}

	sc := &Swapchain{
		device:         d.logicalDevice,
		handle:         handle,
		imageFormat:    chosenFormat.Format,
		extent:         extent,
		images:         images,
		views:          views,
		renderFinished: renderFinished,
		imageFences:    make([]vk.Fence, imgCount),
	}
	return sc, nil
}

func clampU32(v, lo, hi uint32) uint32 {
	if hi > 0 && v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

// acquireNextImage acquires the next presentable image using the
// frame slot's image-available semaphore, recreating the swapchain
// and its default render targets on OUT_OF_DATE and then returning
// rhi.ErrSwapchainOutOfDate so the caller skips that frame (spec §4.2).
func (d *Device) acquireNextImage(imageAvailable vk.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(d.logicalDevice, d.swapchain.handle, vk.MaxUint64, imageAvailable, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success, vk.Suboptimal:
		return imageIndex, nil
	case vk.ErrorOutOfDate:
		d.Resized(d.framebufferW, d.framebufferH)
		return 0, rhi.ErrSwapchainOutOfDate
	default:
		corex.LogError("vkAcquireNextImageKHR failed: %s", ResultString(result, true))
		return 0, rhi.ErrSwapchainOutOfDate
	}
}

func (d *Device) recreateSwapchain() error {
	vk.DeviceWaitIdle(d.logicalDevice)

	w, h := d.window.FramebufferSize()
	if w == 0 || h == 0 {
		return nil // zero-sized window: skip recreation (spec §4.2)
	}

	old := d.swapchain
	newSC, err := d.buildSwapchain(uint32(w), uint32(h), old.handle)
	if err != nil {
		return err
	}
	d.destroySwapchain(old)
	d.swapchain = newSC
	d.framebufferW, d.framebufferH = uint32(w), uint32(h)
	return nil
}

func (d *Device) destroySwapchain(sc *Swapchain) {
	if sc == nil {
		return
	}
	for _, v := range sc.views {
		vk.DestroyImageView(d.logicalDevice, v, nil)
	}
	for _, s := range sc.renderFinished {
		vk.DestroySemaphore(d.logicalDevice, s, nil)
	}
	if sc.depthView != vk.NullImageView {
		vk.DestroyImageView(d.logicalDevice, sc.depthView, nil)
	}
	if sc.depthImage != vk.NullImage {
		vk.DestroyImage(d.logicalDevice, sc.depthImage, nil)
	}
	if sc.depthMemory != vk.NullDeviceMemory {
		vk.FreeMemory(d.logicalDevice, sc.depthMemory, nil)
	}
	vk.DestroySwapchain(d.logicalDevice, sc.handle, nil)
}
