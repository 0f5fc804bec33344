package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/memory"
)

// buildDefaultTargets allocates the device-local depth image, the
// default render pass (color LOAD_OP=CLEAR/STORE=STORE, depth
// LOAD_OP=CLEAR/STORE=DONT_CARE, color final layout = PRESENT_SRC), and
// one framebuffer per swapchain image (spec §4.2 init order).
func (d *Device) buildDefaultTargets() error {
	if err := d.createDepthTarget(); err != nil {
		return err
	}

	color := AttachmentOp{
		Format: d.swapchain.imageFormat, LoadClear: true, StoreKeep: true,
		InitialUndefined: true, FinalLayout: vk.ImageLayoutPresentSrc,
	}
	depth := AttachmentOp{
		Format: d.depthFormat, LoadClear: true, StoreKeep: false,
		InitialUndefined: true, FinalLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	pass, _, err := d.renderPassCache.GetOrCreate([]AttachmentOp{color}, &depth)
	if err != nil {
		return err
	}
	d.defaultRenderPass = pass

	d.framebuffers = make([]vk.Framebuffer, len(d.swapchain.views))
	for i, v := range d.swapchain.views {
		fb, err := d.framebufferCache.GetOrCreate(pass, d.swapchain.extent.Width, d.swapchain.extent.Height, 1, []vk.ImageView{v, d.depthView})
		if err != nil {
			return err
		}
		d.framebuffers[i] = fb
	}
	return nil
}

func (d *Device) createDepthTarget() error {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    d.depthFormat,
		Extent:    vk.Extent3D{Width: d.swapchain.extent.Width, Height: d.swapchain.extent.Height, Depth: 1},
		MipLevels: 1, ArrayLayers: 1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if result := vk.CreateImage(d.logicalDevice, &createInfo, nil, &img); result != vk.Success {
		return rhi.ErrOutOfDeviceMemory
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logicalDevice, img, &req)
	req.Deref()

	alloc, err := d.memory.Allocate(memory.Request{
		Size: uint64(req.Size), Alignment: uint64(req.Alignment),
		AllowedTypeMask: req.MemoryTypeBits, RequiredProperties: memory.PropertyDeviceLocal,
		Dedicated: true,
	})
	if err != nil {
		vk.DestroyImage(d.logicalDevice, img, nil)
		return err
	}
	if result := vk.BindImageMemory(d.logicalDevice, img, vk.DeviceMemory(alloc.DeviceMemory), vk.DeviceSize(alloc.Offset)); result != vk.Success {
		d.memory.Free(alloc)
		vk.DestroyImage(d.logicalDevice, img, nil)
		return rhi.ErrOutOfDeviceMemory
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType: vk.StructureTypeImageViewCreateInfo, Image: img, ViewType: vk.ImageViewType2d, Format: d.depthFormat,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit), LevelCount: 1, LayerCount: 1},
	}
	var view vk.ImageView
	vk.CreateImageView(d.logicalDevice, &viewInfo, nil, &view)

	d.swapchain.depthImage = img
	d.swapchain.depthView = view
	d.depthAllocation = &AllocationHandle{alloc: alloc}
	return nil
}

// PrepareFrame implements the per-frame contract of spec §4.2: fence
// slot = frame_index % MAX_FRAMES_IN_FLIGHT; wait on that slot's
// in-flight fence; acquire the next swapchain image; if another frame
// is already using that image, wait its per-image fence; record the
// slot's fence as the image's current fence.
func (d *Device) PrepareFrame() (uint32, error) {
	slotIndex := d.frameIndex % maxFramesInFlight
	slot := &d.commandManager.slots[slotIndex]

	vk.WaitForFences(d.logicalDevice, 1, []vk.Fence{slot.fence}, vk.True, vk.MaxUint64)

	imageIndex, err := d.acquireNextImage(slot.imageAvailable)
	if err != nil {
		return 0, err
	}

	if existing := d.swapchain.imageFences[imageIndex]; existing != vk.NullFence {
		vk.WaitForFences(d.logicalDevice, 1, []vk.Fence{existing}, vk.True, vk.MaxUint64)
	}
	d.swapchain.imageFences[imageIndex] = slot.fence
	d.currentImageIndex = imageIndex

	vk.ResetFences(d.logicalDevice, 1, []vk.Fence{slot.fence})
	vk.ResetCommandBuffer(slot.commandBuffer, 0)

	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	vk.BeginCommandBuffer(slot.commandBuffer, &beginInfo)
	slot.state = cbRecording

	d.descriptorSets.BeginFrame(d.frameIndex)

	return imageIndex, nil
}

// Present implements rhi.Device: submits the active command buffer
// waiting on the frame slot's image-available semaphore and signalling
// the acquired image's render-finished semaphore and the slot's fence,
// queues the present call, advances frame_index, and drains the
// deferred-destruction queue by one step (spec §4.2). The descriptor
// pools are rolled forward to the new frame_index by the next
// PrepareFrame.
func (d *Device) Present() error {
	slotIndex := d.frameIndex % maxFramesInFlight
	slot := &d.commandManager.slots[slotIndex]

	if slot.state == cbInRenderPass {
		vk.CmdEndRenderPass(slot.commandBuffer)
		slot.state = cbRecording
	}
	vk.EndCommandBuffer(slot.commandBuffer)
	slot.state = cbRecordingEnded

	imageIndex := d.currentImageIndex
	renderFinished := d.swapchain.renderFinished[imageIndex]

	waitSemaphores := []vk.Semaphore{slot.imageAvailable}
	waitStages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	signalSemaphores := []vk.Semaphore{renderFinished}
	cmdBuffers := []vk.CommandBuffer{slot.commandBuffer}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      cmdBuffers,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    signalSemaphores,
	}
	if result := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, slot.fence); result != vk.Success {
		corex.LogError("vkQueueSubmit failed: %s", ResultString(result, true))
		return rhi.ErrInvalidResourceBinding
	}
	slot.state = cbSubmitted

	swapchains := []vk.Swapchain{d.swapchain.handle}
	imageIndices := []uint32{imageIndex}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount:  1,
		PWaitSemaphores:     signalSemaphores,
		SwapchainCount:      1,
		PSwapchains:         swapchains,
		PImageIndices:       imageIndices,
	}
	result := vk.QueuePresent(d.presentQueue, &presentInfo)
	if result == vk.ErrorOutOfDate || result == vk.Suboptimal {
		if err := d.recreateSwapchain(); err != nil {
			return err
		}
	} else if result != vk.Success {
		corex.LogError("vkQueuePresentKHR failed: %s", ResultString(result, true))
		return rhi.ErrSwapchainOutOfDate
	}

	d.frameIndex++
	d.deferred.Step()
	return nil
}

// Resized implements the window-resize half of spec §4.2's swapchain
// recreation path, invoked from the platform resize callback.
func (d *Device) Resized(width, height uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.recreateSwapchain(); err != nil {
		corex.LogError("swapchain recreation on resize failed: %v", err)
		return
	}
	d.framebufferCache.Invalidate()
	if err := d.buildDefaultTargets(); err != nil {
		corex.LogError("rebuilding default render targets after resize failed: %v", err)
	}
}

// WaitForIdle implements rhi.Device.
func (d *Device) WaitForIdle() error {
	if result := vk.DeviceWaitIdle(d.logicalDevice); result != vk.Success {
		return rhi.ErrNoSuitableDevice
	}
	return nil
}

// MemoryStats implements rhi.Device.
func (d *Device) MemoryStats() (usedBytes, availableBytes uint64) {
	stats := d.memory.Stats()
	return stats.TotalAllocated, stats.TotalReserved
}

// CollectGarbage implements rhi.Device: sweeps the descriptor layout
// cache of unreferenced entries (spec §4.5).
func (d *Device) CollectGarbage() {
	d.layoutCache.GarbageCollect()
}

// ImmediateRecorder implements rhi.Device (spec §4.11).
func (d *Device) ImmediateRecorder() rhi.Recorder {
	return &immediateRecorder{device: d}
}

// Shutdown releases every device-owned object in reverse creation
// order (spec §4.2 lifecycle: "shutdown requires calling wait_for_idle
// first").
func (d *Device) Shutdown() error {
	if err := d.WaitForIdle(); err != nil {
		return err
	}
	d.renderPassCache.Destroy()
	d.framebufferCache.Invalidate()
	for _, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.logicalDevice, fb, nil)
	}
	d.releaseAllocation(d.depthAllocation)
	d.destroySwapchain(d.swapchain)
	for i := range d.commandManager.slots {
		s := &d.commandManager.slots[i]
		vk.DestroyFence(d.logicalDevice, s.fence, nil)
		vk.DestroySemaphore(d.logicalDevice, s.imageAvailable, nil)
	}
	vk.DestroyCommandPool(d.logicalDevice, d.graphicsCommandPool, nil)
	vk.DestroyDevice(d.logicalDevice, nil)
	vk.DestroySurface(d.instance, d.surface, nil)
	vk.DestroyInstance(d.instance, nil)
	return nil
}
