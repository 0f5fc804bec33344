package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/containers"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// commandBufferState mirrors the Vulkan command-buffer lifecycle the
// teacher's command_buffer.go modeled, kept here on the frame-slot
// buffers the Command Buffer Manager owns.
type commandBufferState int

const (
	cbReady commandBufferState = iota
	cbRecording
	cbInRenderPass
	cbRecordingEnded
	cbSubmitted
)

// frameSlot is one of the MAX_FRAMES_IN_FLIGHT ring entries: a command
// buffer paired with its fence, image-available semaphore, and the
// pending draw state the context tracks (spec §4.10).
type frameSlot struct {
	commandBuffer  vk.CommandBuffer
	fence          vk.Fence
	imageAvailable vk.Semaphore
	state          commandBufferState

	boundPipeline   rhi.PipelineHandle
	inRenderPass    bool
	viewportDirty   bool
	scissorDirty    bool
	viewport        vk.Viewport
	scissor         vk.Rect2D

	vertexBuffers map[uint32]rhi.BufferHandle
	indexBuffer   rhi.BufferHandle
	indexIs32Bit  bool

	constantBuffers map[uint32]rhi.BufferHandle
	shaderResources map[uint32]rhi.TextureHandle
	samplers        map[uint32]rhi.SamplerHandle
}

// CommandBufferManager is the ring of MAX_FRAMES_IN_FLIGHT command
// buffers plus the pending graphics state the spec calls the context
// (spec §4.10). It is unexported state behind Device; the Immediate
// Command Recorder (recorder.go) is the only façade callers see.
type CommandBufferManager struct {
	device vk.Device
	pool   vk.CommandPool
	slots  [maxFramesInFlight]frameSlot
}

func (d *Device) createCommandPoolAndBuffers() error {
	cm := &CommandBufferManager{device: d.logicalDevice, pool: d.graphicsCommandPool}

	bufs := make([]vk.CommandBuffer, maxFramesInFlight)
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.graphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: maxFramesInFlight,
	}
	if result := vk.AllocateCommandBuffers(d.logicalDevice, &allocInfo, bufs); result != vk.Success {
		corex.LogError("vkAllocateCommandBuffers failed: %s", ResultString(result, true))
		return rhi.ErrNoSuitableDevice
	}

	for i := 0; i < maxFramesInFlight; i++ {
		cm.slots[i].commandBuffer = bufs[i]
		cm.slots[i].vertexBuffers = map[uint32]rhi.BufferHandle{}
		cm.slots[i].constantBuffers = map[uint32]rhi.BufferHandle{}
		cm.slots[i].shaderResources = map[uint32]rhi.TextureHandle{}
		cm.slots[i].samplers = map[uint32]rhi.SamplerHandle{}

		fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo, Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit)}
		vk.CreateFence(d.logicalDevice, &fenceInfo, nil, &cm.slots[i].fence)

		semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		vk.CreateSemaphore(d.logicalDevice, &semInfo, nil, &cm.slots[i].imageAvailable)
	}

	d.commandManager = cm
	return nil
}

// deferredEntry is one pending release, stamped with the
// step count at which it becomes safe to run (spec §4.2 Deferred
// destruction).
type deferredEntry struct {
	releaseStep int
	release     func()
}

// DeferredDestructionQueue defers buffer/image teardown by
// MAX_FRAMES_IN_FLIGHT+1 frames, the minimum safe delay to guarantee no
// in-flight command buffer still references the resource. Every entry
// shares the same countdown, so release order always matches
// enqueue order — a plain FIFO ring queue, grounded on the teacher's
// engine/containers/ring_queue.go generalized here into a growable
// generic RingQueue so Step only ever inspects the front entry instead
// of rescanning the whole backlog.
type DeferredDestructionQueue struct {
	countdown int
	step      int
	queue     *containers.RingQueue[*deferredEntry]
}

func NewDeferredDestructionQueue(maxFramesInFlight int) *DeferredDestructionQueue {
	return &DeferredDestructionQueue{countdown: maxFramesInFlight + 1, queue: containers.NewRingQueue[*deferredEntry](8)}
}

func (q *DeferredDestructionQueue) Defer(release func()) {
	q.queue.Enqueue(&deferredEntry{releaseStep: q.step + q.countdown, release: release})
}

// Step advances the queue's clock by one frame and releases every
// entry whose countdown has expired, oldest first. Called once per
// present().
func (q *DeferredDestructionQueue) Step() {
	q.step++
	for {
		e, ok := q.queue.Peek()
		if !ok || e.releaseStep > q.step {
			return
		}
		q.queue.Dequeue()
		e.release()
	}
}

// DeferBuffer and DeferImage are the spec's named deferred-destruction
// entry points (§4.2), expressed here as thin wrappers over Defer so
// callers don't need to build the release closure themselves.
func (d *Device) DeferBuffer(buf vk.Buffer, mem *AllocationHandle) {
	d.deferred.Defer(func() {
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		d.releaseAllocation(mem)
	})
}

func (d *Device) DeferImage(img vk.Image, view vk.ImageView, mem *AllocationHandle) {
	d.deferred.Defer(func() {
		if view != vk.NullImageView {
			vk.DestroyImageView(d.logicalDevice, view, nil)
		}
		vk.DestroyImage(d.logicalDevice, img, nil)
		d.releaseAllocation(mem)
	})
}
