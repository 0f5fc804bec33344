package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/config"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/memory"
	"github.com/liyanliang-auto/monster-rhi/rhi/platform"
)

// maxFramesInFlight is the triple-buffering depth the spec names
// throughout §4.2/§4.10 (MAX_FRAMES_IN_FLIGHT).
const maxFramesInFlight = 3

// Device owns the instance, surface, physical/logical device, queues,
// swapchain, depth buffer, default render pass and framebuffers, and
// every cache and manager layered on top of them (spec §4.2, the
// Device component in the §2 table). It is the concrete implementation
// of rhi.Device.
type Device struct {
	window *platform.Window
	cfg    config.DeviceConfig

	instance       vk.Instance
	debugMessenger vk.DebugReportCallback
	surface        vk.Surface

	physicalDevice vk.PhysicalDevice
	logicalDevice  vk.Device

	graphicsQueueIndex uint32
	presentQueueIndex  uint32
	transferQueueIndex uint32
	graphicsQueue      vk.Queue
	presentQueue       vk.Queue
	transferQueue      vk.Queue

	graphicsCommandPool vk.CommandPool

	memoryProperties vk.PhysicalDeviceMemoryProperties
	depthFormat      vk.Format

	memory *memory.Manager

	swapchain         *Swapchain
	depthAllocation   *AllocationHandle
	defaultRenderPass vk.RenderPass
	framebuffers      []vk.Framebuffer
	currentImageIndex uint32

	layoutCache      *DescriptorLayoutCache
	descriptorPools  *DescriptorPoolManager
	descriptorSets   *DescriptorSetCache
	renderPassCache  *RenderPassCache
	framebufferCache *FramebufferCache
	pipelineCache    *PipelineCache
	commandManager   *CommandBufferManager
	deferred         *DeferredDestructionQueue

	resources    *resourceRegistry
	shaders      *shaderRegistry
	pipelines    map[rhi.PipelineHandle]*pipelineBinding
	pipelineNext uint32

	frameIndex   uint64
	framebufferW uint32
	framebufferH uint32

	mu sync.Mutex
}

// NewDevice performs the full initialisation order of spec §4.2: each
// step is fatal on error (propagated as a returned error here rather
// than a hard process exit, since a library must let its caller decide
// how to present a fatal-init failure — corex.LogFatal remains
// available to callers that want the teacher's hard-exit behaviour).
func NewDevice(window *platform.Window, cfg config.DeviceConfig) (*Device, error) {
	corex.SetDebug(cfg.EnableValidation)

	d := &Device{
		window: window, cfg: cfg,
		resources: newResourceRegistry(), shaders: newShaderRegistry(),
		pipelines: map[rhi.PipelineHandle]*pipelineBinding{},
	}

	if err := d.createInstance(cfg.ApplicationName, cfg.ApplicationVersion, window.RequiredInstanceExtensions(), cfg.EnableValidation); err != nil {
		return nil, err
	}

	surfacePtr, err := window.CreateWindowSurface(uintptr(unsafe.Pointer(d.instance)))
	if err != nil {
		return nil, rhi.ErrSurfaceCreationFailed
	}
	d.surface = vk.SurfaceFromPointer(surfacePtr)

	if err := d.selectPhysicalDevice(); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}

	d.memory = memory.NewManager(newNativeAllocator(d.logicalDevice, d.hostVisibleTypeSet()), d.memoryTypes())

	w, h := window.FramebufferSize()
	d.framebufferW, d.framebufferH = uint32(w), uint32(h)

	if err := d.createSwapchain(uint32(w), uint32(h)); err != nil {
		return nil, err
	}

	d.layoutCache = NewDescriptorLayoutCache(d.logicalDevice)
	d.descriptorPools = NewDescriptorPoolManager(d.logicalDevice, 256)
	d.descriptorSets = NewDescriptorSetCache(d.descriptorPools)
	d.renderPassCache = NewRenderPassCache(d.logicalDevice)
	d.framebufferCache = NewFramebufferCache(d.logicalDevice, 0)
	d.pipelineCache = NewPipelineCache(d.logicalDevice, d.layoutCache, d.renderPassCache)
	d.deferred = NewDeferredDestructionQueue(maxFramesInFlight)

	if err := d.buildDefaultTargets(); err != nil {
		return nil, err
	}

	if err := d.createCommandPoolAndBuffers(); err != nil {
		return nil, err
	}

	window.SetOnResize(func(w, h int) { d.Resized(uint32(w), uint32(h)) })

	return d, nil
}

func (d *Device) hostVisibleTypeSet() map[int]bool {
	out := map[int]bool{}
	for i := uint32(0); i < d.memoryProperties.MemoryTypeCount; i++ {
		mt := d.memoryProperties.MemoryTypes[i]
		mt.Deref()
		if vk.MemoryPropertyFlagBits(mt.PropertyFlags)&vk.MemoryPropertyHostVisibleBit != 0 {
			out[int(i)] = true
		}
	}
	return out
}

func (d *Device) memoryTypes() []memory.MemoryType {
	out := make([]memory.MemoryType, 0, d.memoryProperties.MemoryTypeCount)
	for i := uint32(0); i < d.memoryProperties.MemoryTypeCount; i++ {
		mt := d.memoryProperties.MemoryTypes[i]
		mt.Deref()
		var props memory.MemoryPropertyFlags
		flags := vk.MemoryPropertyFlagBits(mt.PropertyFlags)
		if flags&vk.MemoryPropertyDeviceLocalBit != 0 {
			props |= memory.PropertyDeviceLocal
		}
		if flags&vk.MemoryPropertyHostVisibleBit != 0 {
			props |= memory.PropertyHostVisible
		}
		if flags&vk.MemoryPropertyHostCoherentBit != 0 {
			props |= memory.PropertyHostCoherent
		}
		if flags&vk.MemoryPropertyHostCachedBit != 0 {
			props |= memory.PropertyHostCached
		}
		if flags&vk.MemoryPropertyLazilyAllocatedBit != 0 {
			props |= memory.PropertyLazilyAllocated
		}
		out = append(out, memory.MemoryType{Index: int(i), Properties: props})
	}
	return out
}
