package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/memory"
)

// AllocationHandle wraps a memory.Allocation so resource teardown can
// return it to the manager without every call site importing the
// memory package directly.
type AllocationHandle struct {
	alloc *memory.Allocation
}

func (d *Device) releaseAllocation(h *AllocationHandle) {
	if h == nil || h.alloc == nil {
		return
	}
	d.memory.Free(h.alloc)
}

// bufferResource is a Resource Object (spec §3 Buffer, §4.4): its
// native handle is created first, then bound to a Memory Manager
// Allocation — replacing the teacher's image.go, which allocated and
// bound device memory directly per resource with no pool at all.
type bufferResource struct {
	handle     vk.Buffer
	size       uint64
	usage      rhi.BufferUsage
	stride     uint32
	allocation *AllocationHandle
	mapped     unsafe.Pointer
	persistent bool
}

// textureResource is a Resource Object (spec §3 Texture, §4.4).
type textureResource struct {
	handle      vk.Image
	view        vk.ImageView
	sampler     vk.Sampler
	width, height, depth uint32
	mipLevels   uint32
	arrayLayers uint32
	format      vk.Format
	usage       rhi.TextureUsage
	layout      vk.ImageLayout
	allocation  *AllocationHandle
}

type resourceRegistry struct {
	mu       sync.Mutex
	buffers  map[rhi.BufferHandle]*bufferResource
	textures map[rhi.TextureHandle]*textureResource
	samplers map[rhi.SamplerHandle]vk.Sampler
	nextB    uint32
	nextT    uint32
	nextS    uint32
}

func newResourceRegistry() *resourceRegistry {
	return &resourceRegistry{
		buffers:  map[rhi.BufferHandle]*bufferResource{},
		textures: map[rhi.TextureHandle]*textureResource{},
		samplers: map[rhi.SamplerHandle]vk.Sampler{},
	}
}

func toVkBufferUsage(u rhi.BufferUsage) vk.BufferUsageFlagBits {
	var flags vk.BufferUsageFlagBits
	if u&rhi.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&rhi.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&rhi.BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	if u&rhi.BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&rhi.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	if u&rhi.BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&rhi.BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	return flags
}

// CreateBuffer implements rhi.Device: creates the native handle first,
// queries its memory requirement, asks the Memory Manager for an
// Allocation, then binds the handle at (device_memory, offset) (spec
// §4.4).
func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.BufferHandle, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(toVkBufferUsage(desc.Usage)),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if result := vk.CreateBuffer(d.logicalDevice, &createInfo, nil, &buf); result != vk.Success {
		corex.LogError("vkCreateBuffer failed: %s", ResultString(result, true))
		return 0, rhi.ErrOutOfDeviceMemory
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logicalDevice, buf, &req)
	req.Deref()

	required := memory.PropertyDeviceLocal
	preferred := memory.MemoryPropertyFlags(0)
	if desc.HostVisible {
		required = memory.PropertyHostVisible | memory.PropertyHostCoherent
		preferred = 0
	}

	alloc, err := d.memory.Allocate(memory.Request{
		Size:                uint64(req.Size),
		Alignment:           uint64(req.Alignment),
		AllowedTypeMask:     req.MemoryTypeBits,
		RequiredProperties:  required,
		PreferredProperties: preferred,
		Dedicated:           desc.Dedicated,
		Mappable:            desc.HostVisible,
	})
	if err != nil {
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		return 0, err
	}

	if result := vk.BindBufferMemory(d.logicalDevice, buf, vk.DeviceMemory(alloc.DeviceMemory), vk.DeviceSize(alloc.Offset)); result != vk.Success {
		d.memory.Free(alloc)
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		return 0, rhi.ErrOutOfDeviceMemory
	}

	res := &bufferResource{
		handle:     buf,
		size:       desc.Size,
		usage:      desc.Usage,
		stride:     desc.Stride,
		allocation: &AllocationHandle{alloc: alloc},
		mapped:     alloc.Mapped,
		persistent: desc.PersistentMapped && alloc.Mapped != nil,
	}

	d.resources.mu.Lock()
	d.resources.nextB++
	handle := rhi.BufferHandle(d.resources.nextB)
	d.resources.buffers[handle] = res
	d.resources.mu.Unlock()

	return handle, nil
}

// DestroyBuffer routes teardown through the deferred-destruction queue
// rather than freeing memory eagerly during a live frame (spec §4.4).
func (d *Device) DestroyBuffer(h rhi.BufferHandle) {
	d.resources.mu.Lock()
	res, ok := d.resources.buffers[h]
	if ok {
		delete(d.resources.buffers, h)
	}
	d.resources.mu.Unlock()
	if !ok {
		return
	}
	d.DeferBuffer(res.handle, res.allocation)
}

// MapBuffer fails on non-host-visible resources per §4.4.
func (d *Device) MapBuffer(h rhi.BufferHandle) (unsafe.Pointer, error) {
	d.resources.mu.Lock()
	res, ok := d.resources.buffers[h]
	d.resources.mu.Unlock()
	if !ok || res.mapped == nil {
		return nil, rhi.ErrInvalidResourceBinding
	}
	return res.mapped, nil
}

// UnmapBuffer is a no-op on persistently-mapped allocations (§4.4).
func (d *Device) UnmapBuffer(h rhi.BufferHandle) {
	// Persistent mapping is the only mapping strategy this backend
	// uses (pool-level or dedicated, both mapped for their lifetime),
	// so there is nothing to actually unmap here.
}
