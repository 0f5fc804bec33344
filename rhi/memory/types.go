// Package memory implements the two-tier GPU memory sub-allocator:
// pools of device memory per memory type, served by a first-fit
// free-list, with a dedicated-allocation fast path for large or
// explicitly-dedicated requests (spec §4.3).
//
// The manager is deliberately backend-neutral: it talks to the actual
// device only through the NativeAllocator interface, so the pool and
// free-list logic (the part spec §8's testable properties pin down)
// can be exercised without a live Vulkan device.
package memory

import "unsafe"

const (
	// DefaultPoolSize is the size of a new pool when the requested
	// allocation fits under it.
	DefaultPoolSize uint64 = 64 * 1024 * 1024
	// LargeThreshold is the size at or above which a request always
	// takes the dedicated-allocation path.
	LargeThreshold uint64 = 16 * 1024 * 1024
	// MaxPoolsPerType bounds how many pools a single memory type may
	// accumulate before Allocate fails with ErrPoolExhausted.
	MaxPoolsPerType = 32
	// MaxMemoryTypes matches VkPhysicalDeviceMemoryProperties's fixed
	// array size; used to size the manager's per-type mutex array.
	MaxMemoryTypes = 32
)

// MemoryPropertyFlags mirrors the Vulkan memory property bits the
// manager reasons about when resolving a memory-type index.
type MemoryPropertyFlags uint32

const (
	PropertyDeviceLocal MemoryPropertyFlags = 1 << iota
	PropertyHostVisible
	PropertyHostCoherent
	PropertyHostCached
	PropertyLazilyAllocated
)

// Has reports whether all bits of want are set in f.
func (f MemoryPropertyFlags) Has(want MemoryPropertyFlags) bool {
	return f&want == want
}

// MemoryType describes one entry of the physical device's memory-type
// table, as queried by the backend at device-creation time.
type MemoryType struct {
	Index      int
	Properties MemoryPropertyFlags
}

// NativeBlock is a single native device-memory object, opaque to this
// package beyond its handle and (if host-visible) its mapped pointer.
type NativeBlock struct {
	Handle uint64
	Mapped unsafe.Pointer
}

// NativeAllocator is implemented by the backend to perform the actual
// vkAllocateMemory/vkFreeMemory (and, for host-visible blocks,
// vkMapMemory) calls.
type NativeAllocator interface {
	// Allocate reserves a new device-memory object of exactly size
	// bytes from the given memory-type index. If the type is
	// host-visible the returned NativeBlock.Mapped is a persistent
	// mapping covering the whole block.
	Allocate(memoryTypeIndex int, size uint64) (NativeBlock, error)
	// Free releases a device-memory object previously returned by
	// Allocate.
	Free(block NativeBlock)
}

// Request is the Memory Manager's allocation contract input (spec
// §4.3).
type Request struct {
	Size                uint64
	Alignment           uint64
	AllowedTypeMask     uint32
	RequiredProperties  MemoryPropertyFlags
	PreferredProperties MemoryPropertyFlags
	Dedicated           bool
	Mappable            bool
}

// Allocation is the Memory Manager's output (spec §3 Allocation).
type Allocation struct {
	DeviceMemory    uint64
	Offset          uint64
	Size            uint64
	MemoryTypeIndex int
	Mapped          unsafe.Pointer
	Dedicated       bool

	// PoolIndex/BlockOffset model the pool<->allocation relationship
	// as arena + index rather than a pointer back to the pool (spec
	// §9 Design Notes). PoolIndex is -1 for dedicated allocations.
	PoolIndex  int
	BlockOffset uint64
}
