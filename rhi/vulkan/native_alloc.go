package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/memory"
)

// nativeAllocator implements memory.NativeAllocator against a live
// logical device, performing the actual vkAllocateMemory/vkMapMemory/
// vkFreeMemory calls the Memory Manager's pool/free-list logic never
// touches directly (spec §4.3; grounded on context.go's
// FindMemoryIndex and the direct vkAllocateMemory call image.go used
// to make per-resource before this manager existed).
type nativeAllocator struct {
	device           vk.Device
	hostVisibleTypes map[int]bool
}

func newNativeAllocator(device vk.Device, hostVisibleTypes map[int]bool) *nativeAllocator {
	return &nativeAllocator{device: device, hostVisibleTypes: hostVisibleTypes}
}

func (n *nativeAllocator) Allocate(memoryTypeIndex int, size uint64) (memory.NativeBlock, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(memoryTypeIndex),
	}
	var mem vk.DeviceMemory
	if result := vk.AllocateMemory(n.device, &allocInfo, nil, &mem); result != vk.Success {
		corex.LogError("vkAllocateMemory failed: %s", ResultString(result, true))
		return memory.NativeBlock{}, errFromResult(result)
	}

	block := memory.NativeBlock{Handle: uint64(mem)}
	if n.hostVisibleTypes[memoryTypeIndex] {
		mapped, err := n.mapHostVisible(block.Handle, size)
		if err != nil {
			vk.FreeMemory(n.device, mem, nil)
			return memory.NativeBlock{}, err
		}
		block.Mapped = mapped
	}
	return block, nil
}

func (n *nativeAllocator) Free(block memory.NativeBlock) {
	vk.FreeMemory(n.device, vk.DeviceMemory(block.Handle), nil)
}

// mapHostVisible persistently maps a host-visible block for its whole
// size, matching the Pool's "optional persistent mapping pointer"
// data-model field (spec §3 Pool).
func (n *nativeAllocator) mapHostVisible(handle uint64, size uint64) (unsafe.Pointer, error) {
	var data unsafe.Pointer
	if result := vk.MapMemory(n.device, vk.DeviceMemory(handle), 0, vk.DeviceSize(size), 0, &data); result != vk.Success {
		return nil, errFromResult(result)
	}
	return data, nil
}

func errFromResult(result vk.Result) error {
	if result == vk.ErrorOutOfDeviceMemory || result == vk.ErrorOutOfHostMemory {
		return memory.ErrOutOfDeviceMemory
	}
	return memory.ErrOutOfDeviceMemory
}
