package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
	"github.com/liyanliang-auto/monster-rhi/rhi/memory"
)

func toVkFormat(f rhi.Format) vk.Format {
	switch f {
	case rhi.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case rhi.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case rhi.FormatR32G32Float:
		return vk.FormatR32g32Sfloat
	case rhi.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case rhi.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case rhi.FormatD32Float:
		return vk.FormatD32Sfloat
	case rhi.FormatD32FloatS8Uint:
		return vk.FormatD32SfloatS8Uint
	case rhi.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	default:
		return vk.FormatR8g8b8a8Unorm
	}
}

func toVkImageUsage(u rhi.TextureUsage) vk.ImageUsageFlagBits {
	var flags vk.ImageUsageFlagBits
	if u&rhi.TextureUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&rhi.TextureUsageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if u&rhi.TextureUsageDepthStencilAttachment != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if u&rhi.TextureUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if u&rhi.TextureUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u&rhi.TextureUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return flags
}

// CreateTexture implements rhi.Device, following the same
// handle-first-then-bind-allocation pattern as CreateBuffer (spec
// §4.4; adapted from image.go's ImageCreate, upgraded to route
// through the Memory Manager instead of a direct vkAllocateMemory).
func (d *Device) CreateTexture(desc rhi.TextureDesc) (rhi.TextureHandle, error) {
	format := toVkFormat(desc.Format)
	mips := desc.MipLevels
	if mips == 0 {
		mips = 1
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width: desc.Width, Height: desc.Height, Depth: maxU32(desc.Depth, 1),
		},
		MipLevels:     mips,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(toVkImageUsage(desc.Usage)),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var img vk.Image
	if result := vk.CreateImage(d.logicalDevice, &createInfo, nil, &img); result != vk.Success {
		corex.LogError("vkCreateImage failed: %s", ResultString(result, true))
		return 0, rhi.ErrOutOfDeviceMemory
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logicalDevice, img, &req)
	req.Deref()

	alloc, err := d.memory.Allocate(memory.Request{
		Size:               uint64(req.Size),
		Alignment:          uint64(req.Alignment),
		AllowedTypeMask:    req.MemoryTypeBits,
		RequiredProperties: memory.PropertyDeviceLocal,
	})
	if err != nil {
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, err
	}

	if result := vk.BindImageMemory(d.logicalDevice, img, vk.DeviceMemory(alloc.DeviceMemory), vk.DeviceSize(alloc.Offset)); result != vk.Success {
		d.memory.Free(alloc)
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, rhi.ErrOutOfDeviceMemory
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if desc.Usage&rhi.TextureUsageDepthStencilAttachment != 0 {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: mips,
			LayerCount: layers,
		},
	}
	var view vk.ImageView
	vk.CreateImageView(d.logicalDevice, &viewInfo, nil, &view)

	res := &textureResource{
		handle: img, view: view,
		width: desc.Width, height: desc.Height, depth: maxU32(desc.Depth, 1),
		mipLevels: mips, arrayLayers: layers,
		format:     format,
		usage:      desc.Usage,
		layout:     vk.ImageLayoutUndefined,
		allocation: &AllocationHandle{alloc: alloc},
	}

	d.resources.mu.Lock()
	d.resources.nextT++
	handle := rhi.TextureHandle(d.resources.nextT)
	d.resources.textures[handle] = res
	d.resources.mu.Unlock()

	return handle, nil
}

func (d *Device) DestroyTexture(h rhi.TextureHandle) {
	d.resources.mu.Lock()
	res, ok := d.resources.textures[h]
	if ok {
		delete(d.resources.textures, h)
	}
	d.resources.mu.Unlock()
	if !ok {
		return
	}
	d.DeferImage(res.handle, res.view, res.allocation)
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func toVkFilter(f rhi.FilterMode) vk.Filter {
	if f == rhi.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func toVkAddressMode(a rhi.AddressMode) vk.SamplerAddressMode {
	switch a {
	case rhi.AddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case rhi.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case rhi.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}

// CreateSampler implements rhi.Device (spec §3 Sampler).
func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.SamplerHandle, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               toVkFilter(desc.MagFilter),
		MinFilter:               toVkFilter(desc.MinFilter),
		AddressModeU:            toVkAddressMode(desc.AddressU),
		AddressModeV:            toVkAddressMode(desc.AddressV),
		AddressModeW:            toVkAddressMode(desc.AddressW),
		AnisotropyEnable:        boolToVk(desc.MaxAnisotropy > 1),
		MaxAnisotropy:           desc.MaxAnisotropy,
		MinLod:                  desc.MinLOD,
		MaxLod:                  desc.MaxLOD,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var sampler vk.Sampler
	if result := vk.CreateSampler(d.logicalDevice, &createInfo, nil, &sampler); result != vk.Success {
		return 0, rhi.ErrOutOfDeviceMemory
	}

	d.resources.mu.Lock()
	d.resources.nextS++
	handle := rhi.SamplerHandle(d.resources.nextS)
	d.resources.samplers[handle] = sampler
	d.resources.mu.Unlock()
	return handle, nil
}

func boolToVk(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
