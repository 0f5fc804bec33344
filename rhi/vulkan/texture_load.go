package vulkan

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"unsafe"

	_ "golang.org/x/image/bmp"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// decodeToRGBA decodes any registered image format (PNG/JPEG via the
// standard library, BMP via golang.org/x/image/bmp) and flattens it to
// tightly-packed RGBA8, the only host pixel layout CreateTexture's
// FormatR8G8B8A8Unorm path accepts.
func decodeToRGBA(r io.Reader) (*image.RGBA, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba, format, nil
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, format, nil
}

// LoadTextureFromFile decodes a PNG/JPEG/BMP file into a sampled,
// device-local 2D texture (spec §3 Texture, §4.4). PNG and JPEG decode
// through the standard library; BMP (and any other format a caller
// blank-imports a golang.org/x/image decoder for) is registered here,
// mirroring the teacher's image-loader concern in
// engine/assets/loaders/image.go but via Go image decoders instead of
// its cgo stb_image binding.
func (d *Device) LoadTextureFromFile(path string) (rhi.TextureHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rgba, format, err := decodeToRGBA(f)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	corex.LogDebug("decoded texture %s as %s", path, format)

	bounds := rgba.Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())

	handle, err := d.CreateTexture(rhi.TextureDesc{
		Width: width, Height: height, Depth: 1,
		MipLevels: 1, ArrayLayers: 1,
		Format:      rhi.FormatR8G8B8A8Unorm,
		SampleCount: 1,
		Usage:       rhi.TextureUsageSampled | rhi.TextureUsageTransferDst,
		DebugName:   path,
	})
	if err != nil {
		return 0, err
	}

	if err := d.uploadTexturePixels(handle, rgba.Pix, width, height); err != nil {
		d.DestroyTexture(handle)
		return 0, err
	}
	return handle, nil
}

// uploadTexturePixels copies tightly-packed RGBA8 pixel data into a
// texture's device-local image through a host-visible staging buffer,
// using a one-shot command buffer (begin/submit/wait) since this runs
// outside any frame's in-flight recorder.
func (d *Device) uploadTexturePixels(handle rhi.TextureHandle, pix []byte, width, height uint32) error {
	staging, err := d.CreateBuffer(rhi.BufferDesc{
		Size: uint64(len(pix)), Usage: rhi.BufferUsageTransferSrc,
		HostVisible: true, DebugName: "texture-upload-staging",
	})
	if err != nil {
		return err
	}
	defer d.DestroyBuffer(staging)

	mapped, err := d.MapBuffer(staging)
	if err != nil {
		return err
	}
	copy(unsafe.Slice((*byte)(mapped), len(pix)), pix)

	d.resources.mu.Lock()
	tex, ok := d.resources.textures[handle]
	bufRes, bufOK := d.resources.buffers[staging]
	d.resources.mu.Unlock()
	if !ok || !bufOK {
		return rhi.ErrInvalidResourceBinding
	}

	cmd, err := d.beginOneShotCommands()
	if err != nil {
		return err
	}

	toDst := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayoutUndefined,
		NewLayout:           vk.ImageLayoutTransferDstOptimal,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               tex.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1, LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toDst})

	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cmd, bufRes.handle, tex.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	toShaderRead := toDst
	toShaderRead.OldLayout = vk.ImageLayoutTransferDstOptimal
	toShaderRead.NewLayout = vk.ImageLayoutShaderReadOnlyOptimal
	vk.CmdPipelineBarrier(cmd, vk.PipelineStageFlags(vk.PipelineStageTransferBit),
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{toShaderRead})

	if err := d.endOneShotCommands(cmd); err != nil {
		return err
	}
	tex.layout = vk.ImageLayoutShaderReadOnlyOptimal
	return nil
}

// beginOneShotCommands and endOneShotCommands bracket a single-use
// command buffer submitted and waited on synchronously — fine for
// setup-time work like texture uploads, never for per-frame recording.
func (d *Device) beginOneShotCommands() (vk.CommandBuffer, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.graphicsCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	bufs := make([]vk.CommandBuffer, 1)
	if result := vk.AllocateCommandBuffers(d.logicalDevice, &allocInfo, bufs); result != vk.Success {
		return nil, rhi.ErrNoSuitableDevice
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if result := vk.BeginCommandBuffer(bufs[0], &beginInfo); result != vk.Success {
		return nil, rhi.ErrNoSuitableDevice
	}
	return bufs[0], nil
}

func (d *Device) endOneShotCommands(cmd vk.CommandBuffer) error {
	if result := vk.EndCommandBuffer(cmd); result != vk.Success {
		return rhi.ErrNoSuitableDevice
	}
	cmds := []vk.CommandBuffer{cmd}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}
	if result := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submit}, nil); result != vk.Success {
		return rhi.ErrNoSuitableDevice
	}
	if result := vk.QueueWaitIdle(d.graphicsQueue); result != vk.Success {
		return rhi.ErrNoSuitableDevice
	}
	vk.FreeCommandBuffers(d.logicalDevice, d.graphicsCommandPool, 1, cmds)
	return nil
}
