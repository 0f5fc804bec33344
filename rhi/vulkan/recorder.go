package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

// immediateRecorder is the RHI façade of spec §4.11: every method
// delegates to the active frame slot's context. It owns no state of
// its own; its lifetime equals the device's.
type immediateRecorder struct {
	device *Device
}

func (r *immediateRecorder) slot() *frameSlot {
	return &r.device.commandManager.slots[r.device.frameIndex%maxFramesInFlight]
}

func (r *immediateRecorder) Begin() error {
	s := r.slot()
	if s.state != cbRecording && s.state != cbReady {
		return rhi.ErrNotRecording
	}
	return nil
}

func (r *immediateRecorder) End() error {
	s := r.slot()
	if s.inRenderPass {
		vk.CmdEndRenderPass(s.commandBuffer)
		s.inRenderPass = false
	}
	return nil
}

func (r *immediateRecorder) Reset() error {
	s := r.slot()
	s.boundPipeline = 0
	s.indexBuffer = 0
	for k := range s.vertexBuffers {
		delete(s.vertexBuffers, k)
	}
	for k := range s.constantBuffers {
		delete(s.constantBuffers, k)
	}
	for k := range s.shaderResources {
		delete(s.shaderResources, k)
	}
	for k := range s.samplers {
		delete(s.samplers, k)
	}
	return nil
}

func (r *immediateRecorder) SetPipelineState(h rhi.PipelineHandle) error {
	s := r.slot()
	if s.boundPipeline == h {
		return nil
	}
	s.boundPipeline = h
	binding, ok := r.device.pipelines[h]
	if !ok {
		return rhi.ErrInvalidResourceBinding
	}
	vk.CmdBindPipeline(s.commandBuffer, vk.PipelineBindPointGraphics, binding.pipeline)
	return nil
}

func (r *immediateRecorder) SetVertexBuffers(startSlot uint32, buffers []rhi.BufferHandle) error {
	s := r.slot()
	for i, b := range buffers {
		s.vertexBuffers[startSlot+uint32(i)] = b
	}
	return nil
}

func (r *immediateRecorder) SetIndexBuffer(h rhi.BufferHandle, is32Bit bool) error {
	s := r.slot()
	s.indexBuffer = h
	s.indexIs32Bit = is32Bit
	return nil
}

func (r *immediateRecorder) SetConstantBuffer(slot uint32, h rhi.BufferHandle) error {
	r.slot().constantBuffers[slot] = h
	return nil
}

func (r *immediateRecorder) SetShaderResource(slot uint32, h rhi.TextureHandle) error {
	r.slot().shaderResources[slot] = h
	return nil
}

func (r *immediateRecorder) SetSampler(slot uint32, h rhi.SamplerHandle) error {
	r.slot().samplers[slot] = h
	return nil
}

func (r *immediateRecorder) SetViewport(x, y, width, height, minDepth, maxDepth float32) error {
	s := r.slot()
	s.viewport = vk.Viewport{X: x, Y: y, Width: width, Height: height, MinDepth: minDepth, MaxDepth: maxDepth}
	s.viewportDirty = true
	return nil
}

func (r *immediateRecorder) SetScissorRect(x, y, width, height int32) error {
	s := r.slot()
	s.scissor = vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: uint32(width), Height: uint32(height)},
	}
	s.scissorDirty = true
	return nil
}

// SetRenderTargets begins the default render pass against the current
// swapchain image's framebuffer — this backend's render-target layout
// always equals the device's default framebuffer set (spec §4.2), so
// arbitrary target lists beyond the default are not yet materialised
// here; a caller providing the default color+depth attachments gets the
// expected behaviour.
func (r *immediateRecorder) SetRenderTargets(colorTargets []rhi.TextureHandle, depthTarget rhi.TextureHandle) error {
	s := r.slot()
	if s.inRenderPass {
		vk.CmdEndRenderPass(s.commandBuffer)
	}

	fb := r.device.framebuffers[r.device.currentImageIndex]
	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{0, 0, 0, 1}),
		vk.NewClearDepthStencil(1, 0),
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.device.defaultRenderPass,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: r.device.swapchain.extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(s.commandBuffer, &beginInfo, vk.SubpassContentsInline)
	s.inRenderPass = true
	return nil
}

func (r *immediateRecorder) EndRenderPass() error {
	s := r.slot()
	if s.inRenderPass {
		vk.CmdEndRenderPass(s.commandBuffer)
		s.inRenderPass = false
	}
	return nil
}

// prepareForDraw applies dirty viewport/scissor, binds the vertex and
// index buffers accumulated on the context, then resolves and binds
// the bound pipeline's descriptor set (spec §4.10 prepare_for_draw()).
func (r *immediateRecorder) prepareForDraw() error {
	s := r.slot()
	if s.viewportDirty {
		vk.CmdSetViewport(s.commandBuffer, 0, 1, []vk.Viewport{s.viewport})
		s.viewportDirty = false
	}
	if s.scissorDirty {
		vk.CmdSetScissor(s.commandBuffer, 0, 1, []vk.Rect2D{s.scissor})
		s.scissorDirty = false
	}

	if len(s.vertexBuffers) > 0 {
		maxSlot := uint32(0)
		for slot := range s.vertexBuffers {
			if slot > maxSlot {
				maxSlot = slot
			}
		}
		buffers := make([]vk.Buffer, maxSlot+1)
		offsets := make([]vk.DeviceSize, maxSlot+1)
		for slot, h := range s.vertexBuffers {
			r.device.resources.mu.Lock()
			res := r.device.resources.buffers[h]
			r.device.resources.mu.Unlock()
			if res != nil {
				buffers[slot] = res.handle
			}
		}
		vk.CmdBindVertexBuffers(s.commandBuffer, 0, uint32(len(buffers)), buffers, offsets)
	}

	if s.indexBuffer != 0 {
		r.device.resources.mu.Lock()
		res := r.device.resources.buffers[s.indexBuffer]
		r.device.resources.mu.Unlock()
		if res != nil {
			indexType := vk.IndexTypeUint16
			if s.indexIs32Bit {
				indexType = vk.IndexTypeUint32
			}
			vk.CmdBindIndexBuffer(s.commandBuffer, res.handle, 0, indexType)
		}
	}

	return r.bindDescriptorSet(s)
}

// bindDescriptorSet resolves the constant-buffer/shader-resource/
// sampler state the SetConstantBuffer/SetShaderResource/SetSampler
// setters recorded on the context into a descriptor set, against the
// bound pipeline's reflected binding layout, via the frame-local
// DescriptorSetCache (spec §4.7 get_or_allocate) — reusing one native
// set for an identical binding tuple within the frame — then binds it
// before the draw reaches hardware.
func (r *immediateRecorder) bindDescriptorSet(s *frameSlot) error {
	if s.boundPipeline == 0 {
		return nil
	}
	pb, ok := r.device.pipelines[s.boundPipeline]
	if !ok || len(pb.bindings) == 0 {
		return nil
	}

	var writes []descriptorWrite
	var key [8]uint32
	ki := 0
	pushKey := func(v uint32) {
		if ki < len(key) {
			key[ki] = v
			ki++
		}
	}

	for _, b := range pb.bindings {
		switch b.Type {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			h, bound := s.constantBuffers[b.Binding]
			if !bound {
				continue
			}
			r.device.resources.mu.Lock()
			res := r.device.resources.buffers[h]
			r.device.resources.mu.Unlock()
			if res == nil {
				continue
			}
			writes = append(writes, descriptorWrite{
				binding: b.Binding, typ: b.Type,
				buffer: res.handle, offset: 0, size: res.size,
			})
			pushKey(uint32(h))

		case vk.DescriptorTypeCombinedImageSampler:
			th, bound := s.shaderResources[b.Binding]
			if !bound {
				continue
			}
			r.device.resources.mu.Lock()
			res := r.device.resources.textures[th]
			r.device.resources.mu.Unlock()
			if res == nil {
				continue
			}
			sampler := res.sampler
			var samplerHandle rhi.SamplerHandle
			if sh, hasSampler := s.samplers[b.Binding]; hasSampler {
				samplerHandle = sh
				r.device.resources.mu.Lock()
				if native, ok := r.device.resources.samplers[sh]; ok {
					sampler = native
				}
				r.device.resources.mu.Unlock()
			}
			writes = append(writes, descriptorWrite{
				binding: b.Binding, typ: b.Type,
				view: res.view, sampler: sampler, layout: res.layout,
			})
			pushKey(uint32(th))
			pushKey(uint32(samplerHandle))
		}
	}

	if len(writes) == 0 {
		return nil
	}

	set, err := r.device.descriptorSets.GetOrAllocate(pb.setLayout, pb.layoutKey, key, writes)
	if err != nil {
		return err
	}

	vk.CmdBindDescriptorSets(s.commandBuffer, vk.PipelineBindPointGraphics, pb.layout, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	return nil
}

func (r *immediateRecorder) Draw(vertexCount, firstVertex uint32) error {
	if err := r.prepareForDraw(); err != nil {
		return err
	}
	vk.CmdDraw(r.slot().commandBuffer, vertexCount, 1, firstVertex, 0)
	return nil
}

func (r *immediateRecorder) DrawIndexed(indexCount, firstIndex uint32, baseVertex int32) error {
	if err := r.prepareForDraw(); err != nil {
		return err
	}
	vk.CmdDrawIndexed(r.slot().commandBuffer, indexCount, 1, firstIndex, baseVertex, 0)
	return nil
}

func (r *immediateRecorder) DrawInstanced(vertexCount, instanceCount, firstVertex, firstInstance uint32) error {
	if err := r.prepareForDraw(); err != nil {
		return err
	}
	vk.CmdDraw(r.slot().commandBuffer, vertexCount, instanceCount, firstVertex, firstInstance)
	return nil
}

func (r *immediateRecorder) DrawIndexedInstanced(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error {
	if err := r.prepareForDraw(); err != nil {
		return err
	}
	vk.CmdDrawIndexed(r.slot().commandBuffer, indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	return nil
}

func (r *immediateRecorder) ClearColor(target rhi.TextureHandle, red, green, blue, alpha float32) error {
	_ = target
	s := r.slot()
	if !s.inRenderPass {
		return rhi.ErrNoActiveRenderPass
	}
	clear := vk.ClearAttachment{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		ClearValue: vk.NewClearValue([]float32{red, green, blue, alpha}),
	}
	rects := []vk.ClearRect{{
		Rect:           vk.Rect2D{Extent: r.device.swapchain.extent},
		BaseArrayLayer: 0, LayerCount: 1,
	}}
	vk.CmdClearAttachments(s.commandBuffer, 1, []vk.ClearAttachment{clear}, 1, rects)
	return nil
}

func (r *immediateRecorder) ClearDepthStencil(target rhi.TextureHandle, depth float32, stencil uint32) error {
	_ = target
	s := r.slot()
	if !s.inRenderPass {
		return rhi.ErrNoActiveRenderPass
	}
	clear := vk.ClearAttachment{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit),
		ClearValue: vk.NewClearDepthStencil(depth, stencil),
	}
	rects := []vk.ClearRect{{
		Rect:           vk.Rect2D{Extent: r.device.swapchain.extent},
		BaseArrayLayer: 0, LayerCount: 1,
	}}
	vk.CmdClearAttachments(s.commandBuffer, 1, []vk.ClearAttachment{clear}, 1, rects)
	return nil
}

// TransitionResource records an explicit layout/access transition for
// resources the RDG builder or a caller manages outside the default
// render pass (spec §3 RhiAccess, §4.12).
func (r *immediateRecorder) TransitionResource(texture rhi.TextureHandle, from, to rhi.RhiAccess) error {
	if !to.Valid() {
		return rhi.ErrInvalidResourceBinding
	}
	r.device.resources.mu.Lock()
	res, ok := r.device.resources.textures[texture]
	r.device.resources.mu.Unlock()
	if !ok {
		return rhi.ErrInvalidResourceBinding
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           res.layout,
		NewLayout:           accessToLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               res.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: res.mipLevels, LayerCount: res.arrayLayers,
		},
	}
	vk.CmdPipelineBarrier(r.slot().commandBuffer,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	res.layout = barrier.NewLayout
	return nil
}

func accessToLayout(a rhi.RhiAccess) vk.ImageLayout {
	switch {
	case a.Has(rhi.AccessPresent):
		return vk.ImageLayoutPresentSrc
	case a.Has(rhi.AccessRTV):
		return vk.ImageLayoutColorAttachmentOptimal
	case a.Has(rhi.AccessDSVWrite):
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case a.Has(rhi.AccessDSVRead):
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case a.Has(rhi.AccessSRVGraphics), a.Has(rhi.AccessSRVCompute):
		return vk.ImageLayoutShaderReadOnlyOptimal
	case a.Has(rhi.AccessCopyDest):
		return vk.ImageLayoutTransferDstOptimal
	case a.Has(rhi.AccessCopySrc):
		return vk.ImageLayoutTransferSrcOptimal
	default:
		return vk.ImageLayoutGeneral
	}
}

// ResourceBarrier flushes a generic execution+memory dependency; used
// between draws that read-after-write the same resource without a
// layout change.
func (r *immediateRecorder) ResourceBarrier() error {
	vk.CmdPipelineBarrier(r.slot().commandBuffer,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 0, nil)
	return nil
}

func (r *immediateRecorder) BeginEvent(name string) error {
	return nil
}

func (r *immediateRecorder) EndEvent() error {
	return nil
}

func (r *immediateRecorder) SetMarker(name string) error {
	return nil
}
