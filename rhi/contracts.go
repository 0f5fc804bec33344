package rhi

// Device is the RHI device contract (spec §6). The Vulkan backend
// (rhi/vulkan.Device) implements it; an OpenGL backend could implement
// the same contract without the core needing to change (spec §9).
type Device interface {
	CreateBuffer(desc BufferDesc) (BufferHandle, error)
	CreateTexture(desc TextureDesc) (TextureHandle, error)
	CreateVertexShader(bytecode []byte) (ShaderHandle, error)
	CreatePixelShader(bytecode []byte) (ShaderHandle, error)
	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	CreatePipelineState(desc PipelineStateDesc) (PipelineHandle, error)

	ImmediateRecorder() Recorder

	WaitForIdle() error
	Present() error

	MemoryStats() (usedBytes, availableBytes uint64)
	CollectGarbage()
}

// Recorder is the RHI command recorder contract (spec §6). The
// Immediate Command Recorder (§4.11) is the only implementation; the
// RDG builder records against the same interface during execute.
type Recorder interface {
	Begin() error
	End() error
	Reset() error

	SetPipelineState(h PipelineHandle) error
	SetVertexBuffers(startSlot uint32, buffers []BufferHandle) error
	SetIndexBuffer(h BufferHandle, is32Bit bool) error
	SetConstantBuffer(slot uint32, h BufferHandle) error
	SetShaderResource(slot uint32, h TextureHandle) error
	SetSampler(slot uint32, h SamplerHandle) error

	SetViewport(x, y, width, height, minDepth, maxDepth float32) error
	SetScissorRect(x, y, width, height int32) error
	SetRenderTargets(colorTargets []TextureHandle, depthTarget TextureHandle) error
	EndRenderPass() error

	Draw(vertexCount, firstVertex uint32) error
	DrawIndexed(indexCount, firstIndex uint32, baseVertex int32) error
	DrawInstanced(vertexCount, instanceCount, firstVertex, firstInstance uint32) error
	DrawIndexedInstanced(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) error

	ClearColor(target TextureHandle, r, g, b, a float32) error
	ClearDepthStencil(target TextureHandle, depth float32, stencil uint32) error

	TransitionResource(texture TextureHandle, from, to RhiAccess) error
	ResourceBarrier() error

	BeginEvent(name string) error
	EndEvent() error
	SetMarker(name string) error
}
