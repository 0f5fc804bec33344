package rhi

// Handle types are opaque small values; callers never dereference
// into backend state through them.
type (
	BufferHandle   uint32
	TextureHandle  uint32
	ShaderHandle   uint32
	SamplerHandle  uint32
	PipelineHandle uint32
)

// ShaderStage identifies which programmable stage a shader module
// targets.
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStagePixel
	ShaderStageCompute
)

// Format is a backend-neutral pixel/vertex-attribute format. The
// Vulkan backend maps these onto VkFormat values.
type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatD32Float
	FormatD32FloatS8Uint
	FormatD24UnormS8Uint
)

// BufferUsage is a bitflag describing how a buffer will be used.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

// BufferDesc describes a buffer creation request (spec §3 Buffer).
type BufferDesc struct {
	Size             uint64
	Usage            BufferUsage
	Stride           uint32
	HostVisible      bool
	PersistentMapped bool
	Dedicated        bool
	DebugName        string
}

// TextureUsage is a bitflag describing how a texture will be used.
type TextureUsage uint32

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageColorAttachment
	TextureUsageDepthStencilAttachment
	TextureUsageStorage
	TextureUsageTransferSrc
	TextureUsageTransferDst
)

// TextureDesc describes a texture creation request (spec §3 Texture).
type TextureDesc struct {
	Width, Height, Depth uint32
	MipLevels            uint32
	ArrayLayers          uint32
	Format               Format
	SampleCount          uint32
	Usage                TextureUsage
	DebugName            string
}

type FilterMode int

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressMirroredRepeat
	AddressClampToEdge
	AddressClampToBorder
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareEqual
	CompareLessOrEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterOrEqual
	CompareAlways
)

// SamplerDesc describes a sampler creation request (spec §3 Sampler).
type SamplerDesc struct {
	MinFilter, MagFilter       FilterMode
	AddressU, AddressV, AddressW AddressMode
	MaxAnisotropy              float32
	CompareFunc                CompareOp
	MinLOD, MaxLOD             float32
	BorderColor                [4]float32
}

type PrimitiveTopology int

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

type FillMode int

const (
	FillSolid FillMode = iota
	FillWireframe
)

type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
	CullFrontAndBack
)

// VertexAttribute describes one vertex input attribute.
type VertexAttribute struct {
	Location uint32
	Format   Format
	Offset   uint32
}

// RenderTargetFormats is the tuple of attachment formats a pipeline
// is built against, and the cache key for the render-pass cache
// (spec §3 Render-Target Layout).
type RenderTargetFormats struct {
	ColorFormats       []Format // 0..8
	DepthStencilFormat Format
	SampleCount        uint32
}

// PipelineStateDesc describes a graphics pipeline creation request
// (spec §3 Pipeline State).
type PipelineStateDesc struct {
	VertexShader   ShaderHandle
	PixelShader    ShaderHandle
	Topology       PrimitiveTopology
	Fill           FillMode
	Cull           CullMode
	DepthTestEnable  bool
	DepthWriteEnable bool
	DepthCompare     CompareOp
	BlendEnable      bool
	Stride           uint32
	Attributes       []VertexAttribute
	Targets          RenderTargetFormats
}
