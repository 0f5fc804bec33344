package vulkan

import (
	"hash/fnv"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

type pipelineEntry struct {
	pipeline     vk.Pipeline
	layout       vk.PipelineLayout
	setLayout    vk.DescriptorSetLayout
	layoutKey    uint64
	renderPass   vk.RenderPass
	vertexShader rhi.ShaderHandle
	pixelShader  rhi.ShaderHandle
}

// PipelineCache builds and caches graphics pipelines keyed by a
// structural hash of their PipelineStateDesc, grounded on pipeline.go's
// fixed-function state construction (vertex input, rasterizer,
// depth-stencil, blend, dynamic state) but generalized from one
// hard-coded pipeline into a cache so repeated PipelineStateDesc values
// reuse one native object (spec §4.9).
type PipelineCache struct {
	device      vk.Device
	layouts     *DescriptorLayoutCache
	renderPasses *RenderPassCache

	mu      sync.Mutex
	byHash  map[uint64]*pipelineEntry
}

func NewPipelineCache(device vk.Device, layouts *DescriptorLayoutCache, renderPasses *RenderPassCache) *PipelineCache {
	return &PipelineCache{device: device, layouts: layouts, renderPasses: renderPasses, byHash: map[uint64]*pipelineEntry{}}
}

func hashPipelineDesc(desc rhi.PipelineStateDesc) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	writeU32 := func(v uint32) {
		putU32(buf[:], v)
		h.Write(buf[:])
	}
	writeU32(uint32(desc.VertexShader))
	writeU32(uint32(desc.PixelShader))
	writeU32(uint32(desc.Topology))
	writeU32(uint32(desc.Fill))
	writeU32(uint32(desc.Cull))
	writeU32(boolU32(desc.DepthTestEnable))
	writeU32(boolU32(desc.DepthWriteEnable))
	writeU32(uint32(desc.DepthCompare))
	writeU32(boolU32(desc.BlendEnable))
	writeU32(desc.Stride)
	for _, a := range desc.Attributes {
		writeU32(a.Location)
		writeU32(uint32(a.Format))
		writeU32(a.Offset)
	}
	for _, f := range desc.Targets.ColorFormats {
		writeU32(uint32(f))
	}
	writeU32(uint32(desc.Targets.DepthStencilFormat))
	return h.Sum64()
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func toVkTopology(t rhi.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case rhi.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case rhi.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case rhi.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func toVkPolygonMode(f rhi.FillMode) vk.PolygonMode {
	if f == rhi.FillWireframe {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func toVkCullMode(c rhi.CullMode) vk.CullModeFlagBits {
	switch c {
	case rhi.CullFront:
		return vk.CullModeFrontBit
	case rhi.CullBack:
		return vk.CullModeBackBit
	case rhi.CullFrontAndBack:
		return vk.CullModeFrontAndBack
	default:
		return vk.CullModeNone
	}
}

func toVkCompareOp(c rhi.CompareOp) vk.CompareOp {
	switch c {
	case rhi.CompareLess:
		return vk.CompareOpLess
	case rhi.CompareEqual:
		return vk.CompareOpEqual
	case rhi.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case rhi.CompareGreater:
		return vk.CompareOpGreater
	case rhi.CompareNotEqual:
		return vk.CompareOpNotEqual
	case rhi.CompareGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case rhi.CompareAlways:
		return vk.CompareOpAlways
	default:
		return vk.CompareOpNever
	}
}

func vertexFormatSize(f rhi.Format) uint32 {
	switch f {
	case rhi.FormatR32G32Float:
		return 8
	case rhi.FormatR32G32B32Float:
		return 12
	case rhi.FormatR32G32B32A32Float:
		return 16
	case rhi.FormatR8G8B8A8Unorm, rhi.FormatB8G8R8A8Unorm:
		return 4
	default:
		return 4
	}
}

// GetOrCreate builds (or returns a cached) graphics pipeline for the
// given PipelineStateDesc, constructing the pipeline layout from the
// descriptor layout cache and obtaining its render pass from the
// render-pass cache (spec §4.9).
func (c *PipelineCache) GetOrCreate(desc rhi.PipelineStateDesc, vertexModule, pixelModule vk.ShaderModule, bindings []DescriptorBinding) (vk.Pipeline, vk.PipelineLayout, vk.DescriptorSetLayout, uint64, error) {
	key := hashPipelineDesc(desc)

	c.mu.Lock()
	if e, ok := c.byHash[key]; ok {
		c.mu.Unlock()
		return e.pipeline, e.layout, e.setLayout, e.layoutKey, nil
	}
	c.mu.Unlock()

	setLayout, layoutKey, err := c.layouts.GetOrCreate(bindings)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}
	var layout vk.PipelineLayout
	if result := vk.CreatePipelineLayout(c.device, &layoutInfo, nil, &layout); result != vk.Success {
		c.layouts.Release(layoutKey)
		return nil, nil, nil, 0, rhi.ErrInvalidResourceBinding
	}

	colorFormats := make([]vk.Format, len(desc.Targets.ColorFormats))
	colorAttachments := make([]AttachmentOp, len(desc.Targets.ColorFormats))
	for i, f := range desc.Targets.ColorFormats {
		vf := toVkFormat(f)
		colorFormats[i] = vf
		colorAttachments[i] = AttachmentOp{Format: vf, LoadClear: true, StoreKeep: true, InitialUndefined: true}
	}
	var depthAttachment *AttachmentOp
	if desc.Targets.DepthStencilFormat != rhi.FormatUnknown {
		depthAttachment = &AttachmentOp{Format: toVkFormat(desc.Targets.DepthStencilFormat), LoadClear: true, StoreKeep: true, InitialUndefined: true}
	}
	renderPass, _, err := c.renderPasses.GetOrCreate(colorAttachments, depthAttachment)
	if err != nil {
		vk.DestroyPipelineLayout(c.device, layout, nil)
		c.layouts.Release(layoutKey)
		return nil, nil, nil, 0, err
	}

	var bindingDesc vk.VertexInputBindingDescription
	var attrDescs []vk.VertexInputAttributeDescription
	if desc.Stride > 0 {
		bindingDesc = vk.VertexInputBindingDescription{Binding: 0, Stride: desc.Stride, InputRate: vk.VertexInputRateVertex}
		for _, a := range desc.Attributes {
			attrDescs = append(attrDescs, vk.VertexInputAttributeDescription{
				Location: a.Location, Binding: 0, Format: toVkFormat(a.Format), Offset: a.Offset,
			})
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{SType: vk.StructureTypePipelineVertexInputStateCreateInfo}
	if desc.Stride > 0 {
		vertexInput.VertexBindingDescriptionCount = 1
		vertexInput.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{bindingDesc}
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attrDescs))
		vertexInput.PVertexAttributeDescriptions = attrDescs
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: toVkTopology(desc.Topology),
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType: vk.StructureTypePipelineViewportStateCreateInfo, ViewportCount: 1, ScissorCount: 1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: toVkPolygonMode(desc.Fill),
		CullMode:    vk.CullModeFlags(toVkCullMode(desc.Cull)),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType: vk.StructureTypePipelineMultisampleStateCreateInfo, RasterizationSamples: vk.SampleCount1Bit,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  boolToVk(desc.DepthTestEnable),
		DepthWriteEnable: boolToVk(desc.DepthWriteEnable),
		DepthCompareOp:   toVkCompareOp(desc.DepthCompare),
	}

	var blendAttachments []vk.PipelineColorBlendAttachmentState
	for range colorFormats {
		blendAttachments = append(blendAttachments, vk.PipelineColorBlendAttachmentState{
			BlendEnable:         boolToVk(desc.BlendEnable),
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask:      vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		})
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vertexModule, PName: safeCString("main")},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: pixelModule, PName: safeCString("main")},
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             0,
	}

	pipelines := make([]vk.Pipeline, 1)
	if result := vk.CreateGraphicsPipelines(c.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, nil, pipelines); result != vk.Success {
		vk.DestroyPipelineLayout(c.device, layout, nil)
		c.layouts.Release(layoutKey)
		return nil, nil, nil, 0, rhi.ErrInvalidResourceBinding
	}

	c.mu.Lock()
	c.byHash[key] = &pipelineEntry{
		pipeline: pipelines[0], layout: layout, setLayout: setLayout, layoutKey: layoutKey, renderPass: renderPass,
		vertexShader: desc.VertexShader, pixelShader: desc.PixelShader,
	}
	c.mu.Unlock()

	return pipelines[0], layout, setLayout, layoutKey, nil
}

func safeCString(s string) string {
	return s + "\x00"
}

// InvalidateShader evicts and destroys every cached pipeline built
// from the given shader handle, so a hot-reloaded shader's replacement
// module is picked up the next time CreatePipelineState asks for that
// PipelineStateDesc (spec §6 shader hot reload).
func (c *PipelineCache) InvalidateShader(h rhi.ShaderHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.byHash {
		if e.vertexShader != h && e.pixelShader != h {
			continue
		}
		vk.DestroyPipeline(c.device, e.pipeline, nil)
		vk.DestroyPipelineLayout(c.device, e.layout, nil)
		c.layouts.Release(e.layoutKey)
		delete(c.byHash, key)
	}
}

// CreatePipelineState implements rhi.Device, resolving the shader
// handles to their native modules and reflected bindings before
// delegating to the cache.
func (d *Device) CreatePipelineState(desc rhi.PipelineStateDesc) (rhi.PipelineHandle, error) {
	d.shaders.mu.Lock()
	vs, vsOK := d.shaders.shaders[desc.VertexShader]
	ps, psOK := d.shaders.shaders[desc.PixelShader]
	d.shaders.mu.Unlock()
	if !vsOK || !psOK {
		return 0, rhi.ErrInvalidResourceBinding
	}

	var bindings []DescriptorBinding
	seen := map[uint32]bool{}
	for _, b := range append(append([]ReflectedBinding{}, vs.bindings...), ps.bindings...) {
		if seen[b.Binding] {
			continue
		}
		seen[b.Binding] = true
		stage := vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit
		bindings = append(bindings, DescriptorBinding{Binding: b.Binding, Type: b.Type, Count: 1, StageFlags: stage})
	}
	bindings = sortedBindings(bindings)

	pipeline, layout, setLayout, layoutKey, err := d.pipelineCache.GetOrCreate(desc, vs.module, ps.module, bindings)
	if err != nil {
		return 0, err
	}

	d.resources.mu.Lock()
	d.pipelineNext++
	handle := rhi.PipelineHandle(d.pipelineNext)
	d.pipelines[handle] = &pipelineBinding{
		pipeline: pipeline, layout: layout,
		setLayout: setLayout, layoutKey: layoutKey, bindings: bindings,
	}
	d.resources.mu.Unlock()

	return handle, nil
}

// pipelineBinding is the native pipeline/layout state a
// rhi.PipelineHandle resolves to, plus the descriptor set layout and
// binding shape prepareForDraw needs to resolve and bind a descriptor
// set before a draw (spec §4.7, §4.10).
type pipelineBinding struct {
	pipeline  vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
	layoutKey uint64
	bindings  []DescriptorBinding
}
