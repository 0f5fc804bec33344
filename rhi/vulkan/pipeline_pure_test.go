package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

func TestToVkTopology(t *testing.T) {
	cases := map[rhi.PrimitiveTopology]vk.PrimitiveTopology{
		rhi.TopologyTriangleList:  vk.PrimitiveTopologyTriangleList,
		rhi.TopologyTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
		rhi.TopologyLineList:      vk.PrimitiveTopologyLineList,
		rhi.TopologyPointList:     vk.PrimitiveTopologyPointList,
	}
	for in, want := range cases {
		if got := toVkTopology(in); got != want {
			t.Errorf("toVkTopology(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestToVkCullMode(t *testing.T) {
	cases := map[rhi.CullMode]vk.CullModeFlagBits{
		rhi.CullNone:          vk.CullModeNone,
		rhi.CullFront:         vk.CullModeFrontBit,
		rhi.CullBack:          vk.CullModeBackBit,
		rhi.CullFrontAndBack:  vk.CullModeFrontAndBack,
	}
	for in, want := range cases {
		if got := toVkCullMode(in); got != want {
			t.Errorf("toVkCullMode(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestToVkCompareOpCoversEveryCase(t *testing.T) {
	cases := map[rhi.CompareOp]vk.CompareOp{
		rhi.CompareNever:         vk.CompareOpNever,
		rhi.CompareLess:          vk.CompareOpLess,
		rhi.CompareEqual:         vk.CompareOpEqual,
		rhi.CompareLessOrEqual:   vk.CompareOpLessOrEqual,
		rhi.CompareGreater:       vk.CompareOpGreater,
		rhi.CompareNotEqual:      vk.CompareOpNotEqual,
		rhi.CompareGreaterOrEqual: vk.CompareOpGreaterOrEqual,
		rhi.CompareAlways:        vk.CompareOpAlways,
	}
	for in, want := range cases {
		if got := toVkCompareOp(in); got != want {
			t.Errorf("toVkCompareOp(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestVertexFormatSize(t *testing.T) {
	cases := map[rhi.Format]uint32{
		rhi.FormatR32G32Float:       8,
		rhi.FormatR32G32B32Float:    12,
		rhi.FormatR32G32B32A32Float: 16,
		rhi.FormatR8G8B8A8Unorm:     4,
		rhi.FormatB8G8R8A8Unorm:     4,
	}
	for in, want := range cases {
		if got := vertexFormatSize(in); got != want {
			t.Errorf("vertexFormatSize(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestHashPipelineDescDeterministicAndFieldSensitive(t *testing.T) {
	base := rhi.PipelineStateDesc{
		VertexShader: 1, PixelShader: 2, Topology: rhi.TopologyTriangleList,
		Fill: rhi.FillSolid, Cull: rhi.CullBack, DepthTestEnable: true,
		DepthWriteEnable: true, DepthCompare: rhi.CompareLess, Stride: 12,
		Attributes: []rhi.VertexAttribute{{Location: 0, Format: rhi.FormatR32G32B32Float, Offset: 0}},
		Targets:    rhi.RenderTargetFormats{ColorFormats: []rhi.Format{rhi.FormatR8G8B8A8Unorm}, DepthStencilFormat: rhi.FormatD32Float},
	}
	if hashPipelineDesc(base) != hashPipelineDesc(base) {
		t.Fatal("hashing the same desc twice must produce the same value")
	}

	changedShader := base
	changedShader.PixelShader = 99
	if hashPipelineDesc(changedShader) == hashPipelineDesc(base) {
		t.Error("changing the pixel shader handle should change the hash")
	}

	changedAttr := base
	changedAttr.Attributes = []rhi.VertexAttribute{{Location: 1, Format: rhi.FormatR32G32B32Float, Offset: 0}}
	if hashPipelineDesc(changedAttr) == hashPipelineDesc(base) {
		t.Error("changing a vertex attribute should change the hash")
	}

	changedTarget := base
	changedTarget.Targets.DepthStencilFormat = rhi.FormatD24UnormS8Uint
	if hashPipelineDesc(changedTarget) == hashPipelineDesc(base) {
		t.Error("changing the depth-stencil target format should change the hash")
	}
}
