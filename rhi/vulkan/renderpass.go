package vulkan

import (
	"hash/fnv"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

// AttachmentOp describes the load/store behaviour of one render-pass
// attachment, the unit the render-pass cache hashes over (spec §4.8).
type AttachmentOp struct {
	Format     vk.Format
	LoadClear  bool
	LoadLoad   bool
	StoreKeep  bool
	InitialUndefined bool
	FinalLayout vk.ImageLayout
}

type renderPassEntry struct {
	pass        vk.RenderPass
	colorCount  int
	hasDepth    bool
}

// RenderPassCache hands out vk.RenderPass handles keyed by a
// structural hash of their attachment set, fixing the teacher's
// renderpass.go (whose RenderpassBegin was a no-op stub and whose type
// was inconsistently named *VulkanRenderpass vs VulkanRenderPass
// across call sites) by replacing the per-instance render pass object
// with a cache keyed on attachment shape (spec §4.8).
type RenderPassCache struct {
	device vk.Device
	mu     sync.Mutex
	byHash map[uint64]*renderPassEntry
}

func NewRenderPassCache(device vk.Device) *RenderPassCache {
	return &RenderPassCache{device: device, byHash: map[uint64]*renderPassEntry{}}
}

func hashAttachments(colors []AttachmentOp, depth *AttachmentOp) uint64 {
	h := fnv.New64a()
	var buf [12]byte
	putU32(buf[0:4], uint32(len(colors)))
	h.Write(buf[0:4])
	write := func(op AttachmentOp) {
		putU32(buf[0:4], uint32(op.Format))
		flags := uint32(0)
		if op.LoadClear {
			flags |= 1
		}
		if op.LoadLoad {
			flags |= 2
		}
		if op.StoreKeep {
			flags |= 4
		}
		if op.InitialUndefined {
			flags |= 8
		}
		putU32(buf[4:8], flags)
		putU32(buf[8:12], uint32(op.FinalLayout))
		h.Write(buf[:])
	}
	for _, c := range colors {
		write(c)
	}
	if depth != nil {
		write(*depth)
	}
	return h.Sum64()
}

// GetOrCreate builds (or returns a cached) render pass for the given
// color + optional depth attachment set, following the load/store-op
// driven layout rules of spec §4.8: an attachment with
// InitialUndefined set starts UNDEFINED, any other starts in its
// op's FinalLayout (the layout a previous use of the pass left it in);
// each attachment finishes in its op's FinalLayout when one is set,
// otherwise color finishes COLOR_ATTACHMENT_OPTIMAL and depth finishes
// DEPTH_STENCIL_ATTACHMENT_OPTIMAL, and a single external subpass
// dependency orders the pass against whatever wrote these images
// previously.
func (c *RenderPassCache) GetOrCreate(colors []AttachmentOp, depth *AttachmentOp) (vk.RenderPass, uint64, error) {
	key := hashAttachments(colors, depth)

	c.mu.Lock()
	if e, ok := c.byHash[key]; ok {
		c.mu.Unlock()
		return e.pass, key, nil
	}
	c.mu.Unlock()

	var descs []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	for i, col := range colors {
		descs = append(descs, attachmentDescription(col, false))
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	var depthRef *vk.AttachmentReference
	if depth != nil {
		descs = append(descs, attachmentDescription(*depth, true))
		ref := vk.AttachmentReference{
			Attachment: uint32(len(colors)), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		depthRef = &ref
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if depthRef != nil {
		subpass.PDepthStencilAttachment = depthRef
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	if result := vk.CreateRenderPass(c.device, &createInfo, nil, &pass); result != vk.Success {
		return nil, 0, rhi.ErrInvalidResourceBinding
	}

	c.mu.Lock()
	c.byHash[key] = &renderPassEntry{pass: pass, colorCount: len(colors), hasDepth: depth != nil}
	c.mu.Unlock()
	return pass, key, nil
}

func attachmentDescription(op AttachmentOp, depth bool) vk.AttachmentDescription {
	loadOp := vk.AttachmentLoadOpDontCare
	if op.LoadClear {
		loadOp = vk.AttachmentLoadOpClear
	} else if op.LoadLoad {
		loadOp = vk.AttachmentLoadOpLoad
	}
	storeOp := vk.AttachmentStoreOpDontCare
	if op.StoreKeep {
		storeOp = vk.AttachmentStoreOpStore
	}
	initial := op.FinalLayout
	if op.InitialUndefined {
		initial = vk.ImageLayoutUndefined
	}
	final := vk.ImageLayoutColorAttachmentOptimal
	if depth {
		final = vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	if op.FinalLayout != 0 {
		final = op.FinalLayout
	}
	return vk.AttachmentDescription{
		Format:         op.Format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        storeOp,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    final,
	}
}

func (c *RenderPassCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.byHash {
		vk.DestroyRenderPass(c.device, e.pass, nil)
		delete(c.byHash, key)
	}
}
