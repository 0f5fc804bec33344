package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestHashAttachmentsDeterministic(t *testing.T) {
	colors := []AttachmentOp{{Format: vk.FormatR8g8b8a8Unorm, LoadClear: true, StoreKeep: true}}
	depth := &AttachmentOp{Format: vk.FormatD32Sfloat, LoadClear: true, StoreKeep: false}

	if hashAttachments(colors, depth) != hashAttachments(colors, depth) {
		t.Fatal("hashing the same attachment set twice must produce the same value")
	}
}

func TestHashAttachmentsDistinguishesDepthPresence(t *testing.T) {
	colors := []AttachmentOp{{Format: vk.FormatR8g8b8a8Unorm, LoadClear: true, StoreKeep: true}}
	withoutDepth := hashAttachments(colors, nil)
	withDepth := hashAttachments(colors, &AttachmentOp{Format: vk.FormatD32Sfloat})
	if withoutDepth == withDepth {
		t.Error("presence of a depth attachment must change the hash")
	}
}

func TestHashAttachmentsDistinguishesLoadStoreFlags(t *testing.T) {
	base := AttachmentOp{Format: vk.FormatR8g8b8a8Unorm, LoadClear: true, StoreKeep: true}
	variant := base
	variant.LoadLoad = true
	variant.LoadClear = false
	if hashAttachments([]AttachmentOp{base}, nil) == hashAttachments([]AttachmentOp{variant}, nil) {
		t.Error("changing load-op flags must change the hash")
	}
}

func TestAttachmentDescriptionClearStartsUndefined(t *testing.T) {
	op := AttachmentOp{Format: vk.FormatR8g8b8a8Unorm, LoadClear: true, InitialUndefined: true, FinalLayout: vk.ImageLayoutPresentSrc}
	desc := attachmentDescription(op, false)
	if desc.InitialLayout != vk.ImageLayoutUndefined {
		t.Errorf("a cleared attachment should start UNDEFINED, got %v", desc.InitialLayout)
	}
	if desc.LoadOp != vk.AttachmentLoadOpClear {
		t.Errorf("expected LOAD_OP_CLEAR, got %v", desc.LoadOp)
	}
	if desc.FinalLayout != vk.ImageLayoutPresentSrc {
		t.Errorf("final layout should be honored from the op, got %v", desc.FinalLayout)
	}
}

func TestAttachmentDescriptionDepthDefaultsFinalLayout(t *testing.T) {
	op := AttachmentOp{Format: vk.FormatD32Sfloat, LoadClear: true, StoreKeep: false}
	desc := attachmentDescription(op, true)
	if desc.FinalLayout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth attachment with no explicit FinalLayout should default to DEPTH_STENCIL_ATTACHMENT_OPTIMAL, got %v", desc.FinalLayout)
	}
	if desc.StoreOp != vk.AttachmentStoreOpDontCare {
		t.Errorf("StoreKeep=false should produce STORE_OP_DONT_CARE, got %v", desc.StoreOp)
	}
}
