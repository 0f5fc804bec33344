// Package rdg implements a per-frame, lambda-encoded render dependency
// graph above the RHI device contract: callers declare resources and
// passes, the builder compiles a dependency order and inserts the
// resource transitions implied by each pass's declared accesses, then
// executes the passes' stored closures against an rhi.Recorder.
package rdg

import (
	"github.com/google/uuid"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

// TextureHandle and BufferHandle are opaque indices into a Builder's
// resource table; they are meaningless across Builder instances.
type TextureHandle int
type BufferHandle int

const invalidHandle = -1

// TextureFlags controls a declared texture's lifetime behaviour
// (spec §4.12 supplement, grounded on RDGDefinitions.h's
// ERDGTextureFlags).
type TextureFlags uint8

const (
	TextureFlagsNone TextureFlags = 0
	// TextureFlagMultiFrame marks a resource that survives across
	// frames instead of being transient to the graph it was declared
	// in.
	TextureFlagMultiFrame TextureFlags = 1 << (iota - 1)
	// TextureFlagSkipTracking opts a resource out of automatic
	// transition insertion; the pass that uses it manages barriers
	// itself via the recorder directly.
	TextureFlagSkipTracking
)

// TextureDesc describes a graph-owned texture resource.
type TextureDesc struct {
	rhi.TextureDesc
	Flags TextureFlags
}

// BufferDesc describes a graph-owned buffer resource.
type BufferDesc struct {
	rhi.BufferDesc
	Flags TextureFlags
}

// SubresourceState tracks the access state of one resource (or, for
// textures, the whole resource — per-mip/per-layer tracking is not
// needed at this spec's scope) across the passes that touch it,
// grounded on RDGResource.h's FRDGSubresourceState.
type SubresourceState struct {
	Access    rhi.RhiAccess
	FirstPass int
	LastPass  int
}

func newSubresourceState() SubresourceState {
	return SubresourceState{Access: rhi.AccessUnknown, FirstPass: invalidHandle, LastPass: invalidHandle}
}

func (s *SubresourceState) recordPass(passIndex int) {
	if s.FirstPass == invalidHandle {
		s.FirstPass = passIndex
	}
	s.LastPass = passIndex
}

// transitionRequired mirrors FRDGSubresourceState::isTransitionRequired:
// always transition out of Unknown; no transition when states match;
// otherwise a transition is required whenever either side is a write,
// since multiple read-only states may coexist without one.
func transitionRequired(previous, next rhi.RhiAccess) bool {
	if previous == rhi.AccessUnknown {
		return true
	}
	if previous == next {
		return false
	}
	return previous.IsWrite() || next.IsWrite()
}

type rdgTexture struct {
	name      string
	debugID   uuid.UUID
	desc      TextureDesc
	state     SubresourceState
	native    rhi.TextureHandle
	external  bool
	allocated bool
}

type rdgBuffer struct {
	name      string
	debugID   uuid.UUID
	desc      BufferDesc
	state     SubresourceState
	native    rhi.BufferHandle
	external  bool
	allocated bool
}
