package rdg

import "github.com/liyanliang-auto/monster-rhi/rhi"

// PassFlags controls scheduling/culling behaviour for a pass, grounded
// on RDGDefinitions.h's ERDGPassFlags.
type PassFlags uint16

const (
	PassFlagsNone PassFlags = 0
	PassFlagRaster PassFlags = 1 << (iota - 1)
	PassFlagCompute
	PassFlagCopy
	// PassFlagNeverCull keeps a pass (and its producers) alive even
	// when nothing downstream reads its outputs — used for passes
	// with externally-visible side effects, e.g. the present pass.
	PassFlagNeverCull
)

func (f PassFlags) has(want PassFlags) bool { return f&want != 0 }

type textureAccess struct {
	handle TextureHandle
	access rhi.RhiAccess
}

type bufferAccess struct {
	handle BufferHandle
	access rhi.RhiAccess
}

// PassBuilder is the setup-phase facade a pass's setup_fn receives: it
// records declared read/write accesses against specific resources,
// grounded on RDGPass.h's FRDGPassBuilder.
type PassBuilder struct {
	textureAccesses []textureAccess
	bufferAccesses  []bufferAccess
}

func (b *PassBuilder) ReadTexture(h TextureHandle, access rhi.RhiAccess) {
	b.textureAccesses = append(b.textureAccesses, textureAccess{h, access})
}

func (b *PassBuilder) WriteTexture(h TextureHandle, access rhi.RhiAccess) {
	b.textureAccesses = append(b.textureAccesses, textureAccess{h, access})
}

func (b *PassBuilder) ReadDepth(h TextureHandle) {
	b.ReadTexture(h, rhi.AccessDSVRead)
}

func (b *PassBuilder) WriteDepth(h TextureHandle) {
	b.WriteTexture(h, rhi.AccessDSVWrite)
}

func (b *PassBuilder) ReadBuffer(h BufferHandle, access rhi.RhiAccess) {
	b.bufferAccesses = append(b.bufferAccesses, bufferAccess{h, access})
}

func (b *PassBuilder) WriteBuffer(h BufferHandle, access rhi.RhiAccess) {
	b.bufferAccesses = append(b.bufferAccesses, bufferAccess{h, access})
}

// SetupFunc declares a pass's resource dependencies; it runs
// immediately when the pass is added, before the graph compiles.
type SetupFunc func(*PassBuilder)

// ExecuteFunc records a pass's GPU work; it is stored verbatim and
// invoked later, once per graph execution, in topologically sorted
// order.
type ExecuteFunc func(rhi.Recorder) error

// Pass is one node of the graph (spec §4.12, grounded on RDGPass.h's
// FRDGPass / TRDGLambdaPass — Go has no template specialization so the
// lambda is just stored as a closure instead of wrapped in a generic
// subclass).
type Pass struct {
	name    string
	flags   PassFlags
	execute ExecuteFunc

	textureAccesses []textureAccess
	bufferAccesses  []bufferAccess

	index        int
	dependencies []int
	dependents   []int
	culled       bool
}

func (p *Pass) Name() string { return p.name }
func (p *Pass) Culled() bool { return p.culled }
func (p *Pass) Index() int   { return p.index }
