package rdg

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

var (
	// ErrAlreadyCompiled is returned by Execute if called twice on the
	// same Builder — a Builder is single-use, one graph per frame.
	ErrAlreadyCompiled = errors.New("rdg: graph already compiled")
	// ErrInvalidHandle is returned when a pass references a handle
	// that was never declared on this Builder.
	ErrInvalidHandle = errors.New("rdg: invalid resource handle")
	// ErrCycle is returned when pass dependencies cannot be
	// topologically sorted, meaning two passes both read and write
	// resources in a way that forms a cycle.
	ErrCycle = errors.New("rdg: dependency cycle detected")
)

// Builder is a single-use, per-frame render dependency graph: declare
// resources and passes, then call Execute once. Grounded on
// RDGBuilder.h's FRDGBuilder, generalized from its template-heavy
// AddPass into plain closures since Go has no equivalent to C++
// template lambdas.
type Builder struct {
	device rhi.Device

	textures []*rdgTexture
	buffers  []*rdgBuffer
	passes   []*Pass

	compiled bool
	executed bool

	// onPassExecuted, when set via OnPassExecuted, is invoked after
	// every surviving pass's execute closure with its name and wall
	// time, for a profiling overlay (spec §4.12 supplement). Off by
	// default since the overlay itself is out of scope.
	onPassExecuted func(name string, dur time.Duration)
}

// OnPassExecuted installs a callback invoked after each surviving
// pass's execute closure runs, with the pass's name and how long its
// closure took. There is no overlay consuming this in this repo; it
// exists for a caller (or test) that wants to log or aggregate
// per-pass timing.
func (b *Builder) OnPassExecuted(fn func(name string, dur time.Duration)) {
	b.onPassExecuted = fn
}

func NewBuilder(device rhi.Device) *Builder {
	return &Builder{device: device}
}

// CreateTexture declares a graph-owned texture. It is materialised to
// a native resource lazily, during Execute's allocation phase (spec
// §4.12).
func (b *Builder) CreateTexture(name string, desc TextureDesc) TextureHandle {
	id := uuid.New()
	b.textures = append(b.textures, &rdgTexture{name: name, debugID: id, desc: desc, state: newSubresourceState()})
	corex.LogDebug("rdg: declared texture %q (%s)", name, id)
	return TextureHandle(len(b.textures) - 1)
}

func (b *Builder) CreateBuffer(name string, desc BufferDesc) BufferHandle {
	id := uuid.New()
	b.buffers = append(b.buffers, &rdgBuffer{name: name, debugID: id, desc: desc, state: newSubresourceState()})
	corex.LogDebug("rdg: declared buffer %q (%s)", name, id)
	return BufferHandle(len(b.buffers) - 1)
}

// RegisterExternalTexture wraps a pre-existing native resource,
// recording its initial access state. External resources are never
// freed by the graph and any pass writing to one is treated as having
// an externally-observable side effect for culling purposes.
func (b *Builder) RegisterExternalTexture(name string, native rhi.TextureHandle, initial rhi.RhiAccess) TextureHandle {
	state := newSubresourceState()
	state.Access = initial
	id := uuid.New()
	b.textures = append(b.textures, &rdgTexture{name: name, debugID: id, native: native, state: state, external: true, allocated: true})
	return TextureHandle(len(b.textures) - 1)
}

func (b *Builder) RegisterExternalBuffer(name string, native rhi.BufferHandle, initial rhi.RhiAccess) BufferHandle {
	state := newSubresourceState()
	state.Access = initial
	id := uuid.New()
	b.buffers = append(b.buffers, &rdgBuffer{name: name, debugID: id, native: native, state: state, external: true, allocated: true})
	return BufferHandle(len(b.buffers) - 1)
}

// AddPass declares a pass: setupFn runs immediately, recording the
// pass's resource accesses; executeFn is stored for later invocation
// during Execute, in dependency order (spec §4.12).
func (b *Builder) AddPass(name string, flags PassFlags, setupFn SetupFunc, executeFn ExecuteFunc) *Pass {
	pb := &PassBuilder{}
	if setupFn != nil {
		setupFn(pb)
	}
	pass := &Pass{
		name: name, flags: flags, execute: executeFn,
		textureAccesses: pb.textureAccesses, bufferAccesses: pb.bufferAccesses,
		index: len(b.passes),
	}
	b.passes = append(b.passes, pass)
	return pass
}

// Execute compiles the graph (dependency edges, topological sort,
// lifetime analysis, transition insertion, optional culling) and runs
// every surviving pass's execute closure against recorder, in sorted
// order, transitioning textures immediately before each pass whose
// access transitionRequired reports as needing a barrier (spec §4.12).
func (b *Builder) Execute(recorder rhi.Recorder) error {
	if b.executed {
		return ErrAlreadyCompiled
	}

	if err := b.validate(); err != nil {
		return err
	}

	b.buildDependencyGraph()
	sorted, err := b.topologicalSort()
	if err != nil {
		return err
	}
	b.cull(sorted)
	b.compiled = true

	if err := b.allocateResources(); err != nil {
		return err
	}

	for _, p := range sorted {
		if p.culled {
			continue
		}
		if err := b.insertTransitions(recorder, p); err != nil {
			return err
		}
		if p.execute != nil {
			start := time.Now()
			if err := p.execute(recorder); err != nil {
				return err
			}
			if b.onPassExecuted != nil {
				b.onPassExecuted(p.name, time.Since(start))
			}
		}
	}

	b.executed = true
	return nil
}

func (b *Builder) validate() error {
	for _, p := range b.passes {
		for _, a := range p.textureAccesses {
			if int(a.handle) < 0 || int(a.handle) >= len(b.textures) {
				return ErrInvalidHandle
			}
		}
		for _, a := range p.bufferAccesses {
			if int(a.handle) < 0 || int(a.handle) >= len(b.buffers) {
				return ErrInvalidHandle
			}
		}
	}
	return nil
}

// buildDependencyGraph walks passes in declaration order, tracking
// each resource's last writer and pending readers since that writer:
// a write depends on every pending reader and the last writer (WAR/
// WAW); a read depends only on the last writer (RAW). Two reads of the
// same resource never order against each other.
func (b *Builder) buildDependencyGraph() {
	texLastWriter := make([]int, len(b.textures))
	texPendingReaders := make([][]int, len(b.textures))
	bufLastWriter := make([]int, len(b.buffers))
	bufPendingReaders := make([][]int, len(b.buffers))
	for i := range texLastWriter {
		texLastWriter[i] = invalidHandle
	}
	for i := range bufLastWriter {
		bufLastWriter[i] = invalidHandle
	}

	addEdge := func(producer, consumer int) {
		if producer == invalidHandle || producer == consumer {
			return
		}
		b.passes[consumer].dependencies = append(b.passes[consumer].dependencies, producer)
		b.passes[producer].dependents = append(b.passes[producer].dependents, consumer)
	}

	for _, p := range b.passes {
		for _, a := range p.textureAccesses {
			idx := int(a.handle)
			b.textures[idx].state.recordPass(p.index)
			if a.access.IsWrite() {
				for _, r := range texPendingReaders[idx] {
					addEdge(r, p.index)
				}
				addEdge(texLastWriter[idx], p.index)
				texLastWriter[idx] = p.index
				texPendingReaders[idx] = nil
			} else {
				addEdge(texLastWriter[idx], p.index)
				texPendingReaders[idx] = append(texPendingReaders[idx], p.index)
			}
		}
		for _, a := range p.bufferAccesses {
			idx := int(a.handle)
			b.buffers[idx].state.recordPass(p.index)
			if a.access.IsWrite() {
				for _, r := range bufPendingReaders[idx] {
					addEdge(r, p.index)
				}
				addEdge(bufLastWriter[idx], p.index)
				bufLastWriter[idx] = p.index
				bufPendingReaders[idx] = nil
			} else {
				addEdge(bufLastWriter[idx], p.index)
				bufPendingReaders[idx] = append(bufPendingReaders[idx], p.index)
			}
		}
	}
}

// topologicalSort runs Kahn's algorithm over the dependency edges
// built above, via gonum's graph/topo, breaking ties by declaration
// index so a graph with no real hazards reproduces the order passes
// were added in.
func (b *Builder) topologicalSort() ([]*Pass, error) {
	g := simple.NewDirectedGraph()
	for _, p := range b.passes {
		g.AddNode(simple.Node(p.index))
	}
	for _, p := range b.passes {
		for _, dep := range p.dependencies {
			g.SetEdge(simple.Edge{F: simple.Node(dep), T: simple.Node(p.index)})
		}
	}

	nodes, err := topo.SortStabilized(g, func(batch []graph.Node) {
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID() < batch[j].ID() })
	})
	if err != nil {
		return nil, ErrCycle
	}

	sorted := make([]*Pass, len(nodes))
	for i, n := range nodes {
		sorted[i] = b.passes[n.ID()]
	}
	return sorted, nil
}

// cull marks every pass unreachable (by dependency edges) from the
// set of passes with an externally-observable effect — NeverCull
// passes, and passes writing to an externally-registered resource —
// as culled, per RDGDefinitions.h's ERDGPassFlags::NeverCull and
// FRDGBuilder's pass-culling pass over the compiled graph.
func (b *Builder) cull(sorted []*Pass) {
	required := make([]bool, len(b.passes))
	var seed []int

	for _, p := range b.passes {
		if p.flags.has(PassFlagNeverCull) {
			required[p.index] = true
			seed = append(seed, p.index)
			continue
		}
		for _, a := range p.textureAccesses {
			if a.access.IsWrite() && b.textures[a.handle].external {
				required[p.index] = true
				seed = append(seed, p.index)
				break
			}
		}
		if required[p.index] {
			continue
		}
		for _, a := range p.bufferAccesses {
			if a.access.IsWrite() && b.buffers[a.handle].external {
				required[p.index] = true
				seed = append(seed, p.index)
				break
			}
		}
	}

	for len(seed) > 0 {
		idx := seed[len(seed)-1]
		seed = seed[:len(seed)-1]
		for _, dep := range b.passes[idx].dependencies {
			if !required[dep] {
				required[dep] = true
				seed = append(seed, dep)
			}
		}
	}

	for _, p := range b.passes {
		p.culled = !required[p.index]
	}
}

// allocateResources materialises every non-external, non-culled
// resource to a native RHI handle. A texture or buffer that no
// surviving pass touches is never allocated.
func (b *Builder) allocateResources() error {
	touched := make([]bool, len(b.textures))
	touchedBuf := make([]bool, len(b.buffers))
	for _, p := range b.passes {
		if p.culled {
			continue
		}
		for _, a := range p.textureAccesses {
			touched[a.handle] = true
		}
		for _, a := range p.bufferAccesses {
			touchedBuf[a.handle] = true
		}
	}

	for i, t := range b.textures {
		if t.allocated || !touched[i] {
			continue
		}
		h, err := b.device.CreateTexture(t.desc.TextureDesc)
		if err != nil {
			return err
		}
		t.native = h
		t.allocated = true
	}
	for i, buf := range b.buffers {
		if buf.allocated || !touchedBuf[i] {
			continue
		}
		h, err := b.device.CreateBuffer(buf.desc.BufferDesc)
		if err != nil {
			return err
		}
		buf.native = h
		buf.allocated = true
	}
	return nil
}

// insertTransitions emits a TransitionResource call for every texture
// access this pass declares for which transitionRequired holds against
// the texture's current tracked state: always out of an unknown state,
// never between identical states, otherwise only when either side
// writes (spec §4.12 "insert transitions"). Textures flagged
// TextureFlagSkipTracking get no call.
// Buffers have no transition in the recorder contract; their ordering
// is enforced purely by the dependency edges built above.
func (b *Builder) insertTransitions(recorder rhi.Recorder, p *Pass) error {
	for _, a := range p.textureAccesses {
		t := b.textures[a.handle]
		if t.desc.Flags&TextureFlagSkipTracking != 0 {
			continue
		}
		if transitionRequired(t.state.Access, a.access) {
			if err := recorder.TransitionResource(t.native, t.state.Access, a.access); err != nil {
				return err
			}
		}
		t.state.Access = a.access
	}
	return nil
}

// NativeTexture resolves a graph handle to its materialised RHI
// handle; valid only after Execute's allocation phase has run (e.g.
// for inspection inside an execute closure).
func (b *Builder) NativeTexture(h TextureHandle) rhi.TextureHandle {
	return b.textures[h].native
}

func (b *Builder) NativeBuffer(h BufferHandle) rhi.BufferHandle {
	return b.buffers[h].native
}

// TextureDebugID returns the texture's stable identifier for log
// correlation across frames, since TextureHandle indices are only
// meaningful within a single Builder instance.
func (b *Builder) TextureDebugID(h TextureHandle) uuid.UUID {
	return b.textures[h].debugID
}

func (b *Builder) BufferDebugID(h BufferHandle) uuid.UUID {
	return b.buffers[h].debugID
}
