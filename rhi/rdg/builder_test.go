package rdg

import (
	"testing"
	"time"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

// fakeDevice stands in for the Vulkan backend so the compile/execute
// phases can be exercised without a GPU.
type fakeDevice struct {
	nextTexture rhi.TextureHandle
	nextBuffer  rhi.BufferHandle
}

func (d *fakeDevice) CreateBuffer(rhi.BufferDesc) (rhi.BufferHandle, error) {
	d.nextBuffer++
	return d.nextBuffer, nil
}

func (d *fakeDevice) CreateTexture(rhi.TextureDesc) (rhi.TextureHandle, error) {
	d.nextTexture++
	return d.nextTexture, nil
}

func (d *fakeDevice) CreateVertexShader([]byte) (rhi.ShaderHandle, error)      { return 0, nil }
func (d *fakeDevice) CreatePixelShader([]byte) (rhi.ShaderHandle, error)       { return 0, nil }
func (d *fakeDevice) CreateSampler(rhi.SamplerDesc) (rhi.SamplerHandle, error) { return 0, nil }
func (d *fakeDevice) CreatePipelineState(rhi.PipelineStateDesc) (rhi.PipelineHandle, error) {
	return 0, nil
}
func (d *fakeDevice) ImmediateRecorder() rhi.Recorder                { return &fakeRecorder{} }
func (d *fakeDevice) WaitForIdle() error                             { return nil }
func (d *fakeDevice) Present() error                                 { return nil }
func (d *fakeDevice) MemoryStats() (uint64, uint64)                  { return 0, 0 }
func (d *fakeDevice) CollectGarbage()                                {}

// fakeRecorder records just the calls the rdg builder makes against
// it, so tests can assert on ordering and transition sequencing.
type fakeRecorder struct {
	transitions []fakeTransition
	executed    []string
}

type fakeTransition struct {
	texture  rhi.TextureHandle
	from, to rhi.RhiAccess
}

func (r *fakeRecorder) Begin() error { return nil }
func (r *fakeRecorder) End() error   { return nil }
func (r *fakeRecorder) Reset() error { return nil }

func (r *fakeRecorder) SetPipelineState(rhi.PipelineHandle) error           { return nil }
func (r *fakeRecorder) SetVertexBuffers(uint32, []rhi.BufferHandle) error   { return nil }
func (r *fakeRecorder) SetIndexBuffer(rhi.BufferHandle, bool) error        { return nil }
func (r *fakeRecorder) SetConstantBuffer(uint32, rhi.BufferHandle) error   { return nil }
func (r *fakeRecorder) SetShaderResource(uint32, rhi.TextureHandle) error  { return nil }
func (r *fakeRecorder) SetSampler(uint32, rhi.SamplerHandle) error         { return nil }

func (r *fakeRecorder) SetViewport(float32, float32, float32, float32, float32, float32) error {
	return nil
}
func (r *fakeRecorder) SetScissorRect(int32, int32, int32, int32) error { return nil }
func (r *fakeRecorder) SetRenderTargets([]rhi.TextureHandle, rhi.TextureHandle) error {
	return nil
}
func (r *fakeRecorder) EndRenderPass() error { return nil }

func (r *fakeRecorder) Draw(uint32, uint32) error                          { return nil }
func (r *fakeRecorder) DrawIndexed(uint32, uint32, int32) error            { return nil }
func (r *fakeRecorder) DrawInstanced(uint32, uint32, uint32, uint32) error { return nil }
func (r *fakeRecorder) DrawIndexedInstanced(uint32, uint32, uint32, int32, uint32) error {
	return nil
}

func (r *fakeRecorder) ClearColor(rhi.TextureHandle, float32, float32, float32, float32) error {
	return nil
}
func (r *fakeRecorder) ClearDepthStencil(rhi.TextureHandle, float32, uint32) error { return nil }

func (r *fakeRecorder) TransitionResource(texture rhi.TextureHandle, from, to rhi.RhiAccess) error {
	r.transitions = append(r.transitions, fakeTransition{texture, from, to})
	return nil
}
func (r *fakeRecorder) ResourceBarrier() error { return nil }

func (r *fakeRecorder) BeginEvent(string) error { return nil }
func (r *fakeRecorder) EndEvent() error         { return nil }
func (r *fakeRecorder) SetMarker(string) error  { return nil }

func textureDesc(name string) TextureDesc {
	return TextureDesc{TextureDesc: rhi.TextureDesc{
		Width: 64, Height: 64, MipLevels: 1, ArrayLayers: 1,
		Format: rhi.FormatR8G8B8A8Unorm, SampleCount: 1,
		Usage: rhi.TextureUsageColorAttachment | rhi.TextureUsageSampled, DebugName: name,
	}}
}

// A write-then-read chain (shadow pass writes a depth texture, a
// lighting pass samples it) must execute in that order, and the
// builder must insert exactly one transition per access change.
func TestBuilderOrdersProducerBeforeConsumer(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	depth := b.CreateTexture("shadow-depth", textureDesc("shadow-depth"))

	var order []string

	b.AddPass("shadow", PassFlagRaster, func(pb *PassBuilder) {
		pb.WriteDepth(depth)
	}, func(rhi.Recorder) error {
		order = append(order, "shadow")
		return nil
	})

	b.AddPass("lighting", PassFlagRaster|PassFlagNeverCull, func(pb *PassBuilder) {
		pb.ReadTexture(depth, rhi.AccessSRVGraphics)
	}, func(rhi.Recorder) error {
		order = append(order, "lighting")
		return nil
	})

	rec := &fakeRecorder{}
	if err := b.Execute(rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(order) != 2 || order[0] != "shadow" || order[1] != "lighting" {
		t.Fatalf("expected [shadow lighting], got %v", order)
	}
	if len(rec.transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d: %v", len(rec.transitions), rec.transitions)
	}
	if rec.transitions[0].to != rhi.AccessDSVWrite {
		t.Errorf("first transition should move to DSVWrite, got %v", rec.transitions[0].to)
	}
	if rec.transitions[1].to != rhi.AccessSRVGraphics {
		t.Errorf("second transition should move to SRVGraphics, got %v", rec.transitions[1].to)
	}
}

// A pass whose output nothing reads and which isn't flagged NeverCull
// and doesn't write an external resource gets culled and never runs.
func TestBuilderCullsUnreachablePass(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	unused := b.CreateTexture("unused", textureDesc("unused"))
	present := b.CreateTexture("present", textureDesc("present"))

	ran := map[string]bool{}

	deadPass := b.AddPass("dead", PassFlagsNone, func(pb *PassBuilder) {
		pb.WriteTexture(unused, rhi.AccessRTV)
	}, func(rhi.Recorder) error {
		ran["dead"] = true
		return nil
	})

	b.AddPass("present", PassFlagNeverCull, func(pb *PassBuilder) {
		pb.WriteTexture(present, rhi.AccessPresent)
	}, func(rhi.Recorder) error {
		ran["present"] = true
		return nil
	})

	rec := &fakeRecorder{}
	if err := b.Execute(rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !deadPass.Culled() {
		t.Error("dead pass should have been culled")
	}
	if ran["dead"] {
		t.Error("culled pass's execute closure must not run")
	}
	if !ran["present"] {
		t.Error("NeverCull pass must run")
	}
}

// A pass writing an externally registered resource is kept even with
// no downstream reader, and every producer it depends on is kept too.
func TestBuilderKeepsProducersOfExternalWrites(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBuilder(dev)
	swap, _ := dev.CreateTexture(rhi.TextureDesc{})
	target := b.RegisterExternalTexture("swapchain", swap, rhi.AccessUnknown)
	scratch := b.CreateTexture("scratch", textureDesc("scratch"))

	ran := map[string]bool{}

	producer := b.AddPass("produce", PassFlagsNone, func(pb *PassBuilder) {
		pb.WriteTexture(scratch, rhi.AccessRTV)
	}, func(rhi.Recorder) error {
		ran["produce"] = true
		return nil
	})

	b.AddPass("blit", PassFlagsNone, func(pb *PassBuilder) {
		pb.ReadTexture(scratch, rhi.AccessSRVGraphics)
		pb.WriteTexture(target, rhi.AccessPresent)
	}, func(rhi.Recorder) error {
		ran["blit"] = true
		return nil
	})

	rec := &fakeRecorder{}
	if err := b.Execute(rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if producer.Culled() {
		t.Error("producer of a resource consumed by an external-write pass must not be culled")
	}
	if !ran["produce"] || !ran["blit"] {
		t.Errorf("both passes should have run: %v", ran)
	}
}

func TestBuilderRejectsInvalidHandle(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	b.AddPass("bogus", PassFlagNeverCull, func(pb *PassBuilder) {
		pb.WriteTexture(TextureHandle(99), rhi.AccessRTV)
	}, func(rhi.Recorder) error { return nil })

	if err := b.Execute(&fakeRecorder{}); err != ErrInvalidHandle {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestBuilderExecuteIsSingleUse(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	b.AddPass("noop", PassFlagNeverCull, nil, func(rhi.Recorder) error { return nil })

	if err := b.Execute(&fakeRecorder{}); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if err := b.Execute(&fakeRecorder{}); err != ErrAlreadyCompiled {
		t.Fatalf("expected ErrAlreadyCompiled, got %v", err)
	}
}

// Each declared resource gets its own stable debug identifier, since
// TextureHandle/BufferHandle indices are only meaningful within a
// single Builder and can't be used to correlate a resource across
// frames' log output.
func TestBuilderAssignsDistinctDebugIDs(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	a := b.CreateTexture("a", textureDesc("a"))
	c := b.CreateTexture("c", textureDesc("c"))

	idA := b.TextureDebugID(a)
	idC := b.TextureDebugID(c)
	if idA == idC {
		t.Fatal("two distinct textures must not share a debug ID")
	}
	if b.TextureDebugID(a) != idA {
		t.Fatal("a texture's debug ID must stay stable across lookups")
	}
}

// OnPassExecuted fires once per surviving pass, in execution order,
// and never fires for a culled pass.
func TestBuilderOnPassExecutedFiresForSurvivingPassesOnly(t *testing.T) {
	b := NewBuilder(&fakeDevice{})
	scratch := b.CreateTexture("scratch", textureDesc("scratch"))

	b.AddPass("dead", PassFlagsNone, func(pb *PassBuilder) {
		pb.WriteTexture(scratch, rhi.AccessRTV)
	}, func(rhi.Recorder) error { return nil })

	b.AddPass("alive", PassFlagNeverCull, nil, func(rhi.Recorder) error { return nil })

	var ran []string
	b.OnPassExecuted(func(name string, _ time.Duration) {
		ran = append(ran, name)
	})

	if err := b.Execute(&fakeRecorder{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(ran) != 1 || ran[0] != "alive" {
		t.Fatalf("expected only [alive] to report execution, got %v", ran)
	}
}

func TestTransitionRequired(t *testing.T) {
	cases := []struct {
		name     string
		previous rhi.RhiAccess
		next     rhi.RhiAccess
		want     bool
	}{
		{"unknown always transitions", rhi.AccessUnknown, rhi.AccessSRVGraphics, true},
		{"identical states need nothing", rhi.AccessSRVGraphics, rhi.AccessSRVGraphics, false},
		{"two reads need nothing", rhi.AccessSRVGraphics, rhi.AccessSRVCompute, false},
		{"write to write transitions", rhi.AccessRTV, rhi.AccessCopyDest, true},
		{"read to write transitions", rhi.AccessSRVGraphics, rhi.AccessRTV, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := transitionRequired(c.previous, c.next); got != c.want {
				t.Errorf("transitionRequired(%v, %v) = %v, want %v", c.previous, c.next, got, c.want)
			}
		})
	}
}
