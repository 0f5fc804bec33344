package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/liyanliang-auto/monster-rhi/rhi"
)

// An identical binding tuple looked up twice in the same frame must
// reuse the cached native set rather than allocating a second one —
// the cache-hit branch returns before touching the pool manager at
// all, so this is exercisable without a real vk.Device (spec §4.7
// get_or_allocate, §8 frame-recycling scenario).
func TestDescriptorSetCacheReusesSetForIdenticalKey(t *testing.T) {
	c := NewDescriptorSetCache(nil)
	cacheKey := descriptorSetKey{layoutHash: 42, resources: [8]uint32{1, 2}}
	want := vk.DescriptorSet(nil)
	c.sets[cacheKey] = want

	got, err := c.GetOrAllocate(nil, 42, [8]uint32{1, 2}, nil)
	if err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if got != want {
		t.Fatalf("expected the cached set to be returned on a hit")
	}
}

// BeginFrame must drop every cached set so a resource rebound to a
// different handle under the same layout can't accidentally reuse a
// stale descriptor set from two frames ago (spec §4.7).
func TestDescriptorSetCacheBeginFrameClearsCache(t *testing.T) {
	pools := NewDescriptorPoolManager(nil, descriptorPoolMaxSets)
	c := NewDescriptorSetCache(pools)
	cacheKey := descriptorSetKey{layoutHash: 7, resources: [8]uint32{9}}
	c.sets[cacheKey] = vk.DescriptorSet(nil)

	c.BeginFrame(1)

	if len(c.sets) != 0 {
		t.Fatalf("expected BeginFrame to clear the set cache, got %d entries", len(c.sets))
	}
}

// bindDescriptorSet must skip descriptor resolution entirely when no
// pipeline is bound or the bound pipeline declares no bindings, since
// prepareForDraw runs on every draw call regardless of whether the
// pipeline uses any resources.
func TestBindDescriptorSetSkipsWithoutBoundPipeline(t *testing.T) {
	r := &immediateRecorder{device: &Device{pipelines: map[rhi.PipelineHandle]*pipelineBinding{}}}
	s := &frameSlot{}
	if err := r.bindDescriptorSet(s); err != nil {
		t.Fatalf("expected no error with no bound pipeline, got %v", err)
	}
}
