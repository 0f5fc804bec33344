package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestHashBindingsIsOrderSensitive(t *testing.T) {
	a := []DescriptorBinding{
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit)},
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Count: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	}
	b := []DescriptorBinding{a[1], a[0]}

	if hashBindings(a) == hashBindings(b) {
		t.Fatal("differently ordered binding lists should hash differently")
	}
}

func TestHashBindingsIsDeterministic(t *testing.T) {
	bindings := []DescriptorBinding{
		{Binding: 3, Type: vk.DescriptorTypeStorageBuffer, Count: 2, StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit)},
	}
	if hashBindings(bindings) != hashBindings(bindings) {
		t.Fatal("hashing the same bindings twice must produce the same value")
	}
}

// Snapshot reports every cache entry without needing a real device,
// since it's a read-only view over the already-populated maps.
func TestDescriptorLayoutCacheSnapshot(t *testing.T) {
	c := NewDescriptorLayoutCache(nil)
	a := []DescriptorBinding{{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1}}

	c.nextKey++
	e1 := &layoutEntry{key: c.nextKey, bindings: sortedBindings(nil), refCount: 1}
	c.byKey[e1.key] = e1
	c.byHash[hashBindings(e1.bindings)] = append(c.byHash[hashBindings(e1.bindings)], e1)

	c.nextKey++
	e2 := &layoutEntry{key: c.nextKey, bindings: sortedBindings(a), refCount: 3}
	c.byKey[e2.key] = e2
	c.byHash[hashBindings(e2.bindings)] = append(c.byHash[hashBindings(e2.bindings)], e2)

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	found := map[uint64]int{}
	for _, s := range snap {
		found[s.Hash] = s.RefCount
	}
	if found[hashBindings(a)] != 3 {
		t.Errorf("expected refcount 3 for the populated binding, got %d", found[hashBindings(a)])
	}
}

// Two structurally different sorted binding lists stored under the
// same hash bucket (a simulated collision) must stay two separate
// entries, each keeping its own bindings, instead of being merged.
func TestDescriptorLayoutCacheCollisionAllocatesSeparateEntry(t *testing.T) {
	c := NewDescriptorLayoutCache(nil)
	a := sortedBindings([]DescriptorBinding{{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1}})
	b := sortedBindings([]DescriptorBinding{{Binding: 1, Type: vk.DescriptorTypeStorageBuffer, Count: 1}})
	collidingHash := hashBindings(a)

	c.nextKey++
	e1 := &layoutEntry{key: c.nextKey, bindings: a, refCount: 1}
	c.byKey[e1.key] = e1
	c.byHash[collidingHash] = append(c.byHash[collidingHash], e1)

	c.nextKey++
	e2 := &layoutEntry{key: c.nextKey, bindings: b, refCount: 1}
	c.byKey[e2.key] = e2
	c.byHash[collidingHash] = append(c.byHash[collidingHash], e2)

	if len(c.byHash[collidingHash]) != 2 {
		t.Fatalf("expected 2 distinct entries sharing a hash bucket, got %d", len(c.byHash[collidingHash]))
	}
	for _, e := range c.byHash[collidingHash] {
		if !bindingsEqual(e.bindings, a) && !bindingsEqual(e.bindings, b) {
			t.Errorf("unexpected bindings in bucket: %+v", e.bindings)
		}
	}
}

func TestBindingsEqualIgnoresOrderViaSortedBindings(t *testing.T) {
	a := []DescriptorBinding{
		{Binding: 1, Type: vk.DescriptorTypeCombinedImageSampler, Count: 1},
		{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1},
	}
	b := []DescriptorBinding{a[1], a[0]}
	if !bindingsEqual(sortedBindings(a), sortedBindings(b)) {
		t.Fatal("sortedBindings should normalize arrival order before comparison")
	}
}

func TestHashBindingsDistinguishesFields(t *testing.T) {
	base := DescriptorBinding{Binding: 0, Type: vk.DescriptorTypeUniformBuffer, Count: 1, StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit)}
	variants := []DescriptorBinding{
		{Binding: 1, Type: base.Type, Count: base.Count, StageFlags: base.StageFlags},
		{Binding: base.Binding, Type: vk.DescriptorTypeStorageBuffer, Count: base.Count, StageFlags: base.StageFlags},
		{Binding: base.Binding, Type: base.Type, Count: 2, StageFlags: base.StageFlags},
		{Binding: base.Binding, Type: base.Type, Count: base.Count, StageFlags: vk.ShaderStageFlags(vk.ShaderStageFragmentBit)},
	}

	baseHash := hashBindings([]DescriptorBinding{base})
	for i, v := range variants {
		if hashBindings([]DescriptorBinding{v}) == baseHash {
			t.Errorf("variant %d should hash differently from base", i)
		}
	}
}
