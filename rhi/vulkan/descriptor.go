package vulkan

import (
	"hash/fnv"
	"sort"
	"sync"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/maps"

	"github.com/liyanliang-auto/monster-rhi/rhi"
	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// DescriptorBinding is one binding slot in a descriptor set layout,
// the unit the layout cache hashes over (spec §4.7).
type DescriptorBinding struct {
	Binding    uint32
	Type       vk.DescriptorType
	Count      uint32
	StageFlags vk.ShaderStageFlagBits
}

// layoutEntry is one allocated vk.DescriptorSetLayout. key is the
// value GetOrCreate hands back to callers for Release — it identifies
// this entry uniquely even when another entry shares its structural
// hash (see sortedBindings/hashBindings below).
type layoutEntry struct {
	key      uint64
	bindings []DescriptorBinding
	layout   vk.DescriptorSetLayout
	refCount int
}

// DescriptorLayoutCache hands out vk.DescriptorSetLayout handles keyed
// by a structural hash of their bindings, so two pipelines that
// describe the same binding shape share one native layout (spec §4.7,
// grounded on descriptor.go's VulkanDescriptorState generation
// tracking, generalized here into an explicit reference-counted
// structural cache). Bindings are sorted before hashing so binding
// order doesn't affect cache identity; a hash collision between two
// distinct sorted binding lists still allocates a separate entry
// (spec §4.5), found by a linear scan of the hash bucket.
type DescriptorLayoutCache struct {
	device  vk.Device
	mu      sync.Mutex
	byHash  map[uint64][]*layoutEntry
	byKey   map[uint64]*layoutEntry
	nextKey uint64
}

func NewDescriptorLayoutCache(device vk.Device) *DescriptorLayoutCache {
	return &DescriptorLayoutCache{
		device: device,
		byHash: map[uint64][]*layoutEntry{},
		byKey:  map[uint64]*layoutEntry{},
	}
}

// sortedBindings returns a copy of bindings ordered by slot, so
// structurally identical binding sets hash and compare equal
// regardless of the order a shader reflector or caller assembled them
// in (spec §3, §4.5).
func sortedBindings(bindings []DescriptorBinding) []DescriptorBinding {
	sorted := append([]DescriptorBinding(nil), bindings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	return sorted
}

func bindingsEqual(a, b []DescriptorBinding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hashBindings(bindings []DescriptorBinding) uint64 {
	h := fnv.New64a()
	var buf [16]byte
	for _, b := range bindings {
		putU32(buf[0:4], b.Binding)
		putU32(buf[4:8], uint32(b.Type))
		putU32(buf[8:12], b.Count)
		putU32(buf[12:16], uint32(b.StageFlags))
		h.Write(buf[:])
	}
	return h.Sum64()
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// GetOrCreate returns a cached layout for this binding shape, creating
// the native object on first use and incrementing its refcount
// otherwise (spec §4.7). Bindings are normalized by sortedBindings
// before hashing; a hash hit whose stored bindings differ from the
// request (a collision) falls through and allocates a new entry
// rather than handing back the wrong layout (spec §4.5).
func (c *DescriptorLayoutCache) GetOrCreate(bindings []DescriptorBinding) (vk.DescriptorSetLayout, uint64, error) {
	sorted := sortedBindings(bindings)
	hash := hashBindings(sorted)

	c.mu.Lock()
	for _, e := range c.byHash[hash] {
		if bindingsEqual(e.bindings, sorted) {
			e.refCount++
			key := e.key
			c.mu.Unlock()
			return e.layout, key, nil
		}
	}
	c.mu.Unlock()

	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(sorted))
	for i, b := range sorted {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  b.Type,
			DescriptorCount: maxU32(b.Count, 1),
			StageFlags:      vk.ShaderStageFlags(b.StageFlags),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var layout vk.DescriptorSetLayout
	if result := vk.CreateDescriptorSetLayout(c.device, &createInfo, nil, &layout); result != vk.Success {
		return nil, 0, rhi.ErrInvalidResourceBinding
	}

	c.mu.Lock()
	c.nextKey++
	key := c.nextKey
	e := &layoutEntry{key: key, bindings: sorted, layout: layout, refCount: 1}
	c.byHash[hash] = append(c.byHash[hash], e)
	c.byKey[key] = e
	c.mu.Unlock()

	return layout, key, nil
}

// Release drops a reference; the native layout is destroyed once it
// reaches zero (spec §4.7 release/garbage_collect).
func (c *DescriptorLayoutCache) Release(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byKey[key]
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	vk.DestroyDescriptorSetLayout(c.device, e.layout, nil)
	delete(c.byKey, key)
	hash := hashBindings(e.bindings)
	bucket := c.byHash[hash]
	for i, be := range bucket {
		if be == e {
			c.byHash[hash] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(c.byHash[hash]) == 0 {
		delete(c.byHash, hash)
	}
}

// GarbageCollect sweeps every zero-refcount entry; callers normally
// rely on Release's eager teardown but this exists for bulk
// shutdown/recreate paths.
func (c *DescriptorLayoutCache) GarbageCollect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.byKey {
		if e.refCount <= 0 {
			vk.DestroyDescriptorSetLayout(c.device, e.layout, nil)
			delete(c.byKey, key)
			hash := hashBindings(e.bindings)
			bucket := c.byHash[hash]
			for i, be := range bucket {
				if be == e {
					c.byHash[hash] = append(bucket[:i], bucket[i+1:]...)
					break
				}
			}
			if len(c.byHash[hash]) == 0 {
				delete(c.byHash, hash)
			}
		}
	}
}

// LayoutSnapshot is one cached layout's introspectable state, as
// returned by DescriptorLayoutCache.Snapshot.
type LayoutSnapshot struct {
	Key      uint64
	Hash     uint64
	Layout   vk.DescriptorSetLayout
	RefCount int
}

// Snapshot returns every currently cached layout and its refcount, for
// debug dumps and tests — the Go analogue of VulkanDescriptorSetLayoutCache's
// Dump() helper.
func (c *DescriptorLayoutCache) Snapshot() []LayoutSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := maps.Keys(c.byKey)
	out := make([]LayoutSnapshot, 0, len(keys))
	for _, key := range keys {
		e := c.byKey[key]
		out = append(out, LayoutSnapshot{Key: key, Hash: hashBindings(e.bindings), Layout: e.layout, RefCount: e.refCount})
	}
	return out
}

const descriptorPoolMaxSets = 256

// descriptorPoolSlot is one pool in the ring, reset wholesale at the
// start of a frame rather than freeing individual sets (spec §4.7).
type descriptorPoolSlot struct {
	pool      vk.DescriptorPool
	allocated int
}

// DescriptorPoolManager is a ring of fixed-capacity descriptor pools,
// one active pool per frame slot, reset instead of destroyed when a
// frame recycles (spec §4.7; grounded on the teacher's command-buffer
// ring-slot pattern in command_buffer.go, applied here to descriptor
// pools instead since the teacher never had a pool abstraction).
type DescriptorPoolManager struct {
	device      vk.Device
	maxSets     uint32
	mu          sync.Mutex
	slots       [maxFramesInFlight][]*descriptorPoolSlot
	activeFrame int
}

func NewDescriptorPoolManager(device vk.Device, maxSets uint32) *DescriptorPoolManager {
	return &DescriptorPoolManager{device: device, maxSets: maxSets}
}

func (m *DescriptorPoolManager) newPool() (*descriptorPoolSlot, error) {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: m.maxSets},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: m.maxSets},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: m.maxSets},
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       m.maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if result := vk.CreateDescriptorPool(m.device, &createInfo, nil, &pool); result != vk.Success {
		return nil, rhi.ErrPoolExhausted
	}
	return &descriptorPoolSlot{pool: pool}, nil
}

// Allocate returns one descriptor set from the current frame's active
// pool ring, growing the ring with a fresh pool if every existing pool
// in this frame slot is full (spec §4.7).
func (m *DescriptorPoolManager) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pools := m.slots[m.activeFrame]
	var target *descriptorPoolSlot
	for _, p := range pools {
		if p.allocated < int(m.maxSets) {
			target = p
			break
		}
	}
	if target == nil {
		p, err := m.newPool()
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
		m.slots[m.activeFrame] = pools
		target = p
	}

	layouts := []vk.DescriptorSetLayout{layout}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     target.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, 1)
	if result := vk.AllocateDescriptorSets(m.device, &allocInfo, &sets[0]); result != vk.Success {
		return nil, rhi.ErrPoolExhausted
	}
	target.allocated++
	return sets[0], nil
}

// BeginFrame advances the ring and resets every pool belonging to the
// newly active frame slot, recycling all sets allocated from it
// maxFramesInFlight frames ago in bulk rather than per-set (spec §4.7,
// §4.10).
func (m *DescriptorPoolManager) BeginFrame(frameIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeFrame = int(frameIndex % maxFramesInFlight)
	for _, p := range m.slots[m.activeFrame] {
		vk.ResetDescriptorPool(m.device, p.pool, 0)
		p.allocated = 0
	}
}

// descriptorSetKey identifies the binding tuple a cached set was built
// from, so an identical (layout, resource) combination within the same
// frame reuses one native set instead of allocating a fresh one.
type descriptorSetKey struct {
	layoutHash uint64
	resources  [8]uint32
}

// DescriptorSetCache is a frame-local cache of descriptor sets keyed
// by their binding tuple, cleared every BeginFrame since the
// underlying pool memory is reclaimed wholesale at that point (spec
// §4.7).
//
// Capacity-reservation caveat: the vk.WriteDescriptorSet slice passed
// to vkUpdateDescriptorSets must not reallocate between the moment a
// write struct is built and the moment the native update call runs —
// growing a shared slice via append between those two points would
// invalidate earlier elements' embedded pointers. GetOrAllocate below
// pre-sizes its buffer/image info slices with make(..., 0, n) for
// exactly this reason.
type DescriptorSetCache struct {
	pools *DescriptorPoolManager
	mu    sync.Mutex
	sets  map[descriptorSetKey]vk.DescriptorSet
}

func NewDescriptorSetCache(pools *DescriptorPoolManager) *DescriptorSetCache {
	return &DescriptorSetCache{pools: pools, sets: map[descriptorSetKey]vk.DescriptorSet{}}
}

func (c *DescriptorSetCache) BeginFrame(frameIndex uint64) {
	c.pools.BeginFrame(frameIndex)
	c.mu.Lock()
	maps.Clear(c.sets)
	c.mu.Unlock()
}

type descriptorWrite struct {
	binding uint32
	typ     vk.DescriptorType
	buffer  vk.Buffer
	offset  uint64
	size    uint64
	view    vk.ImageView
	sampler vk.Sampler
	layout  vk.ImageLayout
}

// GetOrAllocate returns the cached set for this exact binding tuple,
// or allocates and populates a new one.
func (c *DescriptorSetCache) GetOrAllocate(layout vk.DescriptorSetLayout, layoutHash uint64, key [8]uint32, writes []descriptorWrite) (vk.DescriptorSet, error) {
	cacheKey := descriptorSetKey{layoutHash: layoutHash, resources: key}

	c.mu.Lock()
	if set, ok := c.sets[cacheKey]; ok {
		c.mu.Unlock()
		return set, nil
	}
	c.mu.Unlock()

	set, err := c.pools.Allocate(layout)
	if err != nil {
		return nil, err
	}

	// Pre-sized: see the capacity-reservation caveat on
	// DescriptorSetCache above.
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	bufferInfos := make([]vk.DescriptorBufferInfo, 0, len(writes))
	imageInfos := make([]vk.DescriptorImageInfo, 0, len(writes))

	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.binding,
			DescriptorCount: 1,
			DescriptorType:  w.typ,
		}
		switch w.typ {
		case vk.DescriptorTypeUniformBuffer, vk.DescriptorTypeStorageBuffer:
			bufferInfos = append(bufferInfos, vk.DescriptorBufferInfo{
				Buffer: w.buffer, Offset: vk.DeviceSize(w.offset), Range: vk.DeviceSize(w.size),
			})
			write.PBufferInfo = bufferInfos[len(bufferInfos)-1:]
		case vk.DescriptorTypeCombinedImageSampler:
			imageInfos = append(imageInfos, vk.DescriptorImageInfo{
				ImageView: w.view, Sampler: w.sampler, ImageLayout: w.layout,
			})
			write.PImageInfo = imageInfos[len(imageInfos)-1:]
		}
		vkWrites = append(vkWrites, write)
	}

	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(c.pools.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	}

	c.mu.Lock()
	c.sets[cacheKey] = set
	c.mu.Unlock()

	corex.LogDebug("descriptor set allocated for layout hash %x", layoutHash)
	return set, nil
}
