package memory

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/liyanliang-auto/monster-rhi/rhi/corex"
)

// Manager is the Memory Manager (spec §4.3): a pool-of-pools
// sub-allocator per memory type with a dedicated-allocation fast path.
type Manager struct {
	native NativeAllocator
	types  []MemoryType

	// One mutex per memory type guards that type's pool slice, per
	// spec §5's shared-resource policy.
	typeLocks [MaxMemoryTypes]sync.Mutex
	pools     [MaxMemoryTypes][]*Pool

	allocCount     atomic.Int64
	dedicatedCount atomic.Int64
	dedicatedBytes atomic.Uint64
}

func NewManager(native NativeAllocator, types []MemoryType) *Manager {
	return &Manager{
		native: native,
		types:  types,
	}
}

// findMemoryTypeIndex resolves the memory-type index per spec §4.3
// step 1: iterate memory types, pick the first in the allowed mask
// satisfying all required properties; among those prefer one that
// also satisfies all preferred properties.
func (m *Manager) findMemoryTypeIndex(req Request) (int, bool) {
	fallback := -1
	for _, t := range m.types {
		if req.AllowedTypeMask&(1<<uint(t.Index)) == 0 {
			continue
		}
		if !t.Properties.Has(req.RequiredProperties) {
			continue
		}
		if fallback == -1 {
			fallback = t.Index
		}
		if req.PreferredProperties == 0 || t.Properties.Has(req.PreferredProperties) {
			return t.Index, true
		}
	}
	if fallback != -1 {
		return fallback, true
	}
	return -1, false
}

// Allocate implements the Memory Manager's allocation contract (spec
// §4.3).
func (m *Manager) Allocate(req Request) (*Allocation, error) {
	idx, ok := m.findMemoryTypeIndex(req)
	if !ok {
		return nil, ErrNoSuitableMemoryType
	}
	props := m.propertiesOf(idx)

	size := alignUp(req.Size, req.Alignment)

	if req.Dedicated || req.Size >= LargeThreshold {
		native, err := m.native.Allocate(idx, req.Size)
		if err != nil {
			corex.LogError("memory: dedicated allocation of %d bytes failed: %s", req.Size, err)
			return nil, ErrOutOfDeviceMemory
		}
		m.dedicatedCount.Add(1)
		m.dedicatedBytes.Add(req.Size)
		return &Allocation{
			DeviceMemory:    native.Handle,
			Offset:          0,
			Size:            req.Size,
			MemoryTypeIndex: idx,
			Mapped:          native.Mapped,
			Dedicated:       true,
			PoolIndex:       -1,
		}, nil
	}

	poolIndex, offset, err := m.allocateFromPool(idx, size, req.Alignment)
	if err != nil {
		return nil, err
	}

	m.typeLocks[idx].Lock()
	pool := m.pools[idx][poolIndex]
	m.typeLocks[idx].Unlock()

	var mapped unsafe.Pointer
	if props.Has(PropertyHostVisible) && pool.native.Mapped != nil {
		mapped = unsafe.Add(pool.native.Mapped, offset)
	}

	m.allocCount.Add(1)
	return &Allocation{
		DeviceMemory:    pool.native.Handle,
		Offset:          offset,
		Size:            size,
		MemoryTypeIndex: idx,
		Mapped:          mapped,
		Dedicated:       false,
		PoolIndex:       poolIndex,
		BlockOffset:     offset,
	}, nil
}

// allocateFromPool finds an existing pool with room, creating a new
// one if none has space and the per-type pool cap allows it (spec
// §4.3 step 3).
func (m *Manager) allocateFromPool(typeIndex int, size, alignment uint64) (int, uint64, error) {
	m.typeLocks[typeIndex].Lock()
	pools := m.pools[typeIndex]
	m.typeLocks[typeIndex].Unlock()

	for i, p := range pools {
		if offset, ok := p.allocate(size, alignment); ok {
			return i, offset, nil
		}
	}

	m.typeLocks[typeIndex].Lock()
	defer m.typeLocks[typeIndex].Unlock()

	if len(m.pools[typeIndex]) >= MaxPoolsPerType {
		return 0, 0, ErrPoolExhausted
	}

	poolSize := DefaultPoolSize
	if size > poolSize {
		poolSize = size
	}

	native, err := m.native.Allocate(typeIndex, poolSize)
	if err != nil {
		corex.LogError("memory: pool allocation of %d bytes for type %d failed: %s", poolSize, typeIndex, err)
		return 0, 0, ErrOutOfDeviceMemory
	}

	pool := newPool(typeIndex, poolSize, native)
	offset, ok := pool.allocate(size, alignment)
	if !ok {
		// Cannot happen for a freshly created pool sized to fit, but
		// guard against an alignment larger than the pool itself.
		m.native.Free(native)
		return 0, 0, ErrNoSuitableMemoryType
	}
	m.pools[typeIndex] = append(m.pools[typeIndex], pool)
	return len(m.pools[typeIndex]) - 1, offset, nil
}

// Free returns an allocation's memory. Dedicated allocations release
// their device-memory object directly; pool-based allocations return
// their block to the owning pool's free list.
func (m *Manager) Free(a *Allocation) {
	if a == nil {
		return
	}
	if a.Dedicated {
		m.native.Free(NativeBlock{Handle: a.DeviceMemory})
		m.dedicatedCount.Add(-1)
		m.dedicatedBytes.Add(^(a.Size - 1))
		return
	}

	m.typeLocks[a.MemoryTypeIndex].Lock()
	pool := m.pools[a.MemoryTypeIndex][a.PoolIndex]
	m.typeLocks[a.MemoryTypeIndex].Unlock()

	pool.free(a.Offset, a.Size)
	m.allocCount.Add(-1)
}

// Defragment runs a best-effort merge pass over every pool of a
// memory type and returns the total number of merges performed (spec
// §4.3 Defragmentation).
func (m *Manager) Defragment(typeIndex int) int {
	m.typeLocks[typeIndex].Lock()
	pools := append([]*Pool(nil), m.pools[typeIndex]...)
	m.typeLocks[typeIndex].Unlock()

	total := 0
	for _, p := range pools {
		total += p.defragment()
	}
	return total
}

func (m *Manager) propertiesOf(index int) MemoryPropertyFlags {
	for _, t := range m.types {
		if t.Index == index {
			return t.Properties
		}
	}
	return 0
}

// Statistics reports the Memory Manager's aggregate counters (spec
// §4.3 Statistics).
type Statistics struct {
	TotalReserved    uint64
	TotalAllocated   uint64
	AllocationCount  int64
	DedicatedCount   int64
	LargestFreeBlock uint64
}

func (m *Manager) Stats() Statistics {
	var stats Statistics
	stats.DedicatedCount = m.dedicatedCount.Load()
	stats.AllocationCount = m.allocCount.Load() + stats.DedicatedCount
	stats.TotalReserved = m.dedicatedBytes.Load()

	for t := 0; t < MaxMemoryTypes; t++ {
		m.typeLocks[t].Lock()
		pools := m.pools[t]
		m.typeLocks[t].Unlock()

		for _, p := range pools {
			stats.TotalReserved += p.Size()
			stats.TotalAllocated += p.UsedSize()
			if lf := p.largestFree(); lf > stats.LargestFreeBlock {
				stats.LargestFreeBlock = lf
			}
		}
	}
	stats.TotalAllocated += m.dedicatedBytes.Load()
	return stats
}
