package memory

import (
	"testing"
	"unsafe"
)

// fakeAllocator stands in for the Vulkan backend's vkAllocateMemory so
// the pool/free-list logic can be exercised without a GPU.
type fakeAllocator struct {
	nextHandle uint64
	hostVisibleTypes map[int]bool
}

func newFakeAllocator(hostVisibleTypes ...int) *fakeAllocator {
	m := map[int]bool{}
	for _, t := range hostVisibleTypes {
		m[t] = true
	}
	return &fakeAllocator{hostVisibleTypes: m}
}

func (f *fakeAllocator) Allocate(memoryTypeIndex int, size uint64) (NativeBlock, error) {
	f.nextHandle++
	var mapped unsafe.Pointer
	if f.hostVisibleTypes[memoryTypeIndex] {
		buf := make([]byte, size)
		mapped = unsafe.Pointer(&buf[0])
	}
	return NativeBlock{Handle: f.nextHandle, Mapped: mapped}, nil
}

func (f *fakeAllocator) Free(NativeBlock) {}

func newTestManager() *Manager {
	types := []MemoryType{
		{Index: 0, Properties: PropertyDeviceLocal},
		{Index: 1, Properties: PropertyHostVisible | PropertyHostCoherent},
	}
	return NewManager(newFakeAllocator(1), types)
}

const allTypesMask = 0xFFFFFFFF

func TestAlignment(t *testing.T) {
	m := newTestManager()
	sizes := []uint64{17, 33, 97, 1025}
	alignments := []uint64{256, 256, 4096, 65536}

	var allocs []*Allocation
	for i, size := range sizes {
		a, err := m.Allocate(Request{
			Size:               size,
			Alignment:          alignments[i],
			AllowedTypeMask:    allTypesMask,
			RequiredProperties: PropertyDeviceLocal,
		})
		if err != nil {
			t.Fatalf("allocate %d: %v", size, err)
		}
		if a.Offset%alignments[i] != 0 {
			t.Errorf("offset %d not aligned to %d", a.Offset, alignments[i])
		}
		allocs = append(allocs, a)
	}

	for i := range allocs {
		for j := range allocs {
			if i == j {
				continue
			}
			if allocs[i].PoolIndex != allocs[j].PoolIndex {
				continue
			}
			aStart, aEnd := allocs[i].Offset, allocs[i].Offset+allocs[i].Size
			bStart, bEnd := allocs[j].Offset, allocs[j].Offset+allocs[j].Size
			if aStart < bEnd && bStart < aEnd {
				t.Errorf("allocations %d and %d overlap: [%d,%d) vs [%d,%d)", i, j, aStart, aEnd, bStart, bEnd)
			}
		}
	}

	var requested uint64
	for _, s := range sizes {
		requested += s
	}
	stats := m.Stats()
	if stats.TotalAllocated < requested {
		t.Errorf("total allocated %d < requested sum %d", stats.TotalAllocated, requested)
	}
}

func TestFreeListMerge(t *testing.T) {
	m := newTestManager()
	const oneMiB = 1024 * 1024

	req := Request{Size: oneMiB, Alignment: 256, AllowedTypeMask: allTypesMask, RequiredProperties: PropertyDeviceLocal}
	a, err := m.Allocate(req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Allocate(req)
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.Allocate(req)
	if err != nil {
		t.Fatal(err)
	}

	m.Free(b)
	m.Free(a)
	m.Free(c)

	pool := m.pools[0][a.PoolIndex]
	if got := pool.blockCount(); got != 1 {
		t.Fatalf("expected exactly one free block after merging, got %d", got)
	}
	if pool.UsedSize() != 0 {
		t.Fatalf("expected used size 0, got %d", pool.UsedSize())
	}
}

func TestDedicatedBoundary(t *testing.T) {
	m := newTestManager()

	a, err := m.Allocate(Request{
		Size:               LargeThreshold + 1,
		Alignment:          256,
		AllowedTypeMask:    allTypesMask,
		RequiredProperties: PropertyDeviceLocal,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Dedicated {
		t.Fatal("expected dedicated allocation for size >= LargeThreshold")
	}
	if a.Offset != 0 {
		t.Fatalf("expected offset 0 for dedicated allocation, got %d", a.Offset)
	}

	before := m.Stats()
	m.Free(a)
	after := m.Stats()
	if after.DedicatedCount != before.DedicatedCount-1 {
		t.Fatalf("expected dedicated count to drop by one, before=%d after=%d", before.DedicatedCount, after.DedicatedCount)
	}
}

func TestDedicatedFlagExplicit(t *testing.T) {
	m := newTestManager()
	a, err := m.Allocate(Request{
		Size:               64,
		Alignment:          16,
		AllowedTypeMask:    allTypesMask,
		RequiredProperties: PropertyDeviceLocal,
		Dedicated:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Dedicated || a.Offset != 0 {
		t.Fatalf("explicit dedicated request did not produce a dedicated allocation: %+v", a)
	}
}

func TestHostVisibleMapping(t *testing.T) {
	m := newTestManager()
	a, err := m.Allocate(Request{
		Size:                256,
		Alignment:           16,
		AllowedTypeMask:     allTypesMask,
		RequiredProperties:  PropertyHostVisible,
		PreferredProperties: PropertyHostCoherent,
		Mappable:            true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Mapped == nil {
		t.Fatal("expected non-nil mapped pointer for host-visible allocation")
	}
}

func TestNoSuitableMemoryType(t *testing.T) {
	m := newTestManager()
	_, err := m.Allocate(Request{
		Size:               64,
		Alignment:          16,
		AllowedTypeMask:    0, // matches nothing
		RequiredProperties: PropertyDeviceLocal,
	})
	if err != ErrNoSuitableMemoryType {
		t.Fatalf("expected ErrNoSuitableMemoryType, got %v", err)
	}
}

func TestPoolExhausted(t *testing.T) {
	m := newTestManager()
	// Just under the dedicated-allocation threshold, so these stay on
	// the pool path. Only 4 fit per 64 MiB pool (60 MiB used, 4 MiB
	// remainder too small for a 5th), so MaxPoolsPerType*4 exhausts
	// the per-type pool cap.
	const chunk = 15 * 1024 * 1024
	req := Request{
		Size:               chunk,
		Alignment:          256,
		AllowedTypeMask:    allTypesMask,
		RequiredProperties: PropertyDeviceLocal,
	}

	total := MaxPoolsPerType * 4
	for i := 0; i < total; i++ {
		if _, err := m.Allocate(req); err != nil {
			t.Fatalf("allocation %d: unexpected error %v", i, err)
		}
	}
	if _, err := m.Allocate(req); err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
}
