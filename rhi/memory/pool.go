package memory

import (
	"sync"
	"sync/atomic"
)

// block is one node of a pool's intra-pool doubly-linked free list.
// Blocks cover [0, pool_size) contiguously with no gaps or overlap
// (spec §3 Memory Block invariant).
type block struct {
	offset uint64
	size   uint64
	free   bool
	prev   *block
	next   *block
}

// Pool is one device-memory allocation of a fixed size for one memory
// type (spec §3 Pool). Its free-list and used-size counter are guarded
// by a single mutex; used-size is additionally atomic so statistics
// readers need not take the lock (spec §5).
type Pool struct {
	mu sync.Mutex

	memoryTypeIndex int
	size            uint64
	native          NativeBlock
	head            *block
	usedSize        atomic.Uint64
}

func newPool(memoryTypeIndex int, size uint64, native NativeBlock) *Pool {
	p := &Pool{
		memoryTypeIndex: memoryTypeIndex,
		size:            size,
		native:          native,
	}
	p.head = &block{offset: 0, size: size, free: true}
	return p
}

func alignUp(v, alignment uint64) uint64 {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// allocate performs a first-fit scan for a free block that can host
// size bytes once aligned, splitting the chosen block into the
// aligned allocated segment plus up to two remainder free blocks
// (spec §4.3 step 4). Returns the offset of the aligned allocation.
func (p *Pool) allocate(size, alignment uint64) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for b := p.head; b != nil; b = b.next {
		if !b.free {
			continue
		}
		alignedOffset := alignUp(b.offset, alignment)
		padding := alignedOffset - b.offset
		if b.size < padding+size {
			continue
		}

		remainder := b.size - padding - size

		// Pre-padding remainder (if any) stays as its own free block
		// preceding the allocation.
		if padding > 0 {
			pad := &block{offset: b.offset, size: padding, free: true, prev: b.prev, next: nil}
			if b.prev != nil {
				b.prev.next = pad
			} else {
				p.head = pad
			}
			b.prev = pad
			pad.next = b
		}

		b.offset = alignedOffset
		b.size = size
		b.free = false

		if remainder > 0 {
			post := &block{offset: alignedOffset + size, size: remainder, free: true, prev: b, next: b.next}
			if b.next != nil {
				b.next.prev = post
			}
			b.next = post
		}

		p.usedSize.Add(size)
		return alignedOffset, true
	}
	return 0, false
}

// free returns the block at offset to the free list and merges with
// immediate free neighbours (spec §4.3 step 5; §8 Merging property).
func (p *Pool) free(offset, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var target *block
	for b := p.head; b != nil; b = b.next {
		if b.offset == offset && b.size == size && !b.free {
			target = b
			break
		}
	}
	if target == nil {
		return
	}
	target.free = true
	p.usedSize.Add(^(size - 1)) // atomic subtract

	if next := target.next; next != nil && next.free {
		target.size += next.size
		target.next = next.next
		if next.next != nil {
			next.next.prev = target
		}
	}
	if prev := target.prev; prev != nil && prev.free {
		prev.size += target.size
		prev.next = target.next
		if target.next != nil {
			target.next.prev = prev
		}
	}
}

// largestFree returns the size of the largest free block in the pool.
func (p *Pool) largestFree() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var largest uint64
	for b := p.head; b != nil; b = b.next {
		if b.free && b.size > largest {
			largest = b.size
		}
	}
	return largest
}

// defragment merges any adjacent free blocks left unmerged. Under
// normal operation free() already merges eagerly, so this is a
// best-effort no-relocation pass (spec §4.3 Defragmentation) that
// returns the number of merges it performed.
func (p *Pool) defragment() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := 0
	for b := p.head; b != nil && b.next != nil; {
		if b.free && b.next.free {
			b.size += b.next.size
			b.next = b.next.next
			if b.next != nil {
				b.next.prev = b
			}
			merged++
			continue
		}
		b = b.next
	}
	return merged
}

// blockCount is a test helper reporting the number of free-list
// entries currently covering the pool.
func (p *Pool) blockCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for b := p.head; b != nil; b = b.next {
		n++
	}
	return n
}

func (p *Pool) UsedSize() uint64 { return p.usedSize.Load() }
func (p *Pool) Size() uint64     { return p.size }
