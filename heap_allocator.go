package zeroalloc

import (
	"errors"
	"sync"
	"unsafe"
)

// ErrOutOfMemory is returned when an allocation request cannot be satisfied.
var ErrOutOfMemory = errors.New("zeroalloc: out of memory")

type heapBlock struct {
	raw    []byte // backing slice, keeps the block alive under the GC
	offset int    // start of the aligned region within raw
	layout Layout
}

// A HeapAllocator satisfies allocations from the Go heap. It over-allocates
// by the requested alignment and aligns the start of the block forward, and
// it keeps a reference to every live block so the garbage collector cannot
// reclaim memory that is still owned by the application.
//
// Resize operates in place whenever the original over-allocation has room,
// which covers every shrink and small grows; otherwise it relocates.
//
// Free or Resize with a pointer the allocator does not own panics.
//
// A HeapAllocator is safe for concurrent use.
type HeapAllocator struct {
	mu     sync.Mutex
	blocks map[uintptr]heapBlock
}

var _ Allocator = (*HeapAllocator)(nil)

// NewHeapAllocator returns an empty HeapAllocator.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{blocks: make(map[uintptr]heapBlock)}
}

// Alloc returns a block of layout.Size bytes aligned to layout.Align.
func (h *HeapAllocator) Alloc(layout Layout) (unsafe.Pointer, error) {
	if err := layout.check(); err != nil {
		return nil, err
	}
	if layout.Size > maxInt-layout.Align {
		return nil, ErrOutOfMemory
	}
	// Pad so an aligned region of layout.Size bytes always fits, then shift
	// the start forward to the alignment boundary.
	raw := make([]byte, layout.Size+layout.Align)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	offset := int(alignForward(base, uintptr(layout.Align)) - base)
	ptr := unsafe.Pointer(unsafe.SliceData(raw[offset:]))

	h.mu.Lock()
	h.blocks[uintptr(ptr)] = heapBlock{raw: raw, offset: offset, layout: layout}
	h.mu.Unlock()
	return ptr, nil
}

// AllocZeroed returns a zero-filled block. Fresh Go heap memory is already
// zero, so this is Alloc.
func (h *HeapAllocator) AllocZeroed(layout Layout) (unsafe.Pointer, error) {
	return h.Alloc(layout)
}

// Free releases the block. The memory itself is reclaimed by the garbage
// collector once the allocator drops its reference.
func (h *HeapAllocator) Free(ptr unsafe.Pointer, layout Layout) {
	h.mu.Lock()
	_, ok := h.blocks[uintptr(ptr)]
	if ok {
		delete(h.blocks, uintptr(ptr))
	}
	h.mu.Unlock()
	if !ok {
		panic("zeroalloc: free of pointer not owned by this allocator")
	}
}

// Resize changes the block's size. The block stays in place when the
// original over-allocation has room for newSize bytes at the same offset;
// otherwise a new block is allocated, the overlapping prefix copied, and
// the old block released.
func (h *HeapAllocator) Resize(ptr unsafe.Pointer, old Layout, newSize int) (unsafe.Pointer, error) {
	if newSize < 0 {
		return nil, ErrNegativeSize
	}

	h.mu.Lock()
	blk, ok := h.blocks[uintptr(ptr)]
	if ok && newSize <= len(blk.raw)-blk.offset {
		blk.layout.Size = newSize
		h.blocks[uintptr(ptr)] = blk
		h.mu.Unlock()
		return ptr, nil
	}
	h.mu.Unlock()
	if !ok {
		panic("zeroalloc: resize of pointer not owned by this allocator")
	}

	newPtr, err := h.Alloc(Layout{Size: newSize, Align: old.Align})
	if err != nil {
		return nil, err
	}
	copy(byteView(newPtr, min(old.Size, newSize)), byteView(ptr, min(old.Size, newSize)))
	h.Free(ptr, old)
	return newPtr, nil
}

// Live returns the number of blocks currently owned by the application.
func (h *HeapAllocator) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blocks)
}

const maxInt = int(^uint(0) >> 1)
