// Package zeroalloc provides a secure-erasure layer for manually managed
// memory. Its central type, ZeroAllocator, wraps any allocator and
// guarantees that every byte of a block is overwritten with zero before the
// block is handed back to the wrapped allocator, so stale secrets cannot be
// recovered from freed or reused memory. The zeroing write is performed with
// a primitive the compiler cannot eliminate as a dead store.
//
// The package also ships two inner allocators (HeapAllocator and, on unix,
// MmapAllocator), debug and accounting wrappers (GuardAllocator,
// TraceAllocator), and a Buffer type for holding secrets with an explicit
// destroy step.
package zeroalloc

import "unsafe"

// An Allocator is the minimal capability set a memory provider must support.
// Implementations must be safe for concurrent use; the wrappers in this
// package add no locking of their own.
//
// The pointer/layout contract follows standard allocator semantics: the
// layout passed to Free or Resize must be exactly the layout of the live
// block, and a pointer may be freed at most once. Violations are not
// detected by the wrappers in this package (the bundled inner allocators
// panic on pointers they do not own, but that is their choice, not part of
// this contract).
type Allocator interface {
	// Alloc returns a block of at least layout.Size bytes aligned to
	// layout.Align. The content of the block is unspecified.
	Alloc(layout Layout) (unsafe.Pointer, error)

	// AllocZeroed is Alloc with the additional guarantee that every byte of
	// the returned block is zero. Implementations with a zero source (fresh
	// Go heap memory, anonymous pages) satisfy this for free; others must
	// fall back to Alloc followed by Wipe.
	AllocZeroed(layout Layout) (unsafe.Pointer, error)

	// Free returns the block to the allocator. It must not fail when the
	// pointer/layout precondition holds.
	Free(ptr unsafe.Pointer, layout Layout)

	// Resize changes the size of the block to newSize, preserving the first
	// min(old.Size, newSize) bytes. The returned pointer may differ from
	// ptr (relocation); when it does, ptr is no longer valid. Alignment is
	// carried over from old.
	Resize(ptr unsafe.Pointer, old Layout, newSize int) (unsafe.Pointer, error)
}

// AllocZeroedFallback implements the AllocZeroed capability for allocators
// that have no cheap zero source: Alloc followed by an explicit wipe.
func AllocZeroedFallback(a Allocator, layout Layout) (unsafe.Pointer, error) {
	ptr, err := a.Alloc(layout)
	if err != nil {
		return nil, err
	}
	wipeRange(ptr, layout.Size)
	return ptr, nil
}

// DefaultAllocator is a reasonable choice anywhere an Allocator is
// required: the Go heap behind a secure-erasure wrapper. It may be replaced
// during program initialization, before any allocation is made through it.
var DefaultAllocator Allocator = ZeroAllocator{Inner: NewHeapAllocator()}
