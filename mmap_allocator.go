//go:build unix

package zeroalloc

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrAlignUnsupported is returned when an allocator cannot provide the
// requested alignment.
var ErrAlignUnsupported = errors.New("zeroalloc: unsupported alignment")

// A MmapAllocator satisfies each allocation with its own anonymous private
// mapping. Blocks are page-aligned, so any alignment up to the system page
// size is supported. Compared to HeapAllocator, blocks live entirely
// outside the Go heap: the garbage collector never moves or scans them, and
// with Lock set the pages are additionally pinned in RAM (unix.Mlock) so
// they cannot be written to swap.
//
// Resize always relocates (map, copy, unmap). Behind a ZeroAllocator this
// means a growing resize leaves the old mapping to the kernel without an
// explicit wipe; anonymous memory returned to the kernel is not readable by
// other processes, but within this process the usual grow caveat of
// ZeroAllocator.Resize applies.
//
// The allocator keeps no records: the mapping is reconstructed from the
// pointer and layout the caller passes back. It is safe for concurrent use.
type MmapAllocator struct {
	// Lock pins every allocated page in RAM with mlock. Allocation fails
	// if the mlock limit (RLIMIT_MEMLOCK) is exhausted.
	Lock bool
}

var _ Allocator = MmapAllocator{}

// Alloc maps a fresh anonymous region of at least layout.Size bytes,
// rounded up to whole pages. Zero-size layouts map a single page.
func (m MmapAllocator) Alloc(layout Layout) (unsafe.Pointer, error) {
	if err := layout.check(); err != nil {
		return nil, err
	}
	if layout.Align > os.Getpagesize() {
		return nil, fmt.Errorf("%w: %d exceeds page size", ErrAlignUnsupported, layout.Align)
	}
	b, err := unix.Mmap(-1, 0, mapLen(layout.Size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("zeroalloc: mmap: %w", err)
	}
	if m.Lock {
		if err := unix.Mlock(b); err != nil {
			_ = unix.Munmap(b)
			return nil, fmt.Errorf("zeroalloc: mlock: %w", err)
		}
	}
	return unsafe.Pointer(unsafe.SliceData(b)), nil
}

// AllocZeroed is Alloc: anonymous mappings are zero-filled by the kernel.
func (m MmapAllocator) AllocZeroed(layout Layout) (unsafe.Pointer, error) {
	return m.Alloc(layout)
}

// Free unmaps the block. Unmapping also releases any mlock on the pages.
func (m MmapAllocator) Free(ptr unsafe.Pointer, layout Layout) {
	if err := unix.Munmap(byteView(ptr, mapLen(layout.Size))); err != nil {
		// Munmap fails only when ptr/layout violate the allocator contract.
		panic(fmt.Sprintf("zeroalloc: munmap: %v", err))
	}
}

// Resize maps a new region, copies the overlapping prefix, and unmaps the
// old one. When old and new sizes round to the same number of pages the
// mapping is reused as is.
func (m MmapAllocator) Resize(ptr unsafe.Pointer, old Layout, newSize int) (unsafe.Pointer, error) {
	if newSize < 0 {
		return nil, ErrNegativeSize
	}
	if mapLen(newSize) == mapLen(old.Size) {
		return ptr, nil
	}
	newPtr, err := m.Alloc(Layout{Size: newSize, Align: old.Align})
	if err != nil {
		return nil, err
	}
	copy(byteView(newPtr, min(old.Size, newSize)), byteView(ptr, min(old.Size, newSize)))
	m.Free(ptr, old)
	return newPtr, nil
}

// mapLen rounds size up to a whole number of pages, with a one page
// minimum.
func mapLen(size int) int {
	page := os.Getpagesize()
	if size == 0 {
		return page
	}
	return int(alignForward(uintptr(size), uintptr(page)))
}
