package zeroalloc

import (
	"crypto/rand"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// A Buffer holds sensitive bytes in memory obtained from an Allocator and
// ties their lifetime to an explicit Destroy step: the contents are wiped
// before the memory is released, in addition to whatever wiping the
// allocator stack itself performs. A finalizer destroys buffers that are
// leaked without a Destroy call, as a best-effort safety net only; code
// handling secrets should call Destroy as soon as the secret is dead.
type Buffer struct {
	mu        sync.Mutex
	alloc     Allocator
	layout    Layout
	ptr       unsafe.Pointer
	data      []byte
	destroyed bool
}

// NewBuffer allocates a zero-filled buffer of size bytes from a.
func NewBuffer(a Allocator, size int) (*Buffer, error) {
	layout := Layout{Size: size, Align: DefaultAlign}
	if !layout.valid() {
		return nil, fmt.Errorf("%w: %d", ErrNegativeSize, size)
	}
	ptr, err := a.AllocZeroed(layout)
	if err != nil {
		return nil, err
	}
	b := &Buffer{alloc: a, layout: layout, ptr: ptr, data: byteView(ptr, size)}
	runtime.SetFinalizer(b, (*Buffer).Destroy)
	return b, nil
}

// NewBufferRandom allocates a buffer of size bytes filled with
// cryptographically random data, for key material generated in place.
func NewBufferRandom(a Allocator, size int) (*Buffer, error) {
	b, err := NewBuffer(a, size)
	if err != nil {
		return nil, err
	}
	if _, err := rand.Read(b.data); err != nil {
		b.Destroy()
		return nil, fmt.Errorf("zeroalloc: random fill: %w", err)
	}
	return b, nil
}

// Bytes returns the buffer's contents. The slice aliases the buffer's
// memory and must not be used after Destroy. It returns nil once the
// buffer is destroyed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil
	}
	return b.data
}

// Size returns the buffer's length in bytes, or 0 after Destroy.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return 0
	}
	return b.layout.Size
}

// Destroy wipes the contents and returns the memory to the allocator.
// Destroy is idempotent; all other methods return nothing useful after it.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	runtime.SetFinalizer(b, nil)
	Wipe(b.data)
	b.alloc.Free(b.ptr, b.layout)
	b.data = nil
	b.ptr = nil
}
