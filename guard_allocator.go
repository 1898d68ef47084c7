package zeroalloc

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/crypto/blake2b"
)

const (
	canarySize = 8
	poisonByte = 0xDB
)

var (
	guardSeedOnce sync.Once
	guardSeed     [32]byte
)

// canaryFor derives the canary for a block address from a per-process
// random seed, so a corrupted value cannot be forged by an overflow that
// writes a constant.
func canaryFor(addr uintptr) [canarySize]byte {
	guardSeedOnce.Do(func() {
		if _, err := rand.Read(guardSeed[:]); err != nil {
			panic("zeroalloc: cannot seed guard canary: " + err.Error())
		}
	})
	var msg [40]byte
	copy(msg[:32], guardSeed[:])
	binary.LittleEndian.PutUint64(msg[32:], uint64(addr))
	sum := blake2b.Sum256(msg[:])
	var c [canarySize]byte
	copy(c[:], sum[:canarySize])
	return c
}

// A GuardAllocator is a debug wrapper that detects heap overflows and reads
// of uninitialized memory. Each block is extended with a trailing canary
// that is verified on Free and Resize; a mismatch panics. Blocks obtained
// through Alloc are filled with a poison pattern so uninitialized reads
// stand out.
//
// The wrapper is transparent: callers pass their own layouts and never see
// the canary bytes. It adds no locking; thread safety is that of Inner.
type GuardAllocator struct {
	Inner Allocator
}

var _ Allocator = GuardAllocator{}

func (g GuardAllocator) Alloc(layout Layout) (unsafe.Pointer, error) {
	ptr, err := g.alloc(layout, false)
	if err != nil {
		return nil, err
	}
	poison(byteView(ptr, layout.Size))
	return ptr, nil
}

func (g GuardAllocator) AllocZeroed(layout Layout) (unsafe.Pointer, error) {
	return g.alloc(layout, true)
}

func (g GuardAllocator) alloc(layout Layout, zeroed bool) (unsafe.Pointer, error) {
	inner, err := guarded(layout)
	if err != nil {
		return nil, err
	}
	var ptr unsafe.Pointer
	if zeroed {
		ptr, err = g.Inner.AllocZeroed(inner)
	} else {
		ptr, err = g.Inner.Alloc(inner)
	}
	if err != nil {
		return nil, err
	}
	writeCanary(ptr, layout.Size)
	return ptr, nil
}

// Free verifies the canary and releases the block, canary included.
func (g GuardAllocator) Free(ptr unsafe.Pointer, layout Layout) {
	checkCanary(ptr, layout.Size)
	inner, err := guarded(layout)
	if err != nil {
		panic(err)
	}
	g.Inner.Free(ptr, inner)
}

// Resize verifies the canary, resizes the underlying block, and writes a
// fresh canary past the new end.
func (g GuardAllocator) Resize(ptr unsafe.Pointer, old Layout, newSize int) (unsafe.Pointer, error) {
	if newSize < 0 {
		return nil, ErrNegativeSize
	}
	checkCanary(ptr, old.Size)
	oldInner, err := guarded(old)
	if err != nil {
		return nil, err
	}
	if newSize > maxInt-canarySize {
		return nil, ErrOutOfMemory
	}
	newPtr, err := g.Inner.Resize(ptr, oldInner, newSize+canarySize)
	if err != nil {
		return nil, err
	}
	writeCanary(newPtr, newSize)
	return newPtr, nil
}

// guarded widens a caller layout to make room for the canary trailer.
func guarded(layout Layout) (Layout, error) {
	if err := layout.check(); err != nil {
		return Layout{}, err
	}
	if layout.Size > maxInt-canarySize {
		return Layout{}, ErrOutOfMemory
	}
	return Layout{Size: layout.Size + canarySize, Align: layout.Align}, nil
}

func writeCanary(ptr unsafe.Pointer, userSize int) {
	c := canaryFor(uintptr(ptr))
	copy(byteView(unsafe.Add(ptr, userSize), canarySize), c[:])
}

func checkCanary(ptr unsafe.Pointer, userSize int) {
	c := canaryFor(uintptr(ptr))
	if !bytes.Equal(byteView(unsafe.Add(ptr, userSize), canarySize), c[:]) {
		panic(fmt.Sprintf("zeroalloc: heap corruption: canary overwritten on block 0x%x (size %d)",
			uintptr(ptr), userSize))
	}
}

func poison(b []byte) {
	for i := range b {
		b[i] = poisonByte
	}
}
