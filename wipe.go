package zeroalloc

import (
	"runtime"
	"unsafe"
)

// wipeLoop is the store loop behind Wipe. It is kept out of line so the
// compiler cannot peer inside a callsite, conclude the stores are never
// read, and drop them.
//
//go:noinline
func wipeLoop(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// Force compiler to not optimize away the zeroing.
	runtime.KeepAlive(b)
}

// wiper holds the wipe implementation behind a function variable so that
// calls go through an opaque target, an extra barrier against dead-store
// elimination across inlining decisions in future compilers.
var wiper func([]byte) = wipeLoop

// Wipe overwrites every byte of b with zero. The write is guaranteed to
// happen even if nothing ever reads b again. Wiping a nil or empty slice is
// a no-op.
func Wipe(b []byte) {
	wiper(b)
}

// wipeRange zeroes size bytes starting at ptr. The caller guarantees the
// range is a live allocation of at least that size.
func wipeRange(ptr unsafe.Pointer, size int) {
	Wipe(byteView(ptr, size))
}

// byteView returns a slice covering the size bytes at ptr. This is the raw
// byte-range view used throughout the package: bounds are validated only by
// the caller's contract with its allocator.
func byteView(ptr unsafe.Pointer, size int) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), size)
}
