package zeroalloc

import (
	"testing"
)

func TestGuardLifecycle(t *testing.T) {
	g := GuardAllocator{Inner: NewHeapAllocator()}
	layout := LayoutOf(64)
	ptr, err := g.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	data := byteView(ptr, layout.Size)
	for i := range data {
		data[i] = byte(i)
	}
	g.Free(ptr, layout) // must not panic: canary untouched
}

func TestGuardPoisonFill(t *testing.T) {
	g := GuardAllocator{Inner: NewHeapAllocator()}
	layout := LayoutOf(128)
	ptr, err := g.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range byteView(ptr, layout.Size) {
		if b != poisonByte {
			t.Fatalf("byte %d not poisoned: %#x", i, b)
		}
	}
	g.Free(ptr, layout)
}

func TestGuardAllocZeroed(t *testing.T) {
	g := GuardAllocator{Inner: NewHeapAllocator()}
	layout := LayoutOf(128)
	ptr, err := g.AllocZeroed(layout)
	if err != nil {
		t.Fatal(err)
	}
	if !allZero(byteView(ptr, layout.Size)) {
		t.Error("AllocZeroed through the guard should not be poisoned")
	}
	g.Free(ptr, layout)
}

func TestGuardDetectsOverflow(t *testing.T) {
	g := GuardAllocator{Inner: NewHeapAllocator()}
	layout := LayoutOf(32)
	ptr, err := g.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	// Flip one byte past the end of the block, into the canary.
	byteView(ptr, layout.Size+1)[layout.Size] ^= 0xFF

	defer func() {
		if recover() == nil {
			t.Error("Free after an overflow should panic")
		}
	}()
	g.Free(ptr, layout)
}

func TestGuardResizeKeepsCanary(t *testing.T) {
	g := GuardAllocator{Inner: NewHeapAllocator()}
	layout := LayoutOf(32)
	ptr, err := g.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	copy(byteView(ptr, 32), "guarded_resize_keeps_the_prefix!")

	newPtr, err := g.Resize(ptr, layout, 1<<12)
	if err != nil {
		t.Fatal(err)
	}
	if string(byteView(newPtr, 32)) != "guarded_resize_keeps_the_prefix!" {
		t.Error("prefix lost across guarded resize")
	}
	newPtr, err = g.Resize(newPtr, Layout{Size: 1 << 12, Align: layout.Align}, 16)
	if err != nil {
		t.Fatal(err)
	}
	g.Free(newPtr, Layout{Size: 16, Align: layout.Align}) // canary must still verify
}

// TestGuardOverZero runs the guard in its New composition, where the
// ZeroAllocator below it wipes the widened block, canary included.
func TestGuardOverZero(t *testing.T) {
	rec := newRecordingAllocator()
	a := New(Config{Inner: rec, Guard: true})

	layout := LayoutOf(256)
	ptr, err := a.Alloc(layout)
	if err != nil {
		t.Fatal(err)
	}
	data := byteView(ptr, layout.Size)
	for i := range data {
		data[i] = 0x99
	}
	a.Free(ptr, layout)

	if rec.dirtyFrees.Load() != 0 {
		t.Error("guarded stack released non-zero bytes (canary range included)")
	}
}
