package zeroalloc

import (
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

// Stats is a snapshot of a TraceAllocator's counters.
type Stats struct {
	Allocs     int64 // lifecycle allocations (Alloc + AllocZeroed)
	Frees      int64
	Resizes    int64
	LiveBlocks int64
	LiveBytes  int64
	PeakBytes  int64
}

// A TraceAllocator wraps an allocator with accounting and optional
// structured logging of every lifecycle call. Counters are atomic; the
// wrapper adds no locking and is as thread-safe as its inner allocator.
type TraceAllocator struct {
	inner Allocator
	log   *zap.Logger

	allocs     atomic.Int64
	frees      atomic.Int64
	resizes    atomic.Int64
	liveBlocks atomic.Int64
	liveBytes  atomic.Int64
	peakBytes  atomic.Int64
}

var _ Allocator = (*TraceAllocator)(nil)

// NewTraceAllocator wraps inner. A nil logger disables logging but keeps
// the counters.
func NewTraceAllocator(inner Allocator, log *zap.Logger) *TraceAllocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &TraceAllocator{inner: inner, log: log}
}

func (t *TraceAllocator) Alloc(layout Layout) (unsafe.Pointer, error) {
	ptr, err := t.inner.Alloc(layout)
	t.recordAlloc(ptr, layout, err, "alloc")
	return ptr, err
}

func (t *TraceAllocator) AllocZeroed(layout Layout) (unsafe.Pointer, error) {
	ptr, err := t.inner.AllocZeroed(layout)
	t.recordAlloc(ptr, layout, err, "alloc_zeroed")
	return ptr, err
}

func (t *TraceAllocator) Free(ptr unsafe.Pointer, layout Layout) {
	t.inner.Free(ptr, layout)
	t.frees.Add(1)
	t.liveBlocks.Add(-1)
	t.liveBytes.Add(-int64(layout.Size))
	t.log.Debug("free",
		zap.Uintptr("ptr", uintptr(ptr)),
		zap.Int("size", layout.Size))
}

func (t *TraceAllocator) Resize(ptr unsafe.Pointer, old Layout, newSize int) (unsafe.Pointer, error) {
	newPtr, err := t.inner.Resize(ptr, old, newSize)
	if err != nil {
		t.log.Warn("resize failed",
			zap.Uintptr("ptr", uintptr(ptr)),
			zap.Int("old_size", old.Size),
			zap.Int("new_size", newSize),
			zap.Error(err))
		return nil, err
	}
	t.resizes.Add(1)
	t.bumpLive(int64(newSize) - int64(old.Size))
	t.log.Debug("resize",
		zap.Uintptr("ptr", uintptr(ptr)),
		zap.Uintptr("new_ptr", uintptr(newPtr)),
		zap.Int("old_size", old.Size),
		zap.Int("new_size", newSize),
		zap.Bool("relocated", newPtr != ptr))
	return newPtr, nil
}

// Stats returns a snapshot of the counters. Individual fields are loaded
// independently, so a snapshot taken during concurrent activity may be
// momentarily inconsistent between fields.
func (t *TraceAllocator) Stats() Stats {
	return Stats{
		Allocs:     t.allocs.Load(),
		Frees:      t.frees.Load(),
		Resizes:    t.resizes.Load(),
		LiveBlocks: t.liveBlocks.Load(),
		LiveBytes:  t.liveBytes.Load(),
		PeakBytes:  t.peakBytes.Load(),
	}
}

func (t *TraceAllocator) recordAlloc(ptr unsafe.Pointer, layout Layout, err error, op string) {
	if err != nil {
		t.log.Warn(op+" failed", zap.Int("size", layout.Size), zap.Error(err))
		return
	}
	t.allocs.Add(1)
	t.liveBlocks.Add(1)
	t.bumpLive(int64(layout.Size))
	t.log.Debug(op,
		zap.Uintptr("ptr", uintptr(ptr)),
		zap.Int("size", layout.Size),
		zap.Int("align", layout.Align))
}

func (t *TraceAllocator) bumpLive(delta int64) {
	live := t.liveBytes.Add(delta)
	for {
		peak := t.peakBytes.Load()
		if live <= peak || t.peakBytes.CompareAndSwap(peak, live) {
			return
		}
	}
}
