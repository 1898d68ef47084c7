package zeroalloc

import "go.uber.org/zap"

// A Config describes an allocator stack to build with New. It is never
// modified by this package, and can be reused.
type Config struct {
	// Inner is the allocator that ultimately provides the memory. If nil, a
	// fresh HeapAllocator is used.
	Inner Allocator

	// Guard inserts a GuardAllocator: canary-based overflow detection and
	// poison fill of uninitialized allocations. Intended for debug builds.
	Guard bool

	// Logger enables a TraceAllocator layer with structured logging of
	// every lifecycle call. Leave nil to skip the trace layer entirely;
	// wrap an allocator with NewTraceAllocator directly to get counters
	// without log output.
	Logger *zap.Logger
}

// New builds the allocator stack described by c. The ZeroAllocator sits
// directly above the inner allocator, so every byte the inner allocator
// regains has been wiped first, including the guard layer's canary and
// poison bytes. Guard and trace layers stack on top of it, closest to the
// caller.
func New(c Config) Allocator {
	a := c.Inner
	if a == nil {
		a = NewHeapAllocator()
	}
	a = ZeroAllocator{Inner: a}
	if c.Guard {
		a = GuardAllocator{Inner: a}
	}
	if c.Logger != nil {
		a = NewTraceAllocator(a, c.Logger)
	}
	return a
}
