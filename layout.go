package zeroalloc

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeSize is returned for layouts with a negative size.
	ErrNegativeSize = errors.New("zeroalloc: negative size")

	// ErrBadAlign is returned when an alignment is not a power of two.
	ErrBadAlign = errors.New("zeroalloc: alignment must be a power of two")
)

// DefaultAlign is the alignment used by LayoutOf. It is large enough for
// every primitive Go type on supported platforms.
const DefaultAlign = 8

// A Layout describes the size and alignment of a block, either requested
// for a fresh allocation or belonging to a live one. Layouts are plain
// values; a Layout passed to Free or Resize must match the block exactly.
type Layout struct {
	Size  int
	Align int
}

// NewLayout validates size and align and returns the corresponding Layout.
// Align must be a power of two; size may be zero.
func NewLayout(size, align int) (Layout, error) {
	l := Layout{Size: size, Align: align}
	if err := l.check(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// LayoutOf returns a Layout for size bytes with DefaultAlign alignment.
// It panics if size is negative.
func LayoutOf(size int) Layout {
	l, err := NewLayout(size, DefaultAlign)
	if err != nil {
		panic(err)
	}
	return l
}

// valid reports whether the layout could have been produced by NewLayout.
func (l Layout) valid() bool {
	return l.Size >= 0 && l.Align > 0 && l.Align&(l.Align-1) == 0
}

// check returns the error NewLayout would have returned for l.
func (l Layout) check() error {
	if l.Size < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSize, l.Size)
	}
	if l.Align <= 0 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("%w: %d", ErrBadAlign, l.Align)
	}
	return nil
}

// alignForward returns the smallest multiple of align that is >= addr.
// align must be a power of two.
func alignForward(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}
