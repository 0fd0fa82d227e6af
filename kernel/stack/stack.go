// Package stack carves the platform stack area into per-task kernel and
// user stacks.
package stack

import (
	"errors"
	"fmt"

	"tickos/hal"
)

const (
	KernelStackSize = 8192
	UserStackSize   = 8192

	align = 16
)

var ErrAreaTooSmall = errors.New("stack: area too small")

// Layout places n kernel stacks followed by n user stacks in one area.
type Layout struct {
	base uint64
	n    int
}

// NewLayout returns a layout for n tasks inside area.
func NewLayout(area hal.Region, n int) (*Layout, error) {
	if n < 0 {
		return nil, fmt.Errorf("stack: negative task count %d", n)
	}
	base := (area.Base + align - 1) &^ (align - 1)
	need := uint64(n) * (KernelStackSize + UserStackSize)
	if base < area.Base || base-area.Base+need > area.Size {
		return nil, fmt.Errorf("%w: %d tasks need %#x bytes, have %#x at %#x",
			ErrAreaTooSmall, n, need, area.Size, area.Base)
	}
	return &Layout{base: base, n: n}, nil
}

// Len returns the number of task slots.
func (l *Layout) Len() int { return l.n }

// Kernel returns task i's kernel stack.
func (l *Layout) Kernel(i int) hal.Region {
	l.check(i)
	return hal.Region{Base: l.base + uint64(i)*KernelStackSize, Size: KernelStackSize}
}

// User returns task i's user stack.
func (l *Layout) User(i int) hal.Region {
	l.check(i)
	userBase := l.base + uint64(l.n)*KernelStackSize
	return hal.Region{Base: userBase + uint64(i)*UserStackSize, Size: UserStackSize}
}

// KernelTop returns the initial stack pointer of task i's kernel stack.
func (l *Layout) KernelTop(i int) uint64 { return l.Kernel(i).End() }

// UserTop returns the initial stack pointer of task i's user stack.
func (l *Layout) UserTop(i int) uint64 { return l.User(i).End() }

func (l *Layout) check(i int) {
	if i < 0 || i >= l.n {
		panic(fmt.Sprintf("stack: slot %d out of range [0, %d)", i, l.n))
	}
}
