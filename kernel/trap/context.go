// Package trap defines the user trap frame and dispatches traps taken from
// user mode.
package trap

import (
	"encoding/binary"
	"fmt"

	"tickos/hal"
	"tickos/rv64"
)

const (
	// Words is the number of 64-bit words in a frame.
	Words = 36
	// Size is the frame size in bytes.
	Size = Words * 8
)

// Context is the user state captured on trap entry. The field order is the
// layout the trap assembly uses.
type Context struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSP    uint64
	TrapHandler uint64
}

// AppInitContext returns the frame that starts an application at entry on
// userSP the first time it is restored.
func AppInitContext(entry, userSP, kernelSP uint64) Context {
	var cx Context
	cx.X[rv64.SP] = userSP
	cx.Sstatus = rv64.SstatusSPIE
	cx.Sepc = entry
	cx.KernelSP = kernelSP
	cx.TrapHandler = handlerPC()
	return cx
}

// FrameAddr returns where a task's frame lives: directly below the top of
// its kernel stack.
func FrameAddr(kernelTop uint64) uint64 {
	return kernelTop - Size
}

// Encode writes cx into b, which must hold Size bytes.
func (cx *Context) Encode(b []byte) {
	_ = b[Size-1]
	for i, v := range cx.X {
		binary.LittleEndian.PutUint64(b[i*8:], v)
	}
	binary.LittleEndian.PutUint64(b[32*8:], cx.Sstatus)
	binary.LittleEndian.PutUint64(b[33*8:], cx.Sepc)
	binary.LittleEndian.PutUint64(b[34*8:], cx.KernelSP)
	binary.LittleEndian.PutUint64(b[35*8:], cx.TrapHandler)
}

// Decode reads cx from b, which must hold Size bytes.
func (cx *Context) Decode(b []byte) {
	_ = b[Size-1]
	for i := range cx.X {
		cx.X[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	cx.Sstatus = binary.LittleEndian.Uint64(b[32*8:])
	cx.Sepc = binary.LittleEndian.Uint64(b[33*8:])
	cx.KernelSP = binary.LittleEndian.Uint64(b[34*8:])
	cx.TrapHandler = binary.LittleEndian.Uint64(b[35*8:])
}

// Load reads the frame at addr.
func Load(mem hal.Memory, addr uint64) (Context, error) {
	var (
		buf [Size]byte
		cx  Context
	)
	if _, err := mem.ReadAt(buf[:], addr); err != nil {
		return cx, fmt.Errorf("trap: load frame at %#x: %w", addr, err)
	}
	cx.Decode(buf[:])
	return cx, nil
}

// Store writes cx to the frame at addr.
func Store(mem hal.Memory, addr uint64, cx *Context) error {
	var buf [Size]byte
	cx.Encode(buf[:])
	if _, err := mem.WriteAt(buf[:], addr); err != nil {
		return fmt.Errorf("trap: store frame at %#x: %w", addr, err)
	}
	return nil
}
