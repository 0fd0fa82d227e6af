package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// Console is the byte sink behind the write system call.
type Console interface {
	Write(p []byte) (int, error)
}

var (
	ErrNotImplemented = errors.New("not implemented")
	ErrOutOfRange     = errors.New("physical address out of range")
)

// Timer is the platform timer.
//
// Ticks are platform-defined; Frequency reports how many happen per second.
type Timer interface {
	Now() uint64
	Frequency() uint64
	// SetDeadline arms the next timer interrupt and acknowledges a pending one.
	SetDeadline(ticks uint64)
	// EnableInterrupt gates the supervisor timer interrupt.
	EnableInterrupt(on bool)
}

// Power controls the machine power state.
type Power interface {
	// Shutdown powers the machine off. It does not return.
	Shutdown(failure bool)
}

// Memory is physical memory, addressed by physical address.
type Memory interface {
	ReadAt(p []byte, addr uint64) (int, error)
	WriteAt(p []byte, addr uint64) (int, error)
	// FenceI makes prior writes visible to instruction fetch.
	FenceI()
}

// Region is a physical address range.
type Region struct {
	Base uint64
	Size uint64
}

// End returns the first address past the region.
func (r Region) End() uint64 { return r.Base + r.Size }

// UserMode drops the hart into user mode with the given register file and
// returns at the next trap with the register file updated in place.
//
// Only the host platform has one; on hardware the trap vector assembly does
// this job.
type UserMode interface {
	Enter(regs *[32]uint64, sstatus, sepc *uint64) (scause, stval uint64)
	// Vector is the supervisor trap vector address.
	Vector() uint64
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// HAL provides the only contact point between the kernel and the machine.
type HAL interface {
	Logger() Logger
	Console() Console
	Timer() Timer
	Power() Power
	Memory() Memory
	// StackArea is the physical range reserved for per-task stacks.
	StackArea() Region
	UserMode() UserMode
	Display() Display
}
