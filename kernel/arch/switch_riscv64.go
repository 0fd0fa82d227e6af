//go:build tinygo && riscv64

package arch

import "unsafe"

// #include <stdint.h>
import "C"

//go:extern __task_entry
var taskEntry [0]byte

//export __switch
func switchContext(cur, next *Context)

var entryFn func()

// EntryPC returns the address of the assembly trampoline that calls the
// switcher's entry function on a fresh kernel stack.
func EntryPC() uintptr {
	return uintptr(unsafe.Pointer(&taskEntry))
}

// Switcher hands the CPU between kernel contexts with __switch.
type Switcher struct{}

// NewSwitcher returns a switcher whose fresh contexts run entry. There is
// only one CPU; the last call wins. halt is unused on hardware.
func NewSwitcher(entry func(), halt <-chan struct{}) *Switcher {
	_ = halt
	entryFn = entry
	return &Switcher{}
}

// Switch saves the caller into cur and resumes next.
func (s *Switcher) Switch(cur, next *Context) {
	if cur == next {
		return
	}
	switchContext(cur, next)
}

//export task_start
func taskStart() {
	entryFn()
	panic("arch: context entry returned")
}
