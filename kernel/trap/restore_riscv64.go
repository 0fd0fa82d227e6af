//go:build tinygo && riscv64

package trap

import (
	"device/riscv"
	"unsafe"
)

// #include <stdint.h>
import "C"

//go:extern __alltraps
var allTraps [0]byte

//go:extern __trap_dispatch
var trapDispatch [0]byte

//export __restore
func restoreFrame(frame uintptr)

var active *Handler

func handlerPC() uint64 {
	return uint64(uintptr(unsafe.Pointer(&trapDispatch)))
}

// Install makes h the handler for every trap and points stvec at the
// assembly entry in direct mode.
func Install(h *Handler) {
	active = h
	riscv.AsmFull("csrw stvec, {vec}", map[string]interface{}{
		"vec": uintptr(unsafe.Pointer(&allTraps)),
	})
}

// Restore returns to user mode with the frame at addr.
func (h *Handler) Restore(addr uint64) {
	restoreFrame(uintptr(addr))
}

//export trap_handler
func trapHandler(frame uintptr) uintptr {
	cx := (*Context)(unsafe.Pointer(frame))
	scause := uint64(riscv.AsmFull("csrr {}, scause", nil))
	stval := uint64(riscv.AsmFull("csrr {}, stval", nil))
	active.Handle(cx, scause, stval)
	return frame
}
