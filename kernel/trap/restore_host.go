//go:build !tinygo

package trap

import (
	"fmt"

	"tickos/hal"
)

func handlerPC() uint64 { return hal.HostKernelBase }

// Install points the trap vector at the handler. The host hart already
// traps into the kernel base.
func Install(h *Handler) {}

// Restore returns to user mode with the frame at addr and never returns.
// On the host it runs the emulated hart until it traps, saves it into the
// frame, dispatches, and goes around again.
func (h *Handler) Restore(addr uint64) {
	if h.user == nil {
		panic("trap: no user mode on this platform")
	}
	for {
		cx, err := Load(h.mem, addr)
		if err != nil {
			panic(err.Error())
		}
		scause, stval := h.user.Enter(&cx.X, &cx.Sstatus, &cx.Sepc)
		h.store(addr, &cx)

		h.Handle(&cx, scause, stval)
		h.store(addr, &cx)
	}
}

func (h *Handler) store(addr uint64, cx *Context) {
	if err := Store(h.mem, addr, cx); err != nil {
		panic(fmt.Sprintf("trap: %v", err))
	}
}
