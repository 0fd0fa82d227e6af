// Package arch holds the kernel execution context and the switch
// primitive that transfers the CPU between two of them.
//
// Switch saves the caller's return address, stack pointer and the
// callee-saved registers s0-s11 into cur, then loads the same set from next
// and returns into next's saved return address. Caller-saved registers are
// not preserved; the kernel only switches from ordinary Go call sites where
// none are live. Switch is not reentrant and must run with every lock
// released.
package arch

// Context is a saved kernel execution context. The field order is the
// layout the switch assembly reads and writes.
type Context struct {
	RA uintptr
	SP uintptr
	S  [12]uintptr
}

// Prime makes c start at entry on the stack whose top is sp the first time
// something switches to it.
func (c *Context) Prime(entry, sp uintptr) {
	*c = Context{RA: entry, SP: sp}
}

// Primed reports whether c has somewhere to go.
func (c *Context) Primed() bool {
	return c.RA != 0
}
