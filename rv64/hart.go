package rv64

import "fmt"

// Hart is one RV64IM hardware thread.
//
// Only user mode is interpreted. A trap moves the hart to supervisor mode and
// stops RunUser; the caller plays the part of the supervisor trap vector and
// later returns to user mode with Sret.
type Hart struct {
	// Integer registers x0-x31
	X [32]uint64

	// Program counter
	PC uint64

	// Current privilege level
	Priv uint8

	// Supervisor trap CSRs
	Sstatus  uint64
	Sie      uint64
	Sip      uint64
	Stvec    uint64
	Sscratch uint64
	Sepc     uint64
	Scause   uint64
	Stval    uint64

	// Time is the platform timer. It advances by one per cycle.
	Time uint64
	// Timecmp raises a supervisor timer interrupt once Time reaches it.
	Timecmp uint64

	Cycle   uint64
	Instret uint64

	ram *RAM
}

// NewHart returns a hart in supervisor mode with the timer disarmed.
func NewHart(ram *RAM) *Hart {
	return &Hart{
		Priv:    PrivSupervisor,
		Timecmp: ^uint64(0),
		ram:     ram,
	}
}

// RAM returns the memory the hart executes from.
func (h *Hart) RAM() *RAM { return h.ram }

// ReadReg reads an integer register (x0 always returns 0)
func (h *Hart) ReadReg(reg uint32) uint64 {
	if reg == 0 {
		return 0
	}
	return h.X[reg]
}

// WriteReg writes an integer register (writes to x0 are ignored)
func (h *Hart) WriteReg(reg uint32, val uint64) {
	if reg != 0 {
		h.X[reg] = val
	}
}

// SetTimer arms the timer and clears a pending timer interrupt.
func (h *Hart) SetTimer(deadline uint64) {
	h.Timecmp = deadline
	h.Sip &^= SieSTIE
}

// Sret returns from supervisor mode to the privilege level saved in sstatus.SPP.
func (h *Hart) Sret() {
	if h.Sstatus&SstatusSPP != 0 {
		h.Priv = PrivSupervisor
	} else {
		h.Priv = PrivUser
	}
	if h.Sstatus&SstatusSPIE != 0 {
		h.Sstatus |= SstatusSIE
	} else {
		h.Sstatus &^= SstatusSIE
	}
	h.Sstatus |= SstatusSPIE
	h.Sstatus &^= SstatusSPP
	h.PC = h.Sepc
}

// RunUser executes user-mode instructions until the hart traps and returns
// the trap's scause and stval.
func (h *Hart) RunUser() (scause, stval uint64) {
	if h.Priv != PrivUser {
		panic(fmt.Sprintf("rv64: RunUser in privilege %d", h.Priv))
	}
	for h.Priv == PrivUser {
		h.Step()
	}
	return h.Scause, h.Stval
}

// Step executes one instruction or takes one trap.
func (h *Hart) Step() {
	h.Cycle++
	h.Time++

	if h.Time >= h.Timecmp {
		h.Sip |= SieSTIE
	}
	if h.interruptEnabled(SieSTIE) {
		h.raise(CauseSTimerInt, 0)
		return
	}

	if h.PC&3 != 0 {
		h.raise(CauseInsnAddrMisaligned, h.PC)
		return
	}
	v, ok := h.ram.load(h.PC, 4)
	if !ok {
		h.raise(CauseInsnAccessFault, h.PC)
		return
	}
	if err := h.exec(uint32(v)); err != nil {
		h.raise(err.Cause, err.Tval)
		return
	}
	h.Instret++
}

// Supervisor interrupts are always enabled while the hart is in user mode.
func (h *Hart) interruptEnabled(bit uint64) bool {
	if h.Sip&h.Sie&bit == 0 {
		return false
	}
	return h.Priv == PrivUser || h.Sstatus&SstatusSIE != 0
}

func (h *Hart) raise(cause, tval uint64) {
	h.Sepc = h.PC
	h.Scause = cause
	h.Stval = tval

	if h.Priv == PrivSupervisor {
		h.Sstatus |= SstatusSPP
	} else {
		h.Sstatus &^= SstatusSPP
	}
	if h.Sstatus&SstatusSIE != 0 {
		h.Sstatus |= SstatusSPIE
	} else {
		h.Sstatus &^= SstatusSPIE
	}
	h.Sstatus &^= SstatusSIE

	h.Priv = PrivSupervisor
	h.PC = h.Stvec
}

// ExceptionError represents a CPU exception
type ExceptionError struct {
	Cause uint64
	Tval  uint64
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("exception: cause=%d tval=%#x", e.Cause, e.Tval)
}

func exception(cause, tval uint64) *ExceptionError {
	return &ExceptionError{Cause: cause, Tval: tval}
}
