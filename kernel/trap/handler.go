package trap

import (
	"fmt"

	"tickos/hal"
	"tickos/rv64"
)

// Scheduler is the part of the kernel a trap can hand control to.
type Scheduler interface {
	// RecordSyscall counts a syscall for the current task.
	RecordSyscall(id int)
	// SetNextTrigger arms the timer one quantum from now.
	SetNextTrigger()
	// SuspendAndReschedule runs the next task. It returns when the current
	// task is scheduled again.
	SuspendAndReschedule()
	// ExitAndReschedule retires the current task and runs the next one. It
	// does not return.
	ExitAndReschedule()
	Current() int
}

// Syscalls executes system calls.
type Syscalls interface {
	Supported(id uint64) bool
	Call(id uint64, args [3]uint64) int64
}

// MaxSyscallNum bounds the ids the scheduler can count.
const MaxSyscallNum = 500

// Config wires a Handler.
type Config struct {
	Logger    hal.Logger
	Memory    hal.Memory
	UserMode  hal.UserMode
	Scheduler Scheduler
	Syscalls  Syscalls
	// Trace logs every trap.
	Trace bool
}

// Handler is the single dispatch point for traps from user mode.
type Handler struct {
	log   hal.Logger
	mem   hal.Memory
	user  hal.UserMode
	sched Scheduler
	sys   Syscalls
	trace bool
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		log:   cfg.Logger,
		mem:   cfg.Memory,
		user:  cfg.UserMode,
		sched: cfg.Scheduler,
		sys:   cfg.Syscalls,
		trace: cfg.Trace,
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.log == nil {
		return
	}
	h.log.WriteLineString(fmt.Sprintf("[kernel] "+format, args...))
}

// Handle dispatches one trap taken by the current task. cx is that task's
// frame; Handle may switch to other tasks before it returns.
func (h *Handler) Handle(cx *Context, scause, stval uint64) {
	if h.trace {
		h.logf("trap: task=%d cause=%s sepc=%#x stval=%#x", h.sched.Current(), CauseName(scause), cx.Sepc, stval)
	}

	switch scause {
	case rv64.CauseEcallFromU:
		cx.Sepc += 4
		h.syscall(cx)

	case rv64.CauseSTimerInt:
		h.sched.SetNextTrigger()
		h.sched.SuspendAndReschedule()

	case rv64.CauseStoreAccessFault, rv64.CauseStorePageFault,
		rv64.CauseLoadAccessFault, rv64.CauseLoadPageFault,
		rv64.CauseInsnAccessFault, rv64.CauseInsnPageFault,
		rv64.CauseLoadAddrMisaligned, rv64.CauseStoreAddrMisaligned,
		rv64.CauseInsnAddrMisaligned:
		h.logf("%s in application, bad addr = %#x, bad instruction = %#x, kernel killed it.", CauseName(scause), stval, cx.Sepc)
		h.sched.ExitAndReschedule()

	case rv64.CauseIllegalInsn, rv64.CauseBreakpoint:
		h.logf("%s in application, kernel killed it.", CauseName(scause))
		h.sched.ExitAndReschedule()

	default:
		panic(fmt.Sprintf("trap: unsupported trap %s, stval = %#x", CauseName(scause), stval))
	}
}

func (h *Handler) syscall(cx *Context) {
	id := cx.X[rv64.A7]
	if id >= MaxSyscallNum || !h.sys.Supported(id) {
		h.logf("Unsupported syscall_id: %d, kernel killed it.", id)
		h.sched.ExitAndReschedule()
		return
	}
	h.sched.RecordSyscall(int(id))
	ret := h.sys.Call(id, [3]uint64{cx.X[rv64.A0], cx.X[rv64.A1], cx.X[rv64.A2]})
	cx.X[rv64.A0] = uint64(ret)
}
