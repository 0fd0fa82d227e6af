package user

import (
	"fmt"

	"tickos/kernel/syscall"
	"tickos/rv64"
)

const (
	helloMsg      = "Hello, world!\n"
	illegalMsg    = "Try to execute privileged instruction in U Mode\nKernel should kill this application!\n"
	storeFaultMsg = "Into Test store_fault, we will insert an invalid store operation...\nKernel should kill this application!\n"
	powerMsg      = "power done\n"
	sleepMsg      = "Test sleep OK!\n"
	taskInfoMsg   = "task_info\n"
)

// Hello prints a greeting and exits with 0.
var Hello = Program{Name: "hello", build: func(a *rv64.Assembler) {
	write(a, "msg", len(helloMsg))
	exit(a, 0)
	a.Label("msg")
	a.String(helloMsg)
}}

// Illegal runs sret in user mode.
var Illegal = Program{Name: "illegal", build: func(a *rv64.Assembler) {
	write(a, "msg", len(illegalMsg))
	a.Word(rv64.InsnSret)
	exit(a, 0)
	a.Label("msg")
	a.String(illegalMsg)
}}

// StoreFault stores to address 0.
var StoreFault = Program{Name: "store_fault", build: func(a *rv64.Assembler) {
	write(a, "msg", len(storeFaultMsg))
	a.SD(rv64.Zero, rv64.Zero, 0)
	exit(a, 0)
	a.Label("msg")
	a.String(storeFaultMsg)
}}

// TaskInfo checks its own task_info record: Running, one write and one
// task_info so far. It exits with 0 on success and a positive code naming
// the failed check otherwise.
var TaskInfo = Program{Name: "task_info", build: func(a *rv64.Assembler) {
	write(a, "msg", len(taskInfoMsg))

	a.ADDI(rv64.SP, rv64.SP, -syscall.TaskInfoSize)
	a.MV(rv64.A0, rv64.SP)
	a.LI(rv64.A7, syscall.SysTaskInfo)
	a.ECALL()
	a.LI(rv64.S0, 1)
	a.BNEZ(rv64.A0, "fail")

	checks := []struct {
		off  int64
		want int64
	}{
		{0, 2}, // Running
		{4 + syscall.SysWrite*4, 1},
		{4 + syscall.SysTaskInfo*4, 1},
	}
	for i, c := range checks {
		a.LI(rv64.S0, int64(i+2))
		a.LWU(rv64.T0, rv64.SP, c.off)
		a.LI(rv64.T1, c.want)
		a.BNE(rv64.T0, rv64.T1, "fail")
	}
	exit(a, 0)

	a.Label("fail")
	a.MV(rv64.A0, rv64.S0)
	exitA0(a)

	a.Label("msg")
	a.String(taskInfoMsg)
}}

// Power computes 3^n mod 10007 without yielding and exits with the result.
func Power(n int64) Program {
	return Program{Name: "power", build: func(a *rv64.Assembler) {
		a.LI(rv64.S0, 1)
		a.LI(rv64.S1, 3)
		a.LI(rv64.S2, 10007)
		a.LI(rv64.S3, n)
		a.BEQZ(rv64.S3, "done")
		a.Label("loop")
		a.MUL(rv64.S0, rv64.S0, rv64.S1)
		a.REMU(rv64.S0, rv64.S0, rv64.S2)
		a.ADDI(rv64.S3, rv64.S3, -1)
		a.BNEZ(rv64.S3, "loop")
		a.Label("done")
		write(a, "msg", len(powerMsg))
		a.MV(rv64.A0, rv64.S0)
		exitA0(a)
		a.Label("msg")
		a.String(powerMsg)
	}}
}

// PowerResult is the exit code of Power(n).
func PowerResult(n int64) int64 {
	p := int64(1)
	for i := int64(0); i < n; i++ {
		p = p * 3 % 10007
	}
	return p
}

// Sleep yields until ms milliseconds have passed according to get_time.
func Sleep(ms int64) Program {
	return Program{Name: "sleep", build: func(a *rv64.Assembler) {
		getTimeUS(a, rv64.S0)
		a.LI(rv64.S1, ms*1000)
		a.Label("loop")
		yield(a)
		getTimeUS(a, rv64.T3)
		a.SUB(rv64.T3, rv64.T3, rv64.S0)
		a.BLTU(rv64.T3, rv64.S1, "loop")
		write(a, "msg", len(sleepMsg))
		exit(a, 0)
		a.Label("msg")
		a.String(sleepMsg)
	}}
}

// Yielder prints "<tag><round>\n" and yields, rounds times. rounds must be
// at most 10.
func Yielder(tag byte, rounds int) Program {
	return Program{Name: fmt.Sprintf("yield_%c", tag), build: func(a *rv64.Assembler) {
		a.LI(rv64.S0, 0)
		a.LI(rv64.S1, int64(rounds))
		a.Label("loop")
		a.LA(rv64.T0, "buf")
		a.ADDI(rv64.T1, rv64.S0, '0')
		a.SB(rv64.T1, rv64.T0, 1)
		write(a, "buf", 3)
		yield(a)
		a.ADDI(rv64.S0, rv64.S0, 1)
		a.BLT(rv64.S0, rv64.S1, "loop")
		exit(a, 0)
		a.Label("buf")
		a.Bytes([]byte{tag, '0', '\n'})
	}}
}

// Spinner prints "<tag>>\n", busy-loops n times without a system call,
// prints "<tag><\n" and exits.
func Spinner(tag byte, n int64) Program {
	return Program{Name: fmt.Sprintf("spin_%c", tag), build: func(a *rv64.Assembler) {
		write(a, "start", 3)
		a.LI(rv64.S0, n)
		a.Label("loop")
		a.ADDI(rv64.S0, rv64.S0, -1)
		a.BNEZ(rv64.S0, "loop")
		write(a, "end", 3)
		exit(a, 0)
		a.Label("start")
		a.Bytes([]byte{tag, '>', '\n'})
		a.Label("end")
		a.Bytes([]byte{tag, '<', '\n'})
	}}
}

// Exit exits with code straight away.
func Exit(code int64) Program {
	return Program{Name: fmt.Sprintf("exit_%d", code), build: func(a *rv64.Assembler) {
		exit(a, code)
	}}
}

// BadSyscall invokes an unimplemented system call id.
func BadSyscall(id int64) Program {
	return Program{Name: fmt.Sprintf("syscall_%d", id), build: func(a *rv64.Assembler) {
		a.LI(rv64.A7, id)
		a.ECALL()
		exit(a, 0)
	}}
}
