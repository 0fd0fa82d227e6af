package rv64

import (
	"testing"
)

const testEntry = RAMBase + 0x1000

func newTestHart(t *testing.T, build func(a *Assembler)) *Hart {
	t.Helper()

	a := NewAssembler()
	build(a)
	img, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	ram := NewRAM(RAMBase, 1<<20)
	if _, err := ram.WriteAt(img, testEntry); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	h := NewHart(ram)
	h.Stvec = RAMBase
	h.Sepc = testEntry
	h.Sret()
	return h
}

func TestRunUserEcall(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.LI(A0, 40)
		a.ADDI(A0, A0, 2)
		a.LI(A7, 93)
		a.ECALL()
	})

	scause, _ := h.RunUser()
	if scause != CauseEcallFromU {
		t.Fatalf("scause = %d, want %d", scause, CauseEcallFromU)
	}
	if got := h.X[A0]; got != 42 {
		t.Fatalf("a0 = %d, want 42", got)
	}
	if got := h.X[A7]; got != 93 {
		t.Fatalf("a7 = %d, want 93", got)
	}
	if h.Priv != PrivSupervisor {
		t.Fatalf("Priv = %d, want supervisor", h.Priv)
	}
	if h.Sepc != testEntry+12 {
		t.Fatalf("sepc = %#x, want %#x", h.Sepc, testEntry+12)
	}
	if h.PC != h.Stvec {
		t.Fatalf("pc = %#x, want stvec %#x", h.PC, h.Stvec)
	}
	if h.Sstatus&SstatusSPP != 0 {
		t.Fatalf("sstatus.SPP set after trap from user mode")
	}
}

func TestLoopAndBranches(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.LI(T0, 0)
		a.LI(T1, 10)
		a.LI(A0, 0)
		a.Label("loop")
		a.ADD(A0, A0, T0)
		a.ADDI(T0, T0, 1)
		a.BLT(T0, T1, "loop")
		a.ECALL()
	})

	h.RunUser()
	if got := h.X[A0]; got != 45 {
		t.Fatalf("sum = %d, want 45", got)
	}
}

func TestLoadImmediate(t *testing.T) {
	values := []int64{
		0, 1, -1, 2047, -2048, 2048, 0x7fff_ffff, -0x8000_0000,
		0x1234_5678_9abc_def0, -0x1234_5678_9abc_def0, 0x8000_0000, 0x1_0000_0000,
	}
	for _, v := range values {
		h := newTestHart(t, func(a *Assembler) {
			a.LI(A0, v)
			a.ECALL()
		})
		h.RunUser()
		if got := int64(h.X[A0]); got != v {
			t.Fatalf("LI(%#x) = %#x", v, got)
		}
	}
}

func TestLoadStoreAndLA(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.LA(T0, "data")
		a.LD(A0, T0, 0)
		a.LI(T1, -5)
		a.SW(T1, T0, 8)
		a.LW(A1, T0, 8)
		a.LWU(A2, T0, 8)
		a.LBU(A3, T0, 0)
		a.ECALL()
		a.Align(8)
		a.Label("data")
		a.Bytes([]byte{0xef, 0xbe, 0xad, 0xde, 0, 0, 0, 0})
		a.Space(8)
	})

	h.RunUser()
	if got := h.X[A0]; got != 0xdeadbeef {
		t.Fatalf("ld = %#x, want 0xdeadbeef", got)
	}
	if got := int64(h.X[A1]); got != -5 {
		t.Fatalf("lw = %d, want -5", got)
	}
	if got := h.X[A2]; got != 0xffff_fffb {
		t.Fatalf("lwu = %#x, want 0xfffffffb", got)
	}
	if got := h.X[A3]; got != 0xef {
		t.Fatalf("lbu = %#x, want 0xef", got)
	}
}

func TestMulDiv(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.LI(T0, -7)
		a.LI(T1, 2)
		a.MUL(A0, T0, T1)
		a.DIV(A1, T0, T1)
		a.REM(A2, T0, T1)
		a.DIVU(A3, T1, Zero)
		a.REM(A4, T0, Zero)
		a.ECALL()
	})

	h.RunUser()
	if got := int64(h.X[A0]); got != -14 {
		t.Fatalf("mul = %d, want -14", got)
	}
	if got := int64(h.X[A1]); got != -3 {
		t.Fatalf("div = %d, want -3", got)
	}
	if got := int64(h.X[A2]); got != -1 {
		t.Fatalf("rem = %d, want -1", got)
	}
	if got := h.X[A3]; got != ^uint64(0) {
		t.Fatalf("divu by zero = %#x, want all ones", got)
	}
	if got := int64(h.X[A4]); got != -7 {
		t.Fatalf("rem by zero = %d, want -7", got)
	}
}

func TestIllegalInstructionTraps(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.NOP()
		a.Word(InsnSret)
	})

	scause, stval := h.RunUser()
	if scause != CauseIllegalInsn {
		t.Fatalf("scause = %d, want %d", scause, CauseIllegalInsn)
	}
	if stval != uint64(InsnSret) {
		t.Fatalf("stval = %#x, want %#x", stval, InsnSret)
	}
	if h.Sepc != testEntry+4 {
		t.Fatalf("sepc = %#x, want %#x", h.Sepc, testEntry+4)
	}
}

func TestSupervisorCSRTraps(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.CSRR(A0, CSRSstatus)
	})

	if scause, _ := h.RunUser(); scause != CauseIllegalInsn {
		t.Fatalf("scause = %d, want %d", scause, CauseIllegalInsn)
	}
}

func TestReadTimeCSR(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.NOP()
		a.CSRR(A0, CSRTime)
		a.ECALL()
	})
	h.Time = 100

	h.RunUser()
	if got := h.X[A0]; got != 102 {
		t.Fatalf("rdtime = %d, want 102", got)
	}
}

func TestStoreFaultTraps(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.SD(Zero, Zero, 0)
	})

	scause, stval := h.RunUser()
	if scause != CauseStoreAccessFault {
		t.Fatalf("scause = %d, want %d", scause, CauseStoreAccessFault)
	}
	if stval != 0 {
		t.Fatalf("stval = %#x, want 0", stval)
	}
}

func TestTimerInterruptPreemptsUser(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.Label("spin")
		a.J("spin")
	})
	h.Sie = SieSTIE
	h.SetTimer(h.Time + 50)

	scause, _ := h.RunUser()
	if scause != CauseSTimerInt {
		t.Fatalf("scause = %#x, want %#x", scause, CauseSTimerInt)
	}
	if h.Time < 50 {
		t.Fatalf("time = %d, want >= 50", h.Time)
	}
	if h.Sepc != testEntry {
		t.Fatalf("sepc = %#x, want %#x", h.Sepc, testEntry)
	}

	h.SetTimer(^uint64(0))
	if h.Sip&SieSTIE != 0 {
		t.Fatalf("SetTimer did not clear the pending timer interrupt")
	}
}

func TestTimerMaskedWithoutSTIE(t *testing.T) {
	h := newTestHart(t, func(a *Assembler) {
		a.LI(T0, 200)
		a.Label("loop")
		a.ADDI(T0, T0, -1)
		a.BNEZ(T0, "loop")
		a.ECALL()
	})
	h.SetTimer(10)

	if scause, _ := h.RunUser(); scause != CauseEcallFromU {
		t.Fatalf("scause = %#x, want ecall", scause)
	}
}

func TestAssembleUndefinedLabel(t *testing.T) {
	a := NewAssembler()
	a.J("nowhere")
	if _, err := a.Assemble(); err == nil {
		t.Fatal("Assemble() error = nil, want undefined label")
	}
}
