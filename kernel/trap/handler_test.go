//go:build !tinygo

package trap

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"tickos/hal"
	"tickos/rv64"
)

type fakeSched struct {
	events []string
	calls  map[int]int
	onExit func()
}

func (s *fakeSched) RecordSyscall(id int) {
	if s.calls == nil {
		s.calls = make(map[int]int)
	}
	s.calls[id]++
}
func (s *fakeSched) SetNextTrigger()       { s.events = append(s.events, "trigger") }
func (s *fakeSched) SuspendAndReschedule() { s.events = append(s.events, "suspend") }
func (s *fakeSched) Current() int          { return 0 }
func (s *fakeSched) ExitAndReschedule() {
	s.events = append(s.events, "exit")
	if s.onExit != nil {
		s.onExit()
	}
}

type fakeSyscalls struct {
	last []uint64
}

func (f *fakeSyscalls) Supported(id uint64) bool { return id == 64 || id == 124 }
func (f *fakeSyscalls) Call(id uint64, args [3]uint64) int64 {
	f.last = append([]uint64{id}, args[:]...)
	if id == 124 {
		return -1
	}
	return 7
}

type lines struct {
	out []string
}

func (l *lines) WriteLineString(s string) { l.out = append(l.out, s) }
func (l *lines) WriteLineBytes(b []byte)  { l.out = append(l.out, string(b)) }

func newTestHandler() (*Handler, *fakeSched, *fakeSyscalls, *lines) {
	s := &fakeSched{}
	sys := &fakeSyscalls{}
	log := &lines{}
	h := NewHandler(Config{Logger: log, Scheduler: s, Syscalls: sys})
	return h, s, sys, log
}

func TestContextCodec(t *testing.T) {
	var cx Context
	for i := range cx.X {
		cx.X[i] = uint64(i) * 0x0101_0101_0101
	}
	cx.Sstatus, cx.Sepc, cx.KernelSP, cx.TrapHandler = 1, 2, 3, 4

	var buf [Size]byte
	cx.Encode(buf[:])
	if got := buf[33*8]; got != 2 {
		t.Fatalf("sepc byte = %d, want 2 at word 33", got)
	}

	var back Context
	back.Decode(buf[:])
	if back != cx {
		t.Fatalf("Decode(Encode()) = %+v, want %+v", back, cx)
	}
}

func TestAppInitContext(t *testing.T) {
	cx := AppInitContext(0x8040_0000, 0x8031_0000, 0x8030_2000)

	if cx.Sepc != 0x8040_0000 {
		t.Fatalf("Sepc = %#x, want entry", cx.Sepc)
	}
	if cx.X[rv64.SP] != 0x8031_0000 {
		t.Fatalf("sp = %#x, want user stack top", cx.X[rv64.SP])
	}
	if cx.Sstatus&rv64.SstatusSPP != 0 {
		t.Fatal("SPP set, want return to user mode")
	}
	if cx.Sstatus&rv64.SstatusSPIE == 0 {
		t.Fatal("SPIE clear, want interrupts enabled after sret")
	}
	if cx.KernelSP != 0x8030_2000 || cx.TrapHandler == 0 {
		t.Fatalf("KernelSP = %#x, TrapHandler = %#x", cx.KernelSP, cx.TrapHandler)
	}
	if got := FrameAddr(0x8030_2000); got != 0x8030_2000-Size {
		t.Fatalf("FrameAddr() = %#x", got)
	}
}

func TestHandleSyscall(t *testing.T) {
	h, s, sys, _ := newTestHandler()

	var cx Context
	cx.Sepc = 0x8040_0010
	cx.X[rv64.A7] = 64
	cx.X[rv64.A0], cx.X[rv64.A1], cx.X[rv64.A2] = 1, 0x8040_0100, 5

	h.Handle(&cx, rv64.CauseEcallFromU, 0)

	if cx.Sepc != 0x8040_0014 {
		t.Fatalf("Sepc = %#x, want advanced past ecall", cx.Sepc)
	}
	if cx.X[rv64.A0] != 7 {
		t.Fatalf("a0 = %d, want 7", cx.X[rv64.A0])
	}
	if fmt.Sprint(sys.last) != fmt.Sprint([]uint64{64, 1, 0x8040_0100, 5}) {
		t.Fatalf("Call() args = %v", sys.last)
	}
	if s.calls[64] != 1 || len(s.calls) != 1 {
		t.Fatalf("recorded = %v, want one write", s.calls)
	}

	cx.X[rv64.A7] = 124
	h.Handle(&cx, rv64.CauseEcallFromU, 0)
	if int64(cx.X[rv64.A0]) != -1 {
		t.Fatalf("a0 = %d, want -1", int64(cx.X[rv64.A0]))
	}
}

func TestHandleUnsupportedSyscallKills(t *testing.T) {
	h, s, _, log := newTestHandler()

	for _, id := range []uint64{999, MaxSyscallNum, 17} {
		s.events = nil
		var cx Context
		cx.X[rv64.A7] = id
		h.Handle(&cx, rv64.CauseEcallFromU, 0)
		if fmt.Sprint(s.events) != "[exit]" {
			t.Fatalf("id %d: events = %v, want [exit]", id, s.events)
		}
	}
	if len(s.calls) != 0 {
		t.Fatalf("recorded = %v, want nothing", s.calls)
	}
	if !strings.Contains(log.out[0], "Unsupported syscall_id: 999") {
		t.Fatalf("log = %q", log.out)
	}
}

func TestHandleTimer(t *testing.T) {
	h, s, _, _ := newTestHandler()

	var cx Context
	cx.Sepc = 0x8040_0008
	h.Handle(&cx, rv64.CauseSTimerInt, 0)

	if fmt.Sprint(s.events) != "[trigger suspend]" {
		t.Fatalf("events = %v, want [trigger suspend]", s.events)
	}
	if cx.Sepc != 0x8040_0008 {
		t.Fatalf("Sepc = %#x, want unchanged", cx.Sepc)
	}
}

func TestHandleFaultsKill(t *testing.T) {
	for _, cause := range []uint64{
		rv64.CauseStoreAccessFault, rv64.CauseStorePageFault,
		rv64.CauseLoadAccessFault, rv64.CauseLoadPageFault,
		rv64.CauseInsnAccessFault, rv64.CauseIllegalInsn, rv64.CauseBreakpoint,
		rv64.CauseLoadAddrMisaligned,
	} {
		h, s, _, log := newTestHandler()
		var cx Context
		h.Handle(&cx, cause, 0x10)
		if fmt.Sprint(s.events) != "[exit]" {
			t.Fatalf("%s: events = %v, want [exit]", CauseName(cause), s.events)
		}
		if len(log.out) != 1 || !strings.Contains(log.out[0], "kernel killed it") {
			t.Fatalf("%s: log = %q", CauseName(cause), log.out)
		}
	}
}

func TestHandleUnexpectedTrapPanics(t *testing.T) {
	h, _, _, _ := newTestHandler()
	defer func() {
		r := recover()
		if msg, _ := r.(string); !strings.Contains(msg, "SupervisorExternal") {
			t.Fatalf("panic = %v, want unsupported SupervisorExternal", r)
		}
	}()
	var cx Context
	h.Handle(&cx, rv64.CauseSExternalInt, 0)
}

func TestCauseName(t *testing.T) {
	tests := map[uint64]string{
		rv64.CauseEcallFromU:       "UserEnvCall",
		rv64.CauseSTimerInt:        "SupervisorTimer",
		rv64.CauseStoreAccessFault: "StoreFault",
		42:                         "Exception(42)",
		rv64.InterruptBit | 3:      "Interrupt(3)",
	}
	for cause, want := range tests {
		if got := CauseName(cause); got != want {
			t.Fatalf("CauseName(%#x) = %q, want %q", cause, got, want)
		}
	}
}

func TestRestoreRunsUserUntilExit(t *testing.T) {
	host := hal.NewHost(hal.HostConfig{Console: &bytes.Buffer{}, Log: &bytes.Buffer{}})
	mem := host.Memory()

	a := rv64.NewAssembler()
	a.LI(rv64.A0, 1)
	a.LI(rv64.A7, 124)
	a.ECALL()
	a.ADDI(rv64.A1, rv64.A0, 100)
	a.LI(rv64.A7, 93)
	a.ECALL()
	img, err := a.Assemble()
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	const entry = 0x8040_0000
	if _, err := mem.WriteAt(img, entry); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	h, s, _, _ := newTestHandler()
	h.mem = mem
	h.user = host.UserMode()

	frame := FrameAddr(hal.HostStackBase + 0x2000)
	cx := AppInitContext(entry, hal.HostStackBase+0x4000, hal.HostStackBase+0x2000)
	if err := Store(mem, frame, &cx); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	done := make(chan struct{})
	s.onExit = func() {
		close(done)
		runtime.Goexit()
	}
	go h.Restore(frame)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Restore() never reached exit")
	}

	if s.calls[124] != 1 {
		t.Fatalf("recorded = %v, want one yield", s.calls)
	}
	got, err := Load(mem, frame)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if int64(got.X[rv64.A1]) != 99 {
		t.Fatalf("a1 = %d, want yield result -1 + 100", int64(got.X[rv64.A1]))
	}
	// The frame is saved before dispatch, so it still points at the exit ecall.
	if want := uint64(entry + len(img) - 4); got.Sepc != want {
		t.Fatalf("saved sepc = %#x, want %#x", got.Sepc, want)
	}
}
