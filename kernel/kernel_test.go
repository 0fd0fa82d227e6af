//go:build !tinygo

package kernel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tickos/hal"
	"tickos/kernel/loader"
	"tickos/kernel/task"
	"tickos/kernel/trap"
	"tickos/user"
)

type run struct {
	console string
	log     string
	err     error
	k       *Kernel
}

func boot(t *testing.T, freq uint64, setup func(*Kernel), progs ...user.Program) run {
	t.Helper()

	imgs, err := user.Images(progs...)
	if err != nil {
		t.Fatalf("Images() error = %v", err)
	}
	blob, err := loader.Pack(imgs)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return bootBlob(t, freq, setup, blob)
}

func bootBlob(t *testing.T, freq uint64, setup func(*Kernel), blob []byte) run {
	t.Helper()

	var cons, log bytes.Buffer
	var r run
	r.err = hal.RunHeadless(context.Background(), func(h *hal.Host) {
		k, err := New(h, blob, Config{})
		if err != nil {
			t.Errorf("New() error = %v", err)
			h.Power().Shutdown(true)
		}
		r.k = k
		if setup != nil {
			setup(k)
		}
		k.RunFirstTask()
	}, hal.HeadlessConfig{
		Host:    hal.HostConfig{Frequency: freq, Console: &cons, Log: &log},
		Timeout: time.Minute,
	})
	r.console = cons.String()
	r.log = log.String()
	return r
}

func assertAllExited(t *testing.T, r run) {
	t.Helper()
	for i, s := range r.k.Tasks().Snapshot() {
		if s != task.Exited {
			t.Fatalf("task %d status = %v, want %v", i, s, task.Exited)
		}
	}
}

func TestBatchRunsToCompletion(t *testing.T) {
	const n = 20_000
	r := boot(t, hal.DefaultFrequency, nil,
		user.Hello, user.Power(n), user.StoreFault, user.Illegal, user.TaskInfo)
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v\nlog:\n%s", r.err, r.log)
	}

	for _, want := range []string{
		"Hello, world!\n",
		"power done\n",
		"Into Test store_fault",
		"Try to execute privileged instruction",
		"task_info\n",
	} {
		if !strings.Contains(r.console, want) {
			t.Fatalf("console = %q, missing %q", r.console, want)
		}
	}
	for _, want := range []string{
		"num_app = 5",
		"app_0 loaded at 0x80400000",
		"app_4 loaded at 0x80480000",
		fmt.Sprintf("Application exited with code %d", user.PowerResult(n)),
		"StoreFault in application, bad addr = 0x0",
		"IllegalInstruction in application, kernel killed it.",
		"All apps have completed.",
	} {
		if !strings.Contains(r.log, want) {
			t.Fatalf("log missing %q:\n%s", want, r.log)
		}
	}
	if got := strings.Count(r.log, "Application exited with code 0"); got != 2 {
		t.Fatalf("clean exits = %d, want 2 (hello, task_info):\n%s", got, r.log)
	}
	assertAllExited(t, r)
}

func TestYieldIsRoundRobin(t *testing.T) {
	r := boot(t, hal.DefaultFrequency, nil,
		user.Yielder('A', 3), user.Yielder('B', 3), user.Yielder('C', 3))
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}

	want := "A0\nB0\nC0\nA1\nB1\nC1\nA2\nB2\nC2\n"
	if r.console != want {
		t.Fatalf("console = %q, want %q", r.console, want)
	}
	for i := 0; i < 3; i++ {
		st := r.k.Tasks().Stats(i)
		if st.SyscallTimes[124] != 3 || st.SyscallTimes[64] != 3 || st.SyscallTimes[93] != 1 {
			t.Fatalf("task %d counts: write=%d yield=%d exit=%d", i,
				st.SyscallTimes[64], st.SyscallTimes[124], st.SyscallTimes[93])
		}
	}
}

func TestExitedTaskIsSkipped(t *testing.T) {
	r := boot(t, hal.DefaultFrequency, nil,
		user.Yielder('A', 3), user.Exit(7), user.Yielder('C', 3))
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}

	want := "A0\nC0\nA1\nC1\nA2\nC2\n"
	if r.console != want {
		t.Fatalf("console = %q, want %q", r.console, want)
	}
	if !strings.Contains(r.log, "Application exited with code 7") {
		t.Fatalf("log missing exit 7:\n%s", r.log)
	}
}

func TestTimerPreemptsSpinners(t *testing.T) {
	// 10k ticks per quantum against 100k-tick loops.
	r := boot(t, 1_000_000, nil, user.Spinner('A', 50_000), user.Spinner('B', 50_000))
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}

	bStart, aEnd := strings.Index(r.console, "B>"), strings.Index(r.console, "A<")
	if bStart < 0 || aEnd < 0 || strings.Index(r.console, "B<") < 0 {
		t.Fatalf("console = %q, want both spinners to finish", r.console)
	}
	if bStart > aEnd {
		t.Fatalf("console = %q, B never ran before A finished", r.console)
	}
	for i := 0; i < 2; i++ {
		st := r.k.Tasks().Stats(i)
		// The last window of the last task to finish is never closed.
		if st.CPUClocks < 80_000 {
			t.Fatalf("task %d CPUClocks = %d, want most of the loop", i, st.CPUClocks)
		}
	}
	assertAllExited(t, r)
}

func TestLoneTaskKeepsRunningAcrossTicks(t *testing.T) {
	r := boot(t, 1_000_000, nil, user.Spinner('A', 30_000))
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}
	if r.console != "A>\nA<\n" {
		t.Fatalf("console = %q", r.console)
	}
}

func TestSleepWaitsForVirtualTime(t *testing.T) {
	r := boot(t, 1_000_000, nil, user.Sleep(50), user.Hello)
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}

	hello, slept := strings.Index(r.console, "Hello, world!"), strings.Index(r.console, "Test sleep OK!")
	if hello < 0 || slept < 0 || slept < hello {
		t.Fatalf("console = %q, want hello before the sleeper wakes", r.console)
	}
	if st := r.k.Tasks().Stats(0); st.SyscallTimes[124] == 0 {
		t.Fatal("sleeper never yielded")
	}
}

func TestUnsupportedSyscallKillsTask(t *testing.T) {
	r := boot(t, hal.DefaultFrequency, nil, user.BadSyscall(999), user.BadSyscall(17), user.Hello)
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}
	for _, want := range []string{"Unsupported syscall_id: 999", "Unsupported syscall_id: 17"} {
		if !strings.Contains(r.log, want) {
			t.Fatalf("log missing %q:\n%s", want, r.log)
		}
	}
	if r.console != "Hello, world!\n" {
		t.Fatalf("console = %q", r.console)
	}
}

func TestNoAppsPowersOff(t *testing.T) {
	blob, err := loader.Pack(nil)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	r := bootBlob(t, hal.DefaultFrequency, nil, blob)
	if r.err != nil {
		t.Fatalf("RunHeadless() error = %v", r.err)
	}
	if !strings.Contains(r.log, "All apps have completed.") {
		t.Fatalf("log = %s", r.log)
	}
}

func TestNewRejectsBadTables(t *testing.T) {
	tooMany := make([]byte, 8+34*8)
	binary.LittleEndian.PutUint64(tooMany, task.MaxTasks+1)

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{"empty", nil, loader.ErrShortBlob},
		{"too many", tooMany, loader.ErrTooManyApps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hal.NewHost(hal.HostConfig{Log: &bytes.Buffer{}})
			if _, err := New(h, tt.blob, Config{}); !errors.Is(err, tt.want) {
				t.Fatalf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRejectsFastQuanta(t *testing.T) {
	blob, _ := loader.Pack(nil)
	h := hal.NewHost(hal.HostConfig{Frequency: 50, Log: &bytes.Buffer{}})
	if _, err := New(h, blob, Config{QuantaPerSec: 100}); err == nil {
		t.Fatal("New() error = nil, want quantum too short")
	}
}

type panicSyscalls struct{}

func (panicSyscalls) Supported(uint64) bool        { return true }
func (panicSyscalls) Call(uint64, [3]uint64) int64 { panic("boom") }

func TestPanicRunsHandlerAndFails(t *testing.T) {
	var got []PanicInfo
	SetPanicHandler(func(info PanicInfo) { got = append(got, info) })
	t.Cleanup(func() { SetPanicHandler(func(PanicInfo) {}) })

	r := boot(t, hal.DefaultFrequency, func(k *Kernel) {
		k.traps = trap.NewHandler(trap.Config{
			Logger:    k.log,
			Memory:    k.hw.Memory(),
			UserMode:  k.hw.UserMode(),
			Scheduler: k,
			Syscalls:  panicSyscalls{},
		})
	}, user.Hello)

	if !errors.Is(r.err, hal.ErrFailure) {
		t.Fatalf("RunHeadless() error = %v, want %v", r.err, hal.ErrFailure)
	}
	if len(got) != 1 || got[0].TaskID != 0 || got[0].Value != "boom" {
		t.Fatalf("panic handler calls = %+v", got)
	}
	if len(got[0].Stack) == 0 {
		t.Fatal("PanicInfo.Stack is empty")
	}
	if !strings.Contains(r.log, "panic: task=0 panic=boom") {
		t.Fatalf("log = %s", r.log)
	}
}
