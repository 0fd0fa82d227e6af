// Package kernel boots the application set and time-slices it.
package kernel

import (
	"errors"
	"fmt"
	"sync"

	"tickos/hal"
	"tickos/kernel/arch"
	"tickos/kernel/loader"
	"tickos/kernel/stack"
	"tickos/kernel/syscall"
	"tickos/kernel/task"
	"tickos/kernel/trap"
)

// DefaultQuantaPerSec is the default timer interrupt rate.
const DefaultQuantaPerSec = 100

// Config tunes the kernel.
type Config struct {
	// QuantaPerSec is how many time slices fit in one second.
	QuantaPerSec uint64
	// Trace logs every trap.
	Trace bool
}

// Kernel is the scheduler instance. It is built once per boot and handed to
// the trap handler and the system calls.
type Kernel struct {
	hw    hal.HAL
	log   hal.Logger
	timer hal.Timer
	cfg   Config

	tasks   *task.Manager
	stacks  *stack.Layout
	sw      *arch.Switcher
	traps   *trap.Handler
	entries [task.MaxTasks]uint64

	panicOnce sync.Once
}

// New loads every image of blob into its slot and readies the tasks. The
// timer interrupt is off while it runs and on when it returns.
func New(hw hal.HAL, blob []byte, cfg Config) (*Kernel, error) {
	if hw == nil {
		return nil, errors.New("kernel: nil hal")
	}
	if cfg.QuantaPerSec == 0 {
		cfg.QuantaPerSec = DefaultQuantaPerSec
	}

	k := &Kernel{
		hw:    hw,
		log:   hw.Logger(),
		timer: hw.Timer(),
		cfg:   cfg,
	}
	if k.timer.Frequency() < cfg.QuantaPerSec {
		return nil, fmt.Errorf("kernel: timer at %d Hz cannot give %d quanta per second", k.timer.Frequency(), cfg.QuantaPerSec)
	}
	k.timer.EnableInterrupt(false)

	tab, err := loader.Parse(blob)
	if err != nil {
		return nil, fmt.Errorf("kernel: app table: %w", err)
	}
	k.logf("num_app = %d", tab.Len())

	k.tasks, err = task.NewManager(task.Config{NumApps: tab.Len(), Clock: k.timer})
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	k.stacks, err = stack.NewLayout(hw.StackArea(), tab.Len())
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	var halt <-chan struct{}
	if h, ok := hw.(interface{ Halted() <-chan struct{} }); ok {
		halt = h.Halted()
	}
	k.sw = arch.NewSwitcher(k.startTask, halt)

	ld := loader.New(hw.Memory())
	for i := 0; i < tab.Len(); i++ {
		img := tab.Image(i)
		entry, err := ld.Load(i, img)
		if err != nil {
			return nil, fmt.Errorf("kernel: %w", err)
		}
		k.entries[i] = entry
		k.logf("app_%d loaded at %#x, %d bytes", i, entry, len(img))

		var cx arch.Context
		cx.Prime(arch.EntryPC(), uintptr(trap.FrameAddr(k.stacks.KernelTop(i))))
		if err := k.tasks.Admit(i, cx); err != nil {
			return nil, fmt.Errorf("kernel: %w", err)
		}
	}

	k.traps = trap.NewHandler(trap.Config{
		Logger:    k.log,
		Memory:    hw.Memory(),
		UserMode:  hw.UserMode(),
		Scheduler: k,
		Syscalls: syscall.New(syscall.Config{
			Console: hw.Console(),
			Memory:  hw.Memory(),
			Timer:   k.timer,
			Logger:  k.log,
			Kernel:  k,
		}),
		Trace: cfg.Trace,
	})
	trap.Install(k.traps)

	k.timer.EnableInterrupt(true)
	return k, nil
}

func (k *Kernel) logf(format string, args ...any) {
	if k.log == nil {
		return
	}
	k.log.WriteLineString(fmt.Sprintf("[kernel] "+format, args...))
}

// Tasks exposes the task manager for inspection.
func (k *Kernel) Tasks() *task.Manager { return k.tasks }

// RunFirstTask switches from the boot context into task 0. It never
// returns; with no task to run it powers off.
func (k *Kernel) RunFirstTask() {
	defer k.recoverPanic()

	next, ok := k.tasks.First()
	if !ok {
		k.finish()
	}
	k.SetNextTrigger()

	var unused arch.Context
	k.sw.Switch(&unused, next)
	panic("kernel: boot context resumed")
}

// startTask is where every task's kernel context begins: it builds the
// initial trap frame on the kernel stack and drops to user mode.
func (k *Kernel) startTask() {
	defer k.recoverPanic()

	i := k.tasks.Current()
	frame := trap.FrameAddr(k.stacks.KernelTop(i))
	cx := trap.AppInitContext(k.entries[i], k.stacks.UserTop(i), k.stacks.KernelTop(i))
	if err := trap.Store(k.hw.Memory(), frame, &cx); err != nil {
		panic(fmt.Sprintf("kernel: task %d: %v", i, err))
	}
	k.traps.Restore(frame)
}

// SetNextTrigger arms the timer one quantum from now.
func (k *Kernel) SetNextTrigger() {
	k.timer.SetDeadline(k.timer.Now() + k.timer.Frequency()/k.cfg.QuantaPerSec)
}

// SuspendAndReschedule gives the CPU to the next task. It returns when the
// current task runs again, which is immediately when it is the only one.
func (k *Kernel) SuspendAndReschedule() {
	k.runNext()
}

// ExitAndReschedule retires the current task and runs the next one. It
// never returns.
func (k *Kernel) ExitAndReschedule() {
	k.tasks.MarkCurrentExited()
	k.runNext()
	panic("kernel: exited task resumed")
}

func (k *Kernel) runNext() {
	cur, next, ok := k.tasks.Next()
	if !ok {
		k.finish()
	}
	k.SetNextTrigger()
	k.sw.Switch(cur, next)
}

func (k *Kernel) finish() {
	k.logf("All apps have completed.")
	k.hw.Power().Shutdown(false)
}

// RecordSyscall counts syscall id for the current task.
func (k *Kernel) RecordSyscall(id int) { k.tasks.RecordSyscall(id) }

// Current returns the index of the current task.
func (k *Kernel) Current() int { return k.tasks.Current() }

// CurrentStatus returns the current task's status.
func (k *Kernel) CurrentStatus() task.Status { return k.tasks.CurrentStatus() }

// CurrentStats returns a copy of the current task's stats.
func (k *Kernel) CurrentStats() task.Stats { return k.tasks.CurrentStats() }
