// Package syscall implements the system calls available to applications.
package syscall

import (
	"encoding/binary"
	"fmt"

	"tickos/hal"
	"tickos/kernel/task"
)

// System call ids.
const (
	SysWrite    = 64
	SysExit     = 93
	SysYield    = 124
	SysGetTime  = 169
	SysTaskInfo = 410
)

// FdStdout is the only writable file descriptor.
const FdStdout = 1

const (
	// TimeValSize is the size of {sec u64, usec u64}.
	TimeValSize = 16
	// TaskInfoSize is the size of {status u32, syscall_times [500]u32, time u64}
	// with the time field 8-byte aligned.
	TaskInfoSize = 2016

	taskInfoTimeOff = 2008

	// maxWrite caps one write at the size of an application slot.
	maxWrite = 0x2_0000
)

// Kernel is what the system calls need from the scheduler.
type Kernel interface {
	ExitAndReschedule()
	SuspendAndReschedule()
	CurrentStatus() task.Status
	CurrentStats() task.Stats
}

// Config wires a Table.
type Config struct {
	Console hal.Console
	Memory  hal.Memory
	Timer   hal.Timer
	Logger  hal.Logger
	Kernel  Kernel
}

// Table dispatches system calls by id.
type Table struct {
	cons hal.Console
	mem  hal.Memory
	tm   hal.Timer
	log  hal.Logger
	k    Kernel
}

func New(cfg Config) *Table {
	return &Table{
		cons: cfg.Console,
		mem:  cfg.Memory,
		tm:   cfg.Timer,
		log:  cfg.Logger,
		k:    cfg.Kernel,
	}
}

// Supported reports whether id names an implemented system call.
func (t *Table) Supported(id uint64) bool {
	switch id {
	case SysWrite, SysExit, SysYield, SysGetTime, SysTaskInfo:
		return true
	}
	return false
}

// Call runs system call id. Errors are returned to the caller as -1.
func (t *Table) Call(id uint64, args [3]uint64) int64 {
	switch id {
	case SysWrite:
		return t.write(args[0], args[1], args[2])
	case SysExit:
		t.exit(int32(args[0]))
	case SysYield:
		t.k.SuspendAndReschedule()
		return 0
	case SysGetTime:
		return t.getTime(args[0])
	case SysTaskInfo:
		return t.taskInfo(args[0])
	}
	return -1
}

func (t *Table) write(fd, buf, n uint64) int64 {
	if fd != FdStdout {
		return -1
	}
	if n > maxWrite {
		return -1
	}
	b := make([]byte, n)
	if _, err := t.mem.ReadAt(b, buf); err != nil {
		return -1
	}
	if _, err := t.cons.Write(b); err != nil {
		return -1
	}
	return int64(n)
}

func (t *Table) exit(code int32) {
	if t.log != nil {
		t.log.WriteLineString(fmt.Sprintf("[kernel] Application exited with code %d", code))
	}
	t.k.ExitAndReschedule()
	panic("syscall: exited task resumed")
}

func (t *Table) getTime(ts uint64) int64 {
	now, freq := t.tm.Now(), t.tm.Frequency()

	var b [TimeValSize]byte
	binary.LittleEndian.PutUint64(b[0:], now/freq)
	binary.LittleEndian.PutUint64(b[8:], (now%freq)*1_000_000/freq)
	if _, err := t.mem.WriteAt(b[:], ts); err != nil {
		return -1
	}
	return 0
}

func (t *Table) taskInfo(ti uint64) int64 {
	st := t.k.CurrentStats()
	freq := t.tm.Frequency()
	elapsed := st.RealTime(t.tm.Now())

	var b [TaskInfoSize]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(t.k.CurrentStatus()))
	for i, n := range st.SyscallTimes {
		binary.LittleEndian.PutUint32(b[4+i*4:], n)
	}
	ms := elapsed/freq*1000 + (elapsed%freq)*1000/freq
	binary.LittleEndian.PutUint64(b[taskInfoTimeOff:], ms)

	if _, err := t.mem.WriteAt(b[:], ti); err != nil {
		return -1
	}
	return 0
}
