package task

import "fmt"

// MaxSyscallNum bounds the syscall ids counted per task.
const MaxSyscallNum = 500

// Stats are the scheduling counters of one task. Times are timer ticks.
type Stats struct {
	// CPUClocks is the time spent Running, summed over closed windows.
	CPUClocks uint64
	// SyscallTimes counts invocations per syscall id.
	SyscallTimes [MaxSyscallNum]uint32

	first     uint64
	last      uint64
	scheduled bool
}

// FirstScheduled returns when the task first ran.
func (s *Stats) FirstScheduled() (uint64, bool) { return s.first, s.scheduled }

// LastScheduled returns when the current or latest window opened.
func (s *Stats) LastScheduled() (uint64, bool) { return s.last, s.scheduled }

func (s *Stats) begin(now uint64) {
	if !s.scheduled {
		s.first = now
		s.scheduled = true
	}
	s.last = now
}

func (s *Stats) end(now uint64) {
	if !s.scheduled {
		return
	}
	s.CPUClocks += since(now, s.last)
}

func (s *Stats) recordSyscall(id int) {
	if id < 0 || id >= MaxSyscallNum {
		panic(fmt.Sprintf("task: syscall id %d out of range", id))
	}
	s.SyscallTimes[id]++
}

// RealTime returns the ticks elapsed since the task was first scheduled,
// or 0 if it never was.
func (s *Stats) RealTime(now uint64) uint64 {
	if !s.scheduled {
		return 0
	}
	return since(now, s.first)
}

func since(now, then uint64) uint64 {
	if now < then {
		panic(fmt.Sprintf("task: time goes backward (%d < %d)", now, then))
	}
	return now - then
}
