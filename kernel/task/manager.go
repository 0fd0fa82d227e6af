// Package task tracks the fixed set of task slots and decides which one
// runs next.
package task

import (
	"errors"
	"fmt"
	"sync"

	"tickos/kernel/arch"
)

// MaxTasks is the number of task slots.
const MaxTasks = 32

var ErrTooManyTasks = errors.New("task: too many tasks")

// Clock reads the platform timer.
type Clock interface {
	Now() uint64
}

// Config describes the task set.
type Config struct {
	NumApps int
	Clock   Clock
}

// TCB is a task control block.
type TCB struct {
	Status Status
	// Context is the saved kernel context. It is stale while the task runs.
	Context arch.Context
}

// Manager owns every task slot. All methods are safe for concurrent use;
// none of them switches contexts, so callers switch after they return.
type Manager struct {
	mu      sync.Mutex
	clock   Clock
	numApps int
	current int
	tcbs    [MaxTasks]TCB
	stats   [MaxTasks]Stats
}

// NewManager returns a manager with cfg.NumApps slots in UnInit.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Clock == nil {
		return nil, errors.New("task: nil clock")
	}
	if cfg.NumApps < 0 {
		return nil, fmt.Errorf("task: negative task count %d", cfg.NumApps)
	}
	if cfg.NumApps > MaxTasks {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTasks, cfg.NumApps, MaxTasks)
	}
	return &Manager{clock: cfg.Clock, numApps: cfg.NumApps}, nil
}

// NumApps returns the number of used slots.
func (m *Manager) NumApps() int { return m.numApps }

// Admit marks slot i Ready with its initial kernel context.
func (m *Manager) Admit(i int, cx arch.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= m.numApps {
		return fmt.Errorf("task: slot %d out of range [0, %d)", i, m.numApps)
	}
	if s := m.tcbs[i].Status; s != UnInit {
		return fmt.Errorf("task: slot %d already %s", i, s)
	}
	m.tcbs[i] = TCB{Status: Ready, Context: cx}
	return nil
}

// First makes task 0 current and Running and returns its context. It
// reports false when there is no task to run.
func (m *Manager) First() (*arch.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.numApps == 0 || m.tcbs[0].Status != Ready {
		return nil, false
	}
	_, next := m.moveToLocked(0)
	return next, true
}

// FindNext returns the first Ready slot after the current one, wrapping
// around. When no other slot is Ready but the current task is still
// Running, it returns the current task. It reports false when nothing can
// run.
func (m *Manager) FindNext() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findNextLocked()
}

func (m *Manager) findNextLocked() (int, bool) {
	if m.numApps == 0 {
		return 0, false
	}
	idx := (m.current + 1) % m.numApps
	for n := 0; n < m.numApps; n++ {
		if m.tcbs[idx].Status == Ready {
			return idx, true
		}
		idx = (idx + 1) % m.numApps
	}
	if m.tcbs[m.current].Status == Running {
		return m.current, true
	}
	return 0, false
}

// Next picks the next task and moves to it in one step. It returns the
// contexts to switch between, or false when no task can run.
func (m *Manager) Next() (cur, next *arch.Context, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.findNextLocked()
	if !ok {
		return nil, nil, false
	}
	cur, next = m.moveToLocked(idx)
	return cur, next, true
}

// MoveTo closes the current task's stats window, demotes it to Ready if it
// was Running, and makes next current and Running. It returns the contexts
// to switch between. It panics if next is not Ready.
func (m *Manager) MoveTo(next int) (cur, nextCx *arch.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveToLocked(next)
}

func (m *Manager) moveToLocked(next int) (*arch.Context, *arch.Context) {
	if next < 0 || next >= m.numApps {
		panic(fmt.Sprintf("task: switch to slot %d out of range [0, %d)", next, m.numApps))
	}
	now := m.clock.Now()

	cur := &m.tcbs[m.current]
	if cur.Status == Running {
		cur.Status = Ready
	}
	m.stats[m.current].end(now)

	n := &m.tcbs[next]
	if n.Status != Ready {
		panic(fmt.Sprintf("task: switch to task %d in status %s", next, n.Status))
	}
	n.Status = Running
	m.stats[next].begin(now)
	m.current = next

	return &cur.Context, &n.Context
}

// MarkCurrentExited retires the current task for good.
func (m *Manager) MarkCurrentExited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tcbs[m.current].Status = Exited
}

// RecordSyscall counts one invocation of syscall id by the current task.
// It panics if id is not below MaxSyscallNum.
func (m *Manager) RecordSyscall(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[m.current].recordSyscall(id)
}

// Current returns the index of the current task.
func (m *Manager) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentStatus returns the status of the current task.
func (m *Manager) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tcbs[m.current].Status
}

// CurrentStats returns a copy of the current task's stats.
func (m *Manager) CurrentStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats[m.current]
}

// Status returns the status of slot i. Unused slots are UnInit.
func (m *Manager) Status(i int) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= MaxTasks {
		return UnInit
	}
	return m.tcbs[i].Status
}

// Stats returns a copy of slot i's stats.
func (m *Manager) Stats(i int) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= MaxTasks {
		return Stats{}
	}
	return m.stats[i]
}

// Snapshot returns the status of every used slot.
func (m *Manager) Snapshot() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, m.numApps)
	for i := range out {
		out[i] = m.tcbs[i].Status
	}
	return out
}
