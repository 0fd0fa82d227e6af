//go:build !tinygo

package arch

import (
	"fmt"
	"runtime"
	"sync"
)

// hostEntryPC stands in for the trampoline address on the host, where a
// kernel context is a goroutine rather than a register file.
const hostEntryPC uintptr = 0x8020_0004

// EntryPC returns the address fresh contexts are primed with.
func EntryPC() uintptr { return hostEntryPC }

type thread struct {
	resume chan struct{}
}

// Switcher hands the CPU between kernel contexts. On the host every context
// that has ever run owns a goroutine, and all but one of them are parked.
type Switcher struct {
	entry func()
	halt  <-chan struct{}

	mu      sync.Mutex
	threads map[*Context]*thread
}

// NewSwitcher returns a switcher whose fresh contexts run entry. Parked
// contexts exit once halt is closed.
func NewSwitcher(entry func(), halt <-chan struct{}) *Switcher {
	return &Switcher{
		entry:   entry,
		halt:    halt,
		threads: make(map[*Context]*thread),
	}
}

// Switch parks the caller as cur and runs next. It returns when some
// context switches back to cur.
func (s *Switcher) Switch(cur, next *Context) {
	if cur == next {
		return
	}

	s.mu.Lock()
	me := s.threadLocked(cur)
	nt, started := s.threads[next]
	if !started {
		if next.RA != hostEntryPC {
			s.mu.Unlock()
			panic(fmt.Sprintf("arch: switch to unprimed context %p", next))
		}
		nt = &thread{resume: make(chan struct{}, 1)}
		s.threads[next] = nt
	}
	s.mu.Unlock()

	if started {
		nt.resume <- struct{}{}
	} else {
		go s.run()
	}

	select {
	case <-me.resume:
	case <-s.halt:
		runtime.Goexit()
	}
}

func (s *Switcher) threadLocked(cx *Context) *thread {
	t, ok := s.threads[cx]
	if !ok {
		t = &thread{resume: make(chan struct{}, 1)}
		s.threads[cx] = t
	}
	return t
}

func (s *Switcher) run() {
	s.entry()
	panic("arch: context entry returned")
}
