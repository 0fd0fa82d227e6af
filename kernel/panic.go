package kernel

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// PanicInfo contains details about a kernel panic.
type PanicInfo struct {
	TaskID int
	Value  any
	Stack  []byte
}

var panicHandler atomic.Value // func(PanicInfo)

// SetPanicHandler installs a process-wide panic handler.
//
// The handler runs at most once per kernel, before the machine powers off
// with a failure status. It must not panic.
func SetPanicHandler(fn func(PanicInfo)) {
	panicHandler.Store(fn)
}

func (k *Kernel) recoverPanic() {
	r := recover()
	if r == nil {
		return
	}
	k.triggerPanic(PanicInfo{TaskID: k.tasks.Current(), Value: r})
}

func (k *Kernel) triggerPanic(info PanicInfo) {
	k.panicOnce.Do(func() {
		info.Stack = captureStack()
		k.logf("panic: task=%d panic=%v", info.TaskID, info.Value)
		if k.log != nil {
			for _, line := range strings.Split(string(info.Stack), "\n") {
				if line != "" {
					k.log.WriteLineString(line)
				}
			}
		}
		if v := panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
	k.hw.Power().Shutdown(true)
	panic(fmt.Sprintf("kernel: power off returned after panic: %v", info.Value))
}
