// Package app wires a platform to the kernel and boots the application set.
package app

import (
	"fmt"
	"io"

	"tickos/hal"
	"tickos/internal/buildinfo"
	"tickos/kernel"
)

// Config selects boot options.
type Config struct {
	Kernel kernel.Config
	// Console mirrors user output onto the display.
	Console bool
}

// Boot loads blob and runs it to completion. It does not return: the
// machine powers off once every application has exited, or with a failure
// status when the kernel cannot start.
func Boot(h hal.HAL, blob []byte, cfg Config) {
	installPanicHandler(h)

	if l := h.Logger(); l != nil {
		l.WriteLineString("[kernel] tickos " + buildinfo.Short())
	}

	if cfg.Console {
		if a, ok := h.(interface{ AttachConsole(io.Writer) }); ok {
			if c := NewConsole(h.Display()); c != nil {
				a.AttachConsole(c)
			}
		}
	}

	k, err := kernel.New(h, blob, cfg.Kernel)
	if err != nil {
		if l := h.Logger(); l != nil {
			l.WriteLineString(fmt.Sprintf("[kernel] boot failed: %v", err))
		}
		h.Power().Shutdown(true)
		return
	}
	k.RunFirstTask()
}
