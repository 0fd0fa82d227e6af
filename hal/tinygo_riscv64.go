//go:build tinygo && riscv64

package hal

import (
	"device/riscv"
	"unsafe"
)

// #include <stdint.h>
import "C"

// QEMU virt layout.
const (
	physBase  uint64 = 0x8020_0000
	physEnd   uint64 = 0x8800_0000
	timerFreq uint64 = 12_500_000

	stackAreaSize = 32 * 2 * 8192
)

var stackArea [stackAreaSize + 16]byte

type tinyGoHAL struct {
	logger *sbiLogger
	cons   *sbiConsole
	t      *sbiTimer
	p      sbiPower
	mem    physMemory
	fb     Framebuffer
}

// New returns the QEMU virt HAL. Console and power go through the SBI
// firmware.
func New() HAL {
	return &tinyGoHAL{
		logger: &sbiLogger{},
		cons:   &sbiConsole{},
		t:      &sbiTimer{},
		fb:     &stubFramebuffer{w: 320, h: 240, format: PixelFormatRGB565},
	}
}

func (h *tinyGoHAL) Logger() Logger     { return h.logger }
func (h *tinyGoHAL) Console() Console   { return h.cons }
func (h *tinyGoHAL) Timer() Timer       { return h.t }
func (h *tinyGoHAL) Power() Power       { return h.p }
func (h *tinyGoHAL) Memory() Memory     { return h.mem }
func (h *tinyGoHAL) UserMode() UserMode { return nil }
func (h *tinyGoHAL) Display() Display   { return tinyGoDisplay{fb: h.fb} }

func (h *tinyGoHAL) StackArea() Region {
	base := (uint64(uintptr(unsafe.Pointer(&stackArea[0]))) + 15) &^ 15
	return Region{Base: base, Size: stackAreaSize}
}

type tinyGoDisplay struct {
	fb Framebuffer
}

func (d tinyGoDisplay) Framebuffer() Framebuffer { return d.fb }

type sbiConsole struct{}

func (c *sbiConsole) Write(p []byte) (int, error) {
	for _, b := range p {
		sbiPutchar(b)
	}
	return len(p), nil
}

type sbiLogger struct{}

func (l *sbiLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		sbiPutchar(s[i])
	}
	sbiPutchar('\n')
}

func (l *sbiLogger) WriteLineBytes(b []byte) {
	for _, c := range b {
		sbiPutchar(c)
	}
	sbiPutchar('\n')
}

type sbiTimer struct{}

func (t *sbiTimer) Now() uint64 {
	return uint64(riscv.AsmFull("rdtime {}", nil))
}

func (t *sbiTimer) Frequency() uint64 { return timerFreq }

func (t *sbiTimer) SetDeadline(ticks uint64) {
	sbiCall(sbiLegacySetTimer, 0, uintptr(ticks), 0, 0)
}

func (t *sbiTimer) EnableInterrupt(on bool) {
	if on {
		riscv.AsmFull("csrs sie, {mask}", map[string]interface{}{"mask": uintptr(sieSTIE)})
	} else {
		riscv.AsmFull("csrc sie, {mask}", map[string]interface{}{"mask": uintptr(sieSTIE)})
	}
}

const sieSTIE = 1 << 5

type sbiPower struct{}

func (sbiPower) Shutdown(failure bool) {
	reason := uintptr(srstReasonNone)
	if failure {
		reason = srstReasonFailure
	}
	sbiCall(sbiExtSRST, 0, srstTypeShutdown, reason, 0)
	// Firmware without SRST.
	sbiCall(sbiLegacyShutdown, 0, 0, 0, 0)
	for {
		riscv.Asm("wfi")
	}
}

type physMemory struct{}

func (physMemory) span(n int, addr uint64) ([]byte, error) {
	if addr < physBase || addr > physEnd || uint64(n) > physEnd-addr {
		return nil, ErrOutOfRange
	}
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n), nil
}

func (m physMemory) ReadAt(p []byte, addr uint64) (int, error) {
	b, err := m.span(len(p), addr)
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}

func (m physMemory) WriteAt(p []byte, addr uint64) (int, error) {
	b, err := m.span(len(p), addr)
	if err != nil {
		return 0, err
	}
	return copy(b, p), nil
}

func (physMemory) FenceI() {
	riscv.Asm("fence.i")
}
