//go:build !tinygo

package hal

import (
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"tickos/rv64"
)

// Physical layout of the host machine. It mirrors QEMU virt with an SBI
// firmware below the kernel.
const (
	HostKernelBase uint64 = 0x8020_0000
	HostStackBase  uint64 = 0x8030_0000
	HostStackSize  uint64 = 0x0010_0000

	// DefaultFrequency is the QEMU virt timebase.
	DefaultFrequency uint64 = 12_500_000
)

// HostConfig tunes the host machine.
type HostConfig struct {
	// Frequency is the timer rate in ticks per second. One tick is one
	// emulated cycle.
	Frequency uint64
	// Console receives user output. Defaults to stdout.
	Console io.Writer
	// Log receives kernel log lines. Defaults to stderr.
	Log io.Writer
	// LogLevel filters kernel log lines.
	LogLevel logrus.Level
	// Width and Height size the console framebuffer.
	Width, Height int
}

// Host is the development-machine platform: an emulated RV64 hart with RAM
// plus SBI-style timer and power control.
type Host struct {
	cfg    HostConfig
	ram    *rv64.RAM
	hart   *rv64.Hart
	logger *hostLogger
	fb     *hostFramebuffer
	timer  *hostTimer
	power  *hostPower
	user   *hostUserMode
	cons   *hostConsole
}

// New returns a host HAL implementation.
func New() HAL {
	return NewHost(HostConfig{})
}

// NewHost returns a host machine.
func NewHost(cfg HostConfig) *Host {
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultFrequency
	}
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = os.Stderr
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logrus.InfoLevel
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 480, 320
	}

	ram := rv64.NewRAM(rv64.RAMBase, rv64.RAMSize)
	hart := rv64.NewHart(ram)
	hart.Stvec = HostKernelBase

	return &Host{
		cfg:    cfg,
		ram:    ram,
		hart:   hart,
		logger: newHostLogger(cfg.Log, cfg.LogLevel),
		fb:     newHostFramebuffer(cfg.Width, cfg.Height),
		timer:  &hostTimer{hart: hart, freq: cfg.Frequency},
		power:  &hostPower{off: make(chan struct{})},
		user:   &hostUserMode{hart: hart},
		cons:   &hostConsole{w: cfg.Console},
	}
}

func (h *Host) Logger() Logger   { return h.logger }
func (h *Host) Console() Console { return h.cons }
func (h *Host) Timer() Timer     { return h.timer }
func (h *Host) Power() Power     { return h.power }
func (h *Host) Memory() Memory   { return h.ram }
func (h *Host) UserMode() UserMode {
	return h.user
}
func (h *Host) Display() Display { return hostDisplay{fb: h.fb} }

func (h *Host) StackArea() Region {
	return Region{Base: HostStackBase, Size: HostStackSize}
}

// Hart exposes the emulated CPU.
func (h *Host) Hart() *rv64.Hart { return h.hart }

// Halted is closed once the machine powers off.
func (h *Host) Halted() <-chan struct{} { return h.power.off }

// Failed reports whether the machine powered off with a failure status.
func (h *Host) Failed() bool {
	h.power.mu.Lock()
	defer h.power.mu.Unlock()
	return h.power.failure
}

// AttachConsole tees user output into w as well.
func (h *Host) AttachConsole(w io.Writer) {
	h.cons.mu.Lock()
	defer h.cons.mu.Unlock()
	h.cons.tee = append(h.cons.tee, w)
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostConsole struct {
	mu  sync.Mutex
	w   io.Writer
	tee []io.Writer
}

func (c *hostConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.tee {
		_, _ = w.Write(p)
	}
	return c.w.Write(p)
}

type hostTimer struct {
	hart *rv64.Hart
	freq uint64
}

func (t *hostTimer) Now() uint64              { return t.hart.Time }
func (t *hostTimer) Frequency() uint64        { return t.freq }
func (t *hostTimer) SetDeadline(ticks uint64) { t.hart.SetTimer(ticks) }

func (t *hostTimer) EnableInterrupt(on bool) {
	if on {
		t.hart.Sie |= rv64.SieSTIE
	} else {
		t.hart.Sie &^= rv64.SieSTIE
	}
}

type hostPower struct {
	mu      sync.Mutex
	once    sync.Once
	off     chan struct{}
	failure bool
}

// Shutdown ends the calling kernel context. Parked contexts observe the
// closed channel and exit as well.
func (p *hostPower) Shutdown(failure bool) {
	p.once.Do(func() {
		p.mu.Lock()
		p.failure = failure
		p.mu.Unlock()
		close(p.off)
	})
	runtime.Goexit()
}

type hostUserMode struct {
	hart *rv64.Hart
}

func (u *hostUserMode) Vector() uint64 { return u.hart.Stvec }

func (u *hostUserMode) Enter(regs *[32]uint64, sstatus, sepc *uint64) (scause, stval uint64) {
	h := u.hart
	h.X = *regs
	h.X[0] = 0
	h.Sstatus = *sstatus
	h.Sepc = *sepc
	h.Sret()

	scause, stval = h.RunUser()

	*regs = h.X
	*sstatus = h.Sstatus
	*sepc = h.Sepc
	return scause, stval
}

type hostLogger struct {
	log *logrus.Logger
}

func newHostLogger(w io.Writer, level logrus.Level) *hostLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableQuote:     true,
	})
	return &hostLogger{log: l}
}

func (l *hostLogger) WriteLineString(s string) {
	l.log.Info(s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.log.Info(string(b))
}
