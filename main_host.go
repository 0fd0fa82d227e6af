//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"tickos/app"
	"tickos/hal"
	"tickos/kernel"
	"tickos/user"
)

func main() {
	var cfg hal.HeadlessConfig
	var appsPath, progs, logLevel string
	var window, trace bool
	var quanta uint64
	flag.StringVar(&appsPath, "apps", "", "App table blob to run (default: built-in batch).")
	flag.StringVar(&progs, "run", "", "Comma-separated built-in programs to run instead of the batch.")
	flag.Uint64Var(&cfg.Host.Frequency, "freq", hal.DefaultFrequency, "Timer frequency in ticks per second.")
	flag.Uint64Var(&quanta, "quanta", kernel.DefaultQuantaPerSec, "Time slices per second.")
	flag.BoolVar(&window, "window", false, "Show the console framebuffer in a window.")
	flag.StringVar(&logLevel, "log-level", "info", "Kernel log level.")
	flag.DurationVar(&cfg.Timeout, "timeout", 0, "Give up after this much wall-clock time (0 = no limit).")
	flag.BoolVar(&trace, "trace", false, "Log every trap.")
	flag.Parse()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
	cfg.Host.LogLevel = level

	blob, err := loadApps(appsPath, progs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	boot := func(h *hal.Host) {
		app.Boot(h, blob, app.Config{
			Kernel:  kernel.Config{QuantaPerSec: quanta, Trace: trace},
			Console: window,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if window {
		err = hal.RunWindow(ctx, boot, cfg)
	} else {
		err = hal.RunHeadless(ctx, boot, cfg)
	}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		os.Exit(130)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadApps(path, names string) ([]byte, error) {
	if path != "" && names != "" {
		return nil, errors.New("-apps and -run are mutually exclusive")
	}
	if path != "" {
		return os.ReadFile(path)
	}
	if names == "" {
		return user.Pack(user.Batch()...)
	}

	var progs []user.Program
	for _, name := range strings.Split(names, ",") {
		p, ok := user.Lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown program %q", name)
		}
		progs = append(progs, p)
	}
	return user.Pack(progs...)
}
