//go:build !tinygo

package hal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrFailure reports a machine that powered off with a failure status.
var ErrFailure = errors.New("machine powered off with failure status")

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Host HostConfig
	// Timeout bounds the wall-clock run time. Zero means no limit.
	Timeout time.Duration
}

// RunHeadless boots the machine without opening a window and blocks until
// it powers off.
func RunHeadless(ctx context.Context, boot func(*Host), cfg HeadlessConfig) error {
	h := NewHost(cfg.Host)
	return runHost(ctx, h, boot, cfg.Timeout)
}

func runHost(ctx context.Context, h *Host, boot func(*Host), timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	returned := make(chan struct{})
	go func() {
		boot(h)
		close(returned)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("machine still running: %w", ctx.Err())
	case <-returned:
		return errors.New("boot returned without powering off")
	case <-h.Halted():
	}
	if h.Failed() {
		return ErrFailure
	}
	return nil
}
