//go:build !tinygo

package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tickos/hal"
	"tickos/kernel"
	"tickos/user"
)

func headless(console, log *bytes.Buffer) hal.HeadlessConfig {
	return hal.HeadlessConfig{
		Host: hal.HostConfig{
			Console: console,
			Log:     log,
			Width:   160,
			Height:  96,
		},
		Timeout: 30 * time.Second,
	}
}

func litPixels(buf []byte) int {
	n := 0
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] != 0 || buf[i+1] != 0 {
			n++
		}
	}
	return n
}

func TestBootRunsBatch(t *testing.T) {
	packed, err := user.Pack(user.Hello, user.Exit(3))
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	var console, log bytes.Buffer
	var host *hal.Host
	err = hal.RunHeadless(context.Background(), func(h *hal.Host) {
		host = h
		Boot(h, packed, Config{Console: true})
	}, headless(&console, &log))
	if err != nil {
		t.Fatalf("RunHeadless() error = %v\nlog:\n%s", err, log.String())
	}

	if got := console.String(); got != "Hello, world!\n" {
		t.Fatalf("console = %q, want hello", got)
	}
	for _, want := range []string{"tickos", "Application exited with code 3", "All apps have completed."} {
		if !strings.Contains(log.String(), want) {
			t.Fatalf("log missing %q:\n%s", want, log.String())
		}
	}
	if litPixels(host.Display().Framebuffer().Buffer()) == 0 {
		t.Fatal("console did not draw on the framebuffer")
	}
}

func TestBootFailsOnBadBlob(t *testing.T) {
	var console, log bytes.Buffer
	err := hal.RunHeadless(context.Background(), func(h *hal.Host) {
		Boot(h, []byte{1, 2, 3}, Config{})
	}, headless(&console, &log))
	if !errors.Is(err, hal.ErrFailure) {
		t.Fatalf("RunHeadless() error = %v, want %v", err, hal.ErrFailure)
	}
	if !strings.Contains(log.String(), "boot failed") {
		t.Fatalf("log missing boot failure:\n%s", log.String())
	}
}

func TestConsoleDraws(t *testing.T) {
	h := hal.NewHost(hal.HostConfig{Width: 64, Height: 32})
	c := NewConsole(h.Display())
	if c == nil {
		t.Fatal("NewConsole() = nil")
	}
	fb := h.Display().Framebuffer()
	if n := litPixels(fb.Buffer()); n != 0 {
		t.Fatalf("lit pixels after reset = %d, want 0", n)
	}

	// Enough lines to force a scroll.
	for i := 0; i < 8; i++ {
		if _, err := c.Write([]byte("ok\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if _, err := c.Write([]byte("#")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if litPixels(fb.Buffer()) == 0 {
		t.Fatal("no pixels drawn")
	}
}

func TestDrawPanic(t *testing.T) {
	h := hal.NewHost(hal.HostConfig{Width: 80, Height: 40})
	fb := h.Display().Framebuffer()
	drawPanic(fb, kernel.PanicInfo{
		TaskID: 2,
		Value:  "boom",
		Stack:  []byte(strings.Repeat("frame\n", 50)),
	})

	buf := fb.Buffer()
	white, dark := 0, 0
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0xff && buf[i+1] == 0xff {
			white++
		} else {
			dark++
		}
	}
	if white == 0 || dark == 0 {
		t.Fatalf("white = %d, dark = %d, want both", white, dark)
	}
}

func TestTakeRunes(t *testing.T) {
	cases := []struct {
		in         string
		n          int16
		want, rest string
	}{
		{"hello", 3, "hel", "lo"},
		{"hi", 5, "hi", ""},
		{"привет", 2, "пр", "ивет"},
		{"x", 0, "", "x"},
	}
	for _, tc := range cases {
		got, rest := takeRunes(tc.in, tc.n)
		if got != tc.want || rest != tc.rest {
			t.Fatalf("takeRunes(%q, %d) = %q, %q, want %q, %q", tc.in, tc.n, got, rest, tc.want, tc.rest)
		}
	}
}
