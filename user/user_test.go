package user

import (
	"testing"

	"tickos/kernel/loader"
	"tickos/kernel/syscall"
	"tickos/rv64"
)

func TestProgramsAssemble(t *testing.T) {
	progs := append(Batch(), Yielder('A', 3), Spinner('B', 10), Exit(3), BadSyscall(999))
	imgs, err := Images(progs...)
	if err != nil {
		t.Fatalf("Images() error = %v", err)
	}
	for i, img := range imgs {
		if len(img) == 0 || uint64(len(img)) > loader.SlotSize {
			t.Fatalf("%s: image size %d", progs[i].Name, len(img))
		}
	}
}

func TestLookup(t *testing.T) {
	if p, ok := Lookup("hello"); !ok || p.Name != "hello" {
		t.Fatalf("Lookup(hello) = %q, %v", p.Name, ok)
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("Lookup(nope) ok = true")
	}
}

func TestHelloIssuesWrite(t *testing.T) {
	img, err := Hello.Assemble()
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	const entry = 0x8040_0000
	ram := rv64.NewRAM(rv64.RAMBase, rv64.RAMSize)
	if _, err := ram.WriteAt(img, entry); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	h := rv64.NewHart(ram)
	h.Sepc = entry
	h.Sret()

	if scause, _ := h.RunUser(); scause != rv64.CauseEcallFromU {
		t.Fatalf("scause = %d, want ecall", scause)
	}
	if h.X[rv64.A7] != syscall.SysWrite || h.X[rv64.A0] != syscall.FdStdout {
		t.Fatalf("a7 = %d, a0 = %d; want write to stdout", h.X[rv64.A7], h.X[rv64.A0])
	}
	n := h.X[rv64.A2]
	buf := make([]byte, n)
	if _, err := ram.ReadAt(buf, h.X[rv64.A1]); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(buf) != helloMsg {
		t.Fatalf("message = %q, want %q", buf, helloMsg)
	}
}

func TestPowerResult(t *testing.T) {
	if got := PowerResult(0); got != 1 {
		t.Fatalf("PowerResult(0) = %d, want 1", got)
	}
	if got := PowerResult(3); got != 27 {
		t.Fatalf("PowerResult(3) = %d, want 27", got)
	}
}

func TestPack(t *testing.T) {
	blob, err := Pack(Hello, Exit(1))
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	tab, err := loader.Parse(blob)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tab.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tab.Len())
	}
	want, _ := Exit(1).Assemble()
	if got := tab.Image(1); string(got) != string(want) {
		t.Fatalf("Image(1) differs from Exit(1)")
	}
}
