// Package user holds the built-in application programs. They are
// assembled at run time into position-independent RV64IM images.
package user

import (
	"fmt"

	"tickos/kernel/loader"
	"tickos/kernel/syscall"
	"tickos/rv64"
)

// Program is a named application.
type Program struct {
	Name  string
	build func(a *rv64.Assembler)
}

// Assemble returns the program image.
func (p Program) Assemble() ([]byte, error) {
	a := rv64.NewAssembler()
	p.build(a)
	img, err := a.Assemble()
	if err != nil {
		return nil, fmt.Errorf("user: assemble %s: %w", p.Name, err)
	}
	return img, nil
}

// Images assembles progs in order.
func Images(progs ...Program) ([][]byte, error) {
	out := make([][]byte, 0, len(progs))
	for _, p := range progs {
		img, err := p.Assemble()
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

// Pack assembles progs into an app table blob.
func Pack(progs ...Program) ([]byte, error) {
	imgs, err := Images(progs...)
	if err != nil {
		return nil, err
	}
	return loader.Pack(imgs)
}

// Batch is the default application set.
func Batch() []Program {
	return []Program{
		Hello,
		Power(200_000),
		StoreFault,
		Illegal,
		Sleep(100),
		TaskInfo,
	}
}

// Lookup returns the built-in program called name.
func Lookup(name string) (Program, bool) {
	for _, p := range Batch() {
		if p.Name == name {
			return p, true
		}
	}
	return Program{}, false
}

func write(a *rv64.Assembler, label string, n int) {
	a.LI(rv64.A0, syscall.FdStdout)
	a.LA(rv64.A1, label)
	a.LI(rv64.A2, int64(n))
	a.LI(rv64.A7, syscall.SysWrite)
	a.ECALL()
}

func exit(a *rv64.Assembler, code int64) {
	a.LI(rv64.A0, code)
	exitA0(a)
}

func exitA0(a *rv64.Assembler) {
	a.LI(rv64.A7, syscall.SysExit)
	a.ECALL()
}

func yield(a *rv64.Assembler) {
	a.LI(rv64.A7, syscall.SysYield)
	a.ECALL()
}

// getTimeUS leaves the current time in microseconds in rd. It uses 16
// bytes below sp.
func getTimeUS(a *rv64.Assembler, rd rv64.Reg) {
	a.ADDI(rv64.SP, rv64.SP, -16)
	a.MV(rv64.A0, rv64.SP)
	a.LI(rv64.A1, 0)
	a.LI(rv64.A7, syscall.SysGetTime)
	a.ECALL()
	a.LD(rv64.T0, rv64.SP, 0)
	a.LD(rv64.T1, rv64.SP, 8)
	a.LI(rv64.T2, 1_000_000)
	a.MUL(rv64.T0, rv64.T0, rv64.T2)
	a.ADD(rd, rv64.T0, rv64.T1)
	a.ADDI(rv64.SP, rv64.SP, 16)
}
