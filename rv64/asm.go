package rv64

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

// Reg is an integer register number.
type Reg uint32

// ABI register names
const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

// EncodeR encodes a register-register instruction.
func EncodeR(opcode uint32, rd Reg, funct3 uint32, rs1, rs2 Reg, funct7 uint32) uint32 {
	return funct7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeI encodes an immediate instruction (12-bit signed immediate).
func EncodeI(opcode uint32, rd Reg, funct3 uint32, rs1 Reg, imm int64) uint32 {
	return uint32(imm&0xfff)<<20 | uint32(rs1)<<15 | funct3<<12 | uint32(rd)<<7 | opcode
}

// EncodeS encodes a store.
func EncodeS(opcode uint32, funct3 uint32, rs1, rs2 Reg, imm int64) uint32 {
	v := uint32(imm & 0xfff)
	return (v>>5)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | funct3<<12 | (v&0x1f)<<7 | opcode
}

// EncodeB encodes a conditional branch with a byte offset.
func EncodeB(funct3 uint32, rs1, rs2 Reg, off int64) uint32 {
	v := uint32(off)
	return (v>>12&1)<<31 | (v>>5&0x3f)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 |
		funct3<<12 | (v>>1&0xf)<<8 | (v>>11&1)<<7 | opBranch
}

// EncodeU encodes LUI/AUIPC; imm20 is the upper immediate.
func EncodeU(opcode uint32, rd Reg, imm20 int64) uint32 {
	return uint32(imm20&0xfffff)<<12 | uint32(rd)<<7 | opcode
}

// EncodeJ encodes JAL with a byte offset.
func EncodeJ(rd Reg, off int64) uint32 {
	v := uint32(off)
	return (v>>20&1)<<31 | (v>>1&0x3ff)<<21 | (v>>11&1)<<20 | (v>>12&0xff)<<12 | uint32(rd)<<7 | opJal
}

type fixKind uint8

const (
	fixBranch fixKind = iota + 1
	fixJal
	fixPCRel // auipc + addi pair
)

type fixup struct {
	at    int
	label string
	kind  fixKind
}

// Assembler builds a position-independent RV64IM program image.
//
// Labels may be referenced before they are defined; references are resolved
// by Assemble. Every instruction is four bytes, so offsets are known as soon
// as an instruction is emitted.
type Assembler struct {
	buf    []byte
	labels map[string]int
	fixups []fixup
	err    error
}

// NewAssembler returns an empty program.
func NewAssembler() *Assembler {
	return &Assembler{labels: make(map[string]int)}
}

// PC returns the offset of the next emitted byte.
func (a *Assembler) PC() int { return len(a.buf) }

func (a *Assembler) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

// Word emits a raw instruction word.
func (a *Assembler) Word(insn uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, insn)
}

// Label defines name at the current offset.
func (a *Assembler) Label(name string) {
	if _, ok := a.labels[name]; ok {
		a.fail(fmt.Errorf("asm: label %q redefined", name))
		return
	}
	a.labels[name] = len(a.buf)
}

// Bytes emits raw data.
func (a *Assembler) Bytes(b []byte) { a.buf = append(a.buf, b...) }

// String emits s without a terminator.
func (a *Assembler) String(s string) { a.buf = append(a.buf, s...) }

// Space emits n zero bytes.
func (a *Assembler) Space(n int) { a.buf = append(a.buf, make([]byte, n)...) }

// Align pads with zeros to a multiple of n bytes.
func (a *Assembler) Align(n int) {
	for len(a.buf)%n != 0 {
		a.buf = append(a.buf, 0)
	}
}

func (a *Assembler) ref(label string, kind fixKind, words ...uint32) {
	a.fixups = append(a.fixups, fixup{at: len(a.buf), label: label, kind: kind})
	for _, w := range words {
		a.Word(w)
	}
}

// Upper immediates
func (a *Assembler) LUI(rd Reg, imm20 int64)   { a.Word(EncodeU(opLui, rd, imm20)) }
func (a *Assembler) AUIPC(rd Reg, imm20 int64) { a.Word(EncodeU(opAuipc, rd, imm20)) }

// Register-immediate arithmetic
func (a *Assembler) ADDI(rd, rs1 Reg, imm int64)  { a.Word(EncodeI(opImm, rd, 0, rs1, imm)) }
func (a *Assembler) SLTI(rd, rs1 Reg, imm int64)  { a.Word(EncodeI(opImm, rd, 2, rs1, imm)) }
func (a *Assembler) SLTIU(rd, rs1 Reg, imm int64) { a.Word(EncodeI(opImm, rd, 3, rs1, imm)) }
func (a *Assembler) XORI(rd, rs1 Reg, imm int64)  { a.Word(EncodeI(opImm, rd, 4, rs1, imm)) }
func (a *Assembler) ORI(rd, rs1 Reg, imm int64)   { a.Word(EncodeI(opImm, rd, 6, rs1, imm)) }
func (a *Assembler) ANDI(rd, rs1 Reg, imm int64)  { a.Word(EncodeI(opImm, rd, 7, rs1, imm)) }
func (a *Assembler) SLLI(rd, rs1 Reg, sh uint)    { a.Word(EncodeI(opImm, rd, 1, rs1, int64(sh&0x3f))) }
func (a *Assembler) SRLI(rd, rs1 Reg, sh uint)    { a.Word(EncodeI(opImm, rd, 5, rs1, int64(sh&0x3f))) }
func (a *Assembler) SRAI(rd, rs1 Reg, sh uint) {
	a.Word(EncodeI(opImm, rd, 5, rs1, int64(sh&0x3f)|0x400))
}
func (a *Assembler) ADDIW(rd, rs1 Reg, imm int64) { a.Word(EncodeI(opImm32, rd, 0, rs1, imm)) }

// Register-register arithmetic
func (a *Assembler) ADD(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 0, rs1, rs2, 0)) }
func (a *Assembler) SUB(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 0, rs1, rs2, 0x20)) }
func (a *Assembler) SLL(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 1, rs1, rs2, 0)) }
func (a *Assembler) SLT(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 2, rs1, rs2, 0)) }
func (a *Assembler) SLTU(rd, rs1, rs2 Reg) { a.Word(EncodeR(opOp, rd, 3, rs1, rs2, 0)) }
func (a *Assembler) XOR(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 4, rs1, rs2, 0)) }
func (a *Assembler) SRL(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 5, rs1, rs2, 0)) }
func (a *Assembler) SRA(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 5, rs1, rs2, 0x20)) }
func (a *Assembler) OR(rd, rs1, rs2 Reg)   { a.Word(EncodeR(opOp, rd, 6, rs1, rs2, 0)) }
func (a *Assembler) AND(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 7, rs1, rs2, 0)) }
func (a *Assembler) ADDW(rd, rs1, rs2 Reg) { a.Word(EncodeR(opOp32, rd, 0, rs1, rs2, 0)) }
func (a *Assembler) SUBW(rd, rs1, rs2 Reg) { a.Word(EncodeR(opOp32, rd, 0, rs1, rs2, 0x20)) }

// M extension
func (a *Assembler) MUL(rd, rs1, rs2 Reg)   { a.Word(EncodeR(opOp, rd, 0, rs1, rs2, 1)) }
func (a *Assembler) MULHU(rd, rs1, rs2 Reg) { a.Word(EncodeR(opOp, rd, 3, rs1, rs2, 1)) }
func (a *Assembler) DIV(rd, rs1, rs2 Reg)   { a.Word(EncodeR(opOp, rd, 4, rs1, rs2, 1)) }
func (a *Assembler) DIVU(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 5, rs1, rs2, 1)) }
func (a *Assembler) REM(rd, rs1, rs2 Reg)   { a.Word(EncodeR(opOp, rd, 6, rs1, rs2, 1)) }
func (a *Assembler) REMU(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp, rd, 7, rs1, rs2, 1)) }
func (a *Assembler) MULW(rd, rs1, rs2 Reg)  { a.Word(EncodeR(opOp32, rd, 0, rs1, rs2, 1)) }

// Loads and stores
func (a *Assembler) LB(rd, rs1 Reg, off int64)  { a.Word(EncodeI(opLoad, rd, 0, rs1, off)) }
func (a *Assembler) LW(rd, rs1 Reg, off int64)  { a.Word(EncodeI(opLoad, rd, 2, rs1, off)) }
func (a *Assembler) LD(rd, rs1 Reg, off int64)  { a.Word(EncodeI(opLoad, rd, 3, rs1, off)) }
func (a *Assembler) LBU(rd, rs1 Reg, off int64) { a.Word(EncodeI(opLoad, rd, 4, rs1, off)) }
func (a *Assembler) LWU(rd, rs1 Reg, off int64) { a.Word(EncodeI(opLoad, rd, 6, rs1, off)) }
func (a *Assembler) SB(rs2, rs1 Reg, off int64) { a.Word(EncodeS(opStore, 0, rs1, rs2, off)) }
func (a *Assembler) SW(rs2, rs1 Reg, off int64) { a.Word(EncodeS(opStore, 2, rs1, rs2, off)) }
func (a *Assembler) SD(rs2, rs1 Reg, off int64) { a.Word(EncodeS(opStore, 3, rs1, rs2, off)) }

// Branches to labels
func (a *Assembler) BEQ(rs1, rs2 Reg, label string)  { a.ref(label, fixBranch, EncodeB(0, rs1, rs2, 0)) }
func (a *Assembler) BNE(rs1, rs2 Reg, label string)  { a.ref(label, fixBranch, EncodeB(1, rs1, rs2, 0)) }
func (a *Assembler) BLT(rs1, rs2 Reg, label string)  { a.ref(label, fixBranch, EncodeB(4, rs1, rs2, 0)) }
func (a *Assembler) BGE(rs1, rs2 Reg, label string)  { a.ref(label, fixBranch, EncodeB(5, rs1, rs2, 0)) }
func (a *Assembler) BLTU(rs1, rs2 Reg, label string) { a.ref(label, fixBranch, EncodeB(6, rs1, rs2, 0)) }
func (a *Assembler) BGEU(rs1, rs2 Reg, label string) { a.ref(label, fixBranch, EncodeB(7, rs1, rs2, 0)) }
func (a *Assembler) BEQZ(rs Reg, label string)       { a.BEQ(rs, Zero, label) }
func (a *Assembler) BNEZ(rs Reg, label string)       { a.BNE(rs, Zero, label) }

// Jumps
func (a *Assembler) JAL(rd Reg, label string) { a.ref(label, fixJal, EncodeJ(rd, 0)) }
func (a *Assembler) J(label string)           { a.JAL(Zero, label) }
func (a *Assembler) CALL(label string)        { a.JAL(RA, label) }
func (a *Assembler) JALR(rd, rs1 Reg, off int64) {
	a.Word(EncodeI(opJalr, rd, 0, rs1, off))
}
func (a *Assembler) RET() { a.JALR(Zero, RA, 0) }

// System
func (a *Assembler) ECALL()  { a.Word(0x0000_0073) }
func (a *Assembler) EBREAK() { a.Word(0x0010_0073) }
func (a *Assembler) FENCE()  { a.Word(0x0ff0_000f) }

// CSRR reads csr into rd (csrrs rd, csr, zero).
func (a *Assembler) CSRR(rd Reg, csr uint16) {
	a.Word(uint32(csr)<<20 | 2<<12 | uint32(rd)<<7 | opSystem)
}

// Pseudo-instructions
func (a *Assembler) NOP()          { a.ADDI(Zero, Zero, 0) }
func (a *Assembler) MV(rd, rs Reg) { a.ADDI(rd, rs, 0) }

// LI loads an arbitrary 64-bit constant.
func (a *Assembler) LI(rd Reg, v int64) {
	if v >= -2048 && v < 2048 {
		a.ADDI(rd, Zero, v)
		return
	}
	if v == int64(int32(v)) {
		lo := signExtend12(v)
		hi := (v - lo) >> 12
		a.LUI(rd, hi)
		if lo != 0 {
			a.ADDIW(rd, rd, lo)
		}
		return
	}
	lo := signExtend12(v)
	hi := (v - lo) >> 12
	shift := 12 + bits.TrailingZeros64(uint64(hi))
	hi = (v - lo) >> shift
	a.LI(rd, hi)
	a.SLLI(rd, rd, uint(shift))
	if lo != 0 {
		a.ADDI(rd, rd, lo)
	}
}

// LA loads the address of label, PC-relative.
func (a *Assembler) LA(rd Reg, label string) {
	a.ref(label, fixPCRel, EncodeU(opAuipc, rd, 0), EncodeI(opImm, rd, 0, rd, 0))
}

func signExtend12(v int64) int64 { return (v << 52) >> 52 }

var errUndefinedLabel = errors.New("asm: undefined label")

// Assemble resolves label references and returns the program image.
func (a *Assembler) Assemble() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	out := make([]byte, len(a.buf))
	copy(out, a.buf)

	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("%w %q", errUndefinedLabel, f.label)
		}
		off := int64(target - f.at)
		insn := binary.LittleEndian.Uint32(out[f.at:])

		switch f.kind {
		case fixBranch:
			if off < -4096 || off >= 4096 || off&1 != 0 {
				return nil, fmt.Errorf("asm: branch to %q out of range (%d)", f.label, off)
			}
			rs1 := Reg(insn >> 15 & 0x1f)
			rs2 := Reg(insn >> 20 & 0x1f)
			insn = EncodeB(insn>>12&7, rs1, rs2, off)
		case fixJal:
			if off < -(1<<20) || off >= 1<<20 || off&1 != 0 {
				return nil, fmt.Errorf("asm: jump to %q out of range (%d)", f.label, off)
			}
			insn = EncodeJ(Reg(insn>>7&0x1f), off)
		case fixPCRel:
			lo := signExtend12(off)
			hi := (off - lo) >> 12
			rd := Reg(insn >> 7 & 0x1f)
			binary.LittleEndian.PutUint32(out[f.at+4:], EncodeI(opImm, rd, 0, rd, lo))
			insn = EncodeU(opAuipc, rd, hi)
		}
		binary.LittleEndian.PutUint32(out[f.at:], insn)
	}
	return out, nil
}
