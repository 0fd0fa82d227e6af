package rv64

import (
	"math"
	"math/bits"
)

// Major opcodes
const (
	opLoad    = 0x03
	opMiscMem = 0x0f
	opImm     = 0x13
	opAuipc   = 0x17
	opImm32   = 0x1b
	opStore   = 0x23
	opOp      = 0x33
	opLui     = 0x37
	opOp32    = 0x3b
	opBranch  = 0x63
	opJalr    = 0x67
	opJal     = 0x6f
	opSystem  = 0x73
)

func immI(insn uint32) uint64 { return uint64(int64(int32(insn) >> 20)) }

func immS(insn uint32) uint64 {
	return uint64(int64(int32(insn)>>25<<5) | int64((insn>>7)&0x1f))
}

func immB(insn uint32) uint64 {
	v := int64(int32(insn)>>31) << 12
	v |= int64((insn>>7)&1) << 11
	v |= int64((insn>>25)&0x3f) << 5
	v |= int64((insn>>8)&0xf) << 1
	return uint64(v)
}

func immU(insn uint32) uint64 { return uint64(int64(int32(insn & 0xfffff000))) }

func immJ(insn uint32) uint64 {
	v := int64(int32(insn)>>31) << 20
	v |= int64((insn>>12)&0xff) << 12
	v |= int64((insn>>20)&1) << 11
	v |= int64((insn>>21)&0x3ff) << 1
	return uint64(v)
}

func sext32(v uint64) uint64 { return uint64(int64(int32(uint32(v)))) }

func (h *Hart) exec(insn uint32) *ExceptionError {
	opcode := insn & 0x7f
	rd := (insn >> 7) & 0x1f
	funct3 := (insn >> 12) & 0x7
	rs1 := (insn >> 15) & 0x1f
	rs2 := (insn >> 20) & 0x1f
	funct7 := insn >> 25

	next := h.PC + 4

	switch opcode {
	case opLui:
		h.WriteReg(rd, immU(insn))

	case opAuipc:
		h.WriteReg(rd, h.PC+immU(insn))

	case opJal:
		target := h.PC + immJ(insn)
		if target&3 != 0 {
			return exception(CauseInsnAddrMisaligned, target)
		}
		h.WriteReg(rd, next)
		next = target

	case opJalr:
		if funct3 != 0 {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		target := (h.ReadReg(rs1) + immI(insn)) &^ 1
		if target&3 != 0 {
			return exception(CauseInsnAddrMisaligned, target)
		}
		h.WriteReg(rd, next)
		next = target

	case opBranch:
		a, b := h.ReadReg(rs1), h.ReadReg(rs2)
		var taken bool
		switch funct3 {
		case 0: // BEQ
			taken = a == b
		case 1: // BNE
			taken = a != b
		case 4: // BLT
			taken = int64(a) < int64(b)
		case 5: // BGE
			taken = int64(a) >= int64(b)
		case 6: // BLTU
			taken = a < b
		case 7: // BGEU
			taken = a >= b
		default:
			return exception(CauseIllegalInsn, uint64(insn))
		}
		if taken {
			target := h.PC + immB(insn)
			if target&3 != 0 {
				return exception(CauseInsnAddrMisaligned, target)
			}
			next = target
		}

	case opLoad:
		addr := h.ReadReg(rs1) + immI(insn)
		var size uint64
		switch funct3 & 3 {
		case 0:
			size = 1
		case 1:
			size = 2
		case 2:
			size = 4
		case 3:
			size = 8
		}
		if funct3 == 7 {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		v, ok := h.ram.load(addr, size)
		if !ok {
			return exception(CauseLoadAccessFault, addr)
		}
		if funct3 < 4 && size < 8 {
			shift := 64 - size*8
			v = uint64(int64(v<<shift) >> shift)
		}
		h.WriteReg(rd, v)

	case opStore:
		if funct3 > 3 {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		addr := h.ReadReg(rs1) + immS(insn)
		if !h.ram.store(addr, 1<<funct3, h.ReadReg(rs2)) {
			return exception(CauseStoreAccessFault, addr)
		}

	case opImm:
		v, ok := h.aluImm(insn, funct3, h.ReadReg(rs1))
		if !ok {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		h.WriteReg(rd, v)

	case opImm32:
		v, ok := h.aluImm32(insn, funct3, h.ReadReg(rs1))
		if !ok {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		h.WriteReg(rd, v)

	case opOp:
		a, b := h.ReadReg(rs1), h.ReadReg(rs2)
		var v uint64
		var ok bool
		if funct7 == 1 {
			v, ok = mulDiv(funct3, a, b)
		} else {
			v, ok = alu(funct3, funct7, a, b)
		}
		if !ok {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		h.WriteReg(rd, v)

	case opOp32:
		a, b := h.ReadReg(rs1), h.ReadReg(rs2)
		var v uint64
		var ok bool
		if funct7 == 1 {
			v, ok = mulDiv32(funct3, a, b)
		} else {
			v, ok = alu32(funct3, funct7, a, b)
		}
		if !ok {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		h.WriteReg(rd, v)

	case opMiscMem:
		// FENCE and FENCE.I: memory is always coherent here.
		if funct3 > 1 {
			return exception(CauseIllegalInsn, uint64(insn))
		}

	case opSystem:
		if funct3 == 0 {
			switch insn {
			case 0x0000_0073:
				return exception(CauseEcallFromU, 0)
			case 0x0010_0073:
				return exception(CauseBreakpoint, h.PC)
			default:
				// sret, mret, wfi, sfence.vma
				return exception(CauseIllegalInsn, uint64(insn))
			}
		}
		v, ok := h.readUserCSR(insn, funct3, rs1)
		if !ok {
			return exception(CauseIllegalInsn, uint64(insn))
		}
		h.WriteReg(rd, v)

	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	h.PC = next
	return nil
}

// readUserCSR only allows reads of the unprivileged counters.
func (h *Hart) readUserCSR(insn, funct3, rs1 uint32) (uint64, bool) {
	// CSRRS/CSRRC/CSRRSI/CSRRCI with a zero source are pure reads.
	if funct3 != 2 && funct3 != 3 && funct3 != 6 && funct3 != 7 {
		return 0, false
	}
	if rs1 != 0 {
		return 0, false
	}
	switch uint16(insn >> 20) {
	case CSRCycle:
		return h.Cycle, true
	case CSRTime:
		return h.Time, true
	case CSRInstret:
		return h.Instret, true
	}
	return 0, false
}

func (h *Hart) aluImm(insn, funct3 uint32, a uint64) (uint64, bool) {
	imm := immI(insn)
	shamt := (insn >> 20) & 0x3f
	funct6 := insn >> 26
	switch funct3 {
	case 0: // ADDI
		return a + imm, true
	case 1: // SLLI
		if funct6 != 0 {
			return 0, false
		}
		return a << shamt, true
	case 2: // SLTI
		return b2u(int64(a) < int64(imm)), true
	case 3: // SLTIU
		return b2u(a < imm), true
	case 4: // XORI
		return a ^ imm, true
	case 5:
		switch funct6 {
		case 0x00: // SRLI
			return a >> shamt, true
		case 0x10: // SRAI
			return uint64(int64(a) >> shamt), true
		}
		return 0, false
	case 6: // ORI
		return a | imm, true
	default: // ANDI
		return a & imm, true
	}
}

func (h *Hart) aluImm32(insn, funct3 uint32, a uint64) (uint64, bool) {
	shamt := (insn >> 20) & 0x1f
	funct7 := insn >> 25
	switch funct3 {
	case 0: // ADDIW
		return sext32(a + immI(insn)), true
	case 1: // SLLIW
		if funct7 != 0 {
			return 0, false
		}
		return sext32(uint64(uint32(a) << shamt)), true
	case 5:
		switch funct7 {
		case 0x00: // SRLIW
			return sext32(uint64(uint32(a) >> shamt)), true
		case 0x20: // SRAIW
			return uint64(int64(int32(uint32(a)) >> shamt)), true
		}
	}
	return 0, false
}

func alu(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	shamt := b & 0x3f
	switch {
	case funct7 == 0x00:
		switch funct3 {
		case 0:
			return a + b, true
		case 1:
			return a << shamt, true
		case 2:
			return b2u(int64(a) < int64(b)), true
		case 3:
			return b2u(a < b), true
		case 4:
			return a ^ b, true
		case 5:
			return a >> shamt, true
		case 6:
			return a | b, true
		case 7:
			return a & b, true
		}
	case funct7 == 0x20:
		switch funct3 {
		case 0:
			return a - b, true
		case 5:
			return uint64(int64(a) >> shamt), true
		}
	}
	return 0, false
}

func alu32(funct3, funct7 uint32, a, b uint64) (uint64, bool) {
	shamt := b & 0x1f
	x, y := uint32(a), uint32(b)
	switch {
	case funct7 == 0x00:
		switch funct3 {
		case 0:
			return sext32(uint64(x + y)), true
		case 1:
			return sext32(uint64(x << shamt)), true
		case 5:
			return sext32(uint64(x >> shamt)), true
		}
	case funct7 == 0x20:
		switch funct3 {
		case 0:
			return sext32(uint64(x - y)), true
		case 5:
			return uint64(int64(int32(x) >> shamt)), true
		}
	}
	return 0, false
}

func mulDiv(funct3 uint32, a, b uint64) (uint64, bool) {
	switch funct3 {
	case 0: // MUL
		return a * b, true
	case 1: // MULH
		return mulhSigned(int64(a), int64(b)), true
	case 2: // MULHSU
		hi, _ := bits.Mul64(a, b)
		if int64(a) < 0 {
			hi -= b
		}
		return hi, true
	case 3: // MULHU
		hi, _ := bits.Mul64(a, b)
		return hi, true
	case 4: // DIV
		x, y := int64(a), int64(b)
		switch {
		case y == 0:
			return ^uint64(0), true
		case x == math.MinInt64 && y == -1:
			return a, true
		}
		return uint64(x / y), true
	case 5: // DIVU
		if b == 0 {
			return ^uint64(0), true
		}
		return a / b, true
	case 6: // REM
		x, y := int64(a), int64(b)
		switch {
		case y == 0:
			return a, true
		case x == math.MinInt64 && y == -1:
			return 0, true
		}
		return uint64(x % y), true
	default: // REMU
		if b == 0 {
			return a, true
		}
		return a % b, true
	}
}

func mulhSigned(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	if a < 0 {
		hi -= uint64(b)
	}
	if b < 0 {
		hi -= uint64(a)
	}
	return hi
}

func mulDiv32(funct3 uint32, a, b uint64) (uint64, bool) {
	x, y := int32(uint32(a)), int32(uint32(b))
	ux, uy := uint32(a), uint32(b)
	switch funct3 {
	case 0: // MULW
		return sext32(uint64(ux * uy)), true
	case 4: // DIVW
		switch {
		case y == 0:
			return ^uint64(0), true
		case x == math.MinInt32 && y == -1:
			return uint64(int64(x)), true
		}
		return uint64(int64(x / y)), true
	case 5: // DIVUW
		if uy == 0 {
			return ^uint64(0), true
		}
		return sext32(uint64(ux / uy)), true
	case 6: // REMW
		switch {
		case y == 0:
			return uint64(int64(x)), true
		case x == math.MinInt32 && y == -1:
			return 0, true
		}
		return uint64(int64(x % y)), true
	case 7: // REMUW
		if uy == 0 {
			return sext32(uint64(ux)), true
		}
		return sext32(uint64(ux % uy)), true
	}
	return 0, false
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
