package trap

import (
	"fmt"

	"tickos/rv64"
)

// IsInterrupt reports whether scause describes an interrupt.
func IsInterrupt(scause uint64) bool {
	return scause&rv64.InterruptBit != 0
}

// CauseName returns a readable name for scause.
func CauseName(scause uint64) string {
	if IsInterrupt(scause) {
		switch scause &^ rv64.InterruptBit {
		case 1:
			return "SupervisorSoft"
		case 5:
			return "SupervisorTimer"
		case 9:
			return "SupervisorExternal"
		}
		return fmt.Sprintf("Interrupt(%d)", scause&^rv64.InterruptBit)
	}
	switch scause {
	case rv64.CauseInsnAddrMisaligned:
		return "InstructionMisaligned"
	case rv64.CauseInsnAccessFault:
		return "InstructionFault"
	case rv64.CauseIllegalInsn:
		return "IllegalInstruction"
	case rv64.CauseBreakpoint:
		return "Breakpoint"
	case rv64.CauseLoadAddrMisaligned:
		return "LoadMisaligned"
	case rv64.CauseLoadAccessFault:
		return "LoadFault"
	case rv64.CauseStoreAddrMisaligned:
		return "StoreMisaligned"
	case rv64.CauseStoreAccessFault:
		return "StoreFault"
	case rv64.CauseEcallFromU:
		return "UserEnvCall"
	case rv64.CauseEcallFromS:
		return "SupervisorEnvCall"
	case rv64.CauseInsnPageFault:
		return "InstructionPageFault"
	case rv64.CauseLoadPageFault:
		return "LoadPageFault"
	case rv64.CauseStorePageFault:
		return "StorePageFault"
	}
	return fmt.Sprintf("Exception(%d)", scause)
}
