// Package rv64 implements the host stand-in for the RISC-V machine the kernel
// targets: physical RAM at RAMBase and a single RV64IM hart that only ever
// executes user-mode code. Supervisor mode is the Go kernel itself.
package rv64

// Memory layout of the QEMU virt machine.
const (
	RAMBase uint64 = 0x8000_0000
	RAMSize        = 8 * 1024 * 1024
)

// Privilege levels
const (
	PrivUser       uint8 = 0
	PrivSupervisor uint8 = 1
)

// sstatus bits
const (
	SstatusSIE  uint64 = 1 << 1
	SstatusSPIE uint64 = 1 << 5
	SstatusSPP  uint64 = 1 << 8
)

// sie/sip bits
const (
	SieSSIE uint64 = 1 << 1
	SieSTIE uint64 = 1 << 5
	SieSEIE uint64 = 1 << 9
)

// InterruptBit marks asynchronous causes in scause.
const InterruptBit uint64 = 1 << 63

// Exception causes
const (
	CauseInsnAddrMisaligned  uint64 = 0
	CauseInsnAccessFault     uint64 = 1
	CauseIllegalInsn         uint64 = 2
	CauseBreakpoint          uint64 = 3
	CauseLoadAddrMisaligned  uint64 = 4
	CauseLoadAccessFault     uint64 = 5
	CauseStoreAddrMisaligned uint64 = 6
	CauseStoreAccessFault    uint64 = 7
	CauseEcallFromU          uint64 = 8
	CauseEcallFromS          uint64 = 9
	CauseInsnPageFault       uint64 = 12
	CauseLoadPageFault       uint64 = 13
	CauseStorePageFault      uint64 = 15
)

// Interrupt causes (with bit 63 set)
const (
	CauseSSoftwareInt uint64 = InterruptBit | 1
	CauseSTimerInt    uint64 = InterruptBit | 5
	CauseSExternalInt uint64 = InterruptBit | 9
)

// CSR addresses readable from user mode. Everything else traps.
const (
	CSRCycle   uint16 = 0xC00
	CSRTime    uint16 = 0xC01
	CSRInstret uint16 = 0xC02
)

// Supervisor CSR addresses, used by the assembler for privileged test programs.
const (
	CSRSstatus uint16 = 0x100
	CSRSie     uint16 = 0x104
	CSRStvec   uint16 = 0x105
	CSRSepc    uint16 = 0x141
	CSRScause  uint16 = 0x142
)

// Privileged instruction encodings.
const (
	InsnSret uint32 = 0x1020_0073
	InsnWfi  uint32 = 0x1050_0073
	InsnMret uint32 = 0x3020_0073
)
