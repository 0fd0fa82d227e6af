//go:build tinygo && riscv64

package hal

const (
	sbiLegacySetTimer     = 0
	sbiLegacyConsolePutch = 1
	sbiLegacyShutdown     = 8

	sbiExtSRST        = 0x5352_5354
	srstTypeShutdown  = 0
	srstReasonNone    = 0
	srstReasonFailure = 1
)

// sbiCall traps into the firmware with eid in a7 and fid in a6.
//
//export sbi_call
func sbiCall(eid, fid, arg0, arg1, arg2 uintptr) uintptr

func sbiPutchar(c byte) {
	sbiCall(sbiLegacyConsolePutch, 0, uintptr(c), 0, 0)
}
