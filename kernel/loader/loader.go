package loader

import (
	"errors"
	"fmt"

	"tickos/hal"
)

const (
	// AppBase is where slot 0 is loaded.
	AppBase uint64 = 0x8040_0000
	// SlotSize is the address distance between consecutive slots.
	SlotSize uint64 = 0x2_0000
)

var ErrImageTooLarge = errors.New("loader: image too large")

// Loader copies images into their slots in physical memory.
type Loader struct {
	mem hal.Memory
}

func New(mem hal.Memory) *Loader {
	return &Loader{mem: mem}
}

// SlotBase returns the load address of slot i.
func SlotBase(i int) uint64 {
	return AppBase + uint64(i)*SlotSize
}

// Load copies image into slot i, zero-fills the rest of the slot and makes
// the result visible to instruction fetch. It returns the entry address.
func (l *Loader) Load(i int, image []byte) (uint64, error) {
	if i < 0 || i >= MaxApps {
		return 0, fmt.Errorf("loader: slot %d out of range [0, %d)", i, MaxApps)
	}
	if uint64(len(image)) > SlotSize {
		return 0, fmt.Errorf("%w: slot %d image is %#x bytes, slot holds %#x", ErrImageTooLarge, i, len(image), SlotSize)
	}

	base := SlotBase(i)
	if _, err := l.mem.WriteAt(image, base); err != nil {
		return 0, fmt.Errorf("loader: write slot %d at %#x: %w", i, base, err)
	}

	var zero [512]byte
	for addr, end := base+uint64(len(image)), base+SlotSize; addr < end; {
		n := end - addr
		if n > uint64(len(zero)) {
			n = uint64(len(zero))
		}
		if _, err := l.mem.WriteAt(zero[:n], addr); err != nil {
			return 0, fmt.Errorf("loader: clear slot %d at %#x: %w", i, addr, err)
		}
		addr += n
	}

	l.mem.FenceI()
	return base, nil
}
