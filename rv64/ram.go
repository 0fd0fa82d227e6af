package rv64

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrAccess reports a physical access outside of RAM.
var ErrAccess = errors.New("rv64: physical address out of range")

// RAM is a flat physical memory region.
type RAM struct {
	base uint64
	data []byte
}

// NewRAM allocates size bytes of zeroed memory starting at base.
func NewRAM(base uint64, size int) *RAM {
	return &RAM{base: base, data: make([]byte, size)}
}

func (r *RAM) Base() uint64 { return r.base }
func (r *RAM) Size() uint64 { return uint64(len(r.data)) }

// End returns the first address past the region.
func (r *RAM) End() uint64 { return r.base + uint64(len(r.data)) }

func (r *RAM) slice(addr, n uint64) ([]byte, bool) {
	if addr < r.base {
		return nil, false
	}
	off := addr - r.base
	if off > uint64(len(r.data)) || n > uint64(len(r.data))-off {
		return nil, false
	}
	return r.data[off : off+n], true
}

// ReadAt copies len(p) bytes starting at the physical address addr.
func (r *RAM) ReadAt(p []byte, addr uint64) (int, error) {
	b, ok := r.slice(addr, uint64(len(p)))
	if !ok {
		return 0, fmt.Errorf("read %d bytes at %#x: %w", len(p), addr, ErrAccess)
	}
	return copy(p, b), nil
}

// WriteAt copies p to the physical address addr.
func (r *RAM) WriteAt(p []byte, addr uint64) (int, error) {
	b, ok := r.slice(addr, uint64(len(p)))
	if !ok {
		return 0, fmt.Errorf("write %d bytes at %#x: %w", len(p), addr, ErrAccess)
	}
	return copy(b, p), nil
}

// FenceI is a no-op: the interpreter always fetches from RAM.
func (r *RAM) FenceI() {}

func (r *RAM) load(addr uint64, size uint64) (uint64, bool) {
	b, ok := r.slice(addr, size)
	if !ok {
		return 0, false
	}
	switch size {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), true
	default:
		return binary.LittleEndian.Uint64(b), true
	}
}

func (r *RAM) store(addr uint64, size uint64, v uint64) bool {
	b, ok := r.slice(addr, size)
	if !ok {
		return false
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
	return true
}
