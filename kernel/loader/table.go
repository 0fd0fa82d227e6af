// Package loader reads the application image table and copies images into
// their fixed load slots.
//
// Blob layout, little-endian:
//
//	u64 count
//	u64 offset[count+1]   // relative to the blob start; the last is the end
//	image bytes
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxApps is the largest image count a table may hold.
const MaxApps = 32

var (
	ErrShortBlob     = errors.New("loader: short blob")
	ErrTooManyApps   = errors.New("loader: too many apps")
	ErrInvalidOffset = errors.New("loader: invalid offset")
)

// Table is a validated view of an app blob.
type Table struct {
	blob    []byte
	offsets []uint64
}

// Parse validates blob and returns its image table. The table aliases blob.
func Parse(blob []byte) (*Table, error) {
	if len(blob) < 8 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortBlob, len(blob))
	}
	count := binary.LittleEndian.Uint64(blob[0:8])
	if count > MaxApps {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyApps, count, MaxApps)
	}

	hdr := 8 + (count+1)*8
	if uint64(len(blob)) < hdr {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortBlob, hdr, len(blob))
	}

	offsets := make([]uint64, count+1)
	for i := range offsets {
		off := binary.LittleEndian.Uint64(blob[8+i*8:])
		switch {
		case off < hdr:
			return nil, fmt.Errorf("%w: offset[%d] = %#x inside header", ErrInvalidOffset, i, off)
		case off > uint64(len(blob)):
			return nil, fmt.Errorf("%w: offset[%d] = %#x past end %#x", ErrInvalidOffset, i, off, len(blob))
		case i > 0 && off < offsets[i-1]:
			return nil, fmt.Errorf("%w: offset[%d] = %#x before offset[%d] = %#x", ErrInvalidOffset, i, off, i-1, offsets[i-1])
		}
		offsets[i] = off
	}

	return &Table{blob: blob, offsets: offsets}, nil
}

// Len returns the number of images.
func (t *Table) Len() int { return len(t.offsets) - 1 }

// Image returns image i.
func (t *Table) Image(i int) []byte {
	if i < 0 || i >= t.Len() {
		return nil
	}
	return t.blob[t.offsets[i]:t.offsets[i+1]]
}

// Pack builds a blob from images.
func Pack(images [][]byte) ([]byte, error) {
	if len(images) > MaxApps {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyApps, len(images), MaxApps)
	}

	hdr := 8 + (len(images)+1)*8
	size := hdr
	for _, img := range images {
		size += len(img)
	}

	out := make([]byte, hdr, size)
	binary.LittleEndian.PutUint64(out[0:8], uint64(len(images)))
	off := uint64(hdr)
	for i, img := range images {
		binary.LittleEndian.PutUint64(out[8+i*8:], off)
		off += uint64(len(img))
	}
	binary.LittleEndian.PutUint64(out[8+len(images)*8:], off)

	for _, img := range images {
		out = append(out, img...)
	}
	return out, nil
}
