package pex

import (
	"encoding/binary"
	"fmt"
)

func (img *Image) span(off uint64, n int) ([]byte, error) {
	if off > uint64(len(img.data)) || uint64(len(img.data))-off < uint64(n) {
		return nil, fmt.Errorf("%w: 0x%x+%d (size 0x%x)", ErrOutOfRange, off, n, len(img.data))
	}
	return img.data[off : off+uint64(n)], nil
}

func (img *Image) ReadU8(off uint64) (uint8, error) {
	b, err := img.span(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (img *Image) ReadU16(off uint64) (uint16, error) {
	b, err := img.span(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (img *Image) ReadU32(off uint64) (uint32, error) {
	b, err := img.span(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (img *Image) ReadU64(off uint64) (uint64, error) {
	b, err := img.span(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadI32 reads a signed little-endian 32-bit value.
func (img *Image) ReadI32(off uint64) (int32, error) {
	v, err := img.ReadU32(off)
	return int32(v), err
}

// ReadBytes returns a copy of n bytes at off.
func (img *Image) ReadBytes(off uint64, n int) ([]byte, error) {
	b, err := img.span(off, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Window returns up to n bytes starting at off, clamped to the end of the
// image. The slice aliases the image.
func (img *Image) Window(off uint64, n int) []byte {
	if off >= uint64(len(img.data)) || n <= 0 {
		return nil
	}
	end := off + uint64(n)
	if end > uint64(len(img.data)) {
		end = uint64(len(img.data))
	}
	return img.data[off:end]
}

// FunctionStart scans backward from addr, at most window bytes, for the trap
// filler and returns the address just past it. If no filler is found the
// address itself is returned.
func (img *Image) FunctionStart(addr uint64, window int) uint64 {
	if addr >= uint64(len(img.data)) {
		return addr
	}
	for j := 0; j <= window; j++ {
		if uint64(j) > addr {
			break
		}
		if img.data[addr-uint64(j)] == img.trap {
			return addr - uint64(j) + 1
		}
	}
	return addr
}
