// Package pextest builds minimal synthetic PE images for tests.
package pextest

import "encoding/binary"

const (
	NTOffset   = 0x40
	TextOffset = 0x400
	TextVA     = 0x1000
	// Delta is TextVA - TextOffset, the block size of the default layout.
	Delta = TextVA - TextOffset
)

// Section is a section header to emit.
type Section struct {
	Name   string
	Offset uint32
	Size   uint32
	VA     uint32
}

// Builder assembles an image byte by byte.
type Builder struct {
	buf []byte
}

// New returns a size-byte image whose headers declare sections. With no
// sections, a single .text section covering [TextOffset, size) is used.
func New(size int, sections ...Section) *Builder {
	if len(sections) == 0 {
		sections = []Section{{Name: ".text", Offset: TextOffset, Size: uint32(size - TextOffset), VA: TextVA}}
	}
	b := &Builder{buf: make([]byte, size)}
	b.buf[0], b.buf[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(b.buf[0x3C:], NTOffset)
	copy(b.buf[NTOffset:], "PE\x00\x00")
	binary.LittleEndian.PutUint16(b.buf[NTOffset+4:], 0x8664)
	binary.LittleEndian.PutUint16(b.buf[NTOffset+6:], uint16(len(sections)))
	binary.LittleEndian.PutUint16(b.buf[NTOffset+20:], 240)

	cursor := NTOffset + 24 + 240
	for _, s := range sections {
		copy(b.buf[cursor:cursor+8], s.Name)
		binary.LittleEndian.PutUint32(b.buf[cursor+8:], s.Size)
		binary.LittleEndian.PutUint32(b.buf[cursor+12:], s.VA)
		binary.LittleEndian.PutUint32(b.buf[cursor+16:], s.Size)
		binary.LittleEndian.PutUint32(b.buf[cursor+20:], s.Offset)
		cursor += 40
	}
	return b
}

// Put copies raw bytes at off.
func (b *Builder) Put(off int, data ...byte) *Builder {
	copy(b.buf[off:], data)
	return b
}

// PutI32 writes a little-endian signed 32-bit value at off.
func (b *Builder) PutI32(off int, v int32) *Builder {
	binary.LittleEndian.PutUint32(b.buf[off:], uint32(v))
	return b
}

// PutU32 writes a little-endian 32-bit value at off.
func (b *Builder) PutU32(off int, v uint32) *Builder {
	binary.LittleEndian.PutUint32(b.buf[off:], v)
	return b
}

// Fill sets n bytes starting at off to v.
func (b *Builder) Fill(off, n int, v byte) *Builder {
	for i := off; i < off+n && i < len(b.buf); i++ {
		b.buf[i] = v
	}
	return b
}

// Call encodes "call rel32" at src targeting dst.
func (b *Builder) Call(src, dst int) *Builder {
	b.buf[src] = 0xE8
	return b.PutI32(src+1, int32(dst-src-5))
}

// Jmp encodes "jmp rel32" at src targeting dst.
func (b *Builder) Jmp(src, dst int) *Builder {
	b.buf[src] = 0xE9
	return b.PutI32(src+1, int32(dst-src-5))
}

// Bytes returns the assembled image.
func (b *Builder) Bytes() []byte { return b.buf }
