// Package pex locates sections inside a raw PE image without fully modeling
// the container. All addresses handled here are file offsets into the image.
package pex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

var (
	ErrNotPE      = errors.New("pex: not a PE image")
	ErrTruncated  = errors.New("pex: header truncated")
	ErrNoSection  = errors.New("pex: section not found")
	ErrOutOfRange = errors.New("pex: read out of range")
)

// Known section names.
const (
	Text  = ".text"
	Data  = ".data"
	RData = ".rdata"
)

// TrapByte is the int3 filler the compiler places between functions.
const TrapByte byte = 0xCC

// Fixed header offsets. Only the handful needed to reach the section table.
const (
	offLfanew         = 0x3C
	offNumSections    = 6  // from NT signature
	offSizeOptHeader  = 20 // from NT signature
	fileHeaderEnd     = 24 // NT signature (4) + IMAGE_FILE_HEADER (20)
	defaultOptHdrSize = 240
	sectionHeaderSize = 40
)

var knownNames = [...]string{Text, Data, RData}

// Section describes one recognized section. Offset and Size are the raw file
// extent; VirtualAddress and VirtualSize are kept for RVA conversion.
type Section struct {
	Name           string
	Offset         uint32
	Size           uint32
	VirtualAddress uint32
	VirtualSize    uint32
}

// Contains reports whether the file offset falls inside the section.
func (s Section) Contains(off uint64) bool {
	return off >= uint64(s.Offset) && off < uint64(s.Offset)+uint64(s.Size)
}

// Delta returns VirtualAddress - Offset, the constant block by which the
// section is shifted when mapped.
func (s Section) Delta() int64 {
	return int64(s.VirtualAddress) - int64(s.Offset)
}

// Image is a fully loaded, read-only executable image.
type Image struct {
	data     []byte
	sections map[string]Section
	order    []string
	trap     byte
}

// Option configures an Image.
type Option func(*Image)

// WithTrap overrides the inter-function filler byte.
func WithTrap(b byte) Option {
	return func(img *Image) { img.trap = b }
}

// Open reads the whole file at path and locates its sections.
func Open(path string, opts ...Option) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pex: open: %w", err)
	}
	return Load(data, opts...)
}

// Load parses the section table of data. data is retained and must not be
// modified afterwards.
func Load(data []byte, opts ...Option) (*Image, error) {
	img := &Image{
		data:     data,
		sections: make(map[string]Section),
		trap:     TrapByte,
	}
	for _, o := range opts {
		o(img)
	}

	if len(data) < offLfanew+4 || data[0] != 'M' || data[1] != 'Z' {
		return nil, ErrNotPE
	}
	nt := int(binary.LittleEndian.Uint32(data[offLfanew:]))
	if nt < 0 || nt+fileHeaderEnd > len(data) {
		return nil, fmt.Errorf("%w: NT header at 0x%x", ErrTruncated, nt)
	}
	if string(data[nt:nt+4]) != "PE\x00\x00" {
		return nil, fmt.Errorf("%w: bad NT signature at 0x%x", ErrNotPE, nt)
	}

	numSections := int(binary.LittleEndian.Uint16(data[nt+offNumSections:]))
	optSize := int(binary.LittleEndian.Uint16(data[nt+offSizeOptHeader:]))
	if optSize == 0 {
		optSize = defaultOptHdrSize
	}

	cursor := nt + fileHeaderEnd + optSize
	for i := 0; i < numSections; i++ {
		if cursor+sectionHeaderSize > len(data) {
			return nil, fmt.Errorf("%w: section header %d at 0x%x", ErrTruncated, i, cursor)
		}
		hdr := data[cursor : cursor+sectionHeaderSize]
		if name, ok := classify(hdr[:8]); ok {
			if _, dup := img.sections[name]; !dup {
				img.sections[name] = Section{
					Name:           name,
					VirtualSize:    binary.LittleEndian.Uint32(hdr[8:]),
					VirtualAddress: binary.LittleEndian.Uint32(hdr[12:]),
					Size:           binary.LittleEndian.Uint32(hdr[16:]),
					Offset:         binary.LittleEndian.Uint32(hdr[20:]),
				}
				img.order = append(img.order, name)
			}
		}
		cursor += sectionHeaderSize
	}
	return img, nil
}

// classify compares the 8-byte name field against the known section names.
func classify(raw []byte) (string, bool) {
	for _, name := range knownNames {
		var want [8]byte
		copy(want[:], name)
		if string(raw) == string(want[:]) {
			return name, true
		}
	}
	return "", false
}

// Bytes returns the underlying buffer. Callers must not modify it.
func (img *Image) Bytes() []byte { return img.data }

// Len returns the image size in bytes.
func (img *Image) Len() int { return len(img.data) }

// Trap returns the filler byte used for function boundary detection.
func (img *Image) Trap() byte { return img.trap }

// Section looks up a recognized section by name.
func (img *Image) Section(name string) (Section, error) {
	s, ok := img.sections[name]
	if !ok {
		return Section{}, fmt.Errorf("%w: %s", ErrNoSection, name)
	}
	return s, nil
}

// Text returns the code section.
func (img *Image) Text() (Section, error) { return img.Section(Text) }

// SectionAt returns the recognized section holding the file offset.
func (img *Image) SectionAt(off uint64) (Section, bool) {
	for _, name := range img.order {
		if s := img.sections[name]; s.Contains(off) {
			return s, true
		}
	}
	return Section{}, false
}

// Sections returns recognized sections in header order.
func (img *Image) Sections() []Section {
	out := make([]Section, 0, len(img.order))
	for _, name := range img.order {
		out = append(out, img.sections[name])
	}
	return out
}
