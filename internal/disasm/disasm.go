// Package disasm provides bounded x86-64 disassembly for probed functions.
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Inst is a decoded x86-64 instruction with address and raw bytes.
type Inst struct {
	Addr uint64
	Raw  []byte
	Size int
	X86  x86asm.Inst // zero Op when Bad
	Bad  bool        // undecodable byte, Size is 1
	Text string      // Intel syntax rendering
}

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64 // address of the first byte in data
	MaxSteps int    // maximum instructions to decode; 0 = 1M
	// StopAtTrap ends decoding at the first Trap byte found at an
	// instruction boundary; the trap itself is not returned.
	StopAtTrap bool
	Trap       byte
}

const defaultMaxSteps = 1_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions sequentially from data until the data,
// MaxSteps, or (optionally) a trap byte ends the stream. Undecodable bytes
// are emitted as single-byte Bad instructions and decoding resumes at the
// next byte.
func Disassemble(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var result []Inst

	off := 0
	for off < len(data) && len(result) < maxSteps {
		if opts.StopAtTrap && data[off] == opts.Trap {
			break
		}
		addr := opts.BaseAddr + uint64(off)

		inst, err := x86asm.Decode(data[off:], 64)
		// Truncated encodings decode as a zero-Op prefix pseudo-instruction.
		if err != nil || inst.Len == 0 || inst.Op == 0 {
			result = append(result, Inst{
				Addr: addr,
				Raw:  data[off : off+1],
				Size: 1,
				Bad:  true,
				Text: fmt.Sprintf("(bad) 0x%02x", data[off]),
			})
			off++
			continue
		}

		result = append(result, Inst{
			Addr: addr,
			Raw:  data[off : off+inst.Len],
			Size: inst.Len,
			X86:  inst,
			Text: x86asm.IntelSyntax(inst, addr, nil),
		})
		off += inst.Len
	}
	return result
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <symbol>
func Format(insts []Inst, lookup SymbolLookup) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		hex := make([]string, len(inst.Raw))
		for i, c := range inst.Raw {
			hex[i] = fmt.Sprintf("%02x", c)
		}
		fmt.Fprintf(&b, "%-30s  ", strings.Join(hex, " "))
		b.WriteString(inst.Text)
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PlaceholderLookup returns a SymbolLookup over a fixed set of names.
func PlaceholderLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := names[addr]; ok {
			return name, true
		}
		return "", false
	}
}
