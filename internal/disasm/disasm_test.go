package disasm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func TestDisassembleSequence(t *testing.T) {
	// push rbp; mov rbp, rsp; sub eax, 5; ret
	data := []byte{0x55, 0x48, 0x89, 0xE5, 0x83, 0xE8, 0x05, 0xC3}
	insts := Disassemble(data, Options{BaseAddr: 0x1000})
	require.Len(t, insts, 4)

	assert.Equal(t, uint64(0x1000), insts[0].Addr)
	assert.Equal(t, x86asm.PUSH, insts[0].X86.Op)
	assert.Equal(t, uint64(0x1001), insts[1].Addr)
	assert.Equal(t, 3, insts[1].Size)
	assert.Equal(t, x86asm.SUB, insts[2].X86.Op)
	assert.Equal(t, x86asm.EAX, insts[2].X86.Args[0])
	assert.Equal(t, x86asm.Imm(5), insts[2].X86.Args[1])
	assert.Equal(t, x86asm.RET, insts[3].X86.Op)
	assert.Equal(t, []byte{0x83, 0xE8, 0x05}, insts[2].Raw)
}

func TestDisassembleStopAtTrap(t *testing.T) {
	data := []byte{0x90, 0x90, 0xCC, 0x90}
	insts := Disassemble(data, Options{StopAtTrap: true, Trap: 0xCC})
	assert.Len(t, insts, 2)

	insts = Disassemble(data, Options{})
	assert.Len(t, insts, 4)
}

// A trap byte inside an instruction's encoding does not end the stream.
func TestDisassembleTrapInsideInstruction(t *testing.T) {
	// mov eax, 0xCCCCCCCC; nop
	data := []byte{0xB8, 0xCC, 0xCC, 0xCC, 0xCC, 0x90}
	insts := Disassemble(data, Options{StopAtTrap: true, Trap: 0xCC})
	require.Len(t, insts, 2)
	assert.Equal(t, x86asm.MOV, insts[0].X86.Op)
}

func TestDisassembleMaxSteps(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = 0x90
	}
	insts := Disassemble(data, Options{MaxSteps: 10})
	assert.Len(t, insts, 10)
}

func TestDisassembleEmpty(t *testing.T) {
	assert.Empty(t, Disassemble(nil, Options{}))
}

func TestDisassembleTruncated(t *testing.T) {
	// Truncated mov eax, imm32.
	insts := Disassemble([]byte{0xB8, 0x01}, Options{})
	require.Len(t, insts, 2)
	for _, in := range insts {
		assert.True(t, in.Bad, in.Text)
		assert.Equal(t, 1, in.Size)
	}
	assert.Equal(t, "(bad) 0xb8", insts[0].Text)
}

func TestFormat(t *testing.T) {
	insts := Disassemble([]byte{0x90}, Options{BaseAddr: 0x1000})
	text := Format(insts, PlaceholderLookup(map[uint64]string{0x1000: "sub_1000"}))
	assert.Contains(t, text, "0x00001000")
	assert.Contains(t, text, "<sub_1000>")
	assert.Contains(t, strings.ToLower(text), "nop")
}

func TestFormatDeterministic(t *testing.T) {
	data := []byte{0x55, 0x48, 0x89, 0xE5, 0xC3}
	insts := Disassemble(data, Options{BaseAddr: 0x2000})
	assert.Equal(t, Format(insts, nil), Format(insts, nil))
}
