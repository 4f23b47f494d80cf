package jumptable

import (
	"golang.org/x/arch/x86/x86asm"

	"opfinder/internal/disasm"
)

// Registers used by the compiler's switch lowering.
var (
	dispatchReg = x86asm.EAX // holds the case value
	indexReg    = x86asm.RAX // same value, zero-extended, used as index
	targetReg   = x86asm.ECX // receives the jump table slot
)

// Idioms holds the table-related operands recognized in an instruction
// stream, each list in stream order. Bases are image file offsets.
type Idioms struct {
	MinCases      []int32
	IndirectBases []int64
	TableBases    []int64
}

// Scan recognizes, in stream order:
//
//	sub eax, imm                      minimum case value
//	lea eax, [reg-disp]               minimum case value (disp)
//	movzx eax, byte [reg+rax+rva]     indirection byte table at rva-delta
//	mov ecx, [reg+rax*4+rva]          jump table at rva-delta
//
// delta converts the RVA displacements to file offsets.
func Scan(insts []disasm.Inst, delta int64) Idioms {
	var id Idioms
	for _, inst := range insts {
		if inst.Bad {
			continue
		}
		if v, ok := minCase(inst.X86); ok {
			id.MinCases = append(id.MinCases, v)
			continue
		}
		if mem, ok := indirectLoad(inst.X86); ok {
			id.IndirectBases = append(id.IndirectBases, mem.Disp-delta)
			continue
		}
		if mem, ok := tableLoad(inst.X86); ok {
			id.TableBases = append(id.TableBases, mem.Disp-delta)
		}
	}
	return id
}

func minCase(in x86asm.Inst) (int32, bool) {
	if in.Args[0] != dispatchReg {
		return 0, false
	}
	switch in.Op {
	case x86asm.SUB:
		if imm, ok := in.Args[1].(x86asm.Imm); ok {
			return int32(imm), true
		}
	case x86asm.LEA:
		// lea eax, [rcx-0Ah] is sub eax, 0Ah with a copy.
		if mem, ok := in.Args[1].(x86asm.Mem); ok && mem.Base != 0 && mem.Disp < 0 {
			return int32(-mem.Disp), true
		}
	}
	return 0, false
}

func indirectLoad(in x86asm.Inst) (x86asm.Mem, bool) {
	if in.Op != x86asm.MOVZX || in.Args[0] != dispatchReg {
		return x86asm.Mem{}, false
	}
	mem, ok := in.Args[1].(x86asm.Mem)
	if !ok || mem.Base == 0 || mem.Index != indexReg || mem.Scale != 1 || in.MemBytes != 1 {
		return x86asm.Mem{}, false
	}
	return mem, true
}

func tableLoad(in x86asm.Inst) (x86asm.Mem, bool) {
	if in.Op != x86asm.MOV || in.Args[0] != targetReg {
		return x86asm.Mem{}, false
	}
	mem, ok := in.Args[1].(x86asm.Mem)
	if !ok || mem.Index != indexReg || mem.Scale != 4 {
		return x86asm.Mem{}, false
	}
	return mem, true
}
