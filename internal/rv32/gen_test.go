package rv32

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

func parseProgram(t *testing.T, text string) *ir.Program {
	t.Helper()
	p, err := ir.ParseText(strings.NewReader(text))
	require.NoError(t, err)
	return p
}

func TestGenerateMinimalProgram(t *testing.T) {
	p := parseProgram(t, `
section main
	movii32 r3, 5
	end
`)
	prog, err := Generate(p, DefaultSettings(), nil)
	require.NoError(t, err)
	require.Len(t, prog.Sections, 1)

	code, err := EncodeProgram(prog)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Zero(t, len(code)%4)

	// The program ends with the exit coda: mv a0, x0; li a7, 93; ecall.
	n := len(code)
	require.Equal(t, uint32(0x00000073), binary.LittleEndian.Uint32(code[n-4:]))
	require.Equal(t, uint32(0x05d00893), binary.LittleEndian.Uint32(code[n-8:])) // addi x17, x0, 93
	require.Equal(t, uint32(0x00000513), binary.LittleEndian.Uint32(code[n-12:])) // addi x10, x0, 0
}

func TestGenerateHeapPreamble(t *testing.T) {
	p := parseProgram(t, `
section main
	end
`)
	prog, err := Generate(p, DefaultSettings(), nil)
	require.NoError(t, err)
	code, err := EncodeProgram(prog)
	require.NoError(t, err)

	// The mmap syscall number and the heap-pointer move must both appear:
	// addi x17, x0, 222 and addi x4, x10, 0.
	var sawSyscall, sawHeapMove bool
	for i := 0; i+4 <= len(code); i += 4 {
		switch binary.LittleEndian.Uint32(code[i:]) {
		case 0x0de00893:
			sawSyscall = true
		case 0x00050213:
			sawHeapMove = true
		}
	}
	require.True(t, sawSyscall)
	require.True(t, sawHeapMove)
}

func TestGenerateLoopAndCall(t *testing.T) {
	p := parseProgram(t, `
section main locals=4
	movii32 r3, 10
	label_0
	subii32 r3, r3, 1
	calli32 r4, @addone, r3
	gtii32 r5, r4, 5
	jmpc r5, label_0, label_1
	label_1
	end

section addone iargs=1 ret=i32
	addii32 r4, r3, 1
	reti32 r4
`)
	prog, err := Generate(p, DefaultSettings(), nil)
	require.NoError(t, err)
	require.Len(t, prog.Sections, 2)
	for _, s := range prog.Sections {
		assertPhysical(t, s)
	}

	code, err := EncodeProgram(prog)
	require.NoError(t, err)
	require.NotEmpty(t, code)
}

func TestGenerateDivideByZero(t *testing.T) {
	p := parseProgram(t, `
section main
	movii32 r3, 4
	divii32 r4, r3, 0
	end
`)
	_, err := Generate(p, DefaultSettings(), nil)
	require.Error(t, err)
	require.Equal(t, diag.KindDivideByZero, diag.KindOf(err))
}

func TestGenerateMissingRule(t *testing.T) {
	p := &ir.Program{
		Names: []string{"main"},
		Sections: []*ir.Section{{
			Kind: ir.SectionIR,
			Ops: []ir.Op{{
				Kind:  ir.OpKindInstr,
				Instr: ir.Instr{Opcode: ir.OpJmpcNF},
			}, {
				Kind:  ir.OpKindInstr,
				Instr: ir.Instr{Opcode: ir.Opcode(9999)},
			}},
		}},
	}
	_, err := Generate(p, DefaultSettings(), nil)
	require.Error(t, err)
	require.Equal(t, diag.KindAssertionFailed, diag.KindOf(err))
}

func TestGenerateConstantsAndLca(t *testing.T) {
	p := parseProgram(t, `
section main
	lca r3, 0
	storeoi32 r3, r1, 0
	end

data bytes 48 49 00
`)
	prog, err := Generate(p, DefaultSettings(), nil)
	require.NoError(t, err)
	code, err := EncodeProgram(prog)
	require.NoError(t, err)

	// The blob lands 4-aligned at the image tail, padded to a word.
	require.Equal(t, byte(0x48), code[len(code)-4])
	require.Equal(t, byte(0x49), code[len(code)-3])
	require.Equal(t, byte(0), code[len(code)-1])
}
