// Package encoding cross-checks the RV32 encoder against the Go
// assembler's riscv64 back end for the base-ISA instructions whose
// encodings are identical across XLEN.
package encoding

import (
	"encoding/binary"
	"testing"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/riscv"

	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/ir"
	"github.com/basil-lang/basil/internal/rv32"
)

func ourWord(t *testing.T, build func(s *rv32.Section)) uint32 {
	t.Helper()
	s := rv32.NewSection(rv32.NewOpPool(), ir.TypeSig{}, 3, 0, 0, 0)
	build(s)
	enc := rv32.NewEncoder(rv32.NewLinker(1))
	require.NoError(t, enc.EncodeSection(s))
	code := enc.Bytes()
	require.GreaterOrEqual(t, len(code), 4)
	return binary.LittleEndian.Uint32(code)
}

func oracleWord(t *testing.T, setup func(p *obj.Prog)) uint32 {
	t.Helper()
	b, err := goasm.NewBuilder("riscv64", 64)
	require.NoError(t, err)
	p := b.NewProg()
	setup(p)
	b.AddInstruction(p)
	code := b.Assemble()
	require.GreaterOrEqual(t, len(code), 4)
	return binary.LittleEndian.Uint32(code)
}

func TestRTypeAgainstOracle(t *testing.T) {
	cases := []struct {
		name string
		ours rv32.Itype
		as   obj.As
	}{
		{"add", rv32.Add, riscv.AADD},
		{"sub", rv32.Sub, riscv.ASUB},
		{"and", rv32.And, riscv.AAND},
		{"or", rv32.Or, riscv.AOR},
		{"xor", rv32.Xor, riscv.AXOR},
		{"sll", rv32.Sll, riscv.ASLL},
		{"srl", rv32.Srl, riscv.ASRL},
		{"sra", rv32.Sra, riscv.ASRA},
		{"slt", rv32.Slt, riscv.ASLT},
		{"sltu", rv32.Sltu, riscv.ASLTU},
		{"mul", rv32.Mul, riscv.AMUL},
		{"div", rv32.Div, riscv.ADIV},
		{"rem", rv32.Rem, riscv.AREM},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ours := ourWord(t, func(s *rv32.Section) {
				s.AddRType(tc.ours, rv32.Reg(7), rv32.Reg(5), rv32.Reg(6))
			})
			oracle := oracleWord(t, func(p *obj.Prog) {
				p.As = tc.as
				p.From = obj.Addr{Type: obj.TYPE_REG, Reg: riscv.REG_X6}
				p.Reg = riscv.REG_X5
				p.To = obj.Addr{Type: obj.TYPE_REG, Reg: riscv.REG_X7}
			})
			require.Equal(t, oracle, ours)
		})
	}
}

func TestITypeAgainstOracle(t *testing.T) {
	cases := []struct {
		name string
		ours rv32.Itype
		as   obj.As
		imm  int32
	}{
		{"addi", rv32.Addi, riscv.AADDI, 42},
		{"addi-neg", rv32.Addi, riscv.AADDI, -7},
		{"andi", rv32.Andi, riscv.AANDI, 0xff},
		{"ori", rv32.Ori, riscv.AORI, 0x55},
		{"xori", rv32.Xori, riscv.AXORI, -1},
		{"slti", rv32.Slti, riscv.ASLTI, 9},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ours := ourWord(t, func(s *rv32.Section) {
				s.AddIType(tc.ours, rv32.Reg(7), rv32.Reg(5), tc.imm)
			})
			oracle := oracleWord(t, func(p *obj.Prog) {
				p.As = tc.as
				p.From = obj.Addr{Type: obj.TYPE_CONST, Offset: int64(tc.imm)}
				p.Reg = riscv.REG_X5
				p.To = obj.Addr{Type: obj.TYPE_REG, Reg: riscv.REG_X7}
			})
			require.Equal(t, oracle, ours)
		})
	}
}
