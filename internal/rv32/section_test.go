package rv32

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

func newTestSection(virtRegs uint32) *Section {
	return NewSection(NewOpPool(), ir.TypeSig{}, ir.TempStart+virtRegs, 0, 0, 0)
}

func forward(s *Section) []int {
	var out []int
	for ptr := s.FirstOp; ptr != NilOp; ptr = s.At(ptr).Next {
		out = append(out, ptr)
	}
	return out
}

func backward(s *Section) []int {
	var out []int
	for ptr := s.LastOp; ptr != NilOp; ptr = s.At(ptr).Prev {
		out = append(out, ptr)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func TestListIntegrity(t *testing.T) {
	s := newTestSection(0)
	s.AddNop()
	s.AddLi(RegA0, 1)
	s.AddLabel(s.AcquireLabel())
	s.AddRType(Add, RegA0, RegA0, RegA1)

	require.Equal(t, forward(s), backward(s))
	require.Len(t, forward(s), s.Len)

	// Insert before the middle and at the head.
	mid := forward(s)[2]
	s.InsertITypeBefore(mid, Addi, RegA2, RegZero, 7)
	s.InsertLabelBefore(s.FirstOp, s.AcquireLabel())
	require.Equal(t, forward(s), backward(s))
	require.Len(t, forward(s), s.Len)

	// Unlink head, middle and tail; the two traversals must stay equal.
	order := forward(s)
	s.Unlink(order[0])
	s.Unlink(order[3])
	s.Unlink(order[len(order)-1])
	require.Equal(t, forward(s), backward(s))
	require.Len(t, forward(s), s.Len)
}

func collectInstrs(s *Section) []Instr {
	var out []Instr
	for ptr := s.FirstOp; ptr != NilOp; ptr = s.At(ptr).Next {
		if s.At(ptr).Kind == OpInstr {
			out = append(out, s.At(ptr).Instr)
		}
	}
	return out
}

func TestAddLiSmall(t *testing.T) {
	s := newTestSection(0)
	s.AddLi(RegA0, 42)
	s.AddLi(RegA1, -2048)

	instrs := collectInstrs(s)
	require.Len(t, instrs, 2)
	require.Equal(t, Addi, instrs[0].Itype)
	require.Equal(t, RegZero, instrs[0].Rs1)
	require.Equal(t, int32(42), instrs[0].Imm)
	require.Equal(t, int32(-2048), instrs[1].Imm)
}

func TestAddLiLarge(t *testing.T) {
	s := newTestSection(0)
	s.AddLi(RegA0, 0x12345)

	instrs := collectInstrs(s)
	require.Len(t, instrs, 2)
	require.Equal(t, Lui, instrs[0].Itype)
	require.Equal(t, int32(0x12), instrs[0].Imm)
	require.Equal(t, Addi, instrs[1].Itype)
	require.Equal(t, int32(0x345), instrs[1].Imm)
}

func TestAddLiCarry(t *testing.T) {
	// 0x12801's low 12 bits exceed 0x800, so the lui half must carry.
	s := newTestSection(0)
	s.AddLi(RegA0, 0x12801)

	instrs := collectInstrs(s)
	require.Len(t, instrs, 2)
	require.Equal(t, int32(0x13), instrs[0].Imm)
	require.Equal(t, int32(0x12801-0x13000), instrs[1].Imm)

	// The reconstruction must hold for the boundary exactly at 2048.
	s = newTestSection(0)
	s.AddLi(RegA0, 2048)
	instrs = collectInstrs(s)
	require.Len(t, instrs, 2)
	require.Equal(t, int32(1), instrs[0].Imm)
	require.Equal(t, int32(-2048), instrs[1].Imm)
}

func TestAddKnownJal(t *testing.T) {
	s := newTestSection(0)
	require.NoError(t, s.AddKnownJal(RegRA, 2048))

	err := s.AddKnownJal(RegRA, 3)
	require.Error(t, err)
	require.Equal(t, diag.KindAssertionFailed, diag.KindOf(err))

	err = s.AddKnownJal(RegRA, 1<<20)
	require.Error(t, err)
	require.Equal(t, diag.KindJumpTooFar, diag.KindOf(err))

	err = s.AddKnownJal(RegRA, -(1<<20)-2)
	require.Error(t, err)
	require.Equal(t, diag.KindJumpTooFar, diag.KindOf(err))
}

func TestAddLdrcFInternsConstants(t *testing.T) {
	s := newTestSection(2)
	s.AddLdrcF(Reg(VirtStart), s.AcquireReg(), 2.5)
	s.AddLdrcF(Reg(VirtStart+1), s.AcquireReg(), 2.5)
	require.Len(t, s.Constants.Real, 1)

	s.AddLdrcF(Reg(VirtStart), s.AcquireReg(), 3.5)
	require.Len(t, s.Constants.Real, 2)
}

func TestIRRegisterMapping(t *testing.T) {
	require.Equal(t, RegGlobal, IRToReg(ir.RegGlobal))
	require.Equal(t, RegLocal, IRToReg(ir.RegLocal))
	require.Equal(t, RegStack, IRToReg(ir.RegStack))
	require.Equal(t, Reg(VirtStart), IRToReg(ir.TempStart))
	require.Equal(t, Reg(VirtStart+5), IRToReg(ir.TempStart+5))
}
