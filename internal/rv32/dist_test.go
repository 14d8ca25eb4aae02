package rv32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextUseFindsRead(t *testing.T) {
	s := newTestSection(2)
	v0, v1 := Reg(VirtStart), Reg(VirtStart+1)
	s.AddLi(v0, 1)              // def v0
	s.AddNop()                  // 0
	s.AddNop()                  // 1
	s.AddIType(Addi, v1, v0, 2) // read v0 at distance 2

	from := s.At(s.FirstOp).Next
	require.Equal(t, 2, intNextUse(s, v0, from, NilOp, 0))
}

func TestNextUseWriteKillsValue(t *testing.T) {
	s := newTestSection(2)
	v0 := Reg(VirtStart)
	s.AddNop()
	s.AddLi(v0, 3)              // write before any read
	s.AddIType(Addi, v0, v0, 1) // read, but only after the write

	from := s.At(s.FirstOp).Next
	require.Equal(t, -1, intNextUse(s, v0, from, NilOp, 0))
}

func TestNextUseUnreferenced(t *testing.T) {
	s := newTestSection(1)
	s.AddNop()
	s.AddNop()
	require.Equal(t, -1, intNextUse(s, Reg(VirtStart), s.FirstOp, NilOp, 0))
}

func TestNextUseReadAndWriteSameInstr(t *testing.T) {
	// addi v0, v0, 1 both reads and writes v0: the read wins, so the value
	// is still live.
	s := newTestSection(1)
	v0 := Reg(VirtStart)
	s.AddIType(Addi, v0, v0, 1)
	require.Equal(t, 0, intNextUse(s, v0, s.FirstOp, NilOp, 0))
}

func TestNextUseStopsAtBound(t *testing.T) {
	s := newTestSection(1)
	v0 := Reg(VirtStart)
	s.AddNop()
	bound := s.LastOp
	s.AddIType(Addi, v0, v0, 1) // beyond the bound

	require.Equal(t, -1, intNextUse(s, v0, s.FirstOp, bound, 0))
}

func TestRealNextUseTracksFPClass(t *testing.T) {
	s := newTestSection(1)
	fv := Reg(VirtStart)
	// An integer instruction does not touch the float namespace.
	s.AddIType(Addi, Reg(VirtStart), RegZero, 1)
	s.AddRealRType(FaddD, Reg(VirtStart+1), fv, fv)

	require.Equal(t, 1, realNextUse(s, fv, s.FirstOp, NilOp, 0))
}

func TestFcvtCrossesClasses(t *testing.T) {
	iv, fv := Reg(VirtStart), Reg(VirtStart)
	i := &Instr{Itype: FcvtWD, Etype: EtypeRealR, Rd: iv, Rs1: fv}

	require.True(t, writesInt(i, iv))
	require.False(t, readsInt(i, fv))
	require.True(t, readsReal(i, fv))
	require.False(t, writesReal(i, iv))

	j := &Instr{Itype: FcvtDW, Etype: EtypeRealR, Rd: fv, Rs1: iv}
	require.True(t, readsInt(j, iv))
	require.True(t, writesReal(j, fv))
	require.False(t, writesInt(j, fv))
}
