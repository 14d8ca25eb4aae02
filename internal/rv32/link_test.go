package rv32

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

func TestHiLoSplitReconstructs(t *testing.T) {
	for _, dist := range []int32{
		0, 4, 8, 0x7ff, 0x800, 0x801, 0xfff, 0x1000, 0x12345, 0x12801,
		-4, -0x800, -0x801, -0x12345, 0x7ffff000, -0x7ffff000,
	} {
		hi, lo := hiLoSplit(dist)
		// The low half sign-extends, as in the addi/fld immediate field.
		signext := int32(lo<<20) >> 20
		require.Equal(t, dist, int32(hi)+signext, "dist=%#x", dist)
		require.Zero(t, hi&0xfff)
	}
}

func TestLinkConstantFixup(t *testing.T) {
	s := newTestSection(0)
	s.AddLC(RegA0, 0)

	link := NewLinker(1)
	enc := NewEncoder(link)
	link.SetSectionOffset(0, 0)
	require.NoError(t, enc.EncodeSection(s))
	code := enc.Bytes()

	require.NoError(t, link.Apply(code, []int{0x2000}, 0x10074))

	auipc := binary.LittleEndian.Uint32(code)
	addi := binary.LittleEndian.Uint32(code[4:])
	require.Equal(t, uint32(0x2000), auipc&0xfffff000)
	require.Equal(t, uint32(0), addi>>20)
}

func TestLinkExtRefFixup(t *testing.T) {
	pool := NewOpPool()
	s0 := NewSection(pool, ir.TypeSig{}, 3, 0, 0, 0)
	s0.AddLP(RegA0, 1)
	s1 := NewSection(pool, ir.TypeSig{}, 3, 0, 0, 0)
	s1.AddNop()

	link := NewLinker(2)
	enc := NewEncoder(link)
	link.SetSectionOffset(0, 0)
	require.NoError(t, enc.EncodeSection(s0))
	link.SetSectionOffset(1, len(enc.Bytes()))
	require.NoError(t, enc.EncodeSection(s1))

	code := enc.Bytes()
	require.NoError(t, link.Apply(code, nil, 0x10074))

	auipc := binary.LittleEndian.Uint32(code)
	addi := binary.LittleEndian.Uint32(code[4:])
	// Section 1 starts at byte 8; the pair is at 0.
	require.Equal(t, uint32(0), auipc&0xfffff000)
	require.Equal(t, uint32(8), addi>>20)
}

func TestLinkUnknownConstant(t *testing.T) {
	s := newTestSection(0)
	s.AddLC(RegA0, 3)

	link := NewLinker(1)
	enc := NewEncoder(link)
	link.SetSectionOffset(0, 0)
	require.NoError(t, enc.EncodeSection(s))

	err := link.Apply(enc.Bytes(), []int{0}, 0x10074)
	require.Error(t, err)
	require.Equal(t, diag.KindAssertionFailed, diag.KindOf(err))
}

func TestLinkGlobalBase(t *testing.T) {
	s := newTestSection(0)
	s.AddLG(RegGlobal)
	s.AddNop()

	link := NewLinker(1)
	enc := NewEncoder(link)
	link.SetSectionOffset(0, 0)
	require.NoError(t, enc.EncodeSection(s))
	code := enc.Bytes()

	require.NoError(t, link.Apply(code, nil, 0x10074))

	// The image is 12 bytes; the globals base is its 4-aligned end.
	base := uint32(0x10074 + 12)
	hi, lo := hiLoSplit(int32(base))
	lui := binary.LittleEndian.Uint32(code)
	addi := binary.LittleEndian.Uint32(code[4:])
	require.Equal(t, hi, lui&0xfffff000)
	require.Equal(t, lo, addi>>20)
}
