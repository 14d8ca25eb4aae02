package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleProgram = `
# a tiny program
section main locals=8
	movii32 r3, 10
	label_0
	subii32 r3, r3, 1
	calli32 r4, @addone, r3
	gtii32 r5, r4, 0
	jmpc r5, label_0, label_1
	label_1
	end

section addone iargs=1 ret=i32
	addii32 r4, r3, 1
	reti32 r4

data double 2.5
data bytes 68 69 00
`

func TestParseText(t *testing.T) {
	p, err := ParseText(strings.NewReader(sampleProgram))
	require.NoError(t, err)

	require.Equal(t, []string{"main", "addone"}, p.Names)
	require.Len(t, p.Sections, 2)

	main := p.Sections[0]
	require.Equal(t, int32(8), main.Locals)
	require.Equal(t, SectionIR, main.Kind)
	require.Equal(t, uint32(2), main.LabelCounter)

	// movii32, label, subii32, calli32, gtii32, jmpc, label, end.
	require.Len(t, main.Ops, 8)
	require.Equal(t, OpKindLabel, main.Ops[1].Kind)

	call := main.Ops[3]
	require.Equal(t, OpKindCallI32, call.Kind)
	require.Equal(t, uint32(1), call.Call.Target)
	require.Equal(t, uint32(4), call.Call.ResultReg)
	require.Equal(t, []Arg{{Reg: 3}}, call.Call.Args)

	addone := p.Sections[1]
	require.Equal(t, 1, addone.SType.IntArgs)
	require.Equal(t, TypeI32, addone.SType.Ret)
	require.Equal(t, uint32(TempStart+1+1), addone.RegCounter)

	require.Len(t, p.Constants, 2)
	require.True(t, p.Constants[0].IsDouble)
	require.Len(t, p.Constants[0].Data, 8)
	require.Equal(t, []byte{0x68, 0x69, 0}, p.Constants[1].Data)
}

func TestParseTextUnknownCallTarget(t *testing.T) {
	_, err := ParseText(strings.NewReader("section main\ncall @missing\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestParseTextOpBeforeSection(t *testing.T) {
	_, err := ParseText(strings.NewReader("movii32 r3, 1\n"))
	require.Error(t, err)
}

func TestParseTextBadOperand(t *testing.T) {
	_, err := ParseText(strings.NewReader("section main\nmovii32 r3\n"))
	require.Error(t, err)
}
