package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/diag"
)

func instr(op Opcode, operands ...Operand) Op {
	o := Op{Kind: OpKindInstr, Instr: Instr{Opcode: op}}
	copy(o.Instr.Operands[:], operands)
	return o
}

func reg(r uint32) Operand   { return Operand{Reg: r} }
func imm(v int32) Operand    { return Operand{Imm: v} }
func label(l uint32) Operand { return Operand{Label: l} }

func TestParseRulesRejectsUnknownOpcode(t *testing.T) {
	_, err := ParseRules([]RuleRaw{{Text: "frobnicate *, *", Action: func(*Section, int) error { return nil }}})
	require.Error(t, err)
	require.Equal(t, diag.KindAssertionFailed, diag.KindOf(err))
}

func TestParseRulesOperandCount(t *testing.T) {
	_, err := ParseRules([]RuleRaw{{Text: "movii32 *", Action: func(*Section, int) error { return nil }}})
	require.Error(t, err)
}

func TestMatchFirstRuleWins(t *testing.T) {
	var got []string
	record := func(name string) Action {
		return func(s *Section, pc int) error {
			got = append(got, name)
			return nil
		}
	}
	rules, err := ParseRules([]RuleRaw{
		{Text: "movii32 *, #0", Action: record("zero")},
		{Text: "movii32 *, *", Action: record("any")},
	})
	require.NoError(t, err)

	s := &Section{Ops: []Op{
		instr(OpMovII32, reg(3), imm(0)),
		instr(OpMovII32, reg(4), imm(7)),
	}}
	require.NoError(t, Match(s, rules))
	require.Equal(t, []string{"zero", "any"}, got)
}

func TestMatchFloatingCapturesMustAgree(t *testing.T) {
	matched := 0
	rules, err := ParseRules([]RuleRaw{
		{
			Text: "gtii32 r_1, *, *\njmpc r_1, label_1, *\nlabel_1",
			Action: func(s *Section, pc int) error {
				matched++
				return nil
			},
		},
		{Text: "gtii32 *, *, *", Action: func(s *Section, pc int) error { return nil }},
		{Text: "jmpc *, *, *", Action: func(s *Section, pc int) error { return nil }},
		{Text: "label_1", Action: func(s *Section, pc int) error { return nil }},
	})
	require.NoError(t, err)

	// Condition register and branch register agree, and the true label
	// follows: the fused rule fires.
	s := &Section{Ops: []Op{
		instr(OpGtII32, reg(4), reg(3), imm(0)),
		instr(OpJmpc, reg(4), label(1), label(2)),
		{Kind: OpKindLabel, Label: 1},
	}}
	require.NoError(t, Match(s, rules))
	require.Equal(t, 1, matched)

	// Different condition register: the fused rule must not fire.
	matched = 0
	s = &Section{Ops: []Op{
		instr(OpGtII32, reg(4), reg(3), imm(0)),
		instr(OpJmpc, reg(5), label(1), label(2)),
		{Kind: OpKindLabel, Label: 1},
	}}
	require.NoError(t, Match(s, rules))
	require.Zero(t, matched)
}

func TestMatchSkipsNops(t *testing.T) {
	calls := 0
	rules, err := ParseRules([]RuleRaw{
		{Text: "end", Action: func(s *Section, pc int) error { calls++; return nil }},
	})
	require.NoError(t, err)

	s := &Section{Ops: []Op{
		instr(OpNop),
		instr(OpEnd),
	}}
	require.NoError(t, Match(s, rules))
	require.Equal(t, 1, calls)
}

func TestMatchMissingPatternIsAssertion(t *testing.T) {
	rules, err := ParseRules([]RuleRaw{
		{Text: "end", Action: func(s *Section, pc int) error { return nil }},
	})
	require.NoError(t, err)

	s := &Section{Ops: []Op{instr(OpMovII32, reg(3), imm(1))}}
	err = Match(s, rules)
	require.Error(t, err)
	require.Equal(t, diag.KindAssertionFailed, diag.KindOf(err))
}

func TestMatchCallKinds(t *testing.T) {
	var kinds []OpKind
	rules, err := ParseRules([]RuleRaw{
		{Text: "calli32", Action: func(s *Section, pc int) error {
			kinds = append(kinds, s.Ops[pc].Kind)
			return nil
		}},
		{Text: "call", Action: func(s *Section, pc int) error {
			kinds = append(kinds, s.Ops[pc].Kind)
			return nil
		}},
	})
	require.NoError(t, err)

	s := &Section{Ops: []Op{
		{Kind: OpKindCall},
		{Kind: OpKindCallI32},
	}}
	require.NoError(t, Match(s, rules))
	require.Equal(t, []OpKind{OpKindCall, OpKindCallI32}, kinds)
}
