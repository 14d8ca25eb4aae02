package rv32

import (
	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

// Lowering of IR to machine instructions. Every rule action appends to the
// current machine section and still speaks virtual registers; physical
// assignment happens later. Comparison results follow the language's truth
// convention: -1 for true, 0 for false.

// genState is the mutable target of the rule actions; the driver points it
// at each section in turn so the rule table is compiled only once.
type genState struct {
	rvs *Section
}

type genAction func(s *ir.Section, pc int, rvs *Section) error

func (g *genState) bind(action genAction) ir.Action {
	return func(s *ir.Section, pc int) error {
		return action(s, pc, g.rvs)
	}
}

func srcReg(op *ir.Op, idx int) Reg  { return IRToReg(op.Instr.Operands[idx].Reg) }
func srcImm(op *ir.Op, idx int) int32 {
	return op.Instr.Operands[idx].Imm
}

func fitsImm12(v int32) bool { return v >= MinOffset && v <= MaxOffset }

func genMovII32(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rvs.AddLi(srcReg(op, 0), srcImm(op, 1))
	return nil
}

func genMov(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rvs.AddMv(srcReg(op, 0), srcReg(op, 1))
	return nil
}

// genRegRegReg lowers the plain three-register ALU forms.
func genRegRegReg(itype Itype) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		rvs.AddRType(itype, srcReg(op, 0), srcReg(op, 1), srcReg(op, 2))
		return nil
	}
}

// genRegRegImm lowers "rd = rs1 op imm", using the I-type form when the
// immediate fits and a materialised temporary otherwise.
func genRegRegImm(near Itype, far Itype, negate bool) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		rd, rs1, imm := srcReg(op, 0), srcReg(op, 1), srcImm(op, 2)
		if negate {
			imm = -imm
		}
		if near != itypeCount && fitsImm12(imm) {
			rvs.AddIType(near, rd, rs1, imm)
			return nil
		}
		if negate {
			imm = -imm
		}
		tmp := rvs.AcquireReg()
		rvs.AddLi(tmp, imm)
		rvs.AddRType(far, rd, rs1, tmp)
		return nil
	}
}

func genRSubII32(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rd, rs1, imm := srcReg(op, 0), srcReg(op, 1), srcImm(op, 2)
	tmp := rvs.AcquireReg()
	rvs.AddLi(tmp, imm)
	rvs.AddRType(Sub, rd, tmp, rs1)
	return nil
}

func genDivII32(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	if srcImm(op, 2) == 0 {
		return diag.Errorf(diag.KindDivideByZero, "division by zero constant")
	}
	return genRegRegImm(itypeCount, Div, false)(s, pc, rvs)
}

func genNotI32(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rvs.AddIType(Xori, srcReg(op, 0), srcReg(op, 1), -1)
	return nil
}

// Comparisons. slt leaves 0/1; the fix-ups below turn that into the 0/-1
// truth values the front end expects.

// negToTruth turns 1 into -1.
func negToTruth(rvs *Section, rd Reg) { rvs.AddRType(Sub, rd, RegZero, rd) }

// decToTruth turns 0 into -1 and 1 into 0, inverting the comparison.
func decToTruth(rvs *Section, rd Reg) { rvs.AddIType(Addi, rd, rd, -1) }

type cmpKind int

const (
	cmpGt cmpKind = iota
	cmpLt
	cmpGte
	cmpLte
	cmpEq
	cmpNeq
)

func emitCmp(rvs *Section, kind cmpKind, rd, a, b Reg) {
	switch kind {
	case cmpGt:
		rvs.AddRType(Slt, rd, b, a)
		negToTruth(rvs, rd)
	case cmpLt:
		rvs.AddRType(Slt, rd, a, b)
		negToTruth(rvs, rd)
	case cmpGte:
		rvs.AddRType(Slt, rd, a, b)
		decToTruth(rvs, rd)
	case cmpLte:
		rvs.AddRType(Slt, rd, b, a)
		decToTruth(rvs, rd)
	case cmpEq:
		rvs.AddRType(Sub, rd, a, b)
		rvs.AddRType(Sltu, rd, RegZero, rd)
		decToTruth(rvs, rd)
	case cmpNeq:
		rvs.AddRType(Sub, rd, a, b)
		rvs.AddRType(Sltu, rd, RegZero, rd)
		negToTruth(rvs, rd)
	}
}

func genCmp(kind cmpKind) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		emitCmp(rvs, kind, srcReg(op, 0), srcReg(op, 1), srcReg(op, 2))
		return nil
	}
}

func genCmpImm(kind cmpKind) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		rd, a, imm := srcReg(op, 0), srcReg(op, 1), srcImm(op, 2)
		tmp := rvs.AcquireReg()
		rvs.AddLi(tmp, imm)
		emitCmp(rvs, kind, rd, a, tmp)
		return nil
	}
}

// Loads and stores.

func genLoad(itype Itype) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		rd, base, offset := srcReg(op, 0), srcReg(op, 1), srcImm(op, 2)
		if !fitsImm12(offset) {
			tmp := rvs.AcquireReg()
			rvs.AddLi(tmp, offset)
			rvs.AddRType(Add, tmp, tmp, base)
			base, offset = tmp, 0
		}
		rvs.AddIType(itype, rd, base, offset)
		return nil
	}
}

func genStore(itype Itype) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		op := &s.Ops[pc]
		val, base, offset := srcReg(op, 0), srcReg(op, 1), srcImm(op, 2)
		if !fitsImm12(offset) {
			tmp := rvs.AcquireReg()
			rvs.AddLi(tmp, offset)
			rvs.AddRType(Add, tmp, tmp, base)
			base, offset = tmp, 0
		}
		rvs.AddSType(itype, base, val, offset)
		return nil
	}
}

// Control flow. Every conditional branch is followed by a reserved nop the
// encoder can rewrite into a jal when the displacement outgrows the B-type
// immediate.

func (g *genState) branch(itype Itype, rs1, rs2 Reg, label uint32) {
	g.rvs.AddBType(itype, rs1, rs2, label)
	g.rvs.AddNop()
}

func genLabel(s *ir.Section, pc int, rvs *Section) error {
	rvs.AddLabel(s.Ops[pc].Label)
	return nil
}

func genJmp(s *ir.Section, pc int, rvs *Section) error {
	rvs.AddJal(RegZero, s.Ops[pc].Instr.Operands[0].Label)
	return nil
}

// reverseCond maps a comparison to the branch taken when it is false.
func reverseCond(kind cmpKind) Itype {
	switch kind {
	case cmpGt:
		return Bge // a > b false => b >= a, swapped below
	case cmpLt:
		return Bge
	case cmpGte:
		return Blt
	case cmpLte:
		return Blt
	case cmpEq:
		return Bne
	default:
		return Beq
	}
}

// cmpOperands returns the branch source order for a comparison: the
// swapped forms route through the same four branch instructions.
func cmpOperands(kind cmpKind, a, b Reg) (Reg, Reg) {
	switch kind {
	case cmpGt, cmpLte:
		return b, a
	default:
		return a, b
	}
}

// genFusedCmpBranch lowers "cmp r; jmpc r, label_t, label_f; label_t" to a
// single branch to label_f on the opposite condition, re-emitting the
// window's trailing label.
func (g *genState) genFusedCmpBranch(kind cmpKind, imm bool) genAction {
	return func(s *ir.Section, pc int, rvs *Section) error {
		cmp := &s.Ops[pc]
		jmpc := &s.Ops[pc+1]
		trueLabel := jmpc.Instr.Operands[1].Label
		falseLabel := jmpc.Instr.Operands[2].Label

		a := srcReg(cmp, 1)
		var b Reg
		if imm {
			b = rvs.AcquireReg()
			rvs.AddLi(b, srcImm(cmp, 2))
		} else {
			b = srcReg(cmp, 2)
		}

		rs1, rs2 := cmpOperands(kind, a, b)
		g.branch(reverseCond(kind), rs1, rs2, falseLabel)
		rvs.AddLabel(trueLabel)
		return nil
	}
}

// genJmpc lowers "jmpc r, label_t, label_f; label_t": branch to label_f
// when the condition register is false.
func (g *genState) genJmpc(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	cond := srcReg(op, 0)
	g.branch(Beq, cond, RegZero, op.Instr.Operands[2].Label)
	rvs.AddLabel(op.Instr.Operands[1].Label)
	return nil
}

// genJmpcRev lowers "jmpc r, label_t, label_f; label_f".
func (g *genState) genJmpcRev(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	cond := srcReg(op, 0)
	g.branch(Bne, cond, RegZero, op.Instr.Operands[1].Label)
	rvs.AddLabel(op.Instr.Operands[2].Label)
	return nil
}

// genJmpcNoLabel lowers a conditional jump with no adjacent target.
func (g *genState) genJmpcNoLabel(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	cond := srcReg(op, 0)
	g.branch(Bne, cond, RegZero, op.Instr.Operands[1].Label)
	rvs.AddJal(RegZero, op.Instr.Operands[2].Label)
	return nil
}

// Calls. The first eight integer arguments travel in a0-a7, the first
// eight reals in fa0-fa7; the overflow is pushed just below the caller's
// stack pointer for the callee to find above its frame.

func marshalArgs(rvs *Section, args []ir.Arg) (pop func()) {
	intIdx, realIdx := 0, 0
	var intOverflow, realOverflow []Reg

	for _, a := range args {
		if a.IsReal {
			if realIdx < MaxRegArgs {
				rvs.AddRealMv(RegFA0+Reg(realIdx), IRToRealReg(a.Reg))
			} else {
				realOverflow = append(realOverflow, IRToRealReg(a.Reg))
			}
			realIdx++
		} else {
			if intIdx < MaxRegArgs {
				rvs.AddMv(RegA0+Reg(intIdx), IRToReg(a.Reg))
			} else {
				intOverflow = append(intOverflow, IRToReg(a.Reg))
			}
			intIdx++
		}
	}

	if len(intOverflow) == 0 && len(realOverflow) == 0 {
		return func() {}
	}

	// The overflow area holds the real arguments first, then the integer
	// ones, mirroring how the callee lays out its frame. Keep the stack
	// pointer 8-byte aligned.
	realBytes := int32(len(realOverflow)) * 8
	total := realBytes + int32(len(intOverflow))*4
	if total&7 != 0 {
		total += 4
	}

	for i, reg := range realOverflow {
		rvs.AddRealSType(Fsd, RegStack, reg, int32(i)*8-total)
	}
	for i, reg := range intOverflow {
		rvs.AddSType(Sw, RegStack, reg, realBytes+int32(i)*4-total)
	}
	rvs.AddIType(Addi, RegStack, RegStack, -total)
	return func() {
		rvs.AddIType(Addi, RegStack, RegStack, total)
	}
}

func genCall(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	pop := marshalArgs(rvs, op.Call.Args)
	rvs.AddCall(op.Call.Target)
	pop()
	if op.Kind == ir.OpKindCallI32 {
		rvs.AddMv(IRToReg(op.Call.ResultReg), RegA0)
	}
	return nil
}

func genCallPtr(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	pop := marshalArgs(rvs, op.Call.Args)
	rvs.AddIType(Jalr, RegRA, IRToReg(op.Call.PtrReg), 0)
	pop()
	if op.Kind == ir.OpKindCallI32Ptr {
		rvs.AddMv(IRToReg(op.Call.ResultReg), RegA0)
	}
	return nil
}

// Returns. The frame size is unknown until allocation finishes, so each
// return site reserves a lui/addi pair that the driver patches later.

func genRetEpilogue(rvs *Section) {
	rvs.AddUType(Lui, RegT0, 0)
	rvs.RetSites = append(rvs.RetSites, rvs.LastOp)
	rvs.AddIType(Addi, RegT0, RegT0, 0)
	rvs.AddRType(Add, RegStack, RegStack, RegT0)
	rvs.AddIType(Jalr, RegZero, RegRA, 0)
}

func genRet(s *ir.Section, pc int, rvs *Section) error {
	genRetEpilogue(rvs)
	return nil
}

func genRetI32(s *ir.Section, pc int, rvs *Section) error {
	rvs.AddMv(RegA0, srcReg(&s.Ops[pc], 0))
	genRetEpilogue(rvs)
	return nil
}

func genRetII32(s *ir.Section, pc int, rvs *Section) error {
	rvs.AddLi(RegA0, srcImm(&s.Ops[pc], 0))
	genRetEpilogue(rvs)
	return nil
}

// Address material.

func genLca(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rvs.AddLC(srcReg(op, 0), uint32(srcImm(op, 1)))
	return nil
}

func genGetProcAddr(s *ir.Section, pc int, rvs *Section) error {
	op := &s.Ops[pc]
	rvs.AddLP(srcReg(op, 0), uint32(srcImm(op, 1)))
	return nil
}

// genEnd emits the process coda: exit(0).
func genEnd(s *ir.Section, pc int, rvs *Section) error {
	rvs.AddMv(RegA0, RegZero)
	rvs.AddLi(RegA7, 93)
	rvs.AddEcall()
	return nil
}

// bareRules is the rule corpus for the bare-metal Linux target, tried in
// order; the fused compare-and-branch forms come first so they take
// precedence over the standalone comparisons.
func (g *genState) bareRules() []ir.RuleRaw {
	fused := func(name string, kind cmpKind, imm bool) ir.RuleRaw {
		return ir.RuleRaw{
			Text:   name + " r_1, *, *\njmpc r_1, label_1, *\nlabel_1",
			Action: g.bind(g.genFusedCmpBranch(kind, imm)),
		}
	}

	return []ir.RuleRaw{
		fused("ltii32", cmpLt, true),
		fused("gtii32", cmpGt, true),
		fused("lteii32", cmpLte, true),
		fused("gteii32", cmpGte, true),
		fused("eqii32", cmpEq, true),
		fused("neqii32", cmpNeq, true),
		fused("lti32", cmpLt, false),
		fused("gti32", cmpGt, false),
		fused("ltei32", cmpLte, false),
		fused("gtei32", cmpGte, false),
		fused("eqi32", cmpEq, false),
		fused("neqi32", cmpNeq, false),

		{Text: "jmpc *, label_1, *\nlabel_1", Action: g.bind(g.genJmpc)},
		{Text: "jmpc *, *, label_1\nlabel_1", Action: g.bind(g.genJmpcRev)},
		{Text: "jmpc *, *, *", Action: g.bind(g.genJmpcNoLabel)},
		{Text: "jmpcnf *, *, *", Action: g.bind(g.genJmpcNoLabel)},

		{Text: "call", Action: g.bind(genCall)},
		{Text: "calli32", Action: g.bind(genCall)},
		{Text: "callptr", Action: g.bind(genCallPtr)},
		{Text: "calli32ptr", Action: g.bind(genCallPtr)},
		{Text: "ret", Action: g.bind(genRet)},
		{Text: "reti32 *", Action: g.bind(genRetI32)},
		{Text: "retii32 *", Action: g.bind(genRetII32)},

		{Text: "mov *, *", Action: g.bind(genMov)},
		{Text: "movii32 *, *", Action: g.bind(genMovII32)},
		{Text: "addii32 *, *, *", Action: g.bind(genRegRegImm(Addi, Add, false))},
		{Text: "subii32 *, *, *", Action: g.bind(genRegRegImm(Addi, Sub, true))},
		{Text: "rsubii32 *, *, *", Action: g.bind(genRSubII32)},
		{Text: "mulii32 *, *, *", Action: g.bind(genRegRegImm(itypeCount, Mul, false))},
		{Text: "divii32 *, *, *", Action: g.bind(genDivII32)},
		{Text: "addi32 *, *, *", Action: g.bind(genRegRegReg(Add))},
		{Text: "subi32 *, *, *", Action: g.bind(genRegRegReg(Sub))},
		{Text: "muli32 *, *, *", Action: g.bind(genRegRegReg(Mul))},
		{Text: "divi32 *, *, *", Action: g.bind(genRegRegReg(Div))},
		{Text: "modi32 *, *, *", Action: g.bind(genRegRegReg(Rem))},

		{Text: "andii32 *, *, *", Action: g.bind(genRegRegImm(Andi, And, false))},
		{Text: "orii32 *, *, *", Action: g.bind(genRegRegImm(Ori, Or, false))},
		{Text: "eorii32 *, *, *", Action: g.bind(genRegRegImm(Xori, Xor, false))},
		{Text: "andi32 *, *, *", Action: g.bind(genRegRegReg(And))},
		{Text: "ori32 *, *, *", Action: g.bind(genRegRegReg(Or))},
		{Text: "eori32 *, *, *", Action: g.bind(genRegRegReg(Xor))},
		{Text: "noti32 *, *", Action: g.bind(genNotI32)},

		{Text: "lslii32 *, *, *", Action: g.bind(genRegRegImm(Slli, Sll, false))},
		{Text: "lsrii32 *, *, *", Action: g.bind(genRegRegImm(Srli, Srl, false))},
		{Text: "asrii32 *, *, *", Action: g.bind(genRegRegImm(Srai, Sra, false))},
		{Text: "lsli32 *, *, *", Action: g.bind(genRegRegReg(Sll))},
		{Text: "lsri32 *, *, *", Action: g.bind(genRegRegReg(Srl))},
		{Text: "asri32 *, *, *", Action: g.bind(genRegRegReg(Sra))},

		{Text: "gtii32 *, *, *", Action: g.bind(genCmpImm(cmpGt))},
		{Text: "ltii32 *, *, *", Action: g.bind(genCmpImm(cmpLt))},
		{Text: "gteii32 *, *, *", Action: g.bind(genCmpImm(cmpGte))},
		{Text: "lteii32 *, *, *", Action: g.bind(genCmpImm(cmpLte))},
		{Text: "eqii32 *, *, *", Action: g.bind(genCmpImm(cmpEq))},
		{Text: "neqii32 *, *, *", Action: g.bind(genCmpImm(cmpNeq))},
		{Text: "gti32 *, *, *", Action: g.bind(genCmp(cmpGt))},
		{Text: "lti32 *, *, *", Action: g.bind(genCmp(cmpLt))},
		{Text: "gtei32 *, *, *", Action: g.bind(genCmp(cmpGte))},
		{Text: "ltei32 *, *, *", Action: g.bind(genCmp(cmpLte))},
		{Text: "eqi32 *, *, *", Action: g.bind(genCmp(cmpEq))},
		{Text: "neqi32 *, *, *", Action: g.bind(genCmp(cmpNeq))},

		{Text: "loadoi8 *, *, *", Action: g.bind(genLoad(Lbu))},
		{Text: "loadoi32 *, *, *", Action: g.bind(genLoad(Lw))},
		{Text: "storeoi8 *, *, *", Action: g.bind(genStore(Sb))},
		{Text: "storeoi32 *, *, *", Action: g.bind(genStore(Sw))},

		{Text: "jmp *", Action: g.bind(genJmp)},
		{Text: "label_1", Action: g.bind(genLabel)},
		{Text: "lca *, *", Action: g.bind(genLca)},
		{Text: "getprocaddr *, *", Action: g.bind(genGetProcAddr)},
		{Text: "end", Action: g.bind(genEnd)},
	}
}
