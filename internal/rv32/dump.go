package rv32

import (
	"fmt"
	"strings"
)

var itypeNames = map[Itype]string{
	Addi: "addi", Slti: "slti", Sltiu: "sltiu", Andi: "andi", Ori: "ori",
	Xori: "xori", Slli: "slli", Srli: "srli", Srai: "srai", Lui: "lui",
	Auipc: "auipc", Add: "add", Slt: "slt", Sltu: "sltu", And: "and",
	Or: "or", Xor: "xor", Sll: "sll", Srl: "srl", Sub: "sub", Sra: "sra",
	Jal: "jal", Jalr: "jalr", Beq: "beq", Bne: "bne", Blt: "blt",
	Bltu: "bltu", Bge: "bge", Bgeu: "bgeu", Lw: "lw", Lh: "lh", Lhu: "lhu",
	Lb: "lb", Lbu: "lbu", Sw: "sw", Sh: "sh", Sb: "sb", Fence: "fence",
	Ecall: "ecall", Ebreak: "ebreak", Mul: "mul", Mulh: "mulh",
	Mulhsu: "mulhsu", Mulhu: "mulhu", Div: "div", Divu: "divu", Rem: "rem",
	Remu: "remu", LC: "lc", LP: "lp", LG: "lg", Flw: "flw", Fsw: "fsw",
	Fld: "fld", Fsd: "fsd", FaddD: "fadd.d", FsubD: "fsub.d",
	FmulD: "fmul.d", FdivD: "fdiv.d", FsqrtD: "fsqrt.d", FsgnjD: "fsgnj.d",
	FcvtWD: "fcvt.w.d", FcvtDW: "fcvt.d.w", FeqD: "feq.d", FltD: "flt.d",
	FleD: "fle.d",
}

func itypeName(t Itype) string {
	if n, ok := itypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("op%d", int(t))
}

// InstrString renders one instruction for diagnostics.
func InstrString(i *Instr) string {
	name := itypeName(i.Itype)
	switch i.Etype {
	case EtypeR, EtypeRealR:
		return fmt.Sprintf("%s %s, %s, %s", name, i.Rd, i.Rs1, i.Rs2)
	case EtypeRealR4:
		return fmt.Sprintf("%s %s, %s, %s, %s", name, i.Rd, i.Rs1, i.Rs2, i.Rs3)
	case EtypeI, EtypeRealI:
		return fmt.Sprintf("%s %s, %d(%s)", name, i.Rd, i.Imm, i.Rs1)
	case EtypeS, EtypeRealS:
		return fmt.Sprintf("%s %s, %d(%s)", name, i.Rs2, i.Imm, i.Rs1)
	case EtypeB:
		return fmt.Sprintf("%s %s, %s, label_%d", name, i.Rs1, i.Rs2, i.Label)
	case EtypeU:
		return fmt.Sprintf("%s %s, 0x%x", name, i.Rd, uint32(i.Imm))
	case EtypeJ:
		if i.IsLabel {
			return fmt.Sprintf("%s %s, label_%d", name, i.Rd, i.Label)
		}
		return fmt.Sprintf("%s %s, %d", name, i.Rd, i.Imm)
	case EtypeLdrcF:
		return fmt.Sprintf("ldrc.f %s, %s, label_%d", i.Rd, i.Rd2, i.Label)
	default:
		return name
	}
}

// String renders the section's op stream for diagnostics.
func (s *Section) String() string {
	var b strings.Builder
	for ptr := s.FirstOp; ptr != NilOp; ptr = s.At(ptr).Next {
		op := s.At(ptr)
		switch op.Kind {
		case OpLabel:
			fmt.Fprintf(&b, "label_%d:\n", op.Label)
		case OpInstr:
			fmt.Fprintf(&b, "\t%s\n", InstrString(&op.Instr))
		case OpAlign:
			fmt.Fprintf(&b, "\t.align %d\n", op.U32)
		case OpDouble:
			fmt.Fprintf(&b, "\t.double %v\n", op.F64)
		case OpFloat:
			fmt.Fprintf(&b, "\t.float %v\n", op.F32)
		case OpByte:
			fmt.Fprintf(&b, "\t.byte %d\n", op.U32&0xff)
		case OpTwoByte:
			fmt.Fprintf(&b, "\t.half %d\n", op.U32&0xffff)
		case OpFourByte:
			fmt.Fprintf(&b, "\t.word %d\n", op.U32)
		case OpString:
			fmt.Fprintf(&b, "\t.asciz %q\n", op.Str)
		}
	}
	return b.String()
}
