package rv32

import (
	"errors"

	"github.com/basil-lang/basil/internal/diag"
)

// ErrStopWalk tells Walk to stop early. Walk returns it to its caller so
// visitors that search for something can distinguish "found" from "walked
// off the end", in the manner of fs.SkipAll.
var ErrStopWalk = errors.New("stop walking")

// Visitor receives one callback per op kind during a walk. Callbacks may
// mutate the section, including inserting ops before the visited one; the
// walker re-reads the links after every callback.
type Visitor interface {
	Label(opIdx int, label uint32) error
	Directive(opIdx int, op *Op) error
	R(opIdx int, i *Instr) error
	I(opIdx int, i *Instr) error
	SB(opIdx int, i *Instr) error
	UJ(opIdx int, i *Instr) error
	RealR(opIdx int, i *Instr) error
	RealR4(opIdx int, i *Instr) error
	RealI(opIdx int, i *Instr) error
	RealS(opIdx int, i *Instr) error
	LdrcF(opIdx int, i *Instr) error
}

// NopVisitor implements Visitor with no-ops, for embedding.
type NopVisitor struct{}

func (NopVisitor) Label(int, uint32) error  { return nil }
func (NopVisitor) Directive(int, *Op) error { return nil }
func (NopVisitor) R(int, *Instr) error      { return nil }
func (NopVisitor) I(int, *Instr) error      { return nil }
func (NopVisitor) SB(int, *Instr) error     { return nil }
func (NopVisitor) UJ(int, *Instr) error     { return nil }
func (NopVisitor) RealR(int, *Instr) error  { return nil }
func (NopVisitor) RealR4(int, *Instr) error { return nil }
func (NopVisitor) RealI(int, *Instr) error  { return nil }
func (NopVisitor) RealS(int, *Instr) error  { return nil }
func (NopVisitor) LdrcF(int, *Instr) error  { return nil }

func visitInstr(v Visitor, ptr int, i *Instr) error {
	switch i.Etype {
	case EtypeR:
		return v.R(ptr, i)
	case EtypeI:
		return v.I(ptr, i)
	case EtypeS, EtypeB:
		return v.SB(ptr, i)
	case EtypeU, EtypeJ:
		return v.UJ(ptr, i)
	case EtypeRealR:
		return v.RealR(ptr, i)
	case EtypeRealR4:
		return v.RealR4(ptr, i)
	case EtypeRealI:
		return v.RealI(ptr, i)
	case EtypeRealS:
		return v.RealS(ptr, i)
	case EtypeLdrcF:
		return v.LdrcF(ptr, i)
	default:
		return diag.Errorf(diag.KindAssertionFailed, "unknown encoding %d", i.Etype)
	}
}

func walk(s *Section, v Visitor, from, to int) error {
	for ptr := from; ptr != NilOp; {
		op := s.At(ptr)
		var err error
		switch op.Kind {
		case OpLabel:
			err = v.Label(ptr, op.Label)
		case OpInstr:
			err = visitInstr(v, ptr, &op.Instr)
		case OpAlign, OpByte, OpTwoByte, OpFourByte, OpDouble, OpFloat, OpString:
			err = v.Directive(ptr, op)
		default:
			err = diag.Errorf(diag.KindAssertionFailed, "unknown op kind %d", op.Kind)
		}
		if err != nil {
			return err
		}
		if ptr == to {
			break
		}
		// Re-resolve: the callback may have grown the pool or relinked the
		// list.
		ptr = s.At(ptr).Next
	}
	return nil
}

// Walk visits the whole section in order.
func Walk(s *Section, v Visitor) error {
	return walk(s, v, s.FirstOp, NilOp)
}

// WalkFrom visits from (inclusive) to the end of the section.
func WalkFrom(s *Section, v Visitor, from int) error {
	return walk(s, v, from, NilOp)
}

// WalkFromTo visits from through to, both inclusive. A NilOp bound means
// the end of the section.
func WalkFromTo(s *Section, v Visitor, from, to int) error {
	return walk(s, v, from, to)
}
