package rv32

// Peephole runs the one-instruction-window cleanup over a section after
// allocation: moves of a register onto itself are deleted. The canonical
// nop (addi x0, x0, 0) is kept, because the encoder rewrites the nop that
// follows a conditional branch when the branch needs long-form expansion.
func Peephole(s *Section) {
	for ptr := s.FirstOp; ptr != NilOp; {
		op := s.At(ptr)
		next := op.Next
		if op.Kind == OpInstr {
			i := &op.Instr
			if i.Itype == Addi && i.Etype == EtypeI && i.Imm == 0 &&
				i.Rd == i.Rs1 && i.Rd != RegZero {
				s.Unlink(ptr)
			}
			// FP sign-injection moves of a register onto itself.
			if (i.Itype == FsgnjD || i.Itype == FsgnjS) && i.Rd == i.Rs1 && i.Rs1 == i.Rs2 {
				s.Unlink(ptr)
			}
		}
		ptr = next
	}
}
