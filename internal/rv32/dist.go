package rv32

import "errors"

// The distance walkers answer "when is this register next used?" for the
// allocator, and "is this register's first reference a read?" for the
// liveness analysis. They stop the walk through ErrStopWalk as soon as the
// answer is known: a read leaves the running count in dist, a write (with
// no read in the same instruction) forces dist to -1, meaning the current
// value is dead from here.

// readsInt reports whether the instruction reads reg as an integer
// register, and writesInt whether it writes it.
func readsInt(i *Instr, reg Reg) bool {
	switch i.Etype {
	case EtypeR:
		return i.Rs1 == reg || i.Rs2 == reg
	case EtypeI:
		return i.Rs1 == reg
	case EtypeS, EtypeB:
		return i.Rs1 == reg || i.Rs2 == reg
	case EtypeRealR:
		switch i.Itype {
		case FcvtSW, FcvtSWu, FcvtDW, FcvtDWu, FmvWX:
			return i.Rs1 == reg
		}
		return false
	case EtypeRealI, EtypeRealS:
		// FP loads and stores address through an integer base.
		return i.Rs1 == reg
	}
	return false
}

func writesInt(i *Instr, reg Reg) bool {
	switch i.Etype {
	case EtypeR, EtypeI, EtypeU, EtypeJ:
		return i.Rd == reg
	case EtypeRealR:
		switch i.Itype {
		case FcvtWS, FcvtWuS, FcvtWD, FcvtWuD, FmvXW,
			FeqS, FltS, FleS, FeqD, FltD, FleD, FclassS, FclassD:
			return i.Rd == reg
		}
		return false
	case EtypeLdrcF:
		return i.Rd2 == reg
	}
	return false
}

// readsReal / writesReal are the float-class counterparts.
func readsReal(i *Instr, reg Reg) bool {
	switch i.Etype {
	case EtypeRealR:
		switch i.Itype {
		case FcvtSW, FcvtSWu, FcvtDW, FcvtDWu, FmvWX:
			return false
		case FsqrtS, FsqrtD, FcvtWS, FcvtWuS, FcvtWD, FcvtWuD,
			FcvtSD, FcvtDS, FmvXW, FclassS, FclassD:
			return i.Rs1 == reg
		}
		return i.Rs1 == reg || i.Rs2 == reg
	case EtypeRealR4:
		return i.Rs1 == reg || i.Rs2 == reg || i.Rs3 == reg
	case EtypeRealS:
		return i.Rs2 == reg
	}
	return false
}

func writesReal(i *Instr, reg Reg) bool {
	switch i.Etype {
	case EtypeRealR:
		switch i.Itype {
		case FcvtWS, FcvtWuS, FcvtWD, FcvtWuD, FmvXW,
			FeqS, FltS, FleS, FeqD, FltD, FleD, FclassS, FclassD:
			return false
		}
		return i.Rd == reg
	case EtypeRealR4, EtypeRealI:
		return i.Rd == reg
	case EtypeLdrcF:
		return i.Rd == reg
	}
	return false
}

// distVisitor counts instructions until the next reference of reg. reads
// and writes are the class-specific predicates.
type distVisitor struct {
	reg    Reg
	dist   int
	reads  func(*Instr, Reg) bool
	writes func(*Instr, Reg) bool
}

func (w *distVisitor) visit(i *Instr) error {
	if w.reads(i, w.reg) {
		return ErrStopWalk
	}
	if w.writes(i, w.reg) {
		w.dist = -1
		return ErrStopWalk
	}
	w.dist++
	return nil
}

func (w *distVisitor) Label(int, uint32) error  { return nil }
func (w *distVisitor) Directive(int, *Op) error { return nil }
func (w *distVisitor) R(_ int, i *Instr) error  { return w.visit(i) }
func (w *distVisitor) I(_ int, i *Instr) error  { return w.visit(i) }
func (w *distVisitor) SB(_ int, i *Instr) error { return w.visit(i) }
func (w *distVisitor) UJ(_ int, i *Instr) error { return w.visit(i) }
func (w *distVisitor) RealR(_ int, i *Instr) error  { return w.visit(i) }
func (w *distVisitor) RealR4(_ int, i *Instr) error { return w.visit(i) }
func (w *distVisitor) RealI(_ int, i *Instr) error  { return w.visit(i) }
func (w *distVisitor) RealS(_ int, i *Instr) error  { return w.visit(i) }
func (w *distVisitor) LdrcF(_ int, i *Instr) error  { return w.visit(i) }

// nextUse walks [from, to] and returns the running count at reg's next
// read, starting the count at start. It returns -1 when reg is written
// before it is read, or never referenced at all.
func nextUse(s *Section, reg Reg, from, to, start int,
	reads, writes func(*Instr, Reg) bool) int {
	if from == NilOp {
		return -1
	}
	w := &distVisitor{reg: reg, dist: start, reads: reads, writes: writes}
	err := WalkFromTo(s, w, from, to)
	if errors.Is(err, ErrStopWalk) {
		return w.dist
	}
	return -1
}

// intNextUse is nextUse for the integer class.
func intNextUse(s *Section, reg Reg, from, to, start int) int {
	return nextUse(s, reg, from, to, start, readsInt, writesInt)
}

// realNextUse is nextUse for the float class.
func realNextUse(s *Section, reg Reg, from, to, start int) int {
	return nextUse(s, reg, from, to, start, readsReal, writesReal)
}

// anyRefVisitor stops at the first reference of reg, read or write.
type anyRefVisitor struct {
	reg    Reg
	reads  func(*Instr, Reg) bool
	writes func(*Instr, Reg) bool
}

func (w *anyRefVisitor) visit(i *Instr) error {
	if w.reads(i, w.reg) || w.writes(i, w.reg) {
		return ErrStopWalk
	}
	return nil
}

func (w *anyRefVisitor) Label(int, uint32) error  { return nil }
func (w *anyRefVisitor) Directive(int, *Op) error { return nil }
func (w *anyRefVisitor) R(_ int, i *Instr) error  { return w.visit(i) }
func (w *anyRefVisitor) I(_ int, i *Instr) error  { return w.visit(i) }
func (w *anyRefVisitor) SB(_ int, i *Instr) error { return w.visit(i) }
func (w *anyRefVisitor) UJ(_ int, i *Instr) error { return w.visit(i) }
func (w *anyRefVisitor) RealR(_ int, i *Instr) error  { return w.visit(i) }
func (w *anyRefVisitor) RealR4(_ int, i *Instr) error { return w.visit(i) }
func (w *anyRefVisitor) RealI(_ int, i *Instr) error  { return w.visit(i) }
func (w *anyRefVisitor) RealS(_ int, i *Instr) error  { return w.visit(i) }
func (w *anyRefVisitor) LdrcF(_ int, i *Instr) error  { return w.visit(i) }

func referenced(s *Section, reg Reg, from, to int,
	reads, writes func(*Instr, Reg) bool) bool {
	if from == NilOp {
		return false
	}
	w := &anyRefVisitor{reg: reg, reads: reads, writes: writes}
	return errors.Is(WalkFromTo(s, w, from, to), ErrStopWalk)
}

func intReferenced(s *Section, reg Reg, from, to int) bool {
	return referenced(s, reg, from, to, readsInt, writesInt)
}

func realReferenced(s *Section, reg Reg, from, to int) bool {
	return referenced(s, reg, from, to, readsReal, writesReal)
}
