package rv32

import (
	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

// RealConst is one section-local floating point constant, emitted in the
// constant pool at the end of the function and loaded PC-relative.
type RealConst struct {
	Value float64
	Label uint32
}

// UI32Const is one section-local word constant.
type UI32Const struct {
	Value    uint32
	Label    uint32
	LinkTime bool
}

// Constants are a section's local constant pools.
type Constants struct {
	UI32 []UI32Const
	Real []RealConst
}

// Section is one function after instruction selection: a doubly-linked
// list of ops inside the shared pool, plus the bookkeeping the later
// stages need.
type Section struct {
	pool *OpPool

	FirstOp int
	LastOp  int
	Len     int

	// RegCounter/FregCounter are the next virtual register numbers; labels
	// likewise. MaxIntRegs()/MaxRealRegs() derive the class sizes from them.
	RegCounter   uint32
	FregCounter  uint32
	LabelCounter uint32

	Locals    int32
	Constants Constants

	// CallSites and RetSites record the op indices of calls and of the
	// stack-restore lui at each return, for post-allocation patching.
	CallSites []int
	RetSites  []int

	SType          ir.TypeSig
	NoCleanupLabel uint32
}

// NewSection wraps pool with a fresh section. The register counters come
// from the IR section and are rebased into the virtual namespaces.
func NewSection(pool *OpPool, stype ir.TypeSig, regCounter, fregCounter, labelCounter uint32, locals int32) *Section {
	s := &Section{
		pool:         pool,
		FirstOp:      NilOp,
		LastOp:       NilOp,
		RegCounter:   VirtStart + irToVirtCount(regCounter),
		FregCounter:  VirtStart + fregCounter,
		LabelCounter: labelCounter,
		Locals:       locals,
		SType:        stype,
	}
	s.NoCleanupLabel = s.LabelCounter
	s.LabelCounter++
	return s
}

func irToVirtCount(regCounter uint32) uint32 {
	if regCounter < ir.TempStart {
		return 0
	}
	return regCounter - ir.TempStart
}

// IRToReg maps an IR integer register to its back-end register.
func IRToReg(irReg uint32) Reg {
	switch irReg {
	case ir.RegGlobal:
		return RegGlobal
	case ir.RegLocal:
		return RegLocal
	case ir.RegStack:
		return RegStack
	default:
		return Reg(VirtStart + irReg - ir.TempStart)
	}
}

// IRToRealReg maps an IR float register to its back-end register.
func IRToRealReg(irReg uint32) Reg { return Reg(VirtStart + irReg) }

// Pool returns the shared op pool.
func (s *Section) Pool() *OpPool { return s.pool }

// At resolves an op index. The pointer is invalidated by the next append
// or insert on any section sharing the pool.
func (s *Section) At(i int) *Op { return s.pool.At(i) }

// MaxIntRegs returns one past the highest integer register number in use.
func (s *Section) MaxIntRegs() uint32 { return s.RegCounter }

// MaxRealRegs returns one past the highest float register number in use.
func (s *Section) MaxRealRegs() uint32 { return s.FregCounter }

// AcquireReg returns a fresh integer virtual register.
func (s *Section) AcquireReg() Reg {
	r := Reg(s.RegCounter)
	s.RegCounter++
	return r
}

// AcquireFreg returns a fresh float virtual register.
func (s *Section) AcquireFreg() Reg {
	r := Reg(s.FregCounter)
	s.FregCounter++
	return r
}

// AcquireLabel returns a fresh label id.
func (s *Section) AcquireLabel() uint32 {
	l := s.LabelCounter
	s.LabelCounter++
	return l
}

func (s *Section) appendOp() int {
	prev := s.LastOp
	ptr := s.pool.Alloc()
	op := s.pool.At(ptr)
	op.Prev = prev
	if s.FirstOp == NilOp {
		s.FirstOp = ptr
	} else {
		s.pool.At(prev).Next = ptr
	}
	s.LastOp = ptr
	s.Len++
	return ptr
}

// insertBefore links a fresh op immediately before pos.
func (s *Section) insertBefore(pos int) int {
	ptr := s.pool.Alloc()
	at := s.pool.At(pos)
	op := s.pool.At(ptr)
	op.Next = pos
	op.Prev = at.Prev
	if at.Prev != NilOp {
		s.pool.At(at.Prev).Next = ptr
	} else {
		s.FirstOp = ptr
	}
	at.Prev = ptr
	s.Len++
	return ptr
}

// Unlink removes the op at ptr from the list. The pool slot is not
// reclaimed.
func (s *Section) Unlink(ptr int) {
	op := s.pool.At(ptr)
	if op.Prev != NilOp {
		s.pool.At(op.Prev).Next = op.Next
	} else {
		s.FirstOp = op.Next
	}
	if op.Next != NilOp {
		s.pool.At(op.Next).Prev = op.Prev
	} else {
		s.LastOp = op.Prev
	}
	s.Len--
}

func (s *Section) addInstr(itype Itype, etype Etype) *Instr {
	ptr := s.appendOp()
	op := s.pool.At(ptr)
	op.Kind = OpInstr
	op.Instr.Itype = itype
	op.Instr.Etype = etype
	return &op.Instr
}

func (s *Section) insertInstrBefore(pos int, itype Itype, etype Etype) *Instr {
	ptr := s.insertBefore(pos)
	op := s.pool.At(ptr)
	op.Kind = OpInstr
	op.Instr.Itype = itype
	op.Instr.Etype = etype
	return &op.Instr
}

// AddRType appends "itype rd, rs1, rs2".
func (s *Section) AddRType(itype Itype, rd, rs1, rs2 Reg) {
	i := s.addInstr(itype, EtypeR)
	i.Rd, i.Rs1, i.Rs2 = rd, rs1, rs2
}

// InsertRTypeBefore inserts "itype rd, rs1, rs2" before pos.
func (s *Section) InsertRTypeBefore(pos int, itype Itype, rd, rs1, rs2 Reg) {
	i := s.insertInstrBefore(pos, itype, EtypeR)
	i.Rd, i.Rs1, i.Rs2 = rd, rs1, rs2
}

// AddIType appends "itype rd, rs1, imm".
func (s *Section) AddIType(itype Itype, rd, rs1 Reg, imm int32) {
	i := s.addInstr(itype, EtypeI)
	i.Rd, i.Rs1, i.Imm = rd, rs1, imm
}

// InsertITypeBefore inserts "itype rd, rs1, imm" before pos.
func (s *Section) InsertITypeBefore(pos int, itype Itype, rd, rs1 Reg, imm int32) {
	i := s.insertInstrBefore(pos, itype, EtypeI)
	i.Rd, i.Rs1, i.Imm = rd, rs1, imm
}

// AddSType appends a store "itype rs2, imm(rs1)".
func (s *Section) AddSType(itype Itype, rs1, rs2 Reg, imm int32) {
	i := s.addInstr(itype, EtypeS)
	i.Rs1, i.Rs2, i.Imm = rs1, rs2, imm
}

// InsertSTypeBefore inserts a store before pos.
func (s *Section) InsertSTypeBefore(pos int, itype Itype, rs1, rs2 Reg, imm int32) {
	i := s.insertInstrBefore(pos, itype, EtypeS)
	i.Rs1, i.Rs2, i.Imm = rs1, rs2, imm
}

// AddBType appends a conditional branch to label.
func (s *Section) AddBType(itype Itype, rs1, rs2 Reg, label uint32) {
	i := s.addInstr(itype, EtypeB)
	i.Rs1, i.Rs2, i.Label, i.IsLabel = rs1, rs2, label, true
}

// AddUType appends "itype rd, imm". The immediate is the full 32-bit value
// whose upper 20 bits are encoded.
func (s *Section) AddUType(itype Itype, rd Reg, imm uint32) {
	i := s.addInstr(itype, EtypeU)
	i.Rd, i.Imm = rd, int32(imm>>12)
}

// InsertUTypeBefore inserts "itype rd, imm" before pos.
func (s *Section) InsertUTypeBefore(pos int, itype Itype, rd Reg, imm uint32) {
	i := s.insertInstrBefore(pos, itype, EtypeU)
	i.Rd, i.Imm = rd, int32(imm>>12)
}

// AddJal appends "jal rd, label".
func (s *Section) AddJal(rd Reg, label uint32) {
	i := s.addInstr(Jal, EtypeJ)
	i.Rd, i.Label, i.IsLabel = rd, label, true
}

// AddCall appends "jal ra, section". The callee is named by section index;
// the linker computes the displacement. The call site is recorded for the
// section's bookkeeping.
func (s *Section) AddCall(section uint32) {
	i := s.addInstr(Jal, EtypeJ)
	i.Rd, i.Label, i.IsLabel = RegRA, section, true
	s.CallSites = append(s.CallSites, s.LastOp)
}

// AddKnownJal appends "jal rd, offset" with a byte offset already known.
// The offset must be even and representable in the 21-bit J immediate.
func (s *Section) AddKnownJal(rd Reg, offset int32) error {
	if offset&1 != 0 {
		return diag.Errorf(diag.KindAssertionFailed, "odd jal offset %d", offset)
	}
	if offset < -(1<<20) || offset >= 1<<20 {
		return diag.Errorf(diag.KindJumpTooFar, "jal offset %d", offset)
	}
	i := s.addInstr(Jal, EtypeJ)
	i.Rd, i.Imm = rd, offset
	return nil
}

// AddLC appends the load-constant-address pseudo op for a program
// constant-pool entry.
func (s *Section) AddLC(rd Reg, constIndex uint32) {
	i := s.addInstr(LC, EtypeJ)
	i.Rd, i.Label = rd, constIndex
}

// AddLP appends the load-procedure-address pseudo op for a section.
func (s *Section) AddLP(rd Reg, section uint32) {
	i := s.addInstr(LP, EtypeJ)
	i.Rd, i.Label = rd, section
}

// AddLG appends the load-globals-base pseudo op.
func (s *Section) AddLG(rd Reg) {
	i := s.addInstr(LG, EtypeJ)
	i.Rd = rd
}

// AddLdrcF appends a load of an 8-byte real constant via the section's
// constant pool: auipc rd2 followed by fld rd. The constant is interned
// under a fresh label.
func (s *Section) AddLdrcF(rd, rd2 Reg, value float64) {
	label := uint32(0)
	found := false
	for _, c := range s.Constants.Real {
		if c.Value == value {
			label, found = c.Label, true
			break
		}
	}
	if !found {
		label = s.AcquireLabel()
		s.Constants.Real = append(s.Constants.Real, RealConst{Value: value, Label: label})
	}
	i := s.addInstr(Fld, EtypeLdrcF)
	i.Rd, i.Rd2, i.Label = rd, rd2, label
}

// AddLabel appends a label.
func (s *Section) AddLabel(label uint32) {
	ptr := s.appendOp()
	op := s.pool.At(ptr)
	op.Kind = OpLabel
	op.Label = label
}

// InsertLabelBefore inserts a label before pos.
func (s *Section) InsertLabelBefore(pos int, label uint32) {
	ptr := s.insertBefore(pos)
	op := s.pool.At(ptr)
	op.Kind = OpLabel
	op.Label = label
}

// AddAlign appends an alignment directive.
func (s *Section) AddAlign(n uint32) {
	ptr := s.appendOp()
	op := s.pool.At(ptr)
	op.Kind = OpAlign
	op.U32 = n
}

// liSplit returns the lui upper immediate and addi lower immediate for a
// 32-bit constant, with the carry applied so lui+addi reconstructs imm
// despite addi sign-extending.
func liSplit(imm int32) (upper uint32, lower int32) {
	upper = (uint32(imm) + 0x800) & 0xfffff000
	lower = imm - int32(upper)
	return upper, lower
}

// AddLi appends the canonical load-immediate: a single addi when the value
// fits in 12 bits, otherwise lui plus, when the low part is non-zero, a
// corrective addi.
func (s *Section) AddLi(rd Reg, imm int32) {
	if imm >= MinOffset && imm <= MaxOffset {
		s.AddIType(Addi, rd, RegZero, imm)
		return
	}
	upper, lower := liSplit(imm)
	s.AddUType(Lui, rd, upper)
	if lower != 0 {
		s.AddIType(Addi, rd, rd, lower)
	}
}

// InsertLiBefore is AddLi inserting before pos.
func (s *Section) InsertLiBefore(pos int, rd Reg, imm int32) {
	if imm >= MinOffset && imm <= MaxOffset {
		s.InsertITypeBefore(pos, Addi, rd, RegZero, imm)
		return
	}
	upper, lower := liSplit(imm)
	s.InsertUTypeBefore(pos, Lui, rd, upper)
	if lower != 0 {
		s.InsertITypeBefore(pos, Addi, rd, rd, lower)
	}
}

// AddMv appends "mv rd, rs".
func (s *Section) AddMv(rd, rs Reg) { s.AddIType(Addi, rd, rs, 0) }

// AddNop appends a no-op.
func (s *Section) AddNop() { s.AddIType(Addi, RegZero, RegZero, 0) }

// AddEcall appends an environment call.
func (s *Section) AddEcall() { s.AddIType(Ecall, RegZero, RegZero, 0) }

// InsertLwBefore inserts "lw dest, offset(base)" before pos.
func (s *Section) InsertLwBefore(pos int, dest, base Reg, offset int32) {
	s.InsertITypeBefore(pos, Lw, dest, base, offset)
}

// InsertSwBefore inserts "sw val, offset(base)" before pos.
func (s *Section) InsertSwBefore(pos int, val, base Reg, offset int32) {
	s.InsertSTypeBefore(pos, Sw, base, val, offset)
}

// InsertOffsetHelperBefore materialises base+offset into tmp for accesses
// whose offset does not fit the 12-bit form.
func (s *Section) InsertOffsetHelperBefore(pos int, base, tmp Reg, offset int32) {
	s.InsertLiBefore(pos, tmp, offset)
	s.InsertRTypeBefore(pos, Add, tmp, tmp, base)
}

// InsertLwFarBefore inserts a word load that works for any offset, using
// dest itself as the address scratch when the offset is out of range.
func (s *Section) InsertLwFarBefore(pos int, dest, base Reg, offset int32) {
	if offset > MaxOffset || offset < MinOffset {
		s.InsertOffsetHelperBefore(pos, base, dest, offset)
		base, offset = dest, 0
	}
	s.InsertLwBefore(pos, dest, base, offset)
}

// InsertSwFarBefore inserts a word store that works for any offset, using
// tmp as the address scratch when the offset is out of range.
func (s *Section) InsertSwFarBefore(pos int, val, base, tmp Reg, offset int32) {
	if offset > MaxOffset || offset < MinOffset {
		s.InsertOffsetHelperBefore(pos, base, tmp, offset)
		base, offset = tmp, 0
	}
	s.InsertSwBefore(pos, val, base, offset)
}

// AddRealRType appends an FP R-type instruction.
func (s *Section) AddRealRType(itype Itype, rd, rs1, rs2 Reg) {
	i := s.addInstr(itype, EtypeRealR)
	i.Rd, i.Rs1, i.Rs2 = rd, rs1, rs2
	i.Frm = RMDyn
}

// AddRealMv appends a double-precision register move.
func (s *Section) AddRealMv(rd, rs Reg) { s.AddRealRType(FsgnjD, rd, rs, rs) }

// AddRealSType appends an FP store "itype rs2, imm(rs1)".
func (s *Section) AddRealSType(itype Itype, rs1, rs2 Reg, imm int32) {
	i := s.addInstr(itype, EtypeRealS)
	i.Rs1, i.Rs2, i.Imm = rs1, rs2, imm
}

// InsertFldBefore inserts "fld dest, offset(base)" before pos.
func (s *Section) InsertFldBefore(pos int, dest, base Reg, offset int32) {
	i := s.insertInstrBefore(pos, Fld, EtypeRealI)
	i.Rd, i.Rs1, i.Imm = dest, base, offset
}

// InsertFsdBefore inserts "fsd val, offset(base)" before pos.
func (s *Section) InsertFsdBefore(pos int, val, base Reg, offset int32) {
	i := s.insertInstrBefore(pos, Fsd, EtypeRealS)
	i.Rs1, i.Rs2, i.Imm = base, val, offset
}

// InsertFldFarBefore inserts a double load valid for any offset; tmp is an
// integer scratch for the address.
func (s *Section) InsertFldFarBefore(pos int, dest, base, tmp Reg, offset int32) {
	if offset > MaxOffset || offset < MinOffset {
		s.InsertOffsetHelperBefore(pos, base, tmp, offset)
		base, offset = tmp, 0
	}
	s.InsertFldBefore(pos, dest, base, offset)
}

// InsertFsdFarBefore inserts a double store valid for any offset.
func (s *Section) InsertFsdFarBefore(pos int, val, base, tmp Reg, offset int32) {
	if offset > MaxOffset || offset < MinOffset {
		s.InsertOffsetHelperBefore(pos, base, tmp, offset)
		base, offset = tmp, 0
	}
	s.InsertFsdBefore(pos, val, base, offset)
}

// Program is an ordered list of compiled sections sharing one op pool.
type Program struct {
	Sections     []*Section
	Names        []string
	Constants    []ir.ConstData
	StartAddress uint32
	pool         *OpPool
}

// NewProgram returns an empty program over pool.
func NewProgram(pool *OpPool, names []string, constants []ir.ConstData) *Program {
	return &Program{pool: pool, Names: names, Constants: constants}
}

// NewProgramSection creates, appends and returns a fresh section.
func (p *Program) NewProgramSection(stype ir.TypeSig, regCounter, fregCounter, labelCounter uint32, locals int32) *Section {
	s := NewSection(p.pool, stype, regCounter, fregCounter, labelCounter, locals)
	p.Sections = append(p.Sections, s)
	return s
}

// AppendSection appends a section built elsewhere (inline assembly).
func (p *Program) AppendSection(s *Section) {
	p.Sections = append(p.Sections, s)
}
