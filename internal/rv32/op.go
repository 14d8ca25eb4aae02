package rv32

// Itype enumerates the machine instructions the back end can emit,
// including the three link-time pseudo instructions lc (load constant-pool
// address), lp (load procedure address) and lg (load global-area address).
type Itype int

const (
	Addi Itype = iota
	Slti
	Sltiu
	Andi
	Ori
	Xori
	Slli
	Srli
	Srai
	Lui
	Auipc
	Add
	Slt
	Sltu
	And
	Or
	Xor
	Sll
	Srl
	Sub
	Sra
	Jal
	Jalr
	Beq
	Bne
	Blt
	Bltu
	Bge
	Bgeu
	Lw
	Lh
	Lhu
	Lb
	Lbu
	Sw
	Sh
	Sb
	Fence
	Ecall
	Ebreak
	Mul
	Mulh
	Mulhsu
	Mulhu
	Div
	Divu
	Rem
	Remu
	// LC and LP lower to an auipc+addi pair whose displacement the linker
	// fills in: LC targets a program constant-pool entry, LP a section.
	// LG lowers to a lui+addi pair holding the absolute address of the
	// global-variable area at the end of the image.
	LC
	LP
	LG

	Flw
	Fsw
	Fld
	Fsd
	FaddS
	FsubS
	FmulS
	FdivS
	FsqrtS
	FsgnjS
	FsgnjnS
	FsgnjxS
	FminS
	FmaxS
	FcvtWS
	FcvtWuS
	FmvXW
	FeqS
	FltS
	FleS
	FclassS
	FcvtSW
	FcvtSWu
	FmvWX
	FaddD
	FsubD
	FmulD
	FdivD
	FsqrtD
	FsgnjD
	FsgnjnD
	FsgnjxD
	FminD
	FmaxD
	FcvtSD
	FcvtDS
	FeqD
	FltD
	FleD
	FclassD
	FcvtWD
	FcvtWuD
	FcvtDW
	FcvtDWu
	FmaddS
	FmsubS
	FnmsubS
	FnmaddS
	FmaddD
	FmsubD
	FnmsubD
	FnmaddD
	itypeCount
)

// Etype says which operand shape an instruction carries and therefore how
// it encodes.
type Etype int

const (
	EtypeR Etype = iota
	EtypeI
	EtypeS
	EtypeB
	EtypeU
	EtypeJ
	EtypeRealR
	EtypeRealR4
	EtypeRealI
	EtypeRealS
	// EtypeLdrcF is the load-real-constant pseudo instruction: an auipc
	// into an integer temporary followed by an fld relative to it.
	EtypeLdrcF
	EtypeFence
)

// RoundingMode is the FP rounding mode field for instructions that carry one.
type RoundingMode uint8

// RMDyn selects the dynamic rounding mode from fcsr.
const RMDyn RoundingMode = 7

// Instr is one machine instruction. The operand fields used depend on the
// Etype; unused fields stay zero.
type Instr struct {
	Itype Itype
	Etype Etype

	Rd  Reg
	Rs1 Reg
	Rs2 Reg
	Rs3 Reg
	// Rd2 is the integer temporary of an EtypeLdrcF pair.
	Rd2 Reg

	// Imm is the I/S-type immediate, the U-type upper immediate already
	// shifted down 12 bits, or a known J-type byte offset.
	Imm int32
	// Label is a branch/jump target when IsLabel is set. For calls it holds
	// the callee section index, for LC the constant-pool index, for LP the
	// section index, and for EtypeLdrcF the section-local constant label.
	Label   uint32
	IsLabel bool

	Frm RoundingMode
}

// OpKind discriminates the members of the op list.
type OpKind int

const (
	OpInstr OpKind = iota
	OpLabel
	OpByte
	OpTwoByte
	OpFourByte
	OpDouble
	OpFloat
	OpString
	OpAlign
	OpPhi
)

// NilOp is the nil link of the op list.
const NilOp = -1

// Op is one node of a section's doubly-linked op list. The list threaded
// through Next/Prev is the single source of truth for order; slot order in
// the pool is not.
type Op struct {
	Kind  OpKind
	Instr Instr
	// Label is the label id for OpLabel nodes.
	Label uint32
	// U32 holds byte/half/word/alignment payloads.
	U32 uint32
	F64 float64
	F32 float32
	Str string

	Next int
	Prev int
}

// OpPool is the arena backing every section of one program. Slots are
// handed out by index and never reclaimed; unlinking an op leaves its slot
// in place.
type OpPool struct {
	ops []Op
}

// NewOpPool returns an empty pool.
func NewOpPool() *OpPool { return &OpPool{} }

// Alloc returns the index of a fresh zeroed slot. Any *Op previously
// obtained from At may be invalidated by the growth; callers must
// re-resolve through indices after allocating.
func (p *OpPool) Alloc() int {
	p.ops = append(p.ops, Op{Next: NilOp, Prev: NilOp})
	return len(p.ops) - 1
}

// At returns the op at index i. The pointer is valid until the next Alloc.
func (p *OpPool) At(i int) *Op { return &p.ops[i] }

// Len returns the number of slots ever allocated, live or not.
func (p *OpPool) Len() int { return len(p.ops) }
