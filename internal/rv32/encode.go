package rv32

import (
	"encoding/binary"
	"math"

	"github.com/basil-lang/basil/internal/diag"
)

// The encoder does four jobs in one pass per section: it assembles
// instructions into machine words, resolves local jumps, defers function
// calls and address material to the linker, and builds the per-section
// floating point constant pool, patching the instructions that reference
// it once the pool is flushed.

type encodeConstKind int

const (
	encodeConstLdrF encodeConstKind = iota
)

type encodeConst struct {
	kind      encodeConstKind
	label     uint32
	codeIndex int
}

type bpKind int

const (
	bpBranch bpKind = iota
	bpJal
)

type backPatch struct {
	kind      bpKind
	label     uint32
	codeIndex int
}

// Encoder lays sections out into a single little-endian byte buffer.
type Encoder struct {
	buf  []byte
	link *Linker

	s            *Section
	labelOffsets []int
	consts       []encodeConst
	backPatches  []backPatch
}

// NewEncoder returns an encoder that records cross-section references in
// link.
func NewEncoder(link *Linker) *Encoder {
	return &Encoder{link: link}
}

// Bytes returns the encoded image so far.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) word(w uint32) error {
	if len(e.buf)&3 != 0 {
		return diag.Errorf(diag.KindBadAlignment, "word emitted at offset %d", len(e.buf))
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, w)
	return nil
}

func (e *Encoder) wordAt(index int) (uint32, error) {
	if index&3 != 0 {
		return 0, diag.Errorf(diag.KindBadAlignment, "word access at offset %d", index)
	}
	if index+4 > len(e.buf) {
		return 0, diag.Errorf(diag.KindAssertionFailed, "word access past end at %d", index)
	}
	return binary.LittleEndian.Uint32(e.buf[index:]), nil
}

func (e *Encoder) putWordAt(index int, w uint32) {
	binary.LittleEndian.PutUint32(e.buf[index:], w)
}

func (e *Encoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

// Visitor callbacks ----------------------------------------------------

func (e *Encoder) Label(_ int, label uint32) error {
	if int(label) >= len(e.labelOffsets) {
		return diag.Errorf(diag.KindAssertionFailed, "label %d out of range", label)
	}
	e.labelOffsets[label] = len(e.buf)
	return nil
}

func (e *Encoder) Directive(_ int, op *Op) error {
	switch op.Kind {
	case OpAlign:
		e.align(int(op.U32))
	case OpByte:
		e.buf = append(e.buf, byte(op.U32))
	case OpTwoByte:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(op.U32))
	case OpFourByte:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, op.U32)
	case OpDouble:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(op.F64))
	case OpFloat:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(op.F32))
	case OpString:
		e.buf = append(e.buf, op.Str...)
		e.buf = append(e.buf, 0)
	default:
		return diag.Errorf(diag.KindAssertionFailed, "unknown directive %d", op.Kind)
	}
	return nil
}

func (e *Encoder) R(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode | info.funct3<<12 | info.funct7<<25
	word |= (uint32(i.Rd) & 0x1f) << 7
	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= (uint32(i.Rs2) & 0x1f) << 20
	return e.word(word)
}

func (e *Encoder) I(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode | info.funct3<<12
	if i.Itype == Srai {
		word |= info.funct7 << 25
	}
	if i.Itype == Ebreak {
		word |= 1 << 20
	}
	word |= (uint32(i.Rd) & 0x1f) << 7
	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= (uint32(i.Imm) & 0xfff) << 20
	return e.word(word)
}

func (e *Encoder) SB(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode | info.funct3<<12

	if i.Etype == EtypeS {
		word |= (uint32(i.Imm) & 0x1f) << 7
		word |= (uint32(i.Imm) & 0xfe0) << 20
	} else {
		// Branches carry a label; the immediate is filled in by the
		// back-patch pass once the label's offset is known.
		e.backPatches = append(e.backPatches, backPatch{
			kind: bpBranch, label: i.Label, codeIndex: len(e.buf),
		})
	}

	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= (uint32(i.Rs2) & 0x1f) << 20
	return e.word(word)
}

// encodeRelative emits an auipc into rd2 followed by second with rd,
// rs1=rd2, returning the byte index of the auipc for later fix-up.
func (e *Encoder) encodeRelative(rd, rd2 Reg, second Itype) (int, error) {
	auipcPos := len(e.buf)

	word := opcodes[Auipc].opcode | (uint32(rd2)&0x1f)<<7
	if err := e.word(word); err != nil {
		return 0, err
	}

	info := &opcodes[second]
	word = info.opcode | info.funct3<<12
	word |= (uint32(rd) & 0x1f) << 7
	word |= (uint32(rd2) & 0x1f) << 15
	if err := e.word(word); err != nil {
		return 0, err
	}
	return auipcPos, nil
}

func (e *Encoder) UJ(_ int, i *Instr) error {
	switch i.Itype {
	case LC:
		auipcPos, err := e.encodeRelative(i.Rd, i.Rd, Addi)
		if err != nil {
			return err
		}
		e.link.AddConstant(auipcPos, i.Label)
		return nil
	case LP:
		auipcPos, err := e.encodeRelative(i.Rd, i.Rd, Addi)
		if err != nil {
			return err
		}
		e.link.AddExtRef(auipcPos, i.Label)
		return nil
	case LG:
		luiPos := len(e.buf)
		if err := e.word(opcodes[Lui].opcode | (uint32(i.Rd)&0x1f)<<7); err != nil {
			return err
		}
		info := &opcodes[Addi]
		word := info.opcode | info.funct3<<12
		word |= (uint32(i.Rd) & 0x1f) << 7
		word |= (uint32(i.Rd) & 0x1f) << 15
		if err := e.word(word); err != nil {
			return err
		}
		e.link.AddGlobal(luiPos)
		return nil
	}

	info := &opcodes[i.Itype]
	word := info.opcode | (uint32(i.Rd)&0x1f)<<7

	if i.Etype == EtypeU {
		word |= uint32(i.Imm) << 12
		return e.word(word)
	}

	switch {
	case !i.IsLabel:
		// Known offset: encode directly.
		word |= encodeJalImm(i.Imm)
	case i.Rd != RegZero:
		// A call: the linker resolves it. Park the callee's section index
		// in the immediate field until then.
		e.link.AddExternal(len(e.buf))
		word |= i.Label << 12
	default:
		// A local unconditional jump.
		e.backPatches = append(e.backPatches, backPatch{
			kind: bpJal, label: i.Label, codeIndex: len(e.buf),
		})
	}
	return e.word(word)
}

func (e *Encoder) RealR(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode
	word |= (uint32(i.Rd) & 0x1f) << 7
	if info.useFrm {
		word |= uint32(i.Frm) << 12
	} else {
		word |= info.funct3 << 12
	}
	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= realRS2(i.Itype, i) << 20
	word |= info.funct7 << 25
	return e.word(word)
}

func (e *Encoder) RealR4(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode
	word |= (uint32(i.Rd) & 0x1f) << 7
	word |= uint32(i.Frm) << 12
	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= (uint32(i.Rs2) & 0x1f) << 20
	word |= (uint32(i.Rs3) & 0x1f) << 27
	switch i.Itype {
	case FmaddD, FmsubD, FnmsubD, FnmaddD:
		word |= 1 << 25
	}
	return e.word(word)
}

func (e *Encoder) RealI(opIdx int, i *Instr) error {
	return e.I(opIdx, i)
}

func (e *Encoder) RealS(_ int, i *Instr) error {
	info := &opcodes[i.Itype]
	word := info.opcode | info.funct3<<12
	word |= (uint32(i.Imm) & 0x1f) << 7
	word |= (uint32(i.Imm) & 0xfe0) << 20
	word |= (uint32(i.Rs1) & 0x1f) << 15
	word |= (uint32(i.Rs2) & 0x1f) << 20
	return e.word(word)
}

func (e *Encoder) LdrcF(_ int, i *Instr) error {
	auipcPos, err := e.encodeRelative(i.Rd, i.Rd2, Fld)
	if err != nil {
		return err
	}
	e.consts = append(e.consts, encodeConst{
		kind: encodeConstLdrF, label: i.Label, codeIndex: auipcPos,
	})
	return nil
}

// Immediate scatter ----------------------------------------------------

// encodeJalImm scatters a byte offset over the J-type immediate field
// [20|10:1|11|19:12].
func encodeJalImm(offset int32) uint32 {
	o := offset >> 1
	var word uint32
	word |= (uint32(o) & 0x3ff) << 21
	if o&(1<<10) != 0 {
		word |= 1 << 20
	}
	word |= (uint32(o) & 0x7f800) << 1
	if o&(1<<19) != 0 {
		word |= 1 << 31
	}
	return word
}

// encodeBranchImm scatters a byte offset over the B-type immediate field
// [12|10:5|4:1|11].
func encodeBranchImm(offset int32) uint32 {
	d := uint32(offset/2) & 0xfff
	var word uint32
	word |= (d & 0xf) << 8
	word |= (d & 0x400) >> 3
	word |= (d & 0x3f0) << 21
	word |= (d & 0x800) << 20
	return word
}

// hiLoSplit splits a 32-bit displacement for an auipc+12-bit-immediate
// pair, applying the carry so the sign-extended low part reconstructs the
// displacement.
func hiLoSplit(dist int32) (hi uint32, lo uint32) {
	hi = (uint32(dist) + 0x800) & 0xfffff000
	lo = uint32(dist) - hi
	return hi, lo & 0xfff
}

// fixupRelative patches an auipc + I-type pair at codeIndex with dist. The
// second instruction must carry the opcode and funct3 of second.
func (e *Encoder) fixupRelative(codeIndex int, dist int32, second Itype) error {
	auipc, err := e.wordAt(codeIndex)
	if err != nil {
		return err
	}
	pair, err := e.wordAt(codeIndex + 4)
	if err != nil {
		return err
	}

	if auipc&0x7f != opcodes[Auipc].opcode {
		return diag.Errorf(diag.KindAssertionFailed, "expected auipc at %d", codeIndex)
	}
	info := &opcodes[second]
	if pair&0x7f != info.opcode || (pair>>12)&0x7 != info.funct3 {
		return diag.Errorf(diag.KindAssertionFailed, "unexpected pair instruction at %d", codeIndex+4)
	}

	hi, lo := hiLoSplit(dist)
	e.putWordAt(codeIndex, auipc|hi)
	e.putWordAt(codeIndex+4, pair|lo<<20)
	return nil
}

// Pool flush and back patches -----------------------------------------

func (e *Encoder) flushConstants() error {
	if len(e.consts) == 0 {
		return nil
	}

	// Doubles must land 8-byte aligned; pad the minimum needed.
	e.align(4)
	if len(e.buf)&7 != 0 {
		if err := e.word(0); err != nil {
			return err
		}
	}

	for _, c := range e.consts {
		e.labelOffsets[c.label] = len(e.buf)
		found := false
		for _, rc := range e.s.Constants.Real {
			if rc.Label == c.label {
				e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(rc.Value))
				found = true
				break
			}
		}
		if !found {
			return diag.Errorf(diag.KindAssertionFailed, "no constant for label %d", c.label)
		}
	}

	for _, c := range e.consts {
		dist := int32(e.labelOffsets[c.label] - c.codeIndex)
		if err := e.fixupRelative(c.codeIndex, dist, Fld); err != nil {
			return err
		}
	}
	e.consts = e.consts[:0]
	return nil
}

// reverseBranch flips a branch condition in place and points it eight bytes
// past itself, over the long jump that replaces its original target.
func reverseBranch(word uint32) (uint32, error) {
	funct3 := (word >> 12) & 7
	var flipped uint32
	switch funct3 {
	case opcodes[Beq].funct3:
		flipped = opcodes[Bne].funct3
	case opcodes[Bne].funct3:
		flipped = opcodes[Beq].funct3
	case opcodes[Blt].funct3:
		flipped = opcodes[Bge].funct3
	case opcodes[Bge].funct3:
		flipped = opcodes[Blt].funct3
	case opcodes[Bltu].funct3:
		flipped = opcodes[Bgeu].funct3
	case opcodes[Bgeu].funct3:
		flipped = opcodes[Bltu].funct3
	default:
		return 0, diag.Errorf(diag.KindAssertionFailed, "not a conditional branch")
	}

	word &= 0x01ff807f
	word |= flipped << 12
	word |= encodeBranchImm(8)
	return word, nil
}

func (e *Encoder) encodeLongBranch(codeIndex int, dist int32) error {
	// The jump is encoded into the instruction after the branch, so its
	// displacement is four bytes shorter.
	dist -= 4
	if dist < -1048576 || dist >= 1048576 {
		return diag.Errorf(diag.KindJumpTooFar, "branch displacement %d", dist)
	}

	// The pattern matcher reserves a nop after every conditional branch;
	// there must be at least the branch, the nop, and a following
	// instruction in the stream.
	if codeIndex+12 > len(e.buf) {
		return diag.Errorf(diag.KindAssertionFailed, "no room for long branch at %d", codeIndex)
	}

	branch, err := e.wordAt(codeIndex)
	if err != nil {
		return err
	}
	reversed, err := reverseBranch(branch)
	if err != nil {
		return err
	}
	e.putWordAt(codeIndex, reversed)
	e.putWordAt(codeIndex+4, opcodes[Jal].opcode|encodeJalImm(dist))
	return nil
}

func (e *Encoder) applyBackPatches() error {
	for _, bp := range e.backPatches {
		target, ok := e.labelOffset(bp.label)
		if !ok {
			return diag.Errorf(diag.KindAssertionFailed, "back patch to unknown label %d", bp.label)
		}
		dist := int32(target - bp.codeIndex)
		switch bp.kind {
		case bpBranch:
			if dist < -4096 || dist > 4095 {
				if err := e.encodeLongBranch(bp.codeIndex, dist); err != nil {
					return err
				}
				continue
			}
			word, err := e.wordAt(bp.codeIndex)
			if err != nil {
				return err
			}
			e.putWordAt(bp.codeIndex, word|encodeBranchImm(dist))
		case bpJal:
			if dist < -1048576 || dist >= 1048576 {
				return diag.Errorf(diag.KindJumpTooFar, "jump displacement %d", dist)
			}
			word, err := e.wordAt(bp.codeIndex)
			if err != nil {
				return err
			}
			e.putWordAt(bp.codeIndex, word|encodeJalImm(dist))
		}
	}
	e.backPatches = e.backPatches[:0]
	return nil
}

func (e *Encoder) labelOffset(label uint32) (int, bool) {
	if int(label) >= len(e.labelOffsets) || e.labelOffsets[label] < 0 {
		return 0, false
	}
	return e.labelOffsets[label], true
}

// EncodeSection lays out one section: code, constant pool, back patches,
// final 4-byte alignment. Sections must be encoded in program order so the
// linker sees monotonically increasing offsets.
func (e *Encoder) EncodeSection(s *Section) error {
	e.s = s
	e.labelOffsets = make([]int, s.LabelCounter)
	for i := range e.labelOffsets {
		e.labelOffsets[i] = -1
	}
	e.consts = e.consts[:0]
	e.backPatches = e.backPatches[:0]

	if err := Walk(s, e); err != nil {
		return err
	}
	if err := e.flushConstants(); err != nil {
		return err
	}
	if err := e.applyBackPatches(); err != nil {
		return err
	}
	e.align(4)
	return nil
}
