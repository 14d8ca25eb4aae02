package rv32

import (
	"encoding/binary"

	"github.com/basil-lang/basil/internal/diag"
)

// Linker resolves everything that spans sections once all of them have
// been encoded: direct calls, function-pointer material, and references
// into the program constant pool.
type Linker struct {
	// sections[i] is the byte offset section i starts at, or -1.
	sections []int
	// externals are the byte offsets of jal call sites whose immediate
	// field temporarily holds the callee's section index.
	externals []int

	constants []linkFixup
	extRefs   []linkFixup
	// globals are lui+addi pairs loading the absolute address of the
	// global area appended after the image.
	globals []int
}

// linkFixup is an auipc+addi pair at codeIndex referring to constant-pool
// entry or section index.
type linkFixup struct {
	codeIndex int
	index     uint32
}

// NewLinker returns a linker for a program with the given section count.
func NewLinker(sections int) *Linker {
	l := &Linker{sections: make([]int, sections)}
	for i := range l.sections {
		l.sections[i] = -1
	}
	return l
}

// SetSectionOffset records where section num starts in the image.
func (l *Linker) SetSectionOffset(num, offset int) {
	l.sections[num] = offset
}

// AddExternal records a direct call site.
func (l *Linker) AddExternal(codeIndex int) {
	l.externals = append(l.externals, codeIndex)
}

// AddConstant records an auipc+addi pair loading the address of program
// constant-pool entry index.
func (l *Linker) AddConstant(codeIndex int, index uint32) {
	l.constants = append(l.constants, linkFixup{codeIndex: codeIndex, index: index})
}

// AddExtRef records an auipc+addi pair loading the address of a section.
func (l *Linker) AddExtRef(codeIndex int, index uint32) {
	l.extRefs = append(l.extRefs, linkFixup{codeIndex: codeIndex, index: index})
}

// AddGlobal records a lui+addi pair loading the globals base address.
func (l *Linker) AddGlobal(codeIndex int) {
	l.globals = append(l.globals, codeIndex)
}

func wordAt(buf []byte, index int) (uint32, error) {
	if index&3 != 0 {
		return 0, diag.Errorf(diag.KindBadAlignment, "word access at offset %d", index)
	}
	if index+4 > len(buf) {
		return 0, diag.Errorf(diag.KindAssertionFailed, "link fixup past end at %d", index)
	}
	return binary.LittleEndian.Uint32(buf[index:]), nil
}

func fixupRelativePair(buf []byte, codeIndex int, dist int32) error {
	auipc, err := wordAt(buf, codeIndex)
	if err != nil {
		return err
	}
	addi, err := wordAt(buf, codeIndex+4)
	if err != nil {
		return err
	}

	if auipc&0x7f != opcodes[Auipc].opcode {
		return diag.Errorf(diag.KindAssertionFailed, "expected auipc at %d", codeIndex)
	}
	if addi&0x7f != opcodes[Addi].opcode || (addi>>12)&0x7 != opcodes[Addi].funct3 {
		return diag.Errorf(diag.KindAssertionFailed, "expected addi at %d", codeIndex+4)
	}

	hi, lo := hiLoSplit(dist)
	binary.LittleEndian.PutUint32(buf[codeIndex:], auipc|hi)
	binary.LittleEndian.PutUint32(buf[codeIndex+4:], addi|lo<<20)
	return nil
}

// Apply resolves every recorded reference in buf. constLocations[i] is the
// byte offset the i-th program constant blob was emitted at; startAddress
// is the virtual address of the first code byte, needed to place the
// global area that follows the image.
func (l *Linker) Apply(buf []byte, constLocations []int, startAddress uint32) error {
	globalsBase := startAddress + uint32(len(buf)+3)&^uint32(3)
	for _, index := range l.globals {
		lui, err := wordAt(buf, index)
		if err != nil {
			return err
		}
		addi, err := wordAt(buf, index+4)
		if err != nil {
			return err
		}
		if lui&0x7f != opcodes[Lui].opcode {
			return diag.Errorf(diag.KindAssertionFailed, "expected lui at %d", index)
		}
		hi, lo := hiLoSplit(int32(globalsBase))
		binary.LittleEndian.PutUint32(buf[index:], lui|hi)
		binary.LittleEndian.PutUint32(buf[index+4:], addi|lo<<20)
	}
	for _, index := range l.externals {
		word, err := wordAt(buf, index)
		if err != nil {
			return err
		}
		si := int(word >> 12)
		if si >= len(l.sections) {
			return diag.Errorf(diag.KindAssertionFailed, "call to unknown section %d", si)
		}
		if l.sections[si] < 0 {
			return diag.Errorf(diag.KindAssertionFailed, "call to unplaced section %d", si)
		}
		offset := int32(l.sections[si] - index)
		if offset&1 != 0 {
			return diag.Errorf(diag.KindBadAlignment, "odd call displacement %d", offset)
		}
		if offset < -1048576 || offset >= 1048576 {
			return diag.Errorf(diag.KindJumpTooFar, "call displacement %d", offset)
		}
		word &= 0xfff
		binary.LittleEndian.PutUint32(buf[index:], word|encodeJalImm(offset))
	}

	for _, c := range l.constants {
		if int(c.index) >= len(constLocations) {
			return diag.Errorf(diag.KindAssertionFailed, "reference to unknown constant %d", c.index)
		}
		dist := int32(constLocations[c.index] - c.codeIndex)
		if err := fixupRelativePair(buf, c.codeIndex, dist); err != nil {
			return err
		}
	}

	for _, r := range l.extRefs {
		if int(r.index) >= len(l.sections) || l.sections[r.index] < 0 {
			return diag.Errorf(diag.KindAssertionFailed, "reference to unknown section %d", r.index)
		}
		dist := int32(l.sections[r.index] - r.codeIndex)
		if err := fixupRelativePair(buf, r.codeIndex, dist); err != nil {
			return err
		}
	}
	return nil
}
