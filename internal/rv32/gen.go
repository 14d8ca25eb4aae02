package rv32

import (
	"github.com/sirupsen/logrus"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

// Settings are the target knobs the driver needs.
type Settings struct {
	// StartAddress is the virtual address the code is linked at.
	StartAddress uint32
	// Globals is the size in bytes of the global-variable area the loader
	// must reserve beyond the image.
	Globals uint32
	// HeapSize is the size of the mmap'ed heap in bytes.
	HeapSize uint32
	// DumpSections logs every compiled section.
	DumpSections bool
}

// DefaultSettings matches the reference target: a static Linux RV32IM
// binary with a 1 MiB heap.
func DefaultSettings() Settings {
	return Settings{
		StartAddress: 0x00010074,
		HeapSize:     1024 * 1024,
	}
}

// Generate compiles an IR program into machine sections: instruction
// selection, sub-section analysis, register allocation and the peephole,
// leaving a program ready for encoding.
func Generate(p *ir.Program, set Settings, log *logrus.Logger) (*Program, error) {
	pool := NewOpPool()
	prog := NewProgram(pool, p.Names, p.Constants)
	prog.StartAddress = set.StartAddress

	g := &genState{}
	rules, err := ir.ParseRules(g.bareRules())
	if err != nil {
		return nil, err
	}

	for idx, s := range p.Sections {
		switch s.Kind {
		case ir.SectionAsm:
			asm, ok := s.AsmSection.(*Section)
			if !ok {
				return nil, diag.Errorf(diag.KindAssertionFailed, "section %d carries no assembly", idx)
			}
			prog.AppendSection(asm)
			continue
		case ir.SectionBackendBuiltin:
			rvs := prog.NewProgramSection(s.SType, s.RegCounter, s.FregCounter, s.LabelCounter, s.Locals)
			addBuiltin(rvs)
			continue
		}

		rvs := prog.NewProgramSection(s.SType, s.RegCounter, s.FregCounter, s.LabelCounter, s.Locals)
		g.rvs = rvs

		if idx == 0 {
			addPreamble(rvs, set)
		}
		if err := addSection(s, rvs, rules); err != nil {
			return nil, err
		}

		if log != nil {
			entry := log.WithFields(logrus.Fields{
				"section": p.Names[idx],
				"ops":     rvs.Len,
				"locals":  rvs.Locals,
			})
			if set.DumpSections {
				entry = entry.WithField("code", rvs.String())
			}
			entry.Debug("compiled section")
		}
	}

	return prog, nil
}

// addPreamble emits the program entry set-up: the global pointer material
// and an anonymous heap of set.HeapSize bytes from mmap, kept in x4.
func addPreamble(rvs *Section, set Settings) {
	// The global area sits at the end of the image; the linker fills the
	// pair in once the layout is known.
	rvs.AddLG(RegGlobal)

	rvs.AddMv(RegA0, RegZero)
	rvs.AddLi(RegA1, int32(set.HeapSize))
	rvs.AddLi(RegA2, 3)
	rvs.AddLi(RegA3, 0x22)
	rvs.AddLi(RegA4, -1)
	rvs.AddMv(RegA5, RegZero)
	rvs.AddLi(RegA7, 222)
	rvs.AddEcall()
	rvs.AddMv(RegHeap, RegA0)
}

// addBuiltin lowers a backend-builtin section. The bare target defines no
// helpers that need bodies, so a builtin is a plain return.
func addBuiltin(rvs *Section) {
	rvs.AddIType(Jalr, RegZero, RegRA, 0)
}

// addSection compiles one IR section: prologue, instruction selection,
// allocation, epilogue patching, peephole.
func addSection(s *ir.Section, rvs *Section, rules []ir.Rule) error {
	// The frame size is unknown until allocation completes, so the
	// prologue reserves a lui/addi pair to fill in later.
	rvs.AddUType(Lui, RegT0, 0)
	luiIdx := rvs.LastOp
	rvs.AddIType(Addi, RegT0, RegT0, 0)
	addiIdx := rvs.LastOp
	rvs.AddRType(Sub, RegStack, RegStack, RegT0)
	rvs.AddMv(RegLocal, RegStack)

	if err := ir.Match(s, rules); err != nil {
		return err
	}

	spill, err := Allocate(rvs)
	if err != nil {
		return err
	}

	stackSpace := spill + rvs.Locals
	patchStackPair(rvs, luiIdx, addiIdx, stackSpace)
	for _, site := range rvs.RetSites {
		patchStackPair(rvs, site, rvs.At(site).Next, stackSpace)
	}

	Peephole(rvs)
	return nil
}

// patchStackPair rewrites a reserved lui/addi pair so it materialises
// space.
func patchStackPair(rvs *Section, luiIdx, addiIdx int, space int32) {
	upper, lower := liSplit(space)
	rvs.At(luiIdx).Instr.Imm = int32(upper >> 12)
	rvs.At(addiIdx).Instr.Imm = lower
}

// EncodeProgram lays out every section in order, appends the program
// constant pool, and resolves cross-section references. The returned
// buffer is the .text payload of the final image.
func EncodeProgram(prog *Program) ([]byte, error) {
	link := NewLinker(len(prog.Sections))
	enc := NewEncoder(link)

	for i, s := range prog.Sections {
		link.SetSectionOffset(i, len(enc.Bytes()))
		if err := enc.EncodeSection(s); err != nil {
			return nil, err
		}
	}

	constLocations := make([]int, len(prog.Constants))
	for i, c := range prog.Constants {
		if c.IsDouble {
			enc.align(8)
		} else {
			enc.align(4)
		}
		constLocations[i] = len(enc.Bytes())
		enc.buf = append(enc.buf, c.Data...)
		enc.align(4)
	}

	if err := link.Apply(enc.Bytes(), constLocations, prog.StartAddress); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
