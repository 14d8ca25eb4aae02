// Package elf wraps an encoded RV32 code image in a minimal static ELF32
// executable: two program headers (a RISC-V attributes segment and one
// LOAD segment) and four sections (NULL, .text, .riscv.attributes,
// .shstrtab).
package elf

import (
	"encoding/binary"
	"io"
)

const (
	ehdrSize = 52
	phdrSize = 32
	shdrSize = 40

	phdrCount = 2
	shdrCount = 4

	// codeOffset is where the code lands in the file: right after the ELF
	// and program headers. The entry point's low bits match it so the
	// whole file maps page-aligned.
	codeOffset = ehdrSize + phdrCount*phdrSize

	etExec     = 2
	emRISCV    = 0xf3
	ptLoad     = 1
	ptRISCVAtt = 0x70000003

	shtProgbits = 1
	shtStrtab   = 3
	shtRISCVAtt = 0x70000003
)

// shstrtab is the literal section-name string table.
var shstrtab = []byte("\x00.text\x00.riscv.attributes\x00.shstrtab\x00")

const (
	nameText     = 1
	nameRISCVAtt = 7
	nameShstrtab = 25
)

// attributes declares the target architecture as rv32i2p0_m2p0.
var attributes = buildAttributes()

func buildAttributes() []byte {
	const arch = "rv32i2p0_m2p0\x00"
	sub := make([]byte, 0, 31)
	sub = append(sub, 'A')
	// Vendor sub-section length: itself, "riscv\0", and the file-scope tag.
	sub = binary.LittleEndian.AppendUint32(sub, uint32(4+6+1+4+1+len(arch)))
	sub = append(sub, "riscv\x00"...)
	sub = append(sub, 1) // Tag_file
	sub = binary.LittleEndian.AppendUint32(sub, uint32(4+1+len(arch)))
	sub = append(sub, 5) // Tag_RISCV_arch
	sub = append(sub, arch...)
	return sub
}

func align4(n int) int { return (n + 3) &^ 3 }

// Write emits the executable. code is the encoded program, entry the
// virtual address of its first instruction, globals the size of the
// global-variable area the LOAD segment reserves past the image.
func Write(w io.Writer, code []byte, entry uint32, globals uint32) error {
	attrOffset := codeOffset + len(code)
	strtabOffset := attrOffset + len(attributes)
	shOffset := align4(strtabOffset + len(shstrtab))

	buf := make([]byte, 0, shOffset+shdrCount*shdrSize)
	le := binary.LittleEndian

	u16 := func(v uint16) { buf = le.AppendUint16(buf, v) }
	u32 := func(v uint32) { buf = le.AppendUint32(buf, v) }

	// ELF header.
	buf = append(buf, 0x7f, 'E', 'L', 'F', 1, 1, 1, 0)
	buf = append(buf, make([]byte, 8)...)
	u16(etExec)
	u16(emRISCV)
	u32(1)
	u32(entry)
	u32(ehdrSize) // e_phoff
	u32(uint32(shOffset))
	u32(0) // e_flags
	u16(ehdrSize)
	u16(phdrSize)
	u16(phdrCount)
	u16(shdrSize)
	u16(shdrCount)
	u16(shdrCount - 1) // e_shstrndx

	// Program header: RISC-V attributes.
	u32(ptRISCVAtt)
	u32(uint32(attrOffset))
	u32(0)
	u32(0)
	u32(uint32(len(attributes)))
	u32(0)
	u32(4) // PF_R
	u32(1)

	// Program header: the LOAD segment covers the headers and the code so
	// the entry point lands at its fixed offset into the page.
	loadBase := entry - codeOffset
	u32(ptLoad)
	u32(0)
	u32(loadBase)
	u32(loadBase)
	u32(uint32(codeOffset + len(code)))
	u32(uint32(codeOffset+len(code)) + globals)
	u32(7) // PF_R|PF_W|PF_X
	u32(0x1000)

	// Code, attributes, string table, alignment padding.
	buf = append(buf, code...)
	buf = append(buf, attributes...)
	buf = append(buf, shstrtab...)
	for len(buf) < shOffset {
		buf = append(buf, 0)
	}

	// Section header: NULL.
	buf = append(buf, make([]byte, shdrSize)...)

	// Section header: .text.
	u32(nameText)
	u32(shtProgbits)
	u32(2 | 4) // SHF_ALLOC|SHF_EXECINSTR
	u32(entry)
	u32(codeOffset)
	u32(uint32(len(code)))
	u32(0)
	u32(0)
	u32(4)
	u32(0)

	// Section header: .riscv.attributes.
	u32(nameRISCVAtt)
	u32(shtRISCVAtt)
	u32(0)
	u32(0)
	u32(uint32(attrOffset))
	u32(uint32(len(attributes)))
	u32(0)
	u32(0)
	u32(1)
	u32(0)

	// Section header: .shstrtab.
	u32(nameShstrtab)
	u32(shtStrtab)
	u32(0)
	u32(0)
	u32(uint32(strtabOffset))
	u32(uint32(len(shstrtab)))
	u32(0)
	u32(0)
	u32(1)
	u32(0)

	_, err := w.Write(buf)
	return err
}
