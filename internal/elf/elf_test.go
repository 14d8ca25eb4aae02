package elf

import (
	"bytes"
	stdelf "debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, code []byte, entry, globals uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, code, entry, globals))
	return buf.Bytes()
}

func TestWriteProducesValidELF(t *testing.T) {
	code := []byte{0x73, 0x00, 0x00, 0x00} // ecall
	img := writeImage(t, code, 0x00010074, 0)

	f, err := stdelf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, stdelf.ELFCLASS32, f.Class)
	require.Equal(t, stdelf.ELFDATA2LSB, f.Data)
	require.Equal(t, stdelf.ET_EXEC, f.Type)
	require.Equal(t, stdelf.EM_RISCV, f.Machine)
	require.Equal(t, uint64(0x00010074), f.Entry)

	require.Len(t, f.Progs, 2)
	require.Len(t, f.Sections, 4)
}

func TestWriteSectionLayout(t *testing.T) {
	code := make([]byte, 64)
	img := writeImage(t, code, 0x00010074, 0)

	f, err := stdelf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	defer f.Close()

	text := f.Section(".text")
	require.NotNil(t, text)
	require.Equal(t, uint64(codeOffset), text.Offset)
	require.Equal(t, uint64(len(code)), text.Size)
	require.Equal(t, uint64(0x00010074), text.Addr)
	require.Equal(t, stdelf.SHF_ALLOC|stdelf.SHF_EXECINSTR, text.Flags)

	attr := f.Section(".riscv.attributes")
	require.NotNil(t, attr)
	require.Equal(t, uint64(len(attributes)), attr.Size)
	payload, err := attr.Data()
	require.NoError(t, err)
	require.Contains(t, string(payload), "rv32i2p0_m2p0")

	strtab := f.Section(".shstrtab")
	require.NotNil(t, strtab)
	require.Equal(t, stdelf.SHT_STRTAB, strtab.Type)
}

func TestWriteLoadSegment(t *testing.T) {
	code := make([]byte, 32)
	img := writeImage(t, code, 0x00010074, 0x400)

	f, err := stdelf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	defer f.Close()

	var load *stdelf.Prog
	for _, p := range f.Progs {
		if p.Type == stdelf.PT_LOAD {
			load = p
		}
	}
	require.NotNil(t, load)
	require.Equal(t, uint64(0), load.Off)
	require.Equal(t, uint64(0x00010000), load.Vaddr)
	require.Equal(t, uint64(codeOffset+len(code)), load.Filesz)
	// The globals area extends the memory image past the file.
	require.Equal(t, load.Filesz+0x400, load.Memsz)
}

func TestAttributesBlobGeometry(t *testing.T) {
	require.Len(t, attributes, 31)
	require.Equal(t, byte('A'), attributes[0])
	// The code offset stays a fixed 0x74 so a page-aligned mapping puts
	// the entry at its advertised address.
	require.Equal(t, 0x74, codeOffset)
	require.Equal(t, "\x00.text\x00.riscv.attributes\x00.shstrtab\x00", string(shstrtab))
}
