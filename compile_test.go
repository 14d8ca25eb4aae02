package basil

import (
	"bytes"
	stdelf "debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/ir"
)

const loopProgram = `
section main locals=4
	movii32 r3, 10
	label_0
	subii32 r3, r3, 1
	calli32 r4, @addone, r3
	gtii32 r5, r4, 5
	jmpc r5, label_0, label_1
	label_1
	end

section addone iargs=1 ret=i32
	addii32 r4, r3, 1
	reti32 r4
`

func parseIR(t *testing.T, text string) *ir.Program {
	t.Helper()
	p, err := ir.ParseText(strings.NewReader(text))
	require.NoError(t, err)
	return p
}

func TestCompileProducesExecutable(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)
	log.SetOutput(&bytes.Buffer{})

	img, err := Compile(parseIR(t, loopProgram), DefaultConfig(), log)
	require.NoError(t, err)

	f, err := stdelf.NewFile(bytes.NewReader(img))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, stdelf.EM_RISCV, f.Machine)
	require.Equal(t, uint64(0x00010074), f.Entry)
	text := f.Section(".text")
	require.NotNil(t, text)
	require.NotZero(t, text.Size)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.out")
	err := CompileFile(parseIR(t, loopProgram), DefaultConfig(), logrus.New(), path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Size())

	f, err := stdelf.Open(path)
	require.NoError(t, err)
	f.Close()
}

func TestCompileFileOpenError(t *testing.T) {
	err := CompileFile(parseIR(t, loopProgram), DefaultConfig(), logrus.New(),
		filepath.Join(t.TempDir(), "no", "such", "dir", "a.out"))
	require.Error(t, err)
	require.Equal(t, diag.KindFileOpen, diag.KindOf(err))
}

func TestCompileDivideByZero(t *testing.T) {
	prog := parseIR(t, `
section main
	movii32 r3, 1
	divii32 r4, r3, 0
	end
`)
	_, err := Compile(prog, DefaultConfig(), logrus.New())
	require.Error(t, err)
	require.Equal(t, diag.KindDivideByZero, diag.KindOf(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
start_address = 0x20074
globals = 4096
heap_size = 65536
dump_sections = true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint32(0x20074), cfg.StartAddress)
	require.Equal(t, uint32(4096), cfg.Globals)
	require.Equal(t, uint32(65536), cfg.HeapSize)
	require.True(t, cfg.DumpSections)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("globals = 64\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().StartAddress, cfg.StartAddress)
	require.Equal(t, DefaultConfig().HeapSize, cfg.HeapSize)
	require.Equal(t, uint32(64), cfg.Globals)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
