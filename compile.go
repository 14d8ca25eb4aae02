package basil

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/basil-lang/basil/internal/diag"
	"github.com/basil-lang/basil/internal/elf"
	"github.com/basil-lang/basil/internal/ir"
	"github.com/basil-lang/basil/internal/rv32"
)

// Compile runs the back end over p and returns the bytes of a static
// RV32IM ELF executable.
func Compile(p *ir.Program, cfg Config, log *logrus.Logger) ([]byte, error) {
	prog, err := rv32.Generate(p, cfg.settings(), log)
	if err != nil {
		return nil, err
	}
	code, err := rv32.EncodeProgram(prog)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := elf.Write(&buf, code, cfg.StartAddress, cfg.Globals); err != nil {
		return nil, diag.Errorf(diag.KindFileWrite, "%v", err)
	}
	return buf.Bytes(), nil
}

// CompileFile is Compile writing the executable to path with 0755
// permissions.
func CompileFile(p *ir.Program, cfg Config, log *logrus.Logger, path string) error {
	prog, err := rv32.Generate(p, cfg.settings(), log)
	if err != nil {
		return err
	}
	code, err := rv32.EncodeProgram(prog)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return diag.Errorf(diag.KindFileOpen, "%v", err)
	}
	if err := elf.Write(f, code, cfg.StartAddress, cfg.Globals); err != nil {
		f.Close()
		return diag.Errorf(diag.KindFileWrite, "%v", err)
	}
	if err := f.Close(); err != nil {
		return diag.Errorf(diag.KindFileClose, "%v", err)
	}
	return nil
}
