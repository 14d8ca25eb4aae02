// Package basil is the public surface of the basil compiler core: it
// turns a validated IR program into a static RV32IM Linux executable.
package basil

import (
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/basil-lang/basil/internal/rv32"
)

// Config holds the target settings. The zero value is not useful; start
// from DefaultConfig.
type Config struct {
	// StartAddress is the virtual address of the first instruction.
	StartAddress uint32 `toml:"start_address"`
	// Globals is the size in bytes of the global-variable area.
	Globals uint32 `toml:"globals"`
	// HeapSize is the size of the runtime heap reserved at startup.
	HeapSize uint32 `toml:"heap_size"`
	// DumpSections logs the machine code of every compiled section.
	DumpSections bool `toml:"dump_sections"`
}

// DefaultConfig returns the reference target: entry at 0x00010074 with a
// 1 MiB heap.
func DefaultConfig() Config {
	set := rv32.DefaultSettings()
	return Config{
		StartAddress: set.StartAddress,
		HeapSize:     set.HeapSize,
	}
}

// LoadConfig reads a TOML settings file. Keys not present keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	tree, err := toml.LoadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "loading settings %s", path)
	}
	if err := tree.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing settings %s", path)
	}
	return cfg, nil
}

func (c Config) settings() rv32.Settings {
	return rv32.Settings{
		StartAddress: c.StartAddress,
		Globals:      c.Globals,
		HeapSize:     c.HeapSize,
		DumpSections: c.DumpSections,
	}
}
