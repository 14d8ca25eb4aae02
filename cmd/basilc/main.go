// Command basilc compiles textual IR programs into static RV32 Linux
// executables.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	basil "github.com/basil-lang/basil"
	"github.com/basil-lang/basil/internal/ir"
)

var version = "dev"

func main() {
	log := logrus.New()

	var (
		output     string
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "basilc",
		Short:         "basil compiler for RV32IM Linux targets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	build := &cobra.Command{
		Use:   "build [flags] input.ir",
		Short: "compile an IR program into an executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			cfg := basil.DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = basil.LoadConfig(configPath); err != nil {
					return err
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			prog, err := ir.ParseText(f)
			if err != nil {
				return err
			}

			if err := basil.CompileFile(prog, cfg, log, output); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"input":  args[0],
				"output": output,
			}).Info("compiled")
			return nil
		},
	}
	build.Flags().StringVarP(&output, "output", "o", "a.out", "output path")
	build.Flags().StringVarP(&configPath, "config", "c", "", "target settings file (TOML)")
	build.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(build, versionCmd)

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
