package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/config"
)

// RunInit writes a configuration file containing every default, or the
// answers given to the interactive wizard.
func RunInit(args []string) error {
	flags, configFile := newFlagSet("init")
	force := flags.Bool("force", false, "Overwrite an existing file")
	interactive := flags.Bool("interactive", false, "Ask for each setting")
	flags.BoolVar(interactive, "i", false, "Alias for -interactive")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 1 {
		return fmt.Errorf("usage: %s init [-i] [-force] [<config-file>]", brand.BinaryName)
	}
	if flags.NArg() == 1 {
		*configFile = flags.Arg(0)
	}

	if _, err := os.Stat(*configFile); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", *configFile)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	if *interactive {
		answers := defaultAnswers()
		if err := newInitForm(&answers).Run(); err != nil {
			return err
		}
		var err error
		if cfg, err = answers.toConfig(); err != nil {
			return err
		}
	}

	if err := config.SaveHCL(cfg, *configFile); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, "Wrote %s\n", *configFile)
	return nil
}
