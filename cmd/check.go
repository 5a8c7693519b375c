package cmd

import (
	"fmt"
	"text/tabwriter"

	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/config"
	"grimm.is/fwrules/internal/i18n"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(args []string) error {
	fs, configFile := newFlagSet("check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 1 {
		*configFile = fs.Arg(0)
	}
	if *configFile == "" {
		return fmt.Errorf("usage: %s check <config-file>\nExample: %s check %s", brand.BinaryName, brand.BinaryName, brand.DefaultConfigPath())
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(Stdout, i18n.MsgConfigValid, len(cfg.Rules))
	Printer.Fprintf(Stdout, "Schema Version: %s\n", cfg.SchemaVersion)
	Printer.Fprintf(Stdout, "Store: %s (table %s)\n", cfg.Store.Backend, cfg.Store.Table)

	if len(cfg.Rules) > 0 {
		printRules(cfg)
	}
	return nil
}

func printRules(cfg *config.Config) {
	w := tabwriter.NewWriter(Stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "\nNAME\tACTION\tDIR\tPROTOCOL\tLOCAL\tREMOTE")
	for _, r := range cfg.Rules {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name, r.Action, r.Direction, orDash(r.Protocol),
			endpoint(r.LocalAddresses, r.LocalPorts),
			endpoint(r.RemoteAddresses, r.RemotePorts))
	}
	w.Flush()
}

func endpoint(addrs, ports string) string {
	switch {
	case addrs == "" && ports == "":
		return "-"
	case ports == "":
		return addrs
	case addrs == "":
		return "*:" + ports
	default:
		return addrs + ":" + ports
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
