package cmd

import "grimm.is/fwrules/internal/brand"

// RunVersion prints build information.
func RunVersion() {
	Printer.Fprintf(Stdout, "%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)
}
