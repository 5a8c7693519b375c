package main

import (
	"errors"
	"flag"
	"os"

	"grimm.is/fwrules/cmd"
	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]

	switch os.Args[1] {
	case "create":
		exitOn("Create failed", cmd.RunCreate(args))

	case "delete", "rm":
		exitOn("Delete failed", cmd.RunDelete(args))

	case "exists":
		presence, err := cmd.RunExists(args)
		if err != nil {
			printer.Fprintf(os.Stderr, "Exists failed: %v\n", err)
		}
		os.Exit(cmd.ExitCode(presence, err))

	case "apply":
		exitOn("Apply failed", cmd.RunApply(args))

	case "diff":
		err := cmd.RunDiff(args)
		if errors.Is(err, cmd.ErrDiffers) {
			os.Exit(1)
		}
		exitOn("Diff failed", err)

	case "check":
		exitOn("Check failed", cmd.RunCheck(args))

	case "audit":
		exitOn("Audit failed", cmd.RunAudit(args))

	case "init":
		exitOn("Init failed", cmd.RunInit(args))

	case "version", "-v", "--version":
		cmd.RunVersion()

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// exitOn reports err and exits non-zero. Flag parse errors have already been
// printed by the flag set.
func exitOn(what string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	printer.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Rule Commands:
  create    Create a rule
            Options: -name, -action allow|block, -dir in|out, -protocol,
                     -local-addr, -local-port, -remote-addr, -remote-port
  delete    Delete every rule with the given name (alias: rm)
  exists    Check whether a rule exists (exit 0 present, 1 absent, 2 error)

Configuration Commands:
  apply     Replace every declared rule by name
            Options: --dry-run (-n)
  diff      Compare declared rule names with the store (exit 1 on drift)
  check     Validate configuration file
  init      Write a default configuration file
            Options: -force

Utility Commands:
  audit     Show the operation journal
            Options: -n (lines), -since <duration>, -action, -rule
  version   Show version information

Every command accepts -config (-c) <file>, default %s.

Examples:
  %s create -name block-ssh -action block -dir in -protocol tcp -remote-port 22
  %s exists block-ssh
  %s delete block-ssh
  %s apply -n /etc/fwrules/fwrules.hcl
  %s audit -since 24h -action delete
`,
		brand.Name, brand.Description,
		brand.LowerName,
		brand.DefaultConfigPath(),
		brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName, brand.LowerName)
}
