package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/config"
	"grimm.is/fwrules/internal/i18n"
)

// ErrDiffers is returned by RunDiff when the store does not match the config.
var ErrDiffers = errors.New("store differs from configuration")

// RunApply handles the "apply" command: every declared rule replaces any
// stored rules of the same name.
func RunApply(args []string) error {
	fs, configFile := newFlagSet("apply")
	dryRun := fs.Bool("dry-run", false, "Apply against an in-memory store")
	fs.BoolVar(dryRun, "n", false, "Alias for -dry-run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("usage: %s apply [-n] [<config-file>]", brand.BinaryName)
	}
	if fs.NArg() == 1 {
		*configFile = fs.Arg(0)
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	rt, err := newRuntimeFromConfig(cfg, *dryRun)
	if err != nil {
		return err
	}
	defer rt.Close()

	var failed []string
	for _, block := range cfg.Rules {
		spec, err := block.Spec()
		if err != nil {
			rt.logger.Error("Invalid rule block", "rule", block.Name, "error", err)
			failed = append(failed, block.Name)
			continue
		}
		if err := rt.manager.DeleteRule(spec.Name); err != nil {
			failed = append(failed, block.Name)
			continue
		}
		if err := rt.manager.CreateRule(spec); err != nil {
			failed = append(failed, block.Name)
			continue
		}
		Printer.Fprintf(Stdout, i18n.MsgRuleCreated, spec.Name)
	}

	Printer.Fprintf(Stdout, i18n.MsgApplySummary, len(cfg.Rules)-len(failed), len(failed))
	if len(failed) > 0 {
		return fmt.Errorf("failed to apply: %s", strings.Join(failed, ", "))
	}
	return nil
}

// RunDiff handles the "diff" command. It prints a unified diff between the
// declared rule names and the names in the store.
func RunDiff(args []string) error {
	fs, configFile := newFlagSet("diff")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 1 {
		*configFile = fs.Arg(0)
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	rt, err := newRuntimeFromConfig(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	stored, err := rt.manager.ListRules()
	if err != nil {
		return err
	}

	declared := cfg.RuleNames()
	sort.Strings(declared)
	sort.Strings(stored)

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        nameLines(declared),
		B:        nameLines(stored),
		FromFile: *configFile,
		ToFile:   "store:" + cfg.Store.Table,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("render diff: %w", err)
	}

	if text == "" {
		Printer.Fprintf(Stdout, i18n.MsgNoChanges)
		return nil
	}
	fmt.Fprint(Stdout, text)
	return ErrDiffers
}

func nameLines(names []string) []string {
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = n + "\n"
	}
	return lines
}
