package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/fwrules/internal/config"
)

// initAnswers holds the choices made in the init wizard.
type initAnswers struct {
	Backend  string
	Table    string
	Level    string
	Audit    bool
	Textfile string
}

func defaultAnswers() initAnswers {
	cfg := config.Default()
	return initAnswers{
		Backend: cfg.Store.Backend,
		Table:   cfg.Store.Table,
		Level:   cfg.Logging.Level,
		Audit:   true,
	}
}

// newInitForm builds the interactive init form bound to a.
func newInitForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Rule store").
				Description("nftables manages kernel rules; memory is for dry runs").
				Options(huh.NewOption("nftables", "nftables"), huh.NewOption("memory", "memory")).
				Value(&a.Backend),
			huh.NewInput().
				Title("nftables table").
				Value(&a.Table).
				Validate(validateTableName),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&a.Level),
			huh.NewConfirm().
				Title("Keep an audit journal?").
				Value(&a.Audit),
			huh.NewInput().
				Title("Metrics textfile").
				Description("Leave empty to disable the node exporter textfile").
				Value(&a.Textfile).
				Validate(validateTextfile),
		),
	).WithTheme(huh.ThemeBase16())
}

func validateTableName(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("this field is required")
	}
	if len(s) > 64 {
		return fmt.Errorf("table name is limited to 64 characters")
	}
	return nil
}

func validateTextfile(s string) error {
	if s == "" {
		return nil
	}
	if !filepath.IsAbs(s) || !strings.HasSuffix(s, ".prom") {
		return fmt.Errorf("must be an absolute path ending in .prom")
	}
	return nil
}

// toConfig turns the answers into a validated Config.
func (a initAnswers) toConfig() (*config.Config, error) {
	cfg := config.Default()
	cfg.Store.Backend = a.Backend
	cfg.Store.Table = strings.TrimSpace(a.Table)
	cfg.Logging.Level = a.Level
	cfg.Audit.Enabled = a.Audit
	cfg.Metrics.Textfile = a.Textfile
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
