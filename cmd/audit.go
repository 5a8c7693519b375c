package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/fwrules/internal/audit"
	"grimm.is/fwrules/internal/config"
)

// RunAudit handles the "audit" command: it prints journaled operations,
// newest first.
func RunAudit(args []string) error {
	flags, configFile := newFlagSet("audit")

	var (
		limit        int
		since        time.Duration
		action, rule string
	)
	flags.IntVar(&limit, "lines", 20, "Number of events to show")
	flags.IntVar(&limit, "n", 20, "Alias for -lines")
	flags.DurationVar(&since, "since", 0, "Only show events newer than this (e.g. 24h)")
	flags.StringVar(&action, "action", "", "Filter by operation (create, delete, exists, list)")
	flags.StringVar(&rule, "rule", "", "Filter by rule name")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFileWithOptions(*configFile, config.LoadOptions{MissingOK: true})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if _, err := os.Stat(cfg.Audit.Path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("no audit journal at %s", cfg.Audit.Path)
	}

	store, err := audit.NewStore(cfg.Audit.Path, cfg.Audit.RetentionDays)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := audit.Filter{Action: action, Rule: rule, Limit: limit}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	events, err := store.Query(filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	Printer.Fprintln(w, "TIME\tOP\tRULE\tRESULT\tREMOVED\tUSER\tOP ID")
	for _, e := range events {
		Printer.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Local().Format(time.RFC3339), e.Action, orDash(e.Rule),
			e.Result, e.Removed, e.User, e.OpID)
	}
	return w.Flush()
}
