package cmd

import (
	"fmt"
	"io"
	"os"

	"grimm.is/fwrules/internal/audit"
	"grimm.is/fwrules/internal/config"
	"grimm.is/fwrules/internal/firewall"
	"grimm.is/fwrules/internal/i18n"
	"grimm.is/fwrules/internal/logging"
	"grimm.is/fwrules/internal/metrics"
)

// Printer formats user-facing output in the caller's locale.
var Printer = i18n.NewCLIPrinter()

// Stdout receives command output.
var Stdout io.Writer = os.Stdout

// Stderr receives diagnostics and the process log.
var Stderr io.Writer = os.Stderr

// openStore returns the rule store selected by cfg. Dry runs always use an
// in-memory store.
var openStore = func(cfg *config.StoreConfig, dryRun bool) firewall.Store {
	if dryRun || cfg.Backend == "memory" {
		return firewall.NewMemoryStore()
	}
	return firewall.NewNFTablesStore(cfg.Table)
}

// runtime wires a loaded config into a Manager and its observers.
type runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	manager *firewall.Manager
	metrics *metrics.Registry
	journal *audit.Store
	syslog  *logging.SyslogWriter
	last    firewall.OperationReport
}

func newRuntime(configFile string, dryRun bool) (*runtime, error) {
	cfg, err := config.LoadFileWithOptions(configFile, config.LoadOptions{MissingOK: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return newRuntimeFromConfig(cfg, dryRun)
}

func newRuntimeFromConfig(cfg *config.Config, dryRun bool) (*runtime, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, metrics: metrics.NewRegistry()}

	var syslogErr error
	out := Stderr
	if s := cfg.Logging.Syslog; s != nil {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{
			Host:     s.Host,
			Port:     s.Port,
			Protocol: s.Protocol,
			Tag:      s.Tag,
		})
		if err != nil {
			syslogErr = err
		} else {
			rt.syslog = w
			out = io.MultiWriter(Stderr, w)
		}
	}

	rt.logger = logging.New(logging.Config{Level: level, Output: out, JSON: cfg.Logging.JSON})
	if dryRun {
		rt.logger = rt.logger.WithFields(map[string]any{"dry_run": true})
	}
	logging.SetDefault(rt.logger)
	if syslogErr != nil {
		rt.logger.Warn("Remote syslog unavailable, logging to stderr only", "error", syslogErr)
	}

	opts := []firewall.Option{
		firewall.WithDeleteLimits(cfg.Delete.MaxIterations, cfg.Delete.MaxRemoveFailures),
		firewall.WithObserver(rt.metrics.Observe),
		firewall.WithObserver(func(r firewall.OperationReport) { rt.last = r }),
	}

	if cfg.Audit.Enabled && !dryRun {
		journal, err := audit.NewStore(cfg.Audit.Path, cfg.Audit.RetentionDays)
		if err != nil {
			rt.logger.Warn("Audit journal unavailable", "path", cfg.Audit.Path, "error", err)
		} else {
			rt.journal = journal
			opts = append(opts, firewall.WithObserver(rt.record))
		}
	}

	rt.manager = firewall.NewManager(openStore(cfg.Store, dryRun), rt.logger, opts...)
	return rt, nil
}

func (rt *runtime) record(rep firewall.OperationReport) {
	rt.logger.Audit(rep.Op, rep.Name, "op_id", rep.ID, "result", rep.Result())
	if err := rt.journal.Record(rep); err != nil {
		rt.logger.Warn("Failed to record audit event", "op_id", rep.ID, "error", err)
	}
}

// Close writes the metrics textfile, prunes the journal and releases
// everything newRuntime opened.
func (rt *runtime) Close() {
	if path := rt.cfg.Metrics.Textfile; path != "" {
		if err := rt.metrics.WriteTextfile(path); err != nil {
			rt.logger.Warn("Failed to write metrics", "path", path, "error", err)
		}
	}

	if rt.journal != nil {
		if n, err := rt.journal.Prune(); err != nil {
			rt.logger.Warn("Failed to prune audit journal", "error", err)
		} else if n > 0 {
			rt.logger.Debug("Pruned audit journal", "removed", n)
		}
		rt.journal.Close()
	}

	if rt.syslog != nil {
		rt.syslog.Close()
	}
}
