package config

import (
	"path/filepath"

	"grimm.is/fwrules/internal/brand"
	"grimm.is/fwrules/internal/firewall"
)

// CurrentSchemaVersion is the latest config schema version
const CurrentSchemaVersion = "1.0"

// Config is the top-level fwrules configuration.
type Config struct {
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty" yaml:"schema_version,omitempty"`

	Store   *StoreConfig   `hcl:"store,block" json:"store,omitempty" yaml:"store,omitempty"`
	Delete  *DeleteConfig  `hcl:"delete,block" json:"delete,omitempty" yaml:"delete,omitempty"`
	Logging *LoggingConfig `hcl:"logging,block" json:"logging,omitempty" yaml:"logging,omitempty"`
	Audit   *AuditConfig   `hcl:"audit,block" json:"audit,omitempty" yaml:"audit,omitempty"`
	Metrics *MetricsConfig `hcl:"metrics,block" json:"metrics,omitempty" yaml:"metrics,omitempty"`

	Rules []RuleBlock `hcl:"rule,block" json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
}

// StoreConfig selects the rule store.
type StoreConfig struct {
	// Backend is "nftables" (native) or "memory" (dry run).
	Backend string `hcl:"backend,optional" json:"backend,omitempty" yaml:"backend,omitempty" validate:"omitempty,oneof=nftables memory"`
	// Table is the nftables inet table holding managed rules.
	Table string `hcl:"table,optional" json:"table,omitempty" yaml:"table,omitempty" validate:"omitempty,max=64,printascii"`
}

// DeleteConfig bounds the DeleteRule reconciliation loop.
type DeleteConfig struct {
	MaxIterations     int `hcl:"max_iterations,optional" json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"gte=0"`
	MaxRemoveFailures int `hcl:"max_remove_failures,optional" json:"max_remove_failures,omitempty" yaml:"max_remove_failures,omitempty" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string        `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	JSON   bool          `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty" yaml:"syslog,omitempty"`
}

// SyslogConfig enables remote syslog output.
type SyslogConfig struct {
	Host     string `hcl:"host" json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `hcl:"port,optional" json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty" yaml:"protocol,omitempty" validate:"omitempty,oneof=udp tcp"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty" yaml:"tag,omitempty"`
}

// AuditConfig controls the operation journal.
type AuditConfig struct {
	Enabled       bool   `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path          string `hcl:"path,optional" json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Enabled true"`
	RetentionDays int    `hcl:"retention_days,optional" json:"retention_days,omitempty" yaml:"retention_days,omitempty" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile is written after every command when set.
	Textfile string `hcl:"textfile,optional" json:"textfile,omitempty" yaml:"textfile,omitempty" validate:"omitempty,fw_promfile"`
}

// RuleBlock declares one desired rule:
//
//	rule "block-ssh" {
//	  action       = "block"
//	  direction    = "in"
//	  protocol     = "tcp"
//	  remote_ports = "22"
//	}
type RuleBlock struct {
	Name            string `hcl:"name,label" json:"name" yaml:"name" validate:"required"`
	Action          string `hcl:"action" json:"action" yaml:"action" validate:"required,fw_action"`
	Direction       string `hcl:"direction" json:"direction" yaml:"direction" validate:"required,fw_direction"`
	Protocol        string `hcl:"protocol,optional" json:"protocol,omitempty" yaml:"protocol,omitempty" validate:"omitempty,fw_protocol"`
	LocalAddresses  string `hcl:"local_addresses,optional" json:"local_addresses,omitempty" yaml:"local_addresses,omitempty"`
	LocalPorts      string `hcl:"local_ports,optional" json:"local_ports,omitempty" yaml:"local_ports,omitempty"`
	RemoteAddresses string `hcl:"remote_addresses,optional" json:"remote_addresses,omitempty" yaml:"remote_addresses,omitempty"`
	RemotePorts     string `hcl:"remote_ports,optional" json:"remote_ports,omitempty" yaml:"remote_ports,omitempty"`
}

// Spec converts the block into a firewall.RuleSpec.
func (r RuleBlock) Spec() (firewall.RuleSpec, error) {
	action, err := firewall.ParseAction(r.Action)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	direction, err := firewall.ParseDirection(r.Direction)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	protocol, err := firewall.ParseProtocol(r.Protocol)
	if err != nil {
		return firewall.RuleSpec{}, err
	}
	return firewall.RuleSpec{
		Name:            r.Name,
		Action:          action,
		Direction:       direction,
		Protocol:        protocol,
		LocalAddresses:  r.LocalAddresses,
		LocalPorts:      r.LocalPorts,
		RemoteAddresses: r.RemoteAddresses,
		RemotePorts:     r.RemotePorts,
	}, nil
}

// RuleNames returns the declared rule names in file order.
func (c *Config) RuleNames() []string {
	names := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		names = append(names, r.Name)
	}
	return names
}

// Default returns a Config with every block populated with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills missing blocks and zero fields.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}

	if c.Store == nil {
		c.Store = &StoreConfig{}
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "nftables"
	}
	if c.Store.Table == "" {
		c.Store.Table = brand.TableName
	}

	if c.Delete == nil {
		c.Delete = &DeleteConfig{}
	}
	if c.Delete.MaxIterations == 0 {
		c.Delete.MaxIterations = firewall.DefaultMaxDeleteIterations
	}
	if c.Delete.MaxRemoveFailures == 0 {
		c.Delete.MaxRemoveFailures = firewall.DefaultMaxRemoveFailures
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(brand.GetStateDir(), "audit.db")
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}
}
