package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"gopkg.in/yaml.v2"
)

// LoadOptions controls how configs are loaded
type LoadOptions struct {
	// MissingOK returns defaults instead of an error when the file does not exist.
	MissingOK bool

	// Env overrides the environment exposed to HCL as env.*; nil uses os.Environ.
	Env map[string]string
}

// LoadFile loads, defaults and validates a config file. The format follows
// the extension: .hcl, .json (HCL JSON syntax), .yaml or .yml.
func LoadFile(path string) (*Config, error) {
	return LoadFileWithOptions(path, LoadOptions{})
}

// LoadFileWithOptions loads a config file with explicit options
func LoadFileWithOptions(path string, opts LoadOptions) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if opts.MissingOK && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = LoadYAML(data)
	case ".json":
		cfg, err = loadHCL(data, path, true, opts.Env)
	default:
		cfg, err = loadHCL(data, path, false, opts.Env)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadHCL loads config from HCL bytes
func LoadHCL(data []byte, filename string) (*Config, error) {
	return loadHCL(data, filename, false, nil)
}

func loadHCL(data []byte, filename string, isJSON bool, env map[string]string) (*Config, error) {
	parser := hclparse.NewParser()

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if isJSON {
		file, diags = parser.ParseJSON(data, filename)
	} else {
		file, diags = parser.ParseHCL(data, filename)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	return finish(&cfg)
}

// LoadYAML loads config from YAML bytes. Unknown keys are rejected.
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := checkVersion(cfg.SchemaVersion); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// evalContext exposes the process environment as env.NAME and a few string
// functions to HCL expressions.
func evalContext(env map[string]string) *hcl.EvalContext {
	if env == nil {
		env = make(map[string]string)
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
	}

	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vals),
		},
		Functions: map[string]function.Function{
			"lower":     stdlib.LowerFunc,
			"upper":     stdlib.UpperFunc,
			"join":      stdlib.JoinFunc,
			"trimspace": stdlib.TrimSpaceFunc,
		},
	}
}

// SaveHCL writes cfg as HCL, creating the parent directory.
func SaveHCL(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, GenerateHCL(cfg), 0644); err != nil {
		return fmt.Errorf("failed to write HCL file: %w", err)
	}
	return nil
}

// GenerateHCL renders cfg using hclwrite formatting.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return hclwrite.Format(f.Bytes())
}
