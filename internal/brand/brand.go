// Package brand holds the product identity: names, default paths and the
// nftables table that fwrules owns. Values come from the embedded brand.json.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

type identity struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
	TableName        string `json:"tableName"`
}

var (
	Name             string
	LowerName        string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	DefaultStateDir  string
	BinaryName       string
	ConfigFileName   string
	// TableName is the default inet table for managed rules.
	TableName string

	// Set at build time via -ldflags.
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	var id identity
	if err := json.Unmarshal(brandJSON, &id); err != nil {
		panic("brand: bad brand.json: " + err.Error())
	}

	Name = id.Name
	LowerName = id.LowerName
	Description = id.Description
	ConfigEnvPrefix = id.ConfigEnvPrefix
	DefaultConfigDir = id.DefaultConfigDir
	DefaultStateDir = id.DefaultStateDir
	BinaryName = id.BinaryName
	ConfigFileName = id.ConfigFileName
	TableName = id.TableName
}

// dir resolves <PREFIX>_<key>_DIR, then <PREFIX>_PREFIX/<sub>, then def.
func dir(key, sub, def string) string {
	if d := os.Getenv(ConfigEnvPrefix + "_" + key + "_DIR"); d != "" {
		return d
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return def
}

// GetStateDir returns where the audit journal lives.
// FWRULES_STATE_DIR wins over FWRULES_PREFIX/state.
func GetStateDir() string {
	return dir("STATE", "state", DefaultStateDir)
}

// GetConfigDir returns the directory holding fwrules.hcl.
func GetConfigDir() string {
	return dir("CONFIG", "config", DefaultConfigDir)
}

func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
