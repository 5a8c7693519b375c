package brand

import (
	"path/filepath"
	"testing"
)

func TestIdentityLoaded(t *testing.T) {
	if Name == "" || BinaryName == "" {
		t.Error("brand.json did not populate names")
	}
	if Version == "" {
		t.Error("Version should default to dev")
	}
	if TableName != "fwrules" {
		t.Errorf("Expected table fwrules, got %s", TableName)
	}
	if ConfigEnvPrefix != "FWRULES" {
		t.Errorf("Expected env prefix FWRULES, got %s", ConfigEnvPrefix)
	}
}

func TestGetDirectories(t *testing.T) {
	t.Setenv(ConfigEnvPrefix+"_PREFIX", "")
	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "")
	t.Setenv(ConfigEnvPrefix+"_STATE_DIR", "")

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/opt/fw")
	if got := GetStateDir(); got != "/opt/fw/state" {
		t.Errorf("Expected prefixed state dir, got %s", got)
	}
	if got := DefaultConfigPath(); got != filepath.Join("/opt/fw/config", ConfigFileName) {
		t.Errorf("Unexpected config path %s", got)
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/custom")
	if got := GetConfigDir(); got != "/custom" {
		t.Errorf("Expected override config dir, got %s", got)
	}
}
