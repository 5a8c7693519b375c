package config

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is a config schema version, written "MAJOR.MINOR".
type SchemaVersion struct {
	Major int
	Minor int
}

// ParseVersion parses "MAJOR.MINOR". An empty string is CurrentSchemaVersion.
func ParseVersion(s string) (SchemaVersion, error) {
	if s == "" {
		s = CurrentSchemaVersion
	}

	major, minor, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minor, ".") {
		return SchemaVersion{}, fmt.Errorf("invalid version format: %s (expected X.Y)", s)
	}

	var v SchemaVersion
	var err error
	if v.Major, err = strconv.Atoi(major); err != nil || v.Major < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid major version: %s", major)
	}
	if v.Minor, err = strconv.Atoi(minor); err != nil || v.Minor < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid minor version: %s", minor)
	}
	return v, nil
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than other.
func (v SchemaVersion) Compare(other SchemaVersion) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// checkVersion accepts versions with the current major that are not newer
// than CurrentSchemaVersion.
func checkVersion(s string) error {
	v, err := ParseVersion(s)
	if err != nil {
		return fmt.Errorf("invalid schema version: %w", err)
	}
	current, _ := ParseVersion(CurrentSchemaVersion)
	if v.Major != current.Major {
		return fmt.Errorf("unsupported config schema version %s (this build reads %d.x)", v, current.Major)
	}
	if v.Compare(current) > 0 {
		return fmt.Errorf("config schema version %s is newer than %s", v, current)
	}
	return nil
}
