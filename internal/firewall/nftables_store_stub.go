//go:build !linux
// +build !linux

package firewall

import (
	"fmt"
	"runtime"
)

// ErrNotSupported is returned when the native store is opened on non-Linux systems.
var ErrNotSupported = fmt.Errorf("native firewall store not supported on %s", runtime.GOOS)

// DefaultTableName is the inet table holding managed rules.
const DefaultTableName = "fwrules"

// NFTablesStore is unavailable on this platform; Open always fails.
type NFTablesStore struct{}

// NewNFTablesStore returns a store whose sessions cannot be opened.
func NewNFTablesStore(tableName string) *NFTablesStore {
	return &NFTablesStore{}
}

// Open implements Store.
func (s *NFTablesStore) Open() (Session, error) {
	return nil, ErrNotSupported
}
