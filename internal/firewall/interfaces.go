//go:build linux
// +build linux

package firewall

import (
	"github.com/google/nftables"
)

// NFTablesConn abstracts the nftables.Conn operations used by NFTablesStore.
// This interface allows mocking nftables operations in tests.
type NFTablesConn interface {
	// Table and chain operations
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain

	// Rule operations
	AddRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error)

	// Anonymous sets for multi-value filters
	AddSet(s *nftables.Set, vals []nftables.SetElement) error

	// Commit changes
	Flush() error

	// Release the netlink socket
	CloseLasting() error
}

// RealNFTablesConn wraps the actual nftables.Conn.
// This is used in production on Linux systems.
type RealNFTablesConn struct {
	conn *nftables.Conn
}

// NewRealNFTablesConn creates a new RealNFTablesConn wrapping an nftables.Conn.
func NewRealNFTablesConn(conn *nftables.Conn) *RealNFTablesConn {
	return &RealNFTablesConn{conn: conn}
}

func (r *RealNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	return r.conn.AddTable(t)
}

func (r *RealNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	return r.conn.AddChain(c)
}

func (r *RealNFTablesConn) AddRule(rule *nftables.Rule) *nftables.Rule {
	return r.conn.AddRule(rule)
}

func (r *RealNFTablesConn) DelRule(rule *nftables.Rule) error {
	return r.conn.DelRule(rule)
}

func (r *RealNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	return r.conn.GetRules(t, c)
}

func (r *RealNFTablesConn) AddSet(s *nftables.Set, vals []nftables.SetElement) error {
	return r.conn.AddSet(s, vals)
}

func (r *RealNFTablesConn) Flush() error {
	return r.conn.Flush()
}

func (r *RealNFTablesConn) CloseLasting() error {
	return r.conn.CloseLasting()
}
