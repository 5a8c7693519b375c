//go:build linux
// +build linux

package firewall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/userdata"
	"golang.org/x/sys/unix"
)

// DefaultTableName is the inet table holding managed rules.
const DefaultTableName = "fwrules"

// NFTablesStore is the native Store on Linux. Rules live in the inet table
// tableName: inbound rules in chain "input", outbound rules in chain
// "output". A rule's name is stored as its nftables comment, so several
// rules may share a name.
type NFTablesStore struct {
	tableName string
	dial      func() (NFTablesConn, error)
	subnets   SubnetResolver
	retry     RetryConfig
}

// MaxNFTablesNameLen is the longest rule name that fits a comment TLV: one
// length byte covering the name and its NUL terminator, within the kernel's
// 256-byte userdata limit.
const MaxNFTablesNameLen = 253

// dialRetryable are the netlink errors worth retrying when opening a
// connection.
var dialRetryable = []error{unix.EINTR, unix.EAGAIN, unix.ENOBUFS, unix.EBUSY}

// NewNFTablesStore creates a store backed by a lasting netlink connection
// per session.
func NewNFTablesStore(tableName string) *NFTablesStore {
	return NewNFTablesStoreWithDialer(tableName, func() (NFTablesConn, error) {
		conn, err := nftables.New(nftables.AsLasting())
		if err != nil {
			return nil, err
		}
		return NewRealNFTablesConn(conn), nil
	})
}

// NewNFTablesStoreWithDialer creates a store with injected dependencies.
func NewNFTablesStoreWithDialer(tableName string, dial func() (NFTablesConn, error)) *NFTablesStore {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &NFTablesStore{
		tableName: tableName,
		dial:      dial,
		subnets:   NetlinkSubnetResolver{},
		retry:     DefaultRetryConfig(),
	}
}

// SetRetry replaces the backoff used when dialing. RetryableErrors is
// always the transient netlink errno set.
func (s *NFTablesStore) SetRetry(cfg RetryConfig) {
	s.retry = cfg
}

// SetSubnetResolver replaces the resolver used for the LocalSubnet keyword.
func (s *NFTablesStore) SetSubnetResolver(r SubnetResolver) {
	s.subnets = r
}

// Open implements Store.
func (s *NFTablesStore) Open() (Session, error) {
	cfg := s.retry
	cfg.RetryableErrors = dialRetryable

	var conn NFTablesConn
	err := Retry(context.Background(), cfg, func() error {
		var err error
		conn, err = s.dial()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open nftables connection: %w", err)
	}
	return &nftSession{
		conn:    conn,
		table:   &nftables.Table{Name: s.tableName, Family: nftables.TableFamilyINet},
		subnets: s.subnets,
	}, nil
}

type nftSession struct {
	conn    NFTablesConn
	table   *nftables.Table
	subnets SubnetResolver

	once     sync.Once
	closeErr error
	closed   bool
}

func (s *nftSession) Rules() (Collection, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	return &nftCollection{
		conn:    s.conn,
		table:   s.table,
		subnets: s.subnets,
		input: &nftables.Chain{
			Name:     "input",
			Table:    s.table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookInput,
			Priority: nftables.ChainPriorityFilter,
		},
		output: &nftables.Chain{
			Name:     "output",
			Table:    s.table,
			Type:     nftables.ChainTypeFilter,
			Hooknum:  nftables.ChainHookOutput,
			Priority: nftables.ChainPriorityFilter,
		},
	}, nil
}

func (s *nftSession) Close() error {
	s.once.Do(func() {
		s.closed = true
		s.closeErr = s.conn.CloseLasting()
	})
	return s.closeErr
}

type nftCollection struct {
	conn    NFTablesConn
	table   *nftables.Table
	input   *nftables.Chain
	output  *nftables.Chain
	subnets SubnetResolver
}

func (c *nftCollection) chainFor(d Direction) *nftables.Chain {
	if d == DirectionOutbound {
		return c.output
	}
	return c.input
}

// find returns the first rule carrying name, searching input then output.
func (c *nftCollection) find(name string) (*nftables.Rule, error) {
	for _, chain := range []*nftables.Chain{c.input, c.output} {
		rules, err := c.conn.GetRules(c.table, chain)
		if err != nil {
			// Table or chain not created yet: nothing stored.
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			return nil, fmt.Errorf("list rules of chain %s: %w", chain.Name, err)
		}
		for _, r := range rules {
			if ruleName(r) == name {
				r.Table = c.table
				r.Chain = chain
				return r, nil
			}
		}
	}
	return nil, ErrRuleNotFound
}

func (c *nftCollection) Lookup(name string) (StoredRule, error) {
	r, err := c.find(name)
	if err != nil {
		return nil, err
	}
	return &nftStoredRule{rule: r}, nil
}

func (c *nftCollection) NewRule() (MutableRule, error) {
	return &nftRule{}, nil
}

func (c *nftCollection) Insert(rule MutableRule) error {
	r, ok := rule.(*nftRule)
	if !ok {
		return fmt.Errorf("rule was not built by this store: %w", unix.EINVAL)
	}
	if n := len(r.fields.name); n > MaxNFTablesNameLen {
		return fmt.Errorf("rule name is %d bytes, nftables comments hold at most %d: %w", n, MaxNFTablesNameLen, unix.EINVAL)
	}

	compiled, err := compileRule(r.fields, c.subnets)
	if err != nil {
		return fmt.Errorf("compile rule %q: %w", r.fields.name, err)
	}

	c.conn.AddTable(c.table)
	chain := c.conn.AddChain(c.chainFor(r.fields.direction))

	for _, s := range compiled.sets {
		s.set.Table = c.table
		if err := c.conn.AddSet(s.set, s.elements); err != nil {
			return fmt.Errorf("add anonymous set: %w", err)
		}
		s.lookup.SetName = s.set.Name
		s.lookup.SetID = s.set.ID
	}

	c.conn.AddRule(&nftables.Rule{
		Table:    c.table,
		Chain:    chain,
		Exprs:    compiled.exprs,
		UserData: userdata.AppendString(nil, userdata.TypeComment, r.fields.name),
	})

	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("commit rule %q: %w", r.fields.name, err)
	}
	return nil
}

func (c *nftCollection) RemoveByName(name string) error {
	r, err := c.find(name)
	if err != nil {
		return err
	}
	if err := c.conn.DelRule(r); err != nil {
		return fmt.Errorf("delete rule handle %d: %w", r.Handle, err)
	}
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("commit delete of %q: %w", name, err)
	}
	return nil
}

// Names lists the names of all rules in the input and output chains.
// Rules without a comment are not managed here and are skipped.
func (c *nftCollection) Names() ([]string, error) {
	var names []string
	for _, chain := range []*nftables.Chain{c.input, c.output} {
		rules, err := c.conn.GetRules(c.table, chain)
		if err != nil {
			if errors.Is(err, unix.ENOENT) {
				continue
			}
			return nil, fmt.Errorf("list rules of chain %s: %w", chain.Name, err)
		}
		for _, r := range rules {
			if name := ruleName(r); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (c *nftCollection) Release() {}

// ruleName decodes the name stored in a rule's comment.
func ruleName(r *nftables.Rule) string {
	if len(r.UserData) == 0 {
		return ""
	}
	name, ok := userdata.GetString(r.UserData, userdata.TypeComment)
	if !ok {
		return ""
	}
	return name
}

type nftStoredRule struct {
	rule *nftables.Rule
}

func (r *nftStoredRule) Name() string { return ruleName(r.rule) }

func (r *nftStoredRule) Release() { r.rule = nil }

// nftRule collects the settable fields until Insert compiles them.
type nftRule struct {
	fields ruleFields
}

func (r *nftRule) SetName(name string)      { r.fields.name = name }
func (r *nftRule) SetDirection(d Direction) { r.fields.direction = d }
func (r *nftRule) SetAction(a Action)       { r.fields.action = a }
func (r *nftRule) SetEnabled(enabled bool)  { r.fields.enabled = enabled }

func (r *nftRule) SetProtocol(p Protocol) {
	r.fields.protocol = p
	r.fields.protocolSet = true
}

func (r *nftRule) SetLocalAddresses(addrs string)  { r.fields.localAddrs = addrs }
func (r *nftRule) SetLocalPorts(ports string)      { r.fields.localPorts = ports }
func (r *nftRule) SetRemoteAddresses(addrs string) { r.fields.remoteAddrs = addrs }
func (r *nftRule) SetRemotePorts(ports string)     { r.fields.remotePorts = ports }
func (r *nftRule) Release()                        {}
