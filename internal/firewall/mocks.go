//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/nftables"
	"github.com/stretchr/testify/mock"
)

// MockNFTablesConn records calls through testify and keeps a committed view
// of rules and sets, so a store driven through it can read back what it
// wrote. A GetRules expectation that returns a non-nil slice or an error
// replaces that view.
type MockNFTablesConn struct {
	mock.Mock

	mu      sync.Mutex
	rules   map[string][]*nftables.Rule // "table/chain"
	sets    map[string]*nftables.Set
	handles uint64
	setIDs  uint32
}

func NewMockNFTablesConn() *MockNFTablesConn {
	return &MockNFTablesConn{
		rules: make(map[string][]*nftables.Rule),
		sets:  make(map[string]*nftables.Set),
	}
}

func chainKey(table, chain string) string { return table + "/" + chain }

func (m *MockNFTablesConn) AddTable(t *nftables.Table) *nftables.Table {
	m.Called(t)
	return t
}

func (m *MockNFTablesConn) AddChain(c *nftables.Chain) *nftables.Chain {
	m.Called(c)
	return c
}

func (m *MockNFTablesConn) AddRule(r *nftables.Rule) *nftables.Rule {
	m.Called(r)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles++
	r.Handle = m.handles
	k := chainKey(r.Table.Name, r.Chain.Name)
	m.rules[k] = append(m.rules[k], r)
	return r
}

func (m *MockNFTablesConn) DelRule(r *nftables.Rule) error {
	if err := m.Called(r).Error(0); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := chainKey(r.Table.Name, r.Chain.Name)
	m.rules[k] = slices.DeleteFunc(m.rules[k], func(x *nftables.Rule) bool {
		return x.Handle == r.Handle
	})
	return nil
}

func (m *MockNFTablesConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	args := m.Called(t, c)
	if stub, ok := args.Get(0).([]*nftables.Rule); ok && stub != nil {
		return stub, args.Error(1)
	}
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return m.Rules(t.Name, c.Name), nil
}

func (m *MockNFTablesConn) AddSet(s *nftables.Set, vals []nftables.SetElement) error {
	args := m.Called(s, vals)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Anonymous {
		m.setIDs++
		s.ID = m.setIDs
		s.Name = fmt.Sprintf("__set%d", s.ID)
	}
	m.sets[s.Name] = s
	return args.Error(0)
}

func (m *MockNFTablesConn) Flush() error {
	return m.Called().Error(0)
}

func (m *MockNFTablesConn) CloseLasting() error {
	return m.Called().Error(0)
}

// Rules returns a copy of the committed rules of table/chain.
func (m *MockNFTablesConn) Rules(table, chain string) []*nftables.Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rules[chainKey(table, chain)])
}

func (m *MockNFTablesConn) Set(name string) *nftables.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets[name]
}

// ExpectDefaults allows any call to any method and returns m.
func (m *MockNFTablesConn) ExpectDefaults() *MockNFTablesConn {
	for _, method := range []string{"AddTable", "AddChain", "AddRule", "DelRule"} {
		m.On(method, mock.Anything).Return(nil).Maybe()
	}
	m.On("GetRules", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	m.On("AddSet", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Flush").Return(nil).Maybe()
	m.On("CloseLasting").Return(nil).Maybe()
	return m
}
