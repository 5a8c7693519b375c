package firewall

import (
	"errors"
	"sync"
)

// MemoryRule is a rule held by a MemoryStore.
type MemoryRule struct {
	Name            string
	Direction       Direction
	Action          Action
	Enabled         bool
	Protocol        Protocol
	LocalAddresses  string
	LocalPorts      string
	RemoteAddresses string
	RemotePorts     string
}

// MemoryStore is an in-process Store with the native store's semantics:
// names are not unique and RemoveByName deletes the first match only.
// It backs dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	rules []MemoryRule
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Snapshot returns a copy of the stored rules in insertion order.
func (s *MemoryStore) Snapshot() []MemoryRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Count returns the number of rules named name.
func (s *MemoryStore) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rules {
		if r.Name == name {
			n++
		}
	}
	return n
}

// Open implements Store.
func (s *MemoryStore) Open() (Session, error) {
	return &memorySession{store: s}, nil
}

var errSessionClosed = errors.New("session closed")

type memorySession struct {
	store  *MemoryStore
	closed bool
}

func (s *memorySession) Rules() (Collection, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	return &memoryCollection{store: s.store}, nil
}

func (s *memorySession) Close() error {
	s.closed = true
	return nil
}

type memoryCollection struct {
	store *MemoryStore
}

func (c *memoryCollection) Lookup(name string) (StoredRule, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for _, r := range c.store.rules {
		if r.Name == name {
			return memoryStoredRule(r.Name), nil
		}
	}
	return nil, ErrRuleNotFound
}

func (c *memoryCollection) NewRule() (MutableRule, error) {
	return &memoryMutableRule{}, nil
}

func (c *memoryCollection) Insert(rule MutableRule) error {
	r, ok := rule.(*memoryMutableRule)
	if !ok {
		return errors.New("rule was not built by this store")
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.rules = append(c.store.rules, r.rule)
	return nil
}

func (c *memoryCollection) RemoveByName(name string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for i, r := range c.store.rules {
		if r.Name == name {
			c.store.rules = append(c.store.rules[:i], c.store.rules[i+1:]...)
			return nil
		}
	}
	return ErrRuleNotFound
}

func (c *memoryCollection) Names() ([]string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	names := make([]string, 0, len(c.store.rules))
	for _, r := range c.store.rules {
		names = append(names, r.Name)
	}
	return names, nil
}

func (c *memoryCollection) Release() {}

type memoryStoredRule string

func (r memoryStoredRule) Name() string { return string(r) }
func (r memoryStoredRule) Release()     {}

type memoryMutableRule struct {
	rule MemoryRule
}

func (r *memoryMutableRule) SetName(name string)             { r.rule.Name = name }
func (r *memoryMutableRule) SetDirection(d Direction)        { r.rule.Direction = d }
func (r *memoryMutableRule) SetAction(a Action)              { r.rule.Action = a }
func (r *memoryMutableRule) SetEnabled(enabled bool)         { r.rule.Enabled = enabled }
func (r *memoryMutableRule) SetProtocol(p Protocol)          { r.rule.Protocol = p }
func (r *memoryMutableRule) SetLocalAddresses(addrs string)  { r.rule.LocalAddresses = addrs }
func (r *memoryMutableRule) SetLocalPorts(ports string)      { r.rule.LocalPorts = ports }
func (r *memoryMutableRule) SetRemoteAddresses(addrs string) { r.rule.RemoteAddresses = addrs }
func (r *memoryMutableRule) SetRemotePorts(ports string)     { r.rule.RemotePorts = ports }
func (r *memoryMutableRule) Release()                        {}
