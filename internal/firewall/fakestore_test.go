package firewall

import (
	"errors"
	"sync"
)

// fakeStore is a Store with injectable failures that counts every call and
// every outstanding handle.
type fakeStore struct {
	mu sync.Mutex

	rules []*fakeRule

	openErr    error
	rulesErr   error
	newRuleErr error
	insertErr  error

	// Per-call queues: the head is consumed by each call; a nil head means
	// "behave normally".
	lookupErrs []error
	removeErrs []error
	// Persistent failures once the queues are empty.
	lookupErr error
	removeErr error

	// removeNoop makes RemoveByName report success without removing.
	removeNoop bool
	// vanishOnRemove makes the first RemoveByName find the rule already gone.
	vanishOnRemove bool

	calls   int
	lookups int
	removes int

	sessions, sessionsClosed       int
	collections, collectionsFreed  int
	storedRules, storedRulesFreed  int
	mutableRules, mutableRuleFreed int
}

type fakeRule struct {
	name      string
	direction Direction
	action    Action
	enabled   bool

	protocol    Protocol
	protocolSet bool

	localAddrs, localPorts   string
	remoteAddrs, remotePorts string
	localPortsSet            bool
	remotePortsSet           bool
}

func newFakeStore(names ...string) *fakeStore {
	s := &fakeStore{}
	for _, n := range names {
		s.rules = append(s.rules, &fakeRule{name: n, enabled: true})
	}
	return s
}

func (s *fakeStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rules {
		if r.name == name {
			n++
		}
	}
	return n
}

func (s *fakeStore) find(name string) *fakeRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.name == name {
			return r
		}
	}
	return nil
}

// outstanding is the number of handles acquired and never released.
func (s *fakeStore) outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.sessions - s.sessionsClosed) +
		(s.collections - s.collectionsFreed) +
		(s.storedRules - s.storedRulesFreed) +
		(s.mutableRules - s.mutableRuleFreed)
}

func pop(q *[]error) (error, bool) {
	if len(*q) == 0 {
		return nil, false
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err, true
}

func (s *fakeStore) Open() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.sessions++
	return &fakeSession{store: s}, nil
}

type fakeSession struct {
	store  *fakeStore
	closed bool
}

func (f *fakeSession) Rules() (Collection, error) {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.rulesErr != nil {
		return nil, s.rulesErr
	}
	s.collections++
	return &fakeCollection{store: s}, nil
}

func (f *fakeSession) Close() error {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !f.closed {
		f.closed = true
		s.sessionsClosed++
	}
	return nil
}

type fakeCollection struct {
	store    *fakeStore
	released bool
}

func (c *fakeCollection) Lookup(name string) (StoredRule, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lookups++
	if err, ok := pop(&s.lookupErrs); ok && err != nil {
		return nil, err
	} else if !ok && s.lookupErr != nil {
		return nil, s.lookupErr
	}
	for _, r := range s.rules {
		if r.name == name {
			s.storedRules++
			return &fakeStoredRule{store: s, name: name}, nil
		}
	}
	return nil, ErrRuleNotFound
}

func (c *fakeCollection) NewRule() (MutableRule, error) {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.newRuleErr != nil {
		return nil, s.newRuleErr
	}
	s.mutableRules++
	return &fakeMutableRule{store: s}, nil
}

func (c *fakeCollection) Insert(rule MutableRule) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.insertErr != nil {
		return s.insertErr
	}
	r, ok := rule.(*fakeMutableRule)
	if !ok {
		return errors.New("foreign rule")
	}
	stored := r.rule
	s.rules = append(s.rules, &stored)
	return nil
}

func (c *fakeCollection) RemoveByName(name string) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.removes++
	if err, ok := pop(&s.removeErrs); ok && err != nil {
		return err
	} else if !ok && s.removeErr != nil {
		return s.removeErr
	}
	if s.removeNoop {
		return nil
	}
	for i, r := range s.rules {
		if r.name == name {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			if s.vanishOnRemove {
				s.vanishOnRemove = false
				return ErrRuleNotFound
			}
			return nil
		}
	}
	return ErrRuleNotFound
}

func (c *fakeCollection) Release() {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.released {
		c.released = true
		s.collectionsFreed++
	}
}

type fakeStoredRule struct {
	store    *fakeStore
	name     string
	released bool
}

func (r *fakeStoredRule) Name() string { return r.name }

func (r *fakeStoredRule) Release() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if !r.released {
		r.released = true
		r.store.storedRulesFreed++
	}
}

type fakeMutableRule struct {
	store    *fakeStore
	rule     fakeRule
	released bool
}

func (r *fakeMutableRule) SetName(name string)      { r.rule.name = name }
func (r *fakeMutableRule) SetDirection(d Direction) { r.rule.direction = d }
func (r *fakeMutableRule) SetAction(a Action)       { r.rule.action = a }
func (r *fakeMutableRule) SetEnabled(enabled bool)  { r.rule.enabled = enabled }

func (r *fakeMutableRule) SetProtocol(p Protocol) {
	r.rule.protocol = p
	r.rule.protocolSet = true
}

func (r *fakeMutableRule) SetLocalAddresses(addrs string)  { r.rule.localAddrs = addrs }
func (r *fakeMutableRule) SetRemoteAddresses(addrs string) { r.rule.remoteAddrs = addrs }

func (r *fakeMutableRule) SetLocalPorts(ports string) {
	r.rule.localPorts = ports
	r.rule.localPortsSet = true
}

func (r *fakeMutableRule) SetRemotePorts(ports string) {
	r.rule.remotePorts = ports
	r.rule.remotePortsSet = true
}

func (r *fakeMutableRule) Release() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if !r.released {
		r.released = true
		r.store.mutableRuleFreed++
	}
}
