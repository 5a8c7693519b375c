package firewall

import (
	"errors"
	"syscall"
)

// ErrRuleNotFound is returned by Collection.Lookup and Collection.RemoveByName
// when no stored rule carries the requested name. It is the only store
// failure the Manager interprets.
var ErrRuleNotFound = errors.New("rule not found")

// Store opens sessions onto a native rule store.
type Store interface {
	Open() (Session, error)
}

// Session is an open handle onto the store. Close is idempotent.
type Session interface {
	Rules() (Collection, error)
	Close() error
}

// Collection is the name-indexed rule collection of a session. Names are not
// unique keys: several stored rules may share one.
type Collection interface {
	// Lookup returns one stored rule named name, or ErrRuleNotFound.
	Lookup(name string) (StoredRule, error)
	// NewRule constructs an empty rule for Insert.
	NewRule() (MutableRule, error)
	Insert(rule MutableRule) error
	// RemoveByName removes at most one rule named name.
	RemoveByName(name string) error
	Release()
}

// Lister is implemented by collections that can enumerate stored rule
// names. Names are returned in store order and may repeat.
type Lister interface {
	Names() ([]string, error)
}

// StoredRule is a transient reference to a rule owned by the store. It is
// only valid until Release.
type StoredRule interface {
	Name() string
	Release()
}

// MutableRule is a rule under construction.
type MutableRule interface {
	SetName(name string)
	SetDirection(d Direction)
	SetAction(a Action)
	SetEnabled(enabled bool)
	SetProtocol(p Protocol)
	SetLocalAddresses(addrs string)
	SetLocalPorts(ports string)
	SetRemoteAddresses(addrs string)
	SetRemotePorts(ports string)
	Release()
}

// CodedError is implemented by store errors that carry a native code.
type CodedError interface {
	error
	NativeCode() int64
}

// NativeCode extracts the store's failure code from err: the value of a
// CodedError, else an errno, else zero.
func NativeCode(err error) int64 {
	if err == nil {
		return 0
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.NativeCode()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int64(errno)
	}
	return 0
}
