package firewall

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"grimm.is/fwrules/internal/clock"
	"grimm.is/fwrules/internal/logging"
)

const (
	// DefaultMaxDeleteIterations bounds the lookup/remove loop of DeleteRule.
	DefaultMaxDeleteIterations = 4096
	// DefaultMaxRemoveFailures bounds consecutive remove failures in DeleteRule.
	DefaultMaxRemoveFailures = 3
)

// Operation names used in errors, logs and reports.
const (
	OpCreate = "create"
	OpDelete = "delete"
	OpExists = "exists"
	OpList   = "list"
)

// ErrListUnsupported is wrapped by ListRules when the store cannot enumerate.
var ErrListUnsupported = errors.New("store cannot enumerate rules")

// Presence is the result of RuleExists. The numeric values match the native
// 1/0/-1 convention.
type Presence int

const (
	PresenceError   Presence = -1
	PresenceAbsent  Presence = 0
	PresencePresent Presence = 1
)

func (p Presence) String() string {
	switch p {
	case PresencePresent:
		return "present"
	case PresenceAbsent:
		return "absent"
	default:
		return "error"
	}
}

// OperationReport describes one completed Manager call.
type OperationReport struct {
	ID        string
	Op        string
	Name      string
	Presence  Presence
	Removed   int
	Attempts  int
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// Result is a short outcome label: "ok", "absent" or the error kind.
func (r OperationReport) Result() string {
	if r.Err != nil {
		if k := KindOf(r.Err); k != 0 {
			return k.String()
		}
		return "error"
	}
	if r.Op == OpExists && r.Presence == PresenceAbsent {
		return "absent"
	}
	return "ok"
}

// Observer receives a report after every Manager call.
type Observer func(OperationReport)

// Manager creates, deletes and checks firewall rules in a Store.
// Each call opens and releases its own session; a Manager holds no store
// state between calls.
type Manager struct {
	store  Store
	logger *logging.Logger
	clock  clock.Clock

	maxDeleteIterations int
	maxRemoveFailures   int
	observers           []Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeleteLimits overrides the DeleteRule bounds. Non-positive values keep
// the defaults.
func WithDeleteLimits(maxIterations, maxRemoveFailures int) Option {
	return func(m *Manager) {
		if maxIterations > 0 {
			m.maxDeleteIterations = maxIterations
		}
		if maxRemoveFailures > 0 {
			m.maxRemoveFailures = maxRemoveFailures
		}
	}
}

// WithObserver registers fn to receive operation reports.
func WithObserver(fn Observer) Option {
	return func(m *Manager) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// WithClock sets the time source used for reports.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager creates a Manager over store.
func NewManager(store Store, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		store:               store,
		logger:              logger.WithComponent("firewall"),
		clock:               clock.RealClock{},
		maxDeleteIterations: DefaultMaxDeleteIterations,
		maxRemoveFailures:   DefaultMaxRemoveFailures,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRule inserts a new rule built from spec. Either the rule is fully
// populated before insertion or insertion is never attempted.
func (m *Manager) CreateRule(spec RuleSpec) (err error) {
	report := m.begin(OpCreate, spec.Name)
	defer func() { m.finish(report, err) }()

	if verr := spec.Validate(); verr != nil {
		return &Error{Kind: KindInvalidArgument, Op: OpCreate, Name: spec.Name, Err: verr}
	}

	sess, coll, err := m.open(OpCreate, spec.Name)
	if err != nil {
		return err
	}
	defer sess.Close()
	defer coll.Release()

	rule, nerr := coll.NewRule()
	if nerr != nil {
		return newError(KindStoreUnavailable, OpCreate, spec.Name, nerr)
	}
	defer rule.Release()

	populate(rule, spec)

	if ierr := coll.Insert(rule); ierr != nil {
		return newError(KindInsertFailed, OpCreate, spec.Name, ierr)
	}
	return nil
}

func populate(rule MutableRule, spec RuleSpec) {
	rule.SetName(spec.Name)
	rule.SetDirection(spec.Direction)
	rule.SetAction(spec.Action)
	rule.SetEnabled(true)

	if spec.Protocol != ProtocolUnspecified {
		rule.SetProtocol(spec.Protocol)
	}
	if spec.LocalAddresses != "" {
		rule.SetLocalAddresses(spec.LocalAddresses)
	}
	if spec.RemoteAddresses != "" {
		rule.SetRemoteAddresses(spec.RemoteAddresses)
	}
	if PortFilterAllowed(spec.Protocol) {
		if spec.LocalPorts != "" {
			rule.SetLocalPorts(spec.LocalPorts)
		}
		if spec.RemotePorts != "" {
			rule.SetRemotePorts(spec.RemotePorts)
		}
	}
}

// DeleteRule removes every rule named name. Deleting an absent name
// succeeds. Deletion is not atomic across same-named rules: a failure may be
// reported after some of them were removed (see Error.Removed).
func (m *Manager) DeleteRule(name string) (err error) {
	report := m.begin(OpDelete, name)
	defer func() { m.finish(report, err) }()

	if strings.TrimSpace(name) == "" {
		return &Error{Kind: KindInvalidArgument, Op: OpDelete, Err: errors.New("rule name must not be empty")}
	}

	sess, coll, err := m.open(OpDelete, name)
	if err != nil {
		return err
	}
	defer sess.Close()
	defer coll.Release()

	var pending *Error
	removals, failures := 0, 0
	for {
		report.Attempts++

		res := lookup(coll, name)
		switch res.Status {
		case NotFound:
			if pending != nil {
				pending.Removed = report.Removed
				return pending
			}
			return nil

		case LookupError:
			e := newError(KindLookupFailed, OpDelete, name, res.Err)
			e.Removed = report.Removed
			return e
		}
		res.Release()

		// A rule is still present: give up only once another remove would
		// exceed a bound.
		if removals >= m.maxDeleteIterations || failures >= m.maxRemoveFailures {
			e := &Error{Kind: KindTooManyAttempts, Op: OpDelete, Name: name, Removed: report.Removed}
			if pending != nil {
				e.Code = pending.Code
				e.Err = pending
			}
			return e
		}
		removals++

		if rerr := coll.RemoveByName(name); rerr != nil {
			if errors.Is(rerr, ErrRuleNotFound) {
				// Gone between lookup and remove; the next lookup decides.
				continue
			}
			pending = newError(KindRemoveFailed, OpDelete, name, rerr)
			failures++
			m.logger.Warn("Remove failed", "op_id", report.ID, "rule", name, "code", pending.Code, "error", rerr)
			continue
		}
		failures = 0
		report.Removed++
		m.logger.Debug("Removed rule", "op_id", report.ID, "rule", name, "removed", report.Removed)
	}
}

// RuleExists reports whether at least one rule named name exists.
// PresenceError is always paired with a non-nil error.
func (m *Manager) RuleExists(name string) (presence Presence, err error) {
	report := m.begin(OpExists, name)
	defer func() {
		report.Presence = presence
		m.finish(report, err)
	}()

	if strings.TrimSpace(name) == "" {
		return PresenceError, &Error{Kind: KindInvalidArgument, Op: OpExists, Err: errors.New("rule name must not be empty")}
	}

	sess, coll, err := m.open(OpExists, name)
	if err != nil {
		return PresenceError, err
	}
	defer sess.Close()
	defer coll.Release()

	res := lookup(coll, name)
	defer res.Release()

	switch res.Status {
	case Found:
		return PresencePresent, nil
	case NotFound:
		return PresenceAbsent, nil
	default:
		return PresenceError, newError(KindLookupFailed, OpExists, name, res.Err)
	}
}

// ListRules returns the names of all stored rules, duplicates included.
func (m *Manager) ListRules() (names []string, err error) {
	report := m.begin(OpList, "")
	defer func() { m.finish(report, err) }()

	sess, coll, err := m.open(OpList, "")
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	defer coll.Release()

	lister, ok := coll.(Lister)
	if !ok {
		return nil, newError(KindStoreUnavailable, OpList, "", ErrListUnsupported)
	}
	names, err = lister.Names()
	if err != nil {
		return nil, newError(KindLookupFailed, OpList, "", err)
	}
	return names, nil
}

// open acquires a session and its rule collection. On failure nothing is
// left open.
func (m *Manager) open(op, name string) (Session, Collection, error) {
	sess, err := m.store.Open()
	if err != nil {
		return nil, nil, newError(KindStoreUnavailable, op, name, err)
	}
	coll, err := sess.Rules()
	if err != nil {
		sess.Close()
		return nil, nil, newError(KindStoreUnavailable, op, name, err)
	}
	return sess, coll, nil
}

func (m *Manager) begin(op, name string) *OperationReport {
	return &OperationReport{
		ID:        uuid.NewString(),
		Op:        op,
		Name:      name,
		Timestamp: m.clock.Now(),
	}
}

func (m *Manager) finish(r *OperationReport, err error) {
	r.Err = err
	r.Duration = m.clock.Since(r.Timestamp)

	switch {
	case err == nil:
		m.logger.Info("Rule operation complete", "op", r.Op, "op_id", r.ID, "rule", r.Name, "result", r.Result(), "removed", r.Removed)
	case KindOf(err) == KindInvalidArgument:
		m.logger.Warn("Rule operation rejected", "op", r.Op, "op_id", r.ID, "rule", r.Name, "error", err)
	default:
		m.logger.Error("Rule operation failed", "op", r.Op, "op_id", r.ID, "rule", r.Name, "code", CodeOf(err), "removed", r.Removed, "error", err)
	}

	for _, fn := range m.observers {
		fn(*r)
	}
}
