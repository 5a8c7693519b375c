//go:build linux
// +build linux

package firewall

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/nftables/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newMockStore(conn *MockNFTablesConn) *NFTablesStore {
	return NewNFTablesStoreWithDialer("fwrules", func() (NFTablesConn, error) {
		return conn, nil
	})
}

func TestNFTablesStore_BlockSSHRoundTrip(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	require.NoError(t, mgr.CreateRule(blockSSH()))

	rules := conn.Rules("fwrules", "input")
	require.Len(t, rules, 1)
	assert.Equal(t, "block-ssh", ruleName(rules[0]))
	assert.Empty(t, conn.Rules("fwrules", "output"))

	p, err := mgr.RuleExists("block-ssh")
	require.NoError(t, err)
	assert.Equal(t, PresencePresent, p)

	require.NoError(t, mgr.DeleteRule("block-ssh"))
	assert.Empty(t, conn.Rules("fwrules", "input"))

	p, err = mgr.RuleExists("block-ssh")
	require.NoError(t, err)
	assert.Equal(t, PresenceAbsent, p)

	// One session per call, each closed.
	conn.AssertNumberOfCalls(t, "CloseLasting", 4)
	conn.AssertCalled(t, "Flush")
}

func TestNFTablesStore_DeleteAcrossChains(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	in := blockSSH()
	in.Name = "dup"
	out := in
	out.Direction = DirectionOutbound

	require.NoError(t, mgr.CreateRule(in))
	require.NoError(t, mgr.CreateRule(in))
	require.NoError(t, mgr.CreateRule(out))
	assert.Len(t, conn.Rules("fwrules", "input"), 2)
	assert.Len(t, conn.Rules("fwrules", "output"), 1)

	var report OperationReport
	mgr = newTestManager(newMockStore(conn), WithObserver(func(r OperationReport) { report = r }))
	require.NoError(t, mgr.DeleteRule("dup"))
	assert.Equal(t, 3, report.Removed)
	assert.Empty(t, conn.Rules("fwrules", "input"))
	assert.Empty(t, conn.Rules("fwrules", "output"))
	conn.AssertNumberOfCalls(t, "DelRule", 3)
}

func TestNFTablesStore_MissingTableIsEmpty(t *testing.T) {
	conn := NewMockNFTablesConn()
	conn.On("GetRules", mock.Anything, mock.Anything).Return(nil, unix.ENOENT)
	conn.ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	p, err := mgr.RuleExists("anything")
	require.NoError(t, err)
	assert.Equal(t, PresenceAbsent, p)

	require.NoError(t, mgr.DeleteRule("anything"))
	conn.AssertNotCalled(t, "DelRule", mock.Anything)
}

func TestNFTablesStore_LookupFailure(t *testing.T) {
	conn := NewMockNFTablesConn()
	conn.On("GetRules", mock.Anything, mock.Anything).Return(nil, unix.EPERM)
	conn.ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	p, err := mgr.RuleExists("block-ssh")
	require.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, PresenceError, p)
	assert.Equal(t, int64(unix.EPERM), CodeOf(err))
	conn.AssertNumberOfCalls(t, "CloseLasting", 1)
}

func TestNFTablesStore_InsertFlushFailure(t *testing.T) {
	conn := NewMockNFTablesConn()
	conn.On("Flush").Return(unix.EINVAL).Once()
	conn.ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	err := mgr.CreateRule(blockSSH())
	require.ErrorIs(t, err, ErrInsertFailed)
	assert.Equal(t, int64(unix.EINVAL), CodeOf(err))
	conn.AssertNumberOfCalls(t, "CloseLasting", 1)
}

func TestNFTablesStore_NameLength(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	longest := blockSSH()
	longest.Name = strings.Repeat("n", MaxNFTablesNameLen)
	require.NoError(t, mgr.CreateRule(longest))
	p, err := mgr.RuleExists(longest.Name)
	require.NoError(t, err)
	assert.Equal(t, PresencePresent, p)

	tooLong := blockSSH()
	tooLong.Name = strings.Repeat("n", 300)
	err = mgr.CreateRule(tooLong)
	require.ErrorIs(t, err, ErrInsertFailed)
	assert.Equal(t, int64(unix.EINVAL), CodeOf(err))
	assert.Contains(t, err.Error(), "at most 253")
	assert.Len(t, conn.Rules("fwrules", "input"), 1, "oversized name must not reach the kernel")
}

func TestNativeCode_UnixErrno(t *testing.T) {
	err := fmt.Errorf("commit rule %q: %w", "block-ssh", unix.ENOBUFS)
	assert.Equal(t, int64(unix.ENOBUFS), NativeCode(err))
}

func TestNFTablesStore_InvalidFilterFailsInsert(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	spec := blockSSH()
	spec.RemoteAddresses = "300.1.1.1"
	err := mgr.CreateRule(spec)
	require.ErrorIs(t, err, ErrInsertFailed)
	conn.AssertNotCalled(t, "AddRule", mock.Anything)
	conn.AssertNotCalled(t, "Flush")
}

func TestNFTablesStore_PersistentDeleteFailure(t *testing.T) {
	conn := NewMockNFTablesConn()
	conn.On("DelRule", mock.Anything).Return(unix.EBUSY)
	conn.ExpectDefaults()
	mgr := newTestManager(newMockStore(conn), WithDeleteLimits(50, 3))

	require.NoError(t, mgr.CreateRule(blockSSH()))

	err := mgr.DeleteRule("block-ssh")
	require.ErrorIs(t, err, ErrTooManyAttempts)
	assert.ErrorIs(t, err, ErrRemoveFailed)
	assert.Equal(t, int64(unix.EBUSY), CodeOf(err))
	conn.AssertNumberOfCalls(t, "DelRule", 3)
	assert.Len(t, conn.Rules("fwrules", "input"), 1)
}

func TestNFTablesStore_DialFailure(t *testing.T) {
	store := NewNFTablesStoreWithDialer("", func() (NFTablesConn, error) {
		return nil, unix.EACCES
	})
	mgr := newTestManager(store)

	err := mgr.CreateRule(blockSSH())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, errors.Is(err, unix.EACCES))
	assert.Equal(t, DefaultTableName, store.tableName)
}

func TestNFTablesStore_DialRetriesTransientErrors(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	dials := 0
	store := NewNFTablesStoreWithDialer("", func() (NFTablesConn, error) {
		dials++
		if dials < 3 {
			return nil, unix.ENOBUFS
		}
		return conn, nil
	})
	store.SetRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1})

	require.NoError(t, newTestManager(store).CreateRule(blockSSH()))
	assert.Equal(t, 3, dials)

	dials = -10
	err := newTestManager(store).CreateRule(blockSSH())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, int64(unix.ENOBUFS), CodeOf(err))
	assert.Equal(t, -7, dials)
}

func TestNFTablesStore_AnonymousSetBinding(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	spec := blockSSH()
	spec.LocalPorts = "22,2222"
	require.NoError(t, mgr.CreateRule(spec))

	rules := conn.Rules("fwrules", "input")
	require.Len(t, rules, 1)

	var lookup *expr.Lookup
	for _, e := range rules[0].Exprs {
		if l, ok := e.(*expr.Lookup); ok {
			lookup = l
		}
	}
	require.NotNil(t, lookup)
	require.NotEmpty(t, lookup.SetName)

	set := conn.Set(lookup.SetName)
	require.NotNil(t, set)
	assert.Equal(t, set.ID, lookup.SetID)
	assert.Equal(t, "fwrules", set.Table.Name)
}

func TestNFTablesStore_ListRules(t *testing.T) {
	conn := NewMockNFTablesConn().ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	in := blockSSH()
	out := blockSSH()
	out.Name = "egress"
	out.Direction = DirectionOutbound
	require.NoError(t, mgr.CreateRule(in))
	require.NoError(t, mgr.CreateRule(out))

	names, err := mgr.ListRules()
	require.NoError(t, err)
	assert.Equal(t, []string{"block-ssh", "egress"}, names)
}

func TestNFTablesStore_ListRulesFailure(t *testing.T) {
	conn := NewMockNFTablesConn()
	conn.On("GetRules", mock.Anything, mock.Anything).Return(nil, unix.EACCES)
	conn.ExpectDefaults()
	mgr := newTestManager(newMockStore(conn))

	_, err := mgr.ListRules()
	require.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, int64(unix.EACCES), CodeOf(err))
}
