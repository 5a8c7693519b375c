package firewall

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SameNameRules(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(store)

	spec := blockSSH()
	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.CreateRule(spec))
	}
	assert.Equal(t, 3, store.Count("block-ssh"))

	snap := store.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, ProtocolTCP, snap[0].Protocol)
	assert.Equal(t, "22", snap[0].RemotePorts)
	assert.True(t, snap[0].Enabled)

	require.NoError(t, mgr.DeleteRule("block-ssh"))
	assert.Zero(t, store.Count("block-ssh"))
}

func TestMemoryStore_DeleteAtIterationLimit(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(store, WithDeleteLimits(3, 3))

	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.CreateRule(blockSSH()))
	}

	require.NoError(t, mgr.DeleteRule("block-ssh"))
	assert.Zero(t, store.Count("block-ssh"))
}

func TestMemoryStore_RemoveByNameRemovesOne(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.Open()
	require.NoError(t, err)
	defer sess.Close()

	coll, err := sess.Rules()
	require.NoError(t, err)
	defer coll.Release()

	for _, name := range []string{"a", "a", "b"} {
		r, err := coll.NewRule()
		require.NoError(t, err)
		r.SetName(name)
		require.NoError(t, coll.Insert(r))
		r.Release()
	}

	require.NoError(t, coll.RemoveByName("a"))
	assert.Equal(t, 1, store.Count("a"))
	assert.Equal(t, 1, store.Count("b"))

	require.NoError(t, coll.RemoveByName("a"))
	assert.ErrorIs(t, coll.RemoveByName("a"), ErrRuleNotFound)

	_, err = coll.Lookup("a")
	assert.ErrorIs(t, err, ErrRuleNotFound)

	rule, err := coll.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, "b", rule.Name())
	rule.Release()
}

func TestMemoryStore_ClosedSession(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.Open()
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())

	_, err = sess.Rules()
	assert.Error(t, err)
}

func TestLookup_TriState(t *testing.T) {
	store := newFakeStore("present")
	sess, err := store.Open()
	require.NoError(t, err)
	defer sess.Close()
	coll, err := sess.Rules()
	require.NoError(t, err)
	defer coll.Release()

	res := lookup(coll, "present")
	assert.Equal(t, Found, res.Status)
	require.NotNil(t, res.Rule)
	assert.Equal(t, "present", res.Rule.Name())
	res.Release()
	assert.Nil(t, res.Rule)

	res = lookup(coll, "absent")
	assert.Equal(t, NotFound, res.Status)
	assert.NoError(t, res.Err)

	store.lookupErr = syscall.EIO
	res = lookup(coll, "present")
	assert.Equal(t, LookupError, res.Status)
	assert.Equal(t, int64(syscall.EIO), res.Code)
	assert.True(t, errors.Is(res.Err, syscall.EIO))
	assert.Equal(t, "error", res.Status.String())

	res.Release()
	assert.Equal(t, store.storedRules, store.storedRulesFreed)
}

func TestManager_ListRules(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(store)

	names, err := mgr.ListRules()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"b", "a", "b"} {
		spec := blockSSH()
		spec.Name = name
		require.NoError(t, mgr.CreateRule(spec))
	}

	names, err = mgr.ListRules()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b"}, names)
}
