package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreateAndGet(t *testing.T) {
	store := NewStore()

	sess, err := New("tune-a", testDefinition(3, 0))
	require.NoError(t, err)
	require.NoError(t, store.Create(sess))

	got, ok := store.Get("tune-a")
	require.True(t, ok)
	assert.Equal(t, sess, got)

	_, ok = store.Get("tune-missing")
	assert.False(t, ok)
}

func TestStoreRejectsDuplicateID(t *testing.T) {
	store := NewStore()

	sess, err := New("tune-a", testDefinition(3, 0))
	require.NoError(t, err)
	require.NoError(t, store.Create(sess))

	dup, err := New("tune-a", testDefinition(3, 0))
	require.NoError(t, err)
	assert.Error(t, store.Create(dup))
}

func TestStoreSingleActiveSession(t *testing.T) {
	store := NewStore()

	first, err := New("tune-a", testDefinition(3, 0))
	require.NoError(t, err)
	require.NoError(t, store.Create(first))

	// One rig, one active session
	second, err := New("tune-b", testDefinition(3, 0))
	require.NoError(t, err)
	assert.Error(t, store.Create(second))

	require.NoError(t, first.Abort("done"))
	assert.NoError(t, store.Create(second))
}

func TestStoreListAndActive(t *testing.T) {
	store := NewStore()

	a, err := New("tune-a", testDefinition(3, 0))
	require.NoError(t, err)
	require.NoError(t, store.Create(a))
	require.NoError(t, a.Abort("done"))

	b, err := New("tune-b", testDefinition(3, 0))
	require.NoError(t, err)
	require.NoError(t, store.Create(b))

	all := store.List(0)
	require.Len(t, all, 2)
	assert.Equal(t, "tune-a", all[0].ID())
	assert.Equal(t, "tune-b", all[1].ID())

	limited := store.List(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "tune-b", limited[0].ID())

	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "tune-b", active.ID())

	require.NoError(t, b.Abort("done"))
	_, ok = store.Active()
	assert.False(t, ok)
}
