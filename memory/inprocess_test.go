package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInProcessStoreLoad(t *testing.T) {
	ctx := context.Background()
	b := NewInProcess()

	require.NoError(t, b.Store(ctx, Update{Key: "a", Value: []byte("1")}))
	v, ok, err := b.Load(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestInProcessTransactionalRollback(t *testing.T) {
	ctx := context.Background()
	b := NewInProcess()

	txn, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Store(ctx, "a", []byte("1")))
	require.NoError(t, txn.Store(ctx, "b", []byte("2")))
	require.NoError(t, txn.Rollback(ctx))

	_, ok, err := b.Load(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = b.Load(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInProcessTransactionalCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	b := NewInProcess()

	txn, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Store(ctx, "a", []byte("1")))
	require.NoError(t, txn.Store(ctx, "b", []byte("2")))
	require.NoError(t, txn.Commit(ctx))

	va, _, _ := b.Load(ctx, "a")
	vb, _, _ := b.Load(ctx, "b")
	require.Equal(t, []byte("1"), va)
	require.Equal(t, []byte("2"), vb)
}

func TestInProcessSnapshotRestoreIsPointInTime(t *testing.T) {
	ctx := context.Background()
	b := NewInProcess()
	require.NoError(t, b.Store(ctx, Update{Key: "a", Value: []byte("before")}))

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Store(ctx, Update{Key: "a", Value: []byte("after")}))
	v, _, _ := b.Load(ctx, "a")
	require.Equal(t, []byte("after"), v)

	require.NoError(t, b.Restore(ctx, snap))
	v, _, _ = b.Load(ctx, "a")
	require.Equal(t, []byte("before"), v)
}

func TestInProcessSnapshotRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewInProcess()
	require.NoError(t, b.Store(ctx, Update{Key: "a", Value: []byte("x")}))

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Restore(ctx, snap))
	require.NoError(t, b.Restore(ctx, snap))

	v, _, _ := b.Load(ctx, "a")
	require.Equal(t, []byte("x"), v)
}

func TestValidateKeyBoundary(t *testing.T) {
	require.Error(t, ValidateKey(""))
	require.NoError(t, ValidateKey(strings.Repeat("a", 256)))
	require.Error(t, ValidateKey(strings.Repeat("a", 257)))
}

func TestNamespaceIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewInProcess()
	tenantA, err := NewNamespace(backend, "tenanta")
	require.NoError(t, err)
	tenantB, err := NewNamespace(backend, "tenantb")
	require.NoError(t, err)

	require.NoError(t, tenantA.Store(ctx, Update{Key: "k", Value: []byte("a-value")}))
	require.NoError(t, tenantB.Store(ctx, Update{Key: "k", Value: []byte("b-value")}))

	va, _, _ := tenantA.Load(ctx, "k")
	vb, _, _ := tenantB.Load(ctx, "k")
	require.Equal(t, []byte("a-value"), va)
	require.Equal(t, []byte("b-value"), vb)

	// underlying backend sees the prefixed key, not the bare one
	_, ok, _ := backend.Load(ctx, "k")
	require.False(t, ok)
	_, ok, _ = backend.Load(ctx, "tenanta/k")
	require.True(t, ok)
}
