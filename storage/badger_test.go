package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store := newTestBadger(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "state/config/version", []byte("3")))
	val, found, err := store.Get(ctx, "state/config/version")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("3"), val)

	deleted, err := store.Delete(ctx, "state/config/version")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, found, err = store.Get(ctx, "state/config/version")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerStorePrefixOperations(t *testing.T) {
	store := newTestBadger(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "relation/s3/0/app/bucket", []byte("tempo")))
	require.NoError(t, store.Set(ctx, "relation/s3/0/app/endpoint", []byte("minio")))
	require.NoError(t, store.Set(ctx, "local/s3/0/app/version", []byte("1")))

	pairs, err := store.List(ctx, "relation/s3/")
	require.NoError(t, err)
	assert.Len(t, pairs, 2)
	assert.Equal(t, []byte("tempo"), pairs["relation/s3/0/app/bucket"])

	deleted, err := store.DeletePrefix(ctx, "relation/s3/")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	pairs, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}

func TestBadgerStoreIncrement(t *testing.T) {
	store := newTestBadger(t)
	ctx := context.Background()

	val, err := store.Increment(ctx, "state/reconcile/passes", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = store.Increment(ctx, "state/reconcile/passes", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

func TestBadgerStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "worker/applied/version", []byte("4")))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	val, found, err := reopened.Get(ctx, "worker/applied/version")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("4"), val)
}
