package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))
	val, found, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value"), val)
}

func TestMemoryStoreListAndDeletePrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "relation/s3/0/app/bucket", []byte("tempo")))
	require.NoError(t, store.Set(ctx, "relation/s3/0/app/endpoint", []byte("minio")))
	require.NoError(t, store.Set(ctx, "relation/ingress/0/app/scheme", []byte("https")))

	pairs, err := store.List(ctx, "relation/s3/")
	require.NoError(t, err)
	assert.Len(t, pairs, 2)

	deleted, err := store.DeletePrefix(ctx, "relation/s3/")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	pairs, err = store.List(ctx, "relation/")
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
}

func TestMemoryStoreIncrement(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	val, err := store.Increment(ctx, "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = store.Increment(ctx, "counter", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	// delta 0 reads without modifying
	val, err = store.Increment(ctx, "counter", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", []byte("abc")))
	val, _, err := store.Get(ctx, "key")
	require.NoError(t, err)
	val[0] = 'x'

	again, _, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
