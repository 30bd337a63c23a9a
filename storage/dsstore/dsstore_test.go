package dsstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/testkit"
)

func TestInMemory_Conformance(t *testing.T) {
	testkit.RunBlockstoreConformance(t, func(t *testing.T) storage.Blockstore {
		t.Helper()
		return NewInMemory()
	})
}

func TestCached_Conformance(t *testing.T) {
	testkit.RunBlockstoreConformance(t, func(t *testing.T) storage.Blockstore {
		t.Helper()
		c, err := storage.NewCached(NewInMemory(), 4)
		require.NoError(t, err)
		return c
	})
}

func TestInstrumented_Conformance(t *testing.T) {
	testkit.RunBlockstoreConformance(t, func(t *testing.T) storage.Blockstore {
		t.Helper()
		return storage.Instrument(NewInMemory(), nil, nil)
	})
}

func TestBlockKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	b := testkit.RawBlock(t, "key me")
	require.NoError(t, s.Put(ctx, b))

	has, err := s.Datastore().Has(ctx, BlockKey(b.Cid().Hash()))
	require.NoError(t, err)
	assert.True(t, has)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, []byte(b.Cid().Hash()), []byte(keys[0]))
}

func TestCachedDeleteInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemory()
	c, err := storage.NewCached(inner, 8)
	require.NoError(t, err)

	b := testkit.RawBlock(t, "cached")
	require.NoError(t, c.Put(ctx, b))
	_, err = c.Get(ctx, b.Cid())
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, b.Cid()))
	assert.False(t, c.Has(ctx, b.Cid()))
	_, err = c.Get(ctx, b.Cid())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
