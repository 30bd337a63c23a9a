// Package testkit holds the conformance suite every Blockstore backend runs.
package testkit

import (
	"context"
	"sync"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/storage"
)

// NewBlockstore constructs a fresh, empty Blockstore for a test.
// The returned store MUST be isolated from other tests.
type NewBlockstore func(t *testing.T) storage.Blockstore

// RawBlock builds a raw sha2-256 block over data.
func RawBlock(t *testing.T, data string) blocks.Block {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(data))
	require.NoError(t, err)
	b, err := blocks.NewBlockWithCid([]byte(data), id)
	require.NoError(t, err)
	return b
}

func RunBlockstoreConformance(t *testing.T, newStore NewBlockstore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		bs := newStore(t)
		want := RawBlock(t, "hello, dagnode storage")

		require.NoError(t, bs.Put(ctx, want))
		got, err := bs.Get(ctx, want.Cid())
		require.NoError(t, err)
		assert.Equal(t, want.RawData(), got.RawData())
		assert.Equal(t, want.Cid(), got.Cid())
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		bs := newStore(t)
		b := RawBlock(t, "same bytes")
		require.NoError(t, bs.Put(ctx, b))
		require.NoError(t, bs.Put(ctx, b))
		assert.True(t, bs.Has(ctx, b.Cid()))
	})

	t.Run("PutRejectsDigestMismatch", func(t *testing.T) {
		bs := newStore(t)
		id, err := cidutil.CIDv1RawSHA256CID([]byte("expected"))
		require.NoError(t, err)
		forged, err := blocks.NewBlockWithCid([]byte("forged"), id)
		require.NoError(t, err)

		err = bs.Put(ctx, forged)
		assert.ErrorIs(t, err, storage.ErrDigestMismatch)
		assert.False(t, bs.Has(ctx, id))
	})

	t.Run("TruncatedDigest", func(t *testing.T) {
		bs := newStore(t)
		data := []byte("twenty byte digest")
		mh, err := multihash.Sum(data, multihash.SHA2_256, 20)
		require.NoError(t, err)
		id := cid.NewCidV1(cid.Raw, mh)
		b, err := blocks.NewBlockWithCid(data, id)
		require.NoError(t, err)

		require.NoError(t, bs.Put(ctx, b))
		got, err := bs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, data, got.RawData())
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		bs := newStore(t)
		b := RawBlock(t, "missing")
		assert.False(t, bs.Has(ctx, b.Cid()))
		_, err := bs.Get(ctx, b.Cid())
		assert.True(t, storage.IsNotFound(err), "got %v", err)

		require.NoError(t, bs.Put(ctx, b))
		assert.True(t, bs.Has(ctx, b.Cid()))
	})

	t.Run("DeleteThenNotFound", func(t *testing.T) {
		bs := newStore(t)
		b := RawBlock(t, "short lived")
		require.NoError(t, bs.Put(ctx, b))
		require.NoError(t, bs.Delete(ctx, b.Cid()))
		assert.False(t, bs.Has(ctx, b.Cid()))

		err := bs.Delete(ctx, b.Cid())
		assert.True(t, storage.IsNotFound(err), "got %v", err)
		assert.EqualError(t, err, "block not found")
	})

	t.Run("VersionIndependentKeys", func(t *testing.T) {
		bs := newStore(t)
		data := []byte{0x0a, 0x00}
		v0, err := cidutil.SumV0(data)
		require.NoError(t, err)
		b, err := blocks.NewBlockWithCid(data, v0)
		require.NoError(t, err)
		require.NoError(t, bs.Put(ctx, b))

		v1 := cid.NewCidV1(cid.DagProtobuf, v0.Hash())
		assert.True(t, bs.Has(ctx, v1))
		got, err := bs.Get(ctx, v1)
		require.NoError(t, err)
		assert.Equal(t, data, got.RawData())
		assert.Equal(t, v1, got.Cid())

		require.NoError(t, bs.Delete(ctx, v1))
		assert.False(t, bs.Has(ctx, v0))
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		bs := newStore(t)
		var undef cid.Cid
		assert.False(t, bs.Has(ctx, undef))
		_, err := bs.Get(ctx, undef)
		assert.Error(t, err)
	})

	t.Run("ConcurrentDeleteSingleWinner", func(t *testing.T) {
		bs := newStore(t)
		b := RawBlock(t, "contended")
		require.NoError(t, bs.Put(ctx, b))

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := bs.Delete(ctx, b.Cid()); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("ListKeys", func(t *testing.T) {
		bs := newStore(t)
		if _, ok := bs.(storage.Lister); !ok {
			t.Skip("store does not list keys")
		}
		a, b := RawBlock(t, "a"), RawBlock(t, "b")
		require.NoError(t, bs.Put(ctx, a))
		require.NoError(t, bs.Put(ctx, b))

		keys, err := storage.ListKeys(ctx, bs)
		require.NoError(t, err)
		got := map[string]bool{}
		for _, k := range keys {
			got[string(k)] = true
		}
		assert.Len(t, keys, 2)
		assert.True(t, got[string(a.Cid().Hash())])
		assert.True(t, got[string(b.Cid().Hash())])
	})
}
