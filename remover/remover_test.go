package remover_test

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/internal/dagtest"
	"xdao.co/dagnode/pin"
	"xdao.co/dagnode/remover"
	"xdao.co/dagnode/resolver"
	"xdao.co/dagnode/storage/dsstore"
)

type env struct {
	bs   *dsstore.Store
	pins *pin.Store
	rm   *remover.Remover
	m    *remover.Metrics
}

func newEnv(t *testing.T) env {
	t.Helper()
	bs := dsstore.NewInMemory()
	pins := pin.NewStore(dssync.MutexWrap(ds.NewMapDatastore()), resolver.New(bs, nil, resolver.Options{}), nil)
	m := remover.NewMetrics(prometheus.NewRegistry())
	rm := remover.New(bs, pins, remover.Config{Logger: zaptest.NewLogger(t), Metrics: m})
	return env{bs: bs, pins: pins, rm: rm, m: m}
}

func absent(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(s))
	require.NoError(t, err)
	return id
}

func TestRemove_NotFound(t *testing.T) {
	e := newEnv(t)
	id := absent(t, "never stored")

	res, err := e.rm.Remove(context.Background(), []cid.Cid{id}, remover.Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, id.String(), res[0].Hash)
	assert.False(t, res[0].Removed)
	assert.Equal(t, "block not found", res[0].Error)
}

func TestRemove_PinnedNeedsForce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	leaf := dagtest.PutRaw(t, e.bs, "leaf")
	root := dagtest.PutPB(t, e.bs, codec.PBNode{Links: []codec.PBLink{{Hash: leaf, Name: "leaf"}}})
	require.NoError(t, e.pins.Pin(ctx, root, true))

	res, err := e.rm.Remove(ctx, []cid.Cid{root, leaf}, remover.Options{})
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Contains(t, r.Error, "pinned")
		assert.False(t, r.Removed)
	}
	assert.True(t, e.bs.Has(ctx, root))
	assert.True(t, e.bs.Has(ctx, leaf))

	res, err = e.rm.Remove(ctx, []cid.Cid{leaf}, remover.Options{Force: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Removed)
	assert.Empty(t, res[0].Error)
	assert.False(t, e.bs.Has(ctx, leaf))
}

func TestRemove_MixedBatchKeepsOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	present := dagtest.PutRaw(t, e.bs, "present")
	pinned := dagtest.PutRaw(t, e.bs, "pinned")
	require.NoError(t, e.pins.Pin(ctx, pinned, false))
	missing := absent(t, "missing")
	also := dagtest.PutRaw(t, e.bs, "also present")

	refs := []any{missing, present.String(), "not-a-cid", pinned.Bytes(), also, missing}
	res, err := e.rm.RemoveMany(ctx, refs, remover.Options{})
	require.NoError(t, err)
	require.Len(t, res, len(refs))

	assert.Equal(t, remover.Result{Cid: missing, Hash: missing.String(), Error: "block not found"}, res[0])
	assert.Equal(t, remover.Result{Cid: present, Hash: present.String(), Removed: true}, res[1])
	assert.Equal(t, "not-a-cid", res[2].Hash)
	assert.Contains(t, res[2].Error, "invalid cid")
	assert.Equal(t, remover.Result{Cid: pinned, Hash: pinned.String(), Error: "pinned: cannot remove pinned block"}, res[3])
	assert.Equal(t, remover.Result{Cid: also, Hash: also.String(), Removed: true}, res[4])
	assert.Equal(t, "block not found", res[5].Error)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.m.ResultsFor("removed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.m.ResultsFor("not_found")))
}

func TestRemove_Quiet(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := dagtest.PutRaw(t, e.bs, "a")
	b := dagtest.PutRaw(t, e.bs, "b")

	res, err := e.rm.Remove(ctx, []cid.Cid{a, b}, remover.Options{Quiet: true})
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.False(t, e.bs.Has(ctx, a))

	c := dagtest.PutRaw(t, e.bs, "c")
	res, err = e.rm.Remove(ctx, []cid.Cid{c, a}, remover.Options{Quiet: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, a.String(), res[0].Hash)
	assert.Equal(t, "block not found", res[0].Error)
}

func TestRemove_ForceQuietOnMissingPinned(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := dagtest.PutRaw(t, e.bs, "pinned then gone")
	require.NoError(t, e.pins.Pin(ctx, id, false))
	require.NoError(t, e.bs.Delete(ctx, id))

	res, err := e.rm.Remove(ctx, []cid.Cid{id}, remover.Options{Force: true, Quiet: true})
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = e.rm.Remove(ctx, []cid.Cid{id}, remover.Options{Force: true})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Empty(t, res[0].Error)
	assert.False(t, res[0].Removed)
}

func TestRemove_RefFormsEquivalent(t *testing.T) {
	ctx := context.Background()
	for name, ref := range map[string]func(cid.Cid) any{
		"struct":  func(c cid.Cid) any { return c },
		"pointer": func(c cid.Cid) any { return &c },
		"string":  func(c cid.Cid) any { return c.String() },
		"path":    func(c cid.Cid) any { return "/ipfs/" + c.String() },
		"bytes":   func(c cid.Cid) any { return c.Bytes() },
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			id := dagtest.PutRaw(t, e.bs, "same content")
			res, err := e.rm.RemoveMany(ctx, []any{ref(id)}, remover.Options{})
			require.NoError(t, err)
			assert.Equal(t, []remover.Result{{Cid: id, Hash: id.String(), Removed: true}}, res)

			res, err = e.rm.RemoveMany(ctx, []any{ref(id)}, remover.Options{})
			require.NoError(t, err)
			assert.Equal(t, "block not found", res[0].Error)
		})
	}
}

func TestRemove_VersionIndependent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	v1 := dagtest.PutPB(t, e.bs, codec.PBNode{Data: []byte("v0 and v1")})

	res, err := e.rm.Remove(ctx, []cid.Cid{dagtest.V0(v1)}, remover.Options{})
	require.NoError(t, err)
	assert.True(t, res[0].Removed)
	assert.False(t, e.bs.Has(ctx, v1))
}

func TestRemove_Cancellation(t *testing.T) {
	e := newEnv(t)
	a := dagtest.PutRaw(t, e.bs, "a")
	b := dagtest.PutRaw(t, e.bs, "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.rm.Remove(ctx, []cid.Cid{a, b}, remover.Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res)
	assert.True(t, e.bs.Has(context.Background(), a))
}

func TestRemove_NoPinSet(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	id := dagtest.PutRaw(t, bs, "unguarded")
	res, err := remover.New(bs, nil, remover.Config{}).Remove(ctx, []cid.Cid{id}, remover.Options{})
	require.NoError(t, err)
	assert.True(t, res[0].Removed)
}

// countingDAG counts the blocks the pin store decodes.
type countingDAG struct {
	pin.DAG
	links int
}

func (c *countingDAG) Links(ctx context.Context, id cid.Cid) ([]cid.Cid, error) {
	c.links++
	return c.DAG.Links(ctx, id)
}

func TestRemove_BatchWalksPinsOnce(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	counter := &countingDAG{DAG: resolver.New(bs, nil, resolver.Options{})}
	pins := pin.NewStore(dssync.MutexWrap(ds.NewMapDatastore()), counter, nil)
	rm := remover.New(bs, pins, remover.Config{Logger: zaptest.NewLogger(t)})

	leaf := dagtest.PutRaw(t, bs, "leaf")
	mid := dagtest.PutPB(t, bs, codec.PBNode{Links: []codec.PBLink{{Hash: leaf, Name: "leaf"}}})
	root := dagtest.PutPB(t, bs, codec.PBNode{Links: []codec.PBLink{{Hash: mid, Name: "mid"}}})
	require.NoError(t, pins.Pin(ctx, root, true))

	var refs []cid.Cid
	for i := range 10 {
		refs = append(refs, dagtest.PutRaw(t, bs, "loose "+string(rune('a'+i))))
	}
	refs = append(refs, leaf, mid)
	counter.links = 0

	res, err := rm.Remove(ctx, refs, remover.Options{})
	require.NoError(t, err)
	require.Len(t, res, len(refs))
	for _, r := range res[:10] {
		assert.True(t, r.Removed, r.Hash)
	}
	for _, r := range res[10:] {
		assert.False(t, r.Removed)
		assert.Contains(t, r.Error, "pinned")
	}
	assert.LessOrEqual(t, counter.links, 3)
	assert.True(t, bs.Has(ctx, leaf))
}
