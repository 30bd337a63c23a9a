package resolver_test

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
	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/internal/dagtest"
	"xdao.co/dagnode/resolver"
	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/dsstore"
)

type fixture struct {
	bs      storage.Blockstore
	r       *resolver.Resolver
	pb      cid.Cid
	generic cid.Cid
}

// newFixture stores {someData: "x", pb: <dag-pb node with data>}.
func newFixture(t *testing.T) fixture {
	t.Helper()
	bs := dsstore.NewInMemory()
	pb := dagtest.PutPB(t, bs, codec.PBNode{Data: []byte("I am inside a Protobuf")})
	generic := dagtest.PutCBOR(t, bs,
		dagtest.Field{Key: "someData", Value: "x"},
		dagtest.Field{Key: "pb", Value: pb},
	)
	return fixture{bs: bs, r: resolver.New(bs, nil, resolver.Options{}), pb: pb, generic: generic}
}

func TestTree_CrossCodec(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.r.Tree(ctx, f.generic, "", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"pb", "someData"}, got)

	got, err = f.r.Tree(ctx, f.generic, "", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"pb", "someData", "pb/Links", "pb/Data"}, got)
}

func TestTree_SubPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.r.Tree(ctx, f.generic, "someData", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	got, err = f.r.Tree(ctx, f.generic, "pb", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Links", "Data"}, got)

	got, err = f.r.Tree(ctx, f.generic.String()+"/someData", "", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	got, err = f.r.Tree(ctx, "/ipfs/"+f.generic.String(), "/pb/", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Links", "Data"}, got)

	_, err = f.r.Tree(ctx, f.generic, "nope", resolver.TreeOptions{})
	assert.ErrorIs(t, err, resolver.ErrPathNotFound)

	_, err = f.r.Tree(ctx, f.generic, "someData/deeper", resolver.TreeOptions{})
	assert.ErrorIs(t, err, resolver.ErrPathNotFound)
}

func TestTree_NestedFieldsInOneBlock(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	leaf := dagtest.PutRaw(t, bs, "leaf")
	root := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "a", Value: []dagtest.Field{
		{Key: "b", Value: leaf},
		{Key: "c", Value: 1},
	}})
	r := resolver.New(bs, nil, resolver.Options{})

	got, err := r.Tree(ctx, root, "", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "a/c"}, got)

	got, err = r.Tree(ctx, root, "a", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	// Crossing into a raw block leaves nothing to list.
	got, err = r.Tree(ctx, root, "a/b", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)
}

func TestTree_RefFormsAgree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.generic

	want, err := f.r.Tree(ctx, id, "", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	for _, ref := range []any{&id, id.String(), "/ipfs/" + id.String(), id.Bytes()} {
		got, err := f.r.Tree(ctx, ref, "", resolver.TreeOptions{Recursive: true})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = f.r.Tree(ctx, 42, "", resolver.TreeOptions{})
	assert.ErrorIs(t, err, cidutil.ErrInvalidCID)
}

func TestTree_DiamondVisitedOnce(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	d := dagtest.PutPB(t, bs, codec.PBNode{Data: []byte("shared")})
	b := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "d", Value: d})
	c := dagtest.PutJSON(t, bs, dagtest.Field{Key: "d", Value: d})
	a := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "b", Value: b}, dagtest.Field{Key: "c", Value: c})

	for _, par := range []int{1, 4} {
		r := resolver.New(bs, nil, resolver.Options{Parallelism: par})
		got, err := r.Tree(ctx, a, "", resolver.TreeOptions{Recursive: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "b/d", "b/d/Links", "b/d/Data", "c/d"}, got)
	}
}

func TestTree_DagPBLinks(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	leaf := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "k", Value: "v"})
	root := dagtest.PutPB(t, bs, codec.PBNode{Links: []codec.PBLink{
		{Hash: leaf, Name: "named"},
		{Hash: leaf},
	}})
	r := resolver.New(bs, nil, resolver.Options{})

	got, err := r.Tree(ctx, root, "", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Links", "named", "Links/1", "named/k"}, got)

	got, err = r.Tree(ctx, dagtest.V0(root), "Links/1", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, got)
}

func TestTree_Errors(t *testing.T) {
	ctx := context.Background()
	bs := dsstore.NewInMemory()
	r := resolver.New(bs, nil, resolver.Options{})

	missing, err := cidutil.Sum([]byte("absent"), cid.DagCBOR, multihash.SHA2_256)
	require.NoError(t, err)
	_, err = r.Tree(ctx, missing, "", resolver.TreeOptions{})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	root := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "gone", Value: missing})
	got, err := r.Tree(ctx, root, "", resolver.TreeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gone"}, got)

	_, err = r.Tree(ctx, root, "", resolver.TreeOptions{Recursive: true})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = r.Tree(ctx, root, "gone", resolver.TreeOptions{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// looseStore serves whatever bytes it holds without verification, so blocks
// with codecs the node cannot address can be planted.
type looseStore map[string][]byte

func (s looseStore) Put(context.Context, blocks.Block) error { return nil }
func (s looseStore) Get(_ context.Context, id cid.Cid) (blocks.Block, error) {
	b, ok := s[cidutil.Key(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return blocks.NewBlockWithCid(b, id)
}
func (s looseStore) Has(_ context.Context, id cid.Cid) bool { _, ok := s[cidutil.Key(id)]; return ok }
func (s looseStore) Delete(context.Context, cid.Cid) error  { return nil }

func TestTree_UnsupportedCodec(t *testing.T) {
	ctx := context.Background()
	mh, err := multihash.Sum([]byte("exotic"), multihash.SHA2_256, -1)
	require.NoError(t, err)
	exotic := cid.NewCidV1(0x0300, mh)

	bs := dsstore.NewInMemory()
	root := dagtest.PutCBOR(t, bs, dagtest.Field{Key: "x", Value: exotic})
	rootBlock, err := bs.Get(ctx, root)
	require.NoError(t, err)

	loose := looseStore{
		cidutil.Key(exotic): []byte("exotic"),
		cidutil.Key(root):   rootBlock.RawData(),
	}
	r := resolver.New(loose, nil, resolver.Options{})
	_, err = r.Tree(ctx, root, "", resolver.TreeOptions{Recursive: true})
	assert.ErrorIs(t, err, codec.ErrUnsupportedCodec)
}

func TestWalk_Cancellation(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.r.Tree(ctx, f.generic, "", resolver.TreeOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var seen []string
	err = f.r.Walk(ctx, f.generic, "", resolver.TreeOptions{Recursive: true}, func(p string) error {
		seen = append(seen, p)
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"pb"}, seen)
}

func TestTree_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	want := []string{"pb", "someData", "pb/Links", "pb/Data"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.r.Tree(ctx, f.generic, "", resolver.TreeOptions{Recursive: true})
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestResolveAndLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, rest, err := f.r.Resolve(ctx, "/ipfs/"+f.generic.String()+"/pb/Data")
	require.NoError(t, err)
	assert.Equal(t, f.pb, id)
	assert.Equal(t, []string{"Data"}, rest)

	id, rest, err = f.r.Resolve(ctx, f.generic)
	require.NoError(t, err)
	assert.Equal(t, f.generic, id)
	assert.Empty(t, rest)

	links, err := f.r.Links(ctx, f.generic)
	require.NoError(t, err)
	assert.Equal(t, []cid.Cid{f.pb}, links)
}
