package node_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/internal/dagtest"
	"xdao.co/dagnode/node"
	"xdao.co/dagnode/remover"
	"xdao.co/dagnode/resolver"

	_ "xdao.co/dagnode/storage/badgerds"
	_ "xdao.co/dagnode/storage/dsstore"
	_ "xdao.co/dagnode/storage/localfs"
)

func TestOpenMemoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	n, err := node.Open(node.Config{Backend: "memory", CacheBlocks: 16, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	leaf := dagtest.PutRaw(t, n.Blocks, "leaf")
	root := dagtest.PutCBOR(t, n.Blocks, dagtest.Field{Key: "child", Value: leaf})

	paths, err := n.Resolver.Tree(ctx, root, "", resolver.TreeOptions{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, paths)

	require.NoError(t, n.Pins.Pin(ctx, root, true))
	res, err := n.Remover.Remove(ctx, []cid.Cid{leaf}, remover.Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Removed)
	assert.Contains(t, res[0].Error, "pinned")
	assert.True(t, n.Blocks.Has(ctx, leaf))

	require.NoError(t, n.Pins.Unpin(ctx, root))
	res, err = n.Remover.Remove(ctx, []cid.Cid{leaf}, remover.Options{})
	require.NoError(t, err)
	assert.True(t, res[0].Removed)
	assert.False(t, n.Blocks.Has(ctx, leaf))

	obj, err := n.Objects.Put(ctx, codec.PBNode{Data: []byte("a")}, false)
	require.NoError(t, err)
	patched, err := n.Objects.AppendData(ctx, obj, []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, obj, patched)
}

func TestPinsPersistWithBadgerBackend(t *testing.T) {
	ctx := context.Background()
	cfg := node.Config{Backend: "badger", BackendConfig: map[string]string{"badger-dir": t.TempDir()}}

	n, err := node.Open(cfg)
	require.NoError(t, err)
	id := dagtest.PutRaw(t, n.Blocks, "keep me")
	require.NoError(t, n.Pins.Pin(ctx, id, false))
	require.NoError(t, n.Close())

	n, err = node.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	ok, err := n.Pins.IsPinned(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPinDirWithLocalFS(t *testing.T) {
	ctx := context.Background()
	cfg := node.Config{
		Backend:       "localfs",
		BackendConfig: map[string]string{"localfs-dir": t.TempDir()},
		PinDir:        t.TempDir(),
	}
	n, err := node.Open(cfg)
	require.NoError(t, err)
	id := dagtest.PutRaw(t, n.Blocks, "pinned on disk")
	require.NoError(t, n.Pins.Pin(ctx, id, true))
	require.NoError(t, n.Close())

	n, err = node.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	ok, err := n.Pins.IsPinned(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"cache_blocks": 8,
		"backends": [
			{"name": "memory"},
			{"name": "localfs", "config": {"localfs-dir": "`+filepath.ToSlash(filepath.Join(dir, "blocks"))+`"}}
		]
	}`), 0o644))

	n, err := node.Open(node.Config{ConfigFile: path, Preferred: "localfs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	id := dagtest.PutRaw(t, n.Blocks, "via config")
	assert.True(t, n.Blocks.Has(context.Background(), id))
	entries, err := os.ReadDir(filepath.Join(dir, "blocks"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestOpenErrors(t *testing.T) {
	_, err := node.Open(node.Config{})
	assert.Error(t, err)
	_, err = node.Open(node.Config{Backend: "no-such-backend"})
	assert.Error(t, err)
	_, err = node.Open(node.Config{Backend: "badger"})
	assert.Error(t, err)
}
