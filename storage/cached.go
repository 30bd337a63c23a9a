package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/dagnode/cidutil"
)

// DefaultCacheBlocks is the number of blocks kept by NewCached when size <= 0.
const DefaultCacheBlocks = 1024

// Cached is a read-through LRU cache in front of a Blockstore.
type Cached struct {
	Blockstore
	cache *lru.Cache[string, []byte]
	locks KeyLocks
}

var _ Blockstore = (*Cached)(nil)

// NewCached wraps bs with an LRU cache holding up to size blocks.
func NewCached(bs Blockstore, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheBlocks
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Blockstore: bs, cache: c}, nil
}

func (c *Cached) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	key := cidutil.Key(id)
	if data, ok := c.cache.Get(key); ok {
		return blocks.NewBlockWithCid(data, id)
	}

	unlock := c.locks.Lock(id)
	defer unlock()
	b, err := c.Blockstore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, b.RawData())
	return b, nil
}

func (c *Cached) Has(ctx context.Context, id cid.Cid) bool {
	if id.Defined() && c.cache.Contains(cidutil.Key(id)) {
		return true
	}
	return c.Blockstore.Has(ctx, id)
}

func (c *Cached) Delete(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	unlock := c.locks.Lock(id)
	defer unlock()
	c.cache.Remove(cidutil.Key(id))
	return c.Blockstore.Delete(ctx, id)
}

// Keys passes through when the wrapped store is a Lister.
func (c *Cached) Keys(ctx context.Context) ([]multihash.Multihash, error) {
	return ListKeys(ctx, c.Blockstore)
}
