// Package dsstore implements storage.Blockstore on top of a go-datastore.
//
// Blocks live under /blocks/<base32 multihash>. Any datastore works; the
// in-memory MapDatastore is the default backend of the node and badgerds
// provides a persistent one.
package dsstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"xdao.co/dagnode/storage"
)

// BlockPrefix is the datastore namespace holding block data.
var BlockPrefix = ds.NewKey("/blocks")

// Store is a Blockstore backed by a datastore.
type Store struct {
	ds    ds.Datastore
	locks storage.KeyLocks
}

var (
	_ storage.Blockstore = (*Store)(nil)
	_ storage.Lister     = (*Store)(nil)
)

// New wraps d. The datastore must be safe for concurrent use.
func New(d ds.Datastore) *Store {
	return &Store{ds: d}
}

// NewInMemory returns a Store over a mutex-guarded MapDatastore.
func NewInMemory() *Store {
	return New(dssync.MutexWrap(ds.NewMapDatastore()))
}

// Datastore exposes the underlying datastore so other components (pins) can
// share it.
func (s *Store) Datastore() ds.Datastore { return s.ds }

// BlockKey returns the datastore key for a multihash.
func BlockKey(mh multihash.Multihash) ds.Key {
	enc, _ := multibase.Encode(multibase.Base32, mh)
	return BlockPrefix.ChildString(strings.ToUpper(enc[1:]))
}

func keyFor(id cid.Cid) ds.Key { return BlockKey(id.Hash()) }

func (s *Store) Put(ctx context.Context, b blocks.Block) error {
	if err := storage.Verify(b); err != nil {
		return err
	}
	unlock := s.locks.Lock(b.Cid())
	defer unlock()

	k := keyFor(b.Cid())
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return s.ds.Put(ctx, k, b.RawData())
}

func (s *Store) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	data, err := s.ds.Get(ctx, keyFor(id))
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.NewBlock(data, id)
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	ok, err := s.ds.Has(ctx, keyFor(id))
	return err == nil && ok
}

func (s *Store) Delete(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return storage.ErrInvalidCID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	k := keyFor(id)
	has, err := s.ds.Has(ctx, k)
	if err != nil {
		return err
	}
	if !has {
		return storage.ErrNotFound
	}
	return s.ds.Delete(ctx, k)
}

// Keys lists the multihashes of all stored blocks.
func (s *Store) Keys(ctx context.Context) ([]multihash.Multihash, error) {
	res, err := s.ds.Query(ctx, query.Query{Prefix: BlockPrefix.String(), KeysOnly: true})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, err
	}
	out := make([]multihash.Multihash, 0, len(entries))
	for _, e := range entries {
		name := ds.RawKey(e.Key).BaseNamespace()
		_, raw, err := multibase.Decode("b" + strings.ToLower(name))
		if err != nil {
			return nil, fmt.Errorf("dsstore: bad block key %q: %w", e.Key, err)
		}
		out = append(out, multihash.Multihash(raw))
	}
	return out, nil
}

// Close closes the underlying datastore.
func (s *Store) Close() error { return s.ds.Close() }
