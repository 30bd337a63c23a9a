package storage

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"xdao.co/dagnode/cidutil"
)

// Blockstore is a content-addressable block store.
//
// Contract:
// - Blocks are keyed by multihash; CID version and codec are presentation only.
// - Put MUST be idempotent and MUST reject bytes that do not hash to the block's CID.
// - Stored blocks MUST be immutable: the first write wins.
// - Get and Delete MUST return ErrNotFound when the block is absent.
// - Delete performs no pin checks.
// - All methods MUST be safe for concurrent use.
type Blockstore interface {
	Put(ctx context.Context, b blocks.Block) error
	Get(ctx context.Context, id cid.Cid) (blocks.Block, error)
	Has(ctx context.Context, id cid.Cid) bool
	Delete(ctx context.Context, id cid.Cid) error
}

// Lister is implemented by stores that can enumerate their contents.
type Lister interface {
	Keys(ctx context.Context) ([]multihash.Multihash, error)
}

// ListKeys enumerates bs when it implements Lister.
func ListKeys(ctx context.Context, bs Blockstore) ([]multihash.Multihash, error) {
	l, ok := bs.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	return l.Keys(ctx)
}

// Verify checks that b's bytes hash to b's CID.
func Verify(b blocks.Block) error {
	id := b.Cid()
	if !id.Defined() {
		return ErrInvalidCID
	}
	got, err := cidutil.SumPrefix(b.RawData(), id.Prefix())
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrDigestMismatch
	}
	return nil
}

// NewBlock builds a verified block for data under id.
func NewBlock(data []byte, id cid.Cid) (blocks.Block, error) {
	b, err := blocks.NewBlockWithCid(data, id)
	if err != nil {
		return nil, err
	}
	if err := Verify(b); err != nil {
		return nil, err
	}
	return b, nil
}

// PutData addresses data with codec and hashAlg and stores it.
func PutData(ctx context.Context, bs Blockstore, data []byte, codec, hashAlg uint64) (cid.Cid, error) {
	id, err := cidutil.Sum(data, codec, hashAlg)
	if err != nil {
		return cid.Undef, err
	}
	b, err := blocks.NewBlockWithCid(data, id)
	if err != nil {
		return cid.Undef, err
	}
	if err := bs.Put(ctx, b); err != nil {
		return cid.Undef, err
	}
	return id, nil
}
