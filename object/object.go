// Package object reads, writes and patches dag-pb nodes.
package object

import (
	"context"
	"errors"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/storage"
)

var (
	ErrNotDagPB = errors.New("object: not a dag-pb node")
	ErrNoData   = errors.New("object: no data provided")
)

type Objects struct {
	bs  storage.Blockstore
	log *zap.Logger
}

func New(bs storage.Blockstore, logger *zap.Logger) *Objects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Objects{bs: bs, log: logger}
}

// Get loads the dag-pb node at ref.
func (o *Objects) Get(ctx context.Context, ref any) (codec.PBNode, cid.Cid, error) {
	id, err := cidutil.Normalize(ref)
	if err != nil {
		return codec.PBNode{}, cid.Undef, err
	}
	if id.Type() != cid.DagProtobuf {
		return codec.PBNode{}, cid.Undef, fmt.Errorf("%w: %s", ErrNotDagPB, id)
	}
	b, err := o.bs.Get(ctx, id)
	if err != nil {
		return codec.PBNode{}, cid.Undef, fmt.Errorf("%s: %w", id, err)
	}
	n, err := codec.DecodeDagPB(b.RawData())
	if err != nil {
		return codec.PBNode{}, cid.Undef, err
	}
	return n, id, nil
}

// Put stores n as sha2-256 dag-pb, as a CIDv0 when v0 is set.
func (o *Objects) Put(ctx context.Context, n codec.PBNode, v0 bool) (cid.Cid, error) {
	pref := cid.Prefix{Version: 1, Codec: cid.DagProtobuf, MhType: multihash.SHA2_256, MhLength: -1}
	if v0 {
		pref.Version = 0
	}
	return o.put(ctx, n, pref)
}

func (o *Objects) put(ctx context.Context, n codec.PBNode, pref cid.Prefix) (cid.Cid, error) {
	data, err := codec.EncodeDagPB(n)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.SumPrefix(data, pref)
	if err != nil {
		return cid.Undef, err
	}
	b, err := blocks.NewBlockWithCid(data, id)
	if err != nil {
		return cid.Undef, err
	}
	if err := o.bs.Put(ctx, b); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// AppendData appends data to the node's Data and stores the result under the
// original CID version and hash.
func (o *Objects) AppendData(ctx context.Context, ref any, data []byte) (cid.Cid, error) {
	return o.patch(ctx, ref, data, func(n *codec.PBNode) {
		n.Data = append(append([]byte{}, n.Data...), data...)
	})
}

// SetData replaces the node's Data.
func (o *Objects) SetData(ctx context.Context, ref any, data []byte) (cid.Cid, error) {
	return o.patch(ctx, ref, data, func(n *codec.PBNode) {
		n.Data = append([]byte{}, data...)
	})
}

func (o *Objects) patch(ctx context.Context, ref any, data []byte, edit func(*codec.PBNode)) (cid.Cid, error) {
	if ref == nil {
		return cid.Undef, cidutil.ErrInvalidCID
	}
	if data == nil {
		return cid.Undef, ErrNoData
	}
	n, id, err := o.Get(ctx, ref)
	if err != nil {
		return cid.Undef, err
	}
	edit(&n)
	out, err := o.put(ctx, n, id.Prefix())
	if err != nil {
		return cid.Undef, err
	}
	o.log.Debug("object patched", zap.Stringer("from", id), zap.Stringer("to", out))
	return out, nil
}
