// Package dagtest builds small DAG fixtures in a block store for tests.
package dagtest

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/unixfs"
)

// Field is one key of a structured node. Value is a string, int, bool or cid.Cid.
type Field struct {
	Key   string
	Value any
}

// PutRaw stores data as a raw block.
func PutRaw(t testing.TB, bs storage.Blockstore, data string) cid.Cid {
	t.Helper()
	id, err := storage.PutData(context.Background(), bs, []byte(data), cid.Raw, multihash.SHA2_256)
	require.NoError(t, err)
	return id
}

// PutCBOR stores a dag-cbor map built from fields.
func PutCBOR(t testing.TB, bs storage.Blockstore, fields ...Field) cid.Cid {
	t.Helper()
	return putStructured(t, bs, cid.DagCBOR, fields)
}

// PutJSON stores a dag-json map built from fields.
func PutJSON(t testing.TB, bs storage.Blockstore, fields ...Field) cid.Cid {
	t.Helper()
	return putStructured(t, bs, cid.DagJSON, fields)
}

func putStructured(t testing.TB, bs storage.Blockstore, code uint64, fields []Field) cid.Cid {
	t.Helper()
	n, err := qp.BuildMap(basicnode.Prototype.Any, int64(len(fields)), func(ma datamodel.MapAssembler) {
		for _, f := range fields {
			qp.MapEntry(ma, f.Key, assemble(f.Value))
		}
	})
	require.NoError(t, err)
	data, err := codec.EncodeNode(code, n)
	require.NoError(t, err)
	id, err := storage.PutData(context.Background(), bs, data, code, multihash.SHA2_256)
	require.NoError(t, err)
	return id
}

func assemble(v any) qp.Assemble {
	switch x := v.(type) {
	case cid.Cid:
		return qp.Link(cidlink.Link{Cid: x})
	case string:
		return qp.String(x)
	case int:
		return qp.Int(int64(x))
	case bool:
		return qp.Bool(x)
	case []Field:
		return qp.Map(int64(len(x)), func(ma datamodel.MapAssembler) {
			for _, f := range x {
				qp.MapEntry(ma, f.Key, assemble(f.Value))
			}
		})
	default:
		panic("dagtest: unsupported field value")
	}
}

// PutPB stores a dag-pb node under a CIDv1.
func PutPB(t testing.TB, bs storage.Blockstore, n codec.PBNode) cid.Cid {
	t.Helper()
	data, err := codec.EncodeDagPB(n)
	require.NoError(t, err)
	id, err := storage.PutData(context.Background(), bs, data, cid.DagProtobuf, multihash.SHA2_256)
	require.NoError(t, err)
	return id
}

// V0 returns the CIDv0 addressing the same dag-pb block as id.
func V0(id cid.Cid) cid.Cid { return cid.NewCidV0(id.Hash()) }

// PutFile stores content as a single-block unixfs file.
func PutFile(t testing.TB, bs storage.Blockstore, content string) cid.Cid {
	t.Helper()
	return PutPB(t, bs, codec.PBNode{Data: unixfs.Encode(unixfs.NewFile([]byte(content)))})
}

// PutDir stores a unixfs directory over links.
func PutDir(t testing.TB, bs storage.Blockstore, links ...codec.PBLink) cid.Cid {
	t.Helper()
	return PutPB(t, bs, codec.PBNode{Links: links, Data: unixfs.Encode(unixfs.NewDirectory())})
}
