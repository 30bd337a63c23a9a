package codec

import (
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/fluent/qp"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/dagnode/cidutil"
)

func rawCID(t *testing.T, s string) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID([]byte(s))
	require.NoError(t, err)
	return id
}

func paths(n *Node) []string {
	out := make([]string, 0, len(n.Entries))
	for _, e := range n.Entries {
		out = append(out, e.Path)
	}
	return out
}

func TestDagPB_RoundTripAndEntries(t *testing.T) {
	a, b := rawCID(t, "a"), rawCID(t, "b")
	in := PBNode{
		Links: []PBLink{{Hash: a, Name: "first", Tsize: 1}, {Hash: b, Tsize: 2}},
		Data:  []byte("payload"),
	}
	raw, err := EncodeDagPB(in)
	require.NoError(t, err)

	out, err := DecodeDagPB(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	n, err := NewRegistry().Decode(cid.DagProtobuf, raw)
	require.NoError(t, err)
	assert.Equal(t, FormatDagPB, n.Format)
	assert.Equal(t, []string{"Links", "Data", "first", "Links/1"}, paths(n))
	assert.Equal(t, []Link{{Name: "first", Cid: a, Size: 1}, {Name: "Links/1", Cid: b, Size: 2}}, n.Links())
	assert.Equal(t, map[string]any{"Data": []byte("payload")}, n.Fields())
}

func TestDagPB_EmptyNodeHasLinksEntryOnly(t *testing.T) {
	raw, err := EncodeDagPB(PBNode{})
	require.NoError(t, err)
	assert.Empty(t, raw)

	n, err := NewRegistry().Decode(cid.DagProtobuf, raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Links"}, paths(n))
	assert.Empty(t, n.Links())
}

func TestDagPB_Malformed(t *testing.T) {
	_, err := NewRegistry().Decode(cid.DagProtobuf, []byte{0x12, 0x05, 0x01})
	assert.Error(t, err)

	_, err = EncodeDagPB(PBNode{Links: []PBLink{{Name: "nohash"}}})
	assert.Error(t, err)
}

func TestStructured_FlattensInEncodingOrder(t *testing.T) {
	target := rawCID(t, "target")
	node, err := qp.BuildMap(basicnode.Prototype.Any, 3, func(ma datamodel.MapAssembler) {
		qp.MapEntry(ma, "someData", qp.String("x"))
		qp.MapEntry(ma, "pb", qp.Link(cidlink.Link{Cid: target}))
		qp.MapEntry(ma, "nested", qp.Map(2, func(ma datamodel.MapAssembler) {
			qp.MapEntry(ma, "n", qp.Int(7))
			qp.MapEntry(ma, "list", qp.List(2, func(la datamodel.ListAssembler) {
				qp.ListEntry(la, qp.Bool(true))
				qp.ListEntry(la, qp.Link(cidlink.Link{Cid: target}))
			}))
		}))
	})
	require.NoError(t, err)

	for _, code := range []uint64{cid.DagCBOR, cid.DagJSON} {
		raw, err := EncodeNode(code, node)
		require.NoError(t, err)

		n, err := NewRegistry().Decode(code, raw)
		require.NoError(t, err, cidutil.CodecName(code))
		assert.Equal(t, FormatStructured, n.Format)
		// Map keys are length-first sorted by the canonical encoders.
		assert.Equal(t, []string{"pb", "nested", "nested/n", "nested/list", "nested/list/0", "nested/list/1", "someData"}, paths(n))
		assert.Equal(t, []Link{{Name: "pb", Cid: target}, {Name: "nested/list/1", Cid: target}}, n.Links())
		assert.Equal(t, map[string]any{"someData": "x", "nested/n": int64(7), "nested/list/0": true}, n.Fields())
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	r := NewRegistry()
	_, err := r.Decode(0x300, []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.ErrorIs(t, err, cidutil.ErrUnsupportedCodec)
	assert.False(t, r.Supports(0x300))

	r.Register(0x300, decodeRaw)
	n, err := r.Decode(0x300, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x300), n.Codec)

	_, err = EncodeNode(multihash.SHA2_256, basicnode.NewString("x"))
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestRawHasNoEntries(t *testing.T) {
	n, err := NewRegistry().Decode(cid.Raw, []byte("opaque"))
	require.NoError(t, err)
	assert.Equal(t, FormatRaw, n.Format)
	assert.Empty(t, n.Entries)
	assert.Equal(t, "raw", n.Format.String())
}
