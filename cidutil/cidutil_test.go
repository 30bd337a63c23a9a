package cidutil

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumDeterministic(t *testing.T) {
	data := []byte("hello dagnode")
	for _, alg := range []uint64{multihash.SHA2_256, multihash.SHA2_512, multihash.SHA3_256, Blake2b256, multihash.IDENTITY} {
		a, err := Sum(data, cid.DagCBOR, alg)
		require.NoError(t, err, HashName(alg))
		b, err := Sum(data, cid.DagCBOR, alg)
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, uint64(cid.DagCBOR), a.Type())
		assert.Equal(t, alg, a.Prefix().MhType)
	}
}

func TestSumMatchesMultihash(t *testing.T) {
	data := []byte("cross-check")
	want, err := multihash.Sum(data, multihash.SHA2_256, -1)
	require.NoError(t, err)
	got, err := Sum(data, cid.Raw, multihash.SHA2_256)
	require.NoError(t, err)
	assert.Equal(t, cid.NewCidV1(cid.Raw, want), got)

	want, err = multihash.Sum(data, multihash.SHA3_256, -1)
	require.NoError(t, err)
	got, err = Sum(data, cid.Raw, multihash.SHA3_256)
	require.NoError(t, err)
	assert.Equal(t, []byte(want), []byte(got.Hash()))
}

func TestSumUnsupported(t *testing.T) {
	_, err := Sum([]byte("x"), cid.Raw, multihash.MD5)
	assert.True(t, errors.Is(err, ErrUnsupportedHash))

	_, err = Sum([]byte("x"), cid.EthBlock, multihash.SHA2_256)
	assert.True(t, errors.Is(err, ErrUnsupportedCodec))

	_, err = ParseHash("md4")
	assert.True(t, errors.Is(err, ErrUnsupportedHash))
	_, err = ParseCodec("git-raw")
	assert.True(t, errors.Is(err, ErrUnsupportedCodec))
}

func TestParseNames(t *testing.T) {
	code, err := ParseHash("sha2-256")
	require.NoError(t, err)
	assert.Equal(t, uint64(multihash.SHA2_256), code)

	code, err = ParseCodec("dag-pb")
	require.NoError(t, err)
	assert.Equal(t, uint64(cid.DagProtobuf), code)
	assert.Equal(t, "dag-cbor", CodecName(cid.DagCBOR))
}

func TestSumPrefixV0AndV1(t *testing.T) {
	data := []byte{0x0a, 0x02, 0x08, 0x01}
	v0, err := SumV0(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v0.Version())

	again, err := SumPrefix(data, v0.Prefix())
	require.NoError(t, err)
	assert.Equal(t, v0, again)

	v1 := cid.NewCidV1(cid.DagProtobuf, v0.Hash())
	again, err = SumPrefix(data, v1.Prefix())
	require.NoError(t, err)
	assert.Equal(t, v1, again)
	assert.True(t, SameBlock(v0, v1))
	assert.Equal(t, Key(v0), Key(v1))
}

func TestNormalizeForms(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("normalize me"))
	require.NoError(t, err)

	forms := []any{id, &id, id.String(), "/ipfs/" + id.String(), id.Bytes()}
	for _, f := range forms {
		got, err := Normalize(f)
		require.NoError(t, err, "%T", f)
		assert.Equal(t, id, got, "%T", f)
	}
}

func TestNormalizeRejects(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("x"))
	require.NoError(t, err)

	for _, bad := range []any{nil, 42, "", "surelynotavalidhashheh?", []byte{0x01}, cid.Undef, (*cid.Cid)(nil), id.String() + "/sub"} {
		_, err := Normalize(bad)
		assert.True(t, errors.Is(err, ErrInvalidCID), "%v", bad)
	}
}

func TestParsePath(t *testing.T) {
	id, err := CIDv1RawSHA256CID([]byte("path root"))
	require.NoError(t, err)

	got, rest, err := ParsePath("/ipfs/" + id.String() + "//a/b/")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, []string{"a", "b"}, rest)

	got, rest, err = ParsePath(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Empty(t, rest)

	_, _, err = ParsePath("/ipfs/")
	assert.True(t, errors.Is(err, ErrInvalidCID))
}

func TestSumPrefixKeepsDigestLength(t *testing.T) {
	data := []byte("short digest")
	mh, err := multihash.Sum(data, multihash.SHA2_256, 20)
	require.NoError(t, err)
	want := cid.NewCidV1(cid.Raw, mh)

	got, err := SumPrefix(data, want.Prefix())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	for _, alg := range []uint64{multihash.SHA2_512, multihash.SHA3_512, Blake2b256, multihash.IDENTITY} {
		full, err := Sum(data, cid.Raw, alg)
		require.NoError(t, err, HashName(alg))
		again, err := SumPrefix(data, full.Prefix())
		require.NoError(t, err, HashName(alg))
		assert.Equal(t, full, again, HashName(alg))
	}
}
