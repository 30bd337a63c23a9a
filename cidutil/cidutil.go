// Package cidutil computes and normalizes content identifiers.
//
// Every CID accepted by the node passes through this package first: callers may
// hand in a structured cid.Cid, its canonical string form (optionally prefixed
// with /ipfs/) or its binary form, and all three normalize to the same value.
package cidutil

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrUnsupportedHash  = errors.New("cidutil: unsupported hash algorithm")
	ErrUnsupportedCodec = errors.New("cidutil: unsupported codec")
	ErrInvalidCID       = errors.New("cidutil: invalid cid")
)

// Codecs this node can address. Decoding support lives in package codec.
var codecs = map[uint64]string{
	cid.Raw:         "raw",
	cid.DagProtobuf: "dag-pb",
	cid.DagCBOR:     "dag-cbor",
	cid.DagJSON:     "dag-json",
}

// ParseCodec maps a multicodec name such as "dag-cbor" to its code.
func ParseCodec(name string) (uint64, error) {
	for code, n := range codecs {
		if n == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
}

// CodecName returns the multicodec name for code, or "" if it is not registered.
func CodecName(code uint64) string { return codecs[code] }

// Sum computes a CIDv1 for data under codec using hashAlg.
//
// The result is a pure function of its inputs.
func Sum(data []byte, codec uint64, hashAlg uint64) (cid.Cid, error) {
	if _, ok := codecs[codec]; !ok {
		return cid.Undef, fmt.Errorf("%w: 0x%x", ErrUnsupportedCodec, codec)
	}
	mh, err := sumHash(data, hashAlg, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(codec, mh), nil
}

// SumV0 computes a CIDv0, which is only defined for dag-pb over sha2-256.
func SumV0(data []byte) (cid.Cid, error) {
	mh, err := sumHash(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV0(mh), nil
}

// SumPrefix recomputes the CID data would have under the same version, codec,
// hash algorithm and digest length as prefix. Stores use it to verify incoming
// blocks.
func SumPrefix(data []byte, prefix cid.Prefix) (cid.Cid, error) {
	if prefix.Version == 0 {
		if prefix.Codec != cid.DagProtobuf || prefix.MhType != multihash.SHA2_256 || (prefix.MhLength != -1 && prefix.MhLength != 32) {
			return cid.Undef, ErrInvalidCID
		}
		return SumV0(data)
	}
	if _, ok := codecs[prefix.Codec]; !ok {
		return cid.Undef, fmt.Errorf("%w: 0x%x", ErrUnsupportedCodec, prefix.Codec)
	}
	mh, err := sumHash(data, prefix.MhType, prefix.MhLength)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(prefix.Codec, mh), nil
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	return Sum(data, cid.Raw, multihash.SHA2_256)
}

// Key returns the storage key for id.
//
// Blocks are keyed by multihash alone, so a CIDv0 and any CIDv1 over the same
// digest address the same stored bytes.
func Key(id cid.Cid) string { return string(id.Hash()) }

// SameBlock reports whether a and b address the same stored block.
func SameBlock(a, b cid.Cid) bool {
	return a.Defined() && b.Defined() && Key(a) == Key(b)
}
