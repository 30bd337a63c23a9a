package cidutil

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
)

var pathNamespaces = []string{"/ipfs/", "/ipld/"}

// Normalize converts any accepted CID reference into a cid.Cid.
//
// Accepted forms are cid.Cid, *cid.Cid, the canonical string encoding (with
// or without a leading /ipfs/) and the binary encoding as []byte.
func Normalize(ref any) (cid.Cid, error) {
	var (
		id  cid.Cid
		err error
	)
	switch v := ref.(type) {
	case cid.Cid:
		id = v
	case *cid.Cid:
		if v == nil {
			return cid.Undef, ErrInvalidCID
		}
		id = *v
	case string:
		var rest []string
		id, rest, err = ParsePath(v)
		if err == nil && len(rest) > 0 {
			return cid.Undef, fmt.Errorf("%w: unexpected path %q", ErrInvalidCID, v)
		}
	case []byte:
		id, err = cid.Cast(v)
	default:
		return cid.Undef, fmt.Errorf("%w: unsupported reference type %T", ErrInvalidCID, ref)
	}
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	return id, nil
}

// ParsePath splits "<cid>/a/b" into the root CID and its path segments.
//
// A leading /ipfs/ or /ipld/ namespace is stripped and empty segments are
// dropped, so "/ipfs/<cid>//a/" yields ["a"].
func ParsePath(p string) (cid.Cid, []string, error) {
	s := strings.TrimSpace(p)
	for _, ns := range pathNamespaces {
		if strings.HasPrefix(s, ns) {
			s = s[len(ns):]
			break
		}
	}
	segs := SplitPath(s)
	if len(segs) == 0 {
		return cid.Undef, nil, fmt.Errorf("%w: empty path", ErrInvalidCID)
	}
	id, err := cid.Decode(segs[0])
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("%w: %v", ErrInvalidCID, err)
	}
	return id, segs[1:], nil
}

// SplitPath splits a sub-path into its non-empty segments.
func SplitPath(p string) []string {
	var segs []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			segs = append(segs, part)
		}
	}
	return segs
}
