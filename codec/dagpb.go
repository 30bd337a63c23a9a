package codec

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ipfs/go-cid"
	"google.golang.org/protobuf/encoding/protowire"
)

// PBNode is a dag-pb node.
//
//	message PBLink { optional bytes Hash = 1; optional string Name = 2; optional uint64 Tsize = 3; }
//	message PBNode { repeated PBLink Links = 2; optional bytes Data = 1; }
type PBNode struct {
	Links []PBLink
	Data  []byte
}

type PBLink struct {
	Hash  cid.Cid
	Name  string
	Tsize uint64
}

var errBadPB = errors.New("malformed dag-pb")

// EncodeDagPB serializes n in canonical form: links first, then data.
func EncodeDagPB(n PBNode) ([]byte, error) {
	var b []byte
	for i, l := range n.Links {
		if !l.Hash.Defined() {
			return nil, fmt.Errorf("%w: link %d has no hash", errBadPB, i)
		}
		var lb []byte
		lb = protowire.AppendTag(lb, 1, protowire.BytesType)
		lb = protowire.AppendBytes(lb, l.Hash.Bytes())
		if l.Name != "" {
			lb = protowire.AppendTag(lb, 2, protowire.BytesType)
			lb = protowire.AppendString(lb, l.Name)
		}
		lb = protowire.AppendTag(lb, 3, protowire.VarintType)
		lb = protowire.AppendVarint(lb, l.Tsize)

		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, lb)
	}
	if n.Data != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Data)
	}
	return b, nil
}

// DecodeDagPB parses dag-pb bytes. Links keep their encoded order.
func DecodeDagPB(b []byte) (PBNode, error) {
	var n PBNode
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			n.Data = append([]byte{}, v...)
		case num == 2 && typ == protowire.BytesType:
			l, err := decodePBLink(v)
			if err != nil {
				return err
			}
			n.Links = append(n.Links, l)
		default:
			return fmt.Errorf("%w: unexpected field %d", errBadPB, num)
		}
		return nil
	})
	return n, err
}

func decodePBLink(b []byte) (PBLink, error) {
	var l PBLink
	err := eachField(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			id, err := cid.Cast(v)
			if err != nil {
				return fmt.Errorf("%w: link hash: %v", errBadPB, err)
			}
			l.Hash = id
		case num == 2 && typ == protowire.BytesType:
			l.Name = string(v)
		case num == 3 && typ == protowire.VarintType:
			l.Tsize = x
		default:
			return fmt.Errorf("%w: unexpected link field %d", errBadPB, num)
		}
		return nil
	})
	if err == nil && !l.Hash.Defined() {
		err = fmt.Errorf("%w: link without hash", errBadPB)
	}
	return l, err
}

// eachField walks the top-level fields of a protobuf message. Length-delimited
// values arrive in v, varints in x.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", errBadPB, protowire.ParseError(n))
		}
		b = b[n:]
		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: %v", errBadPB, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

// decodeDagPB exposes "Links", "Data" (when present) and one entry per link,
// named by the link name or "Links/<i>" when unnamed.
func decodeDagPB(b []byte) (*Node, error) {
	pb, err := DecodeDagPB(b)
	if err != nil {
		return nil, err
	}
	out := &Node{Format: FormatDagPB, Data: pb.Data}
	out.Entries = append(out.Entries, Entry{Path: "Links", Nested: true})
	if pb.Data != nil {
		out.Entries = append(out.Entries, Entry{Path: "Data", Value: pb.Data})
	}
	for i, l := range pb.Links {
		name := l.Name
		if name == "" {
			name = "Links/" + strconv.Itoa(i)
		}
		out.Entries = append(out.Entries, Entry{Path: name, Link: l.Hash, Size: l.Tsize})
	}
	return out, nil
}
