package codec

import (
	"fmt"
	"strconv"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec/dagcbor"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/datamodel"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
)

func decodeDagCBOR(b []byte) (*Node, error) { return decodeStructured(b, dagcbor.Decode) }
func decodeDagJSON(b []byte) (*Node, error) { return decodeStructured(b, dagjson.Decode) }

func decodeStructured(b []byte, dec ipld.Decoder) (*Node, error) {
	n, err := ipld.Decode(b, dec)
	if err != nil {
		return nil, err
	}
	out := &Node{Format: FormatStructured}
	if err := flatten(n, "", &out.Entries); err != nil {
		return nil, err
	}
	return out, nil
}

// flatten appends one entry per map key and list index, depth first in
// encoding order.
func flatten(n datamodel.Node, prefix string, out *[]Entry) error {
	switch n.Kind() {
	case datamodel.Kind_Map:
		it := n.MapIterator()
		for !it.Done() {
			k, v, err := it.Next()
			if err != nil {
				return err
			}
			key, err := k.AsString()
			if err != nil {
				return err
			}
			if err := flattenValue(v, join(prefix, key), out); err != nil {
				return err
			}
		}
	case datamodel.Kind_List:
		it := n.ListIterator()
		for !it.Done() {
			i, v, err := it.Next()
			if err != nil {
				return err
			}
			if err := flattenValue(v, join(prefix, strconv.FormatInt(i, 10)), out); err != nil {
				return err
			}
		}
	}
	return nil
}

func flattenValue(v datamodel.Node, path string, out *[]Entry) error {
	switch v.Kind() {
	case datamodel.Kind_Map, datamodel.Kind_List:
		*out = append(*out, Entry{Path: path, Nested: true})
		return flatten(v, path, out)
	case datamodel.Kind_Link:
		l, err := v.AsLink()
		if err != nil {
			return err
		}
		cl, ok := l.(cidlink.Link)
		if !ok {
			return fmt.Errorf("%s: unsupported link type %T", path, l)
		}
		*out = append(*out, Entry{Path: path, Link: cl.Cid})
		return nil
	default:
		val, err := scalar(v)
		if err != nil {
			return err
		}
		*out = append(*out, Entry{Path: path, Value: val})
		return nil
	}
}

func scalar(v datamodel.Node) (any, error) {
	switch v.Kind() {
	case datamodel.Kind_Null:
		return nil, nil
	case datamodel.Kind_Bool:
		return v.AsBool()
	case datamodel.Kind_Int:
		return v.AsInt()
	case datamodel.Kind_Float:
		return v.AsFloat()
	case datamodel.Kind_String:
		return v.AsString()
	case datamodel.Kind_Bytes:
		return v.AsBytes()
	default:
		return nil, fmt.Errorf("unexpected kind %s", v.Kind())
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// EncodeNode serializes n with the named codec. Raw requires a bytes node.
func EncodeNode(code uint64, n datamodel.Node) ([]byte, error) {
	switch code {
	case cid.DagCBOR:
		return ipld.Encode(n, dagcbor.Encode)
	case cid.DagJSON:
		return ipld.Encode(n, dagjson.Encode)
	case cid.Raw:
		return n.AsBytes()
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedCodec, code)
	}
}
