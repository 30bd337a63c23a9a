package model

import (
	"github.com/ipfs/go-cid"

	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/pin"
)

// BlockStat describes one stored block.
type BlockStat struct {
	Key  string `json:"Key"`
	Size int    `json:"Size"`
}

type PinEntry struct {
	Cid  string `json:"Cid"`
	Type string `json:"Type"`
}

func PinEntries(in []pin.Entry) []PinEntry {
	out := make([]PinEntry, 0, len(in))
	for _, e := range in {
		out = append(out, PinEntry{Cid: e.Cid.String(), Type: e.Mode.String()})
	}
	return out
}

type ObjectLink struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size uint64 `json:"Size"`
}

// Object is the JSON form of a dag-pb node. Data is base64 encoded by
// encoding/json.
type Object struct {
	Links []ObjectLink `json:"Links"`
	Data  []byte       `json:"Data,omitempty"`
}

func FromPBNode(n codec.PBNode) Object {
	out := Object{Links: make([]ObjectLink, 0, len(n.Links)), Data: n.Data}
	for _, l := range n.Links {
		out.Links = append(out.Links, ObjectLink{Name: l.Name, Hash: l.Hash.String(), Size: l.Tsize})
	}
	return out
}

// PBNode converts back, validating every link hash.
func (o Object) PBNode() (codec.PBNode, error) {
	n := codec.PBNode{Data: o.Data}
	for _, l := range o.Links {
		id, err := cid.Decode(l.Hash)
		if err != nil {
			return codec.PBNode{}, NewError(ErrInvalidCID, l.Hash)
		}
		n.Links = append(n.Links, codec.PBLink{Hash: id, Name: l.Name, Tsize: l.Size})
	}
	return n, nil
}

// ErrorResponse is the body written for failed requests.
type ErrorResponse struct {
	Error *CodedError `json:"error"`
}
