// Package codec decodes DAG node formats into a uniform view of named entries
// and outbound links.
//
// Each registered codec maps to one of a closed set of formats. Decoders are
// selected by the CID codec tag through a lookup table.
package codec

import (
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/dagnode/cidutil"
)

var ErrUnsupportedCodec = cidutil.ErrUnsupportedCodec

// Format is the family a decoded node belongs to.
type Format int

const (
	// FormatRaw is opaque bytes with no entries.
	FormatRaw Format = iota
	// FormatDagPB is the protobuf linked-node format.
	FormatDagPB
	// FormatStructured covers keyed-object formats (dag-cbor, dag-json).
	FormatStructured
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatDagPB:
		return "dag-pb"
	case FormatStructured:
		return "structured"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Link is a named edge to another block.
type Link struct {
	Name string
	Cid  cid.Cid
	// Size is the cumulative size recorded by the encoding, when it has one.
	Size uint64
}

// Entry is one named path inside a decoded node.
//
// Path may span several '/'-separated segments for structure nested inside a
// single block. Link is defined when the value is a CID.
type Entry struct {
	Path   string
	Link   cid.Cid
	Size   uint64
	Value  any
	Nested bool
}

// IsLink reports whether the entry points at another block.
func (e Entry) IsLink() bool { return e.Link.Defined() }

// Node is a decoded block.
type Node struct {
	Codec   uint64
	Format  Format
	Entries []Entry
	// Data is the dag-pb Data payload; nil for other formats.
	Data []byte
}

// Links returns the node's outbound links in encoding order.
func (n *Node) Links() []Link {
	var out []Link
	for _, e := range n.Entries {
		if e.IsLink() {
			out = append(out, Link{Name: e.Path, Cid: e.Link, Size: e.Size})
		}
	}
	return out
}

// Fields returns scalar values keyed by entry path.
func (n *Node) Fields() map[string]any {
	out := make(map[string]any)
	for _, e := range n.Entries {
		if !e.IsLink() && !e.Nested {
			out[e.Path] = e.Value
		}
	}
	return out
}

// Decoder turns block bytes into a Node.
type Decoder func(data []byte) (*Node, error)

// Registry maps codec tags to decoders. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[uint64]Decoder
}

// NewRegistry returns a registry with raw, dag-pb, dag-cbor and dag-json.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[uint64]Decoder)}
	r.Register(cid.Raw, decodeRaw)
	r.Register(cid.DagProtobuf, decodeDagPB)
	r.Register(cid.DagCBOR, decodeDagCBOR)
	r.Register(cid.DagJSON, decodeDagJSON)
	return r
}

// Register adds or replaces the decoder for code.
func (r *Registry) Register(code uint64, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[code] = dec
}

// Supports reports whether code has a decoder.
func (r *Registry) Supports(code uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[code]
	return ok
}

func (r *Registry) Decode(code uint64, data []byte) (*Node, error) {
	r.mu.RLock()
	dec, ok := r.decoders[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedCodec, code)
	}
	n, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", codecLabel(code), err)
	}
	n.Codec = code
	return n, nil
}

func codecLabel(code uint64) string {
	if name := cidutil.CodecName(code); name != "" {
		return name
	}
	return fmt.Sprintf("0x%x", code)
}

func decodeRaw([]byte) (*Node, error) {
	return &Node{Format: FormatRaw}, nil
}
