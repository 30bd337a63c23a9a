// Package unixfs reads and writes the unixfs Data message carried in the
// Data field of dag-pb nodes.
package unixfs

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the unixfs node type.
type Type int32

const (
	TRaw Type = iota
	TDirectory
	TFile
	TMetadata
	TSymlink
	THAMTShard
)

func (t Type) String() string {
	switch t {
	case TRaw:
		return "raw"
	case TDirectory:
		return "directory"
	case TFile:
		return "file"
	case TMetadata:
		return "metadata"
	case TSymlink:
		return "symlink"
	case THAMTShard:
		return "hamt-shard"
	default:
		return fmt.Sprintf("Type(%d)", int32(t))
	}
}

// IsDir reports whether nodes of this type list children.
func (t Type) IsDir() bool { return t == TDirectory || t == THAMTShard }

var ErrMalformed = errors.New("unixfs: malformed data")

//	message Data {
//	  required DataType Type = 1;
//	  optional bytes Data = 2;
//	  optional uint64 filesize = 3;
//	  repeated uint64 blocksizes = 4;
//	}
type Data struct {
	Type       Type
	Data       []byte
	FileSize   *uint64
	BlockSizes []uint64
}

// Size returns the logical file size: filesize when recorded, else the
// inline data length.
func (d *Data) Size() uint64 {
	if d.FileSize != nil {
		return *d.FileSize
	}
	return uint64(len(d.Data))
}

func Encode(d Data) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	if d.Data != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Data)
	}
	if d.FileSize != nil {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.FileSize)
	}
	for _, s := range d.BlockSizes {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, s)
	}
	return b
}

func Decode(b []byte) (*Data, error) {
	d := &Data{}
	var sawType bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && (num == 1 || num == 3 || num == 4):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case 1:
				d.Type, sawType = Type(v), true
			case 3:
				d.FileSize = &v
			case 4:
				d.BlockSizes = append(d.BlockSizes, v)
			}
		case typ == protowire.BytesType && num == 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			d.Data = append([]byte{}, v...)
		case typ == protowire.BytesType && num == 4:
			// Packed blocksizes.
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			for len(v) > 0 {
				s, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(m))
				}
				v = v[m:]
				d.BlockSizes = append(d.BlockSizes, s)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !sawType {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return d, nil
}

// NewFile returns file data holding content inline.
func NewFile(content []byte) Data {
	size := uint64(len(content))
	return Data{Type: TFile, Data: content, FileSize: &size}
}

// NewDirectory returns an empty directory data message.
func NewDirectory() Data { return Data{Type: TDirectory} }
