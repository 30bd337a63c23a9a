// Package resolver walks Merkle-DAGs across codecs: it flattens link trees,
// resolves paths and lists unixfs directories.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/storage"
)

// ErrPathNotFound is returned when a path segment matches no entry.
var ErrPathNotFound = errors.New("path not found")

// DefaultParallelism bounds concurrent child fetches per node.
const DefaultParallelism = 8

type Options struct {
	Logger *zap.Logger
	// Parallelism bounds concurrent child fetches per node; <= 0 uses
	// DefaultParallelism.
	Parallelism int
}

// Resolver is safe for concurrent use.
type Resolver struct {
	bs  storage.Blockstore
	reg *codec.Registry
	log *zap.Logger
	par int
}

func New(bs storage.Blockstore, reg *codec.Registry, opts Options) *Resolver {
	if reg == nil {
		reg = codec.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Resolver{bs: bs, reg: reg, log: opts.Logger, par: opts.Parallelism}
}

// Node fetches and decodes the block for id.
func (r *Resolver) Node(ctx context.Context, id cid.Cid) (*codec.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := r.bs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	n, err := r.reg.Decode(id.Type(), b.RawData())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return n, nil
}

// Has reports whether the block for id is stored.
func (r *Resolver) Has(ctx context.Context, id cid.Cid) bool {
	return id.Defined() && r.bs.Has(ctx, id)
}

// Links returns the CIDs id links to, in encoding order.
func (r *Resolver) Links(ctx context.Context, id cid.Cid) ([]cid.Cid, error) {
	n, err := r.Node(ctx, id)
	if err != nil {
		return nil, err
	}
	links := n.Links()
	out := make([]cid.Cid, 0, len(links))
	for _, l := range links {
		out = append(out, l.Cid)
	}
	return out, nil
}

// parseRef accepts any CID reference; strings may carry a trailing path.
func parseRef(ref any) (cid.Cid, []string, error) {
	if s, ok := ref.(string); ok {
		return cidutil.ParsePath(s)
	}
	id, err := cidutil.Normalize(ref)
	return id, nil, err
}

// position is a location inside a DAG: a decoded block plus an in-block
// entry prefix ("" for the block itself).
type position struct {
	id     cid.Cid
	node   *codec.Node
	prefix string
}

// Resolve follows path from its root CID. It returns the CID of the block
// where descent ended and the in-block path left over, if any.
func (r *Resolver) Resolve(ctx context.Context, path any) (cid.Cid, []string, error) {
	pos, err := r.descend(ctx, path, nil)
	if err != nil {
		return cid.Undef, nil, err
	}
	return pos.id, cidutil.SplitPath(pos.prefix), nil
}

func (r *Resolver) descend(ctx context.Context, root any, subPath []string) (position, error) {
	id, segs, err := parseRef(root)
	if err != nil {
		return position{}, err
	}
	segs = append(segs, subPath...)

	n, err := r.Node(ctx, id)
	if err != nil {
		return position{}, err
	}
	pos := position{id: id, node: n}
	for len(segs) > 0 {
		e, used, ok := longestMatch(pos, segs)
		if !ok {
			return position{}, fmt.Errorf("%w: %s", ErrPathNotFound, joinPath(pos.prefix, segs[0]))
		}
		segs = segs[used:]
		if !e.IsLink() {
			pos.prefix = e.Path
			continue
		}
		child, err := r.Node(ctx, e.Link)
		if err != nil {
			return position{}, err
		}
		pos = position{id: e.Link, node: child}
	}
	return pos, nil
}

// longestMatch finds the entry matching the most leading segments.
func longestMatch(pos position, segs []string) (codec.Entry, int, bool) {
	byPath := make(map[string]int, len(pos.node.Entries))
	for i, e := range pos.node.Entries {
		if _, dup := byPath[e.Path]; !dup {
			byPath[e.Path] = i
		}
	}
	for k := len(segs); k > 0; k-- {
		p := pos.prefix
		for _, s := range segs[:k] {
			p = joinPath(p, s)
		}
		if i, ok := byPath[p]; ok {
			return pos.node.Entries[i], k, true
		}
	}
	return codec.Entry{}, 0, false
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
