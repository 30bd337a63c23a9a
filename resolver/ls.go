package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/unixfs"
)

var ErrNotDirectory = errors.New("not a directory")

const (
	TypeFile = "file"
	TypeDir  = "dir"
)

// LsEntry is one child of a unixfs directory.
type LsEntry struct {
	Depth int    `json:"depth"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  uint64 `json:"size"`
	Hash  string `json:"hash"`
	Type  string `json:"type"`
}

// Ls lists the unixfs directory at ref. CIDv0 and CIDv1 references list
// identically apart from the echoed path.
func (r *Resolver) Ls(ctx context.Context, ref any) ([]LsEntry, error) {
	pos, err := r.descend(ctx, ref, nil)
	if err != nil {
		return nil, err
	}
	if pos.prefix != "" || pos.node.Format != codec.FormatDagPB {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, pos.id)
	}
	dir, err := r.unixfsOf(pos.node)
	if err != nil {
		return nil, err
	}
	if !dir.Type.IsDir() {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotDirectory, pos.id, dir.Type)
	}

	b, err := r.bs.Get(ctx, pos.id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pos.id, err)
	}
	pb, err := codec.DecodeDagPB(b.RawData())
	if err != nil {
		return nil, err
	}

	base := lsBase(ref, pos.id)
	out := make([]LsEntry, len(pb.Links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.par)
	for i, l := range pb.Links {
		g.Go(func() error {
			typ, size, err := r.childType(gctx, l)
			if err != nil {
				return err
			}
			out[i] = LsEntry{
				Depth: 1,
				Name:  l.Name,
				Path:  base + "/" + l.Name,
				Size:  size,
				Hash:  l.Hash.String(),
				Type:  typ,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) childType(ctx context.Context, l codec.PBLink) (string, uint64, error) {
	if l.Hash.Type() == cid.Raw {
		b, err := r.bs.Get(ctx, l.Hash)
		if err != nil {
			return "", 0, fmt.Errorf("%s: %w", l.Hash, err)
		}
		return TypeFile, uint64(len(b.RawData())), nil
	}
	n, err := r.Node(ctx, l.Hash)
	if err != nil {
		return "", 0, err
	}
	if n.Format != codec.FormatDagPB {
		return TypeFile, l.Tsize, nil
	}
	d, err := r.unixfsOf(n)
	if err != nil {
		return "", 0, err
	}
	if d.Type.IsDir() {
		return TypeDir, 0, nil
	}
	return TypeFile, d.Size(), nil
}

func (r *Resolver) unixfsOf(n *codec.Node) (*unixfs.Data, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("%w: no unixfs data", unixfs.ErrMalformed)
	}
	return unixfs.Decode(n.Data)
}

// lsBase echoes the caller's reference without namespace or trailing slash.
func lsBase(ref any, id cid.Cid) string {
	s, ok := ref.(string)
	if !ok {
		return id.String()
	}
	s = strings.TrimSpace(s)
	for _, ns := range []string{"/ipfs/", "/ipld/"} {
		s = strings.TrimPrefix(s, ns)
	}
	return strings.TrimRight(s, "/")
}
