package storage

import (
	"context"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"go.uber.org/multierr"
)

// Named associates a store with a stable backend name.
type Named struct {
	Name  string
	Store Blockstore
}

// Replicating writes every block to all configured backends.
//
// Reads fall back in order. A Put succeeds only when every backend accepted
// the block; use PutAll for the per-backend outcome.
type Replicating struct {
	Backends []Named
}

var _ Blockstore = Replicating{}

// PutAll writes b to all backends and reports each backend's error (nil on
// success). The returned error combines every failure.
func (r Replicating) PutAll(ctx context.Context, b blocks.Block) (map[string]error, error) {
	if err := Verify(b); err != nil {
		return nil, err
	}
	if len(r.Backends) == 0 {
		return nil, errNoStores
	}

	out := make(map[string]error, len(r.Backends))
	var errs error
	for _, n := range r.Backends {
		if n.Store == nil {
			return out, fmt.Errorf("storage: nil store for backend %q", n.Name)
		}
		err := n.Store.Put(ctx, b)
		out[n.Name] = err
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return out, errs
}

func (r Replicating) Put(ctx context.Context, b blocks.Block) error {
	_, err := r.PutAll(ctx, b)
	return err
}

func (r Replicating) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	return getOrdered(ctx, r.stores(), id)
}

func (r Replicating) Has(ctx context.Context, id cid.Cid) bool {
	for _, s := range r.stores() {
		if s.Has(ctx, id) {
			return true
		}
	}
	return false
}

func (r Replicating) Delete(ctx context.Context, id cid.Cid) error {
	return deleteAll(ctx, r.stores(), id)
}

func (r Replicating) stores() []Blockstore {
	out := make([]Blockstore, 0, len(r.Backends))
	for _, n := range r.Backends {
		if n.Store != nil {
			out = append(out, n.Store)
		}
	}
	return out
}
