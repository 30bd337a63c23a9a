package storage

import (
	"context"
	"errors"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"go.uber.org/multierr"
)

// Multi provides deterministic, ordered fallback across several stores.
//
// Read order is the slice order in Stores; callers MUST supply a fixed order.
// Put writes only to the first store. Delete removes the block everywhere.
type Multi struct {
	Stores []Blockstore
}

var _ Blockstore = Multi{}

var errNoStores = errors.New("storage: no stores configured")

func (m Multi) Put(ctx context.Context, b blocks.Block) error {
	if len(m.Stores) == 0 {
		return errNoStores
	}
	return m.Stores[0].Put(ctx, b)
}

func (m Multi) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	return getOrdered(ctx, m.Stores, id)
}

func (m Multi) Has(ctx context.Context, id cid.Cid) bool {
	for _, s := range m.Stores {
		if s.Has(ctx, id) {
			return true
		}
	}
	return false
}

func (m Multi) Delete(ctx context.Context, id cid.Cid) error {
	return deleteAll(ctx, m.Stores, id)
}

func getOrdered(ctx context.Context, stores []Blockstore, id cid.Cid) (blocks.Block, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, s := range stores {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

// deleteAll succeeds when at least one store held the block.
func deleteAll(ctx context.Context, stores []Blockstore, id cid.Cid) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	var (
		found bool
		errs  error
	)
	for _, s := range stores {
		err := s.Delete(ctx, id)
		switch {
		case err == nil:
			found = true
		case IsNotFound(err):
		default:
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return errs
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
