// Package remover deletes batches of blocks, refusing pinned ones unless
// forced.
//
// Each item is handled on its own: a bad reference, a pinned block or a
// missing block becomes an error string in that item's result and the batch
// carries on.
package remover

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/pin"
	"xdao.co/dagnode/storage"
)

type Options struct {
	// Force skips the pin check and ignores missing blocks.
	Force bool
	// Quiet drops successful items from the results.
	Quiet bool
}

// Result is the outcome for one requested reference.
type Result struct {
	Cid     cid.Cid `json:"-"`
	Hash    string  `json:"hash"`
	Removed bool    `json:"removed,omitempty"`
	Error   string  `json:"error,omitempty"`
}

const (
	outcomeRemoved = "removed"
	outcomeMissing = "not_found"
	outcomeSkipped = "skipped"
	outcomePinned  = "pinned"
	outcomeInvalid = "invalid"
	outcomeFailed  = "error"
)

// Metrics counts removal outcomes.
type Metrics struct {
	results *prometheus.CounterVec
	batches prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagnode",
			Subsystem: "remover",
			Name:      "results_total",
			Help:      "Block removal results by outcome.",
		}, []string{"outcome"}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dagnode",
			Subsystem: "remover",
			Name:      "batches_total",
			Help:      "Removal batches started.",
		}),
	}
}

// ResultsFor returns the counter for one outcome label.
func (m *Metrics) ResultsFor(outcome string) prometheus.Counter {
	return m.results.WithLabelValues(outcome)
}

type Config struct {
	Logger  *zap.Logger
	Metrics *Metrics
}

// Remover is safe for concurrent use.
type Remover struct {
	bs   storage.Blockstore
	pins pin.Set
	log  *zap.Logger
	m    *Metrics
}

// New returns a Remover over bs. A nil pins means nothing is pinned.
func New(bs storage.Blockstore, pins pin.Set, cfg Config) *Remover {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Remover{bs: bs, pins: pins, log: cfg.Logger, m: cfg.Metrics}
}

// Remove is RemoveMany over structured CIDs.
func (r *Remover) Remove(ctx context.Context, ids []cid.Cid, opts Options) ([]Result, error) {
	refs := make([]any, len(ids))
	for i, id := range ids {
		refs[i] = id
	}
	return r.RemoveMany(ctx, refs, opts)
}

// RemoveMany removes each reference in order. refs may mix cid.Cid, *cid.Cid,
// CID strings (optionally /ipfs/ prefixed) and binary CIDs.
//
// Results follow input order. When ctx is done the batch stops before the
// next item and returns the results so far with ctx.Err(); deletions already
// made stay.
func (r *Remover) RemoveMany(ctx context.Context, refs []any, opts Options) ([]Result, error) {
	log := r.log.With(zap.String("batch", uuid.NewString()))
	if r.m != nil {
		r.m.batches.Inc()
	}

	pins := r.batchPins(ctx, log, opts)

	out := make([]Result, 0, len(refs))
	var removed, failed int
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			log.Info("removal cancelled", zap.Int("processed", i), zap.Int("requested", len(refs)))
			return out, err
		}
		res, outcome := r.removeOne(ctx, ref, pins, opts)
		if r.m != nil {
			r.m.results.WithLabelValues(outcome).Inc()
		}
		if res.Error != "" {
			failed++
			log.Debug("not removed", zap.String("ref", res.Hash), zap.String("reason", res.Error))
		} else if res.Removed {
			removed++
		}
		if opts.Quiet && res.Error == "" {
			continue
		}
		out = append(out, res)
	}
	log.Info("removal finished",
		zap.Int("requested", len(refs)),
		zap.Int("removed", removed),
		zap.Int("failed", failed),
		zap.Bool("force", opts.Force),
	)
	return out, nil
}

// batchPins returns the pin set one batch checks against. Sets that support
// snapshots are read once per batch instead of once per item; if the snapshot
// cannot be taken, items are checked one by one and fail on their own.
func (r *Remover) batchPins(ctx context.Context, log *zap.Logger, opts Options) pin.Set {
	if opts.Force || r.pins == nil {
		return nil
	}
	s, ok := r.pins.(pin.Snapshotter)
	if !ok {
		return r.pins
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		log.Warn("pin snapshot failed", zap.Error(err))
		return r.pins
	}
	return snap
}

func (r *Remover) removeOne(ctx context.Context, ref any, pins pin.Set, opts Options) (Result, string) {
	id, err := cidutil.Normalize(ref)
	if err != nil {
		return Result{Hash: describe(ref), Error: "invalid cid: " + describe(ref)}, outcomeInvalid
	}
	res := Result{Cid: id, Hash: id.String()}

	if pins != nil {
		pinned, err := pins.IsPinned(ctx, id)
		if err != nil {
			res.Error = err.Error()
			return res, outcomeFailed
		}
		if pinned {
			res.Error = pin.ErrPinned.Error()
			return res, outcomePinned
		}
	}

	err = r.bs.Delete(ctx, id)
	switch {
	case err == nil:
		res.Removed = true
		return res, outcomeRemoved
	case errors.Is(err, storage.ErrNotFound):
		if opts.Force {
			return res, outcomeSkipped
		}
		res.Error = storage.ErrNotFound.Error()
		return res, outcomeMissing
	default:
		res.Error = err.Error()
		return res, outcomeFailed
	}
}

func describe(ref any) string {
	switch v := ref.(type) {
	case string:
		return v
	case []byte:
		return fmt.Sprintf("%x", v)
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%v", v)
	}
}
