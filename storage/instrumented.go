package storage

import (
	"context"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics holds the block store collectors.
type Metrics struct {
	ops     *prometheus.CounterVec
	errs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers block store collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagnode",
			Subsystem: "blockstore",
			Name:      "operations_total",
			Help:      "Block store operations by method.",
		}, []string{"method"}),
		errs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dagnode",
			Subsystem: "blockstore",
			Name:      "errors_total",
			Help:      "Block store operations that failed, by method.",
		}, []string{"method"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dagnode",
			Subsystem: "blockstore",
			Name:      "duration_seconds",
			Help:      "Block store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"method"}),
	}
}

// Instrument wraps bs with debug logging and, when m is non-nil, metrics.
func Instrument(bs Blockstore, l *zap.Logger, m *Metrics) Blockstore {
	if l == nil {
		l = zap.NewNop()
	}
	return &instrumented{store: bs, l: l, m: m}
}

type instrumented struct {
	store Blockstore
	l     *zap.Logger
	m     *Metrics
}

func (i *instrumented) observe(method string, start time.Time, err error) {
	if i.m == nil {
		return
	}
	i.m.ops.WithLabelValues(method).Inc()
	i.m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil && !IsNotFound(err) {
		i.m.errs.WithLabelValues(method).Inc()
	}
}

func (i *instrumented) Put(ctx context.Context, b blocks.Block) error {
	start := time.Now()
	err := i.store.Put(ctx, b)
	i.observe("put", start, err)
	i.l.Debug("blockstore put", zap.Stringer("cid", b.Cid()), zap.Int("size", len(b.RawData())), zap.Error(err))
	return err
}

func (i *instrumented) Get(ctx context.Context, id cid.Cid) (blocks.Block, error) {
	start := time.Now()
	b, err := i.store.Get(ctx, id)
	i.observe("get", start, err)
	i.l.Debug("blockstore get", zap.Stringer("cid", id), zap.Error(err))
	return b, err
}

func (i *instrumented) Has(ctx context.Context, id cid.Cid) bool {
	start := time.Now()
	ok := i.store.Has(ctx, id)
	i.observe("has", start, nil)
	return ok
}

func (i *instrumented) Delete(ctx context.Context, id cid.Cid) error {
	start := time.Now()
	err := i.store.Delete(ctx, id)
	i.observe("delete", start, err)
	i.l.Debug("blockstore delete", zap.Stringer("cid", id), zap.Error(err))
	return err
}

func (i *instrumented) Keys(ctx context.Context) ([]multihash.Multihash, error) {
	return ListKeys(ctx, i.store)
}
