// Package node wires a block store, pin set, codec registry, resolver,
// remover and object service into one handle.
package node

import (
	"errors"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"xdao.co/dagnode/codec"
	"xdao.co/dagnode/object"
	"xdao.co/dagnode/pin"
	"xdao.co/dagnode/remover"
	"xdao.co/dagnode/resolver"
	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/badgerds"
	"xdao.co/dagnode/storage/registry"
	"xdao.co/dagnode/storage/storeconfig"
)

// Config selects the storage backend and the shared ambient pieces.
// Backends must be linked in by the caller via blank imports.
type Config struct {
	// Backend is a registry backend name, used when ConfigFile is empty.
	Backend       string
	BackendConfig map[string]string
	Usage         registry.Usage

	// ConfigFile is a storeconfig JSON file. Preferred reorders its backends.
	ConfigFile string
	Preferred  string

	// CacheBlocks enables an LRU read cache when positive. A config file's
	// cache_blocks applies when this is zero.
	CacheBlocks int

	// PinDir holds pins in a badger database. When empty, pins share the
	// backend's datastore if it has one, and live in memory otherwise.
	PinDir string

	Parallelism int
	Logger      *zap.Logger
	// Registerer receives block store and remover metrics when non-nil.
	Registerer prometheus.Registerer
}

type Node struct {
	Blocks   storage.Blockstore
	Pins     *pin.Store
	Codecs   *codec.Registry
	Resolver *resolver.Resolver
	Remover  *remover.Remover
	Objects  *object.Objects

	log     *zap.Logger
	closers []func() error
}

// datastoreBacked is implemented by stores built on a go-datastore.
type datastoreBacked interface {
	Datastore() ds.Datastore
}

func Open(cfg Config) (*Node, error) {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	n := &Node{log: l}

	base, cacheBlocks, err := n.openStore(cfg)
	if err != nil {
		return nil, err
	}

	pinDS, err := n.openPins(cfg, base)
	if err != nil {
		return nil, multierr.Append(err, n.Close())
	}

	bs := base
	if cacheBlocks > 0 {
		c, err := storage.NewCached(bs, cacheBlocks)
		if err != nil {
			return nil, multierr.Append(err, n.Close())
		}
		bs = c
	}
	var storeMetrics *storage.Metrics
	var removeMetrics *remover.Metrics
	if cfg.Registerer != nil {
		storeMetrics = storage.NewMetrics(cfg.Registerer)
		removeMetrics = remover.NewMetrics(cfg.Registerer)
	}
	bs = storage.Instrument(bs, l.Named("blockstore"), storeMetrics)

	n.Blocks = bs
	n.Codecs = codec.NewRegistry()
	n.Resolver = resolver.New(bs, n.Codecs, resolver.Options{Logger: l.Named("resolver"), Parallelism: cfg.Parallelism})
	n.Pins = pin.NewStore(pinDS, n.Resolver, l.Named("pin"))
	n.Remover = remover.New(bs, n.Pins, remover.Config{Logger: l.Named("remover"), Metrics: removeMetrics})
	n.Objects = object.New(bs, l.Named("object"))
	return n, nil
}

func (n *Node) openStore(cfg Config) (storage.Blockstore, int, error) {
	usage := cfg.Usage
	if usage == 0 {
		usage = registry.UsageCLI
	}
	if cfg.ConfigFile != "" {
		sc, err := storeconfig.LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, 0, err
		}
		bs, closeFn, err := sc.Open(usage, cfg.Preferred)
		if err != nil {
			return nil, 0, err
		}
		n.closers = append(n.closers, closeFn)
		cache := cfg.CacheBlocks
		if cache == 0 {
			cache = sc.CacheBlocks
		}
		n.log.Info("block store opened", zap.String("config", cfg.ConfigFile), zap.Int("backends", len(sc.Backends)))
		return bs, cache, nil
	}

	name := cfg.Backend
	if name == "" {
		return nil, 0, errors.New("node: backend or config file is required")
	}
	bs, closeFn, err := registry.Open(name, usage, cfg.BackendConfig)
	if err != nil {
		return nil, 0, err
	}
	if closeFn != nil {
		n.closers = append(n.closers, closeFn)
	}
	n.log.Info("block store opened", zap.String("backend", name))
	return bs, cfg.CacheBlocks, nil
}

func (n *Node) openPins(cfg Config, base storage.Blockstore) (ds.Datastore, error) {
	if cfg.PinDir != "" {
		d, err := badgerds.Open(badgerds.Options{Dir: cfg.PinDir, SyncWrites: true, Logger: n.log.Named("pins")})
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, d.Close)
		return d, nil
	}
	if b, ok := base.(datastoreBacked); ok {
		return b.Datastore(), nil
	}
	n.log.Warn("pins are kept in memory; set a pin directory to persist them")
	return dssync.MutexWrap(ds.NewMapDatastore()), nil
}

// Close releases every backend in reverse open order.
func (n *Node) Close() error {
	var errs error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, n.closers[i]())
	}
	n.closers = nil
	return errs
}
