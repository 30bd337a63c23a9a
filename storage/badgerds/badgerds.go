// Package badgerds implements a go-datastore on badger v3.
package badgerds

import (
	"context"
	"errors"
	"os"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"go.uber.org/zap"
)

// Options configures Open.
type Options struct {
	// Dir is the database directory. Empty means an in-memory database.
	Dir string
	// SyncWrites makes every write durable before returning.
	SyncWrites bool
	Logger     *zap.Logger
}

// Datastore is a ds.Datastore persisted in badger.
type Datastore struct {
	db *badger.DB
	l  *zap.Logger
}

var _ ds.Datastore = (*Datastore)(nil)

// Open opens (or creates) the badger database described by opts.
func Open(opts Options) (*Datastore, error) {
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}

	var bopts badger.Options
	if opts.Dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		bopts = badger.DefaultOptions(opts.Dir).WithSyncWrites(opts.SyncWrites)
	}
	bopts = bopts.WithLogger(badgerLogger{l.Sugar()}).
		WithNumCompactors(2).
		WithNumMemtables(2)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	l.Info("badger datastore opened", zap.String("dir", opts.Dir))
	return &Datastore{db: db, l: l}, nil
}

func (d *Datastore) Get(ctx context.Context, key ds.Key) ([]byte, error) {
	var out []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ds.ErrNotFound
	}
	return out, err
}

func (d *Datastore) Has(ctx context.Context, key ds.Key) (bool, error) {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key.Bytes())
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (d *Datastore) GetSize(ctx context.Context, key ds.Key) (int, error) {
	size := -1
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.Bytes())
		if err != nil {
			return err
		}
		size = int(item.ValueSize())
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return -1, ds.ErrNotFound
	}
	return size, err
}

func (d *Datastore) Put(ctx context.Context, key ds.Key, value []byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.Bytes(), value)
	})
}

func (d *Datastore) Delete(ctx context.Context, key ds.Key) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.Bytes())
	})
}

// Query scans the key range under q.Prefix and applies the remaining query
// options in memory.
func (d *Datastore) Query(ctx context.Context, q query.Query) (query.Results, error) {
	prefix := ds.NewKey(q.Prefix).String()
	if prefix != "/" {
		prefix += "/"
	}

	var entries []query.Entry
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: !q.KeysOnly, PrefetchSize: 64})
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			e := query.Entry{Key: string(item.KeyCopy(nil)), Size: int(item.ValueSize())}
			if !q.KeysOnly {
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				e.Value = v
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The prefix already narrowed the scan.
	qNaive := q
	qNaive.Prefix = ""
	return query.NaiveQueryApply(qNaive, query.ResultsWithEntries(q, entries)), nil
}

func (d *Datastore) Sync(ctx context.Context, prefix ds.Key) error {
	if d.db.Opts().InMemory {
		return nil
	}
	return d.db.Sync()
}

func (d *Datastore) Close() error {
	d.l.Debug("badger datastore closing")
	return d.db.Close()
}

type badgerLogger struct{ s *zap.SugaredLogger }

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.s.Errorf(strings.TrimSpace(f), v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.s.Warnf(strings.TrimSpace(f), v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.s.Debugf(strings.TrimSpace(f), v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.s.Debugf(strings.TrimSpace(f), v...) }
