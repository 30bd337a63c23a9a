package badgerds

import (
	"fmt"
	"strconv"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/dsstore"
	"xdao.co/dagnode/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "Badger v3 datastore (directory)",
		Usage:       registry.UsageAll,
		Options: []registry.Option{
			{Key: "badger-dir", Help: "Badger database directory"},
			{Key: "badger-sync", Default: "true", Help: "Sync every write"},
		},
		Open: func(cfg map[string]string) (storage.Blockstore, func() error, error) {
			if cfg["badger-dir"] == "" {
				return nil, nil, fmt.Errorf("missing --badger-dir")
			}
			syncWrites, err := strconv.ParseBool(cfg["badger-sync"])
			if err != nil {
				return nil, nil, fmt.Errorf("badger-sync: %w", err)
			}
			d, err := Open(Options{Dir: cfg["badger-dir"], SyncWrites: syncWrites})
			if err != nil {
				return nil, nil, err
			}
			return dsstore.New(d), d.Close, nil
		},
	})
}
