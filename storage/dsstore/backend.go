package dsstore

import (
	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "memory",
		Description: "In-memory datastore (lost on exit)",
		Usage:       registry.UsageAll,
		Open: func(map[string]string) (storage.Blockstore, func() error, error) {
			s := NewInMemory()
			return s, s.Close, nil
		},
	})
}
