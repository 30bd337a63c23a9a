package localfs

import (
	"fmt"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem block store (directory)",
		Usage:       registry.UsageAll,
		Options: []registry.Option{
			{Key: "localfs-dir", Help: "LocalFS block directory"},
		},
		Open: func(cfg map[string]string) (storage.Blockstore, func() error, error) {
			dir := cfg["localfs-dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("missing --localfs-dir")
			}
			s, err := New(dir)
			return s, nil, err
		},
	})
}
