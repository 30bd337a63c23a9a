package ipfs

import (
	"os"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       registry.UsageCLI,
		Options: []registry.Option{
			{Key: "ipfs-bin", Default: "ipfs", Help: "Path to the ipfs binary"},
			{Key: "ipfs-path", Help: "IPFS_PATH for the repo; empty uses the environment"},
		},
		Open: func(cfg map[string]string) (storage.Blockstore, func() error, error) {
			opts := Options{Bin: cfg["ipfs-bin"]}
			if p := cfg["ipfs-path"]; p != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(opts), nil, nil
		},
	})
}
