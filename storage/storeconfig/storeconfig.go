// Package storeconfig opens block store backends from a JSON config file.
package storeconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"

	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/registry"
)

// Config describes how to open one or more backends via the registry.
// Callers still need to link the desired backends via blank imports.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends (see storage.Replicating)
//
// Example:
//
//	{
//	  "write_policy": "all",
//	  "cache_blocks": 4096,
//	  "backends": [
//	    {"name":"badger", "config":{"badger-dir":"/var/lib/dagnode"}},
//	    {"name":"localfs", "id":"mirror", "config":{"localfs-dir":"/mnt/mirror"}}
//	  ]
//	}
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty"`
	CacheBlocks int             `json:"cache_blocks,omitempty"`
	Backends    []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the registry backend name (e.g. "badger", "localfs", "grpc").
	Name string `json:"name"`
	// ID is an optional stable alias. If empty, Name is used.
	ID     string            `json:"id,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("storeconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("storeconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("storeconfig: at least one backend is required")
	}
	if c.CacheBlocks < 0 {
		return errors.New("storeconfig: cache_blocks must not be negative")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("storeconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("storeconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("storeconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens the configured backends and combines them per WritePolicy.
//
// If preferred is non-empty, the matching backend (by name or id) is moved to
// the front and so receives writes under the "first" policy.
func (c Config) Open(usage registry.Usage, preferred string) (storage.Blockstore, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred || ordered[i].ID == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("storeconfig: preferred backend %q not found in config", preferred)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.Named, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		return errs
	}
	for _, b := range ordered {
		bs, closeFn, err := registry.Open(b.Name, usage, b.Config)
		if err != nil {
			return nil, nil, multierr.Append(err, closeAll())
		}
		named = append(named, storage.Named{Name: b.id(), Store: bs})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.WritePolicy == "all" {
		return storage.Replicating{Backends: named}, closeAll, nil
	}
	stores := make([]storage.Blockstore, 0, len(named))
	for _, n := range named {
		stores = append(stores, n.Store)
	}
	return storage.Multi{Stores: stores}, closeAll, nil
}
