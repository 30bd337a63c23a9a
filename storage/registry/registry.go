// Package registry is the build-time plugin registry for block store backends.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/dagnode/storage"
)

// Option is one backend configuration key. It doubles as a CLI flag name.
type Option struct {
	Key     string
	Default string
	Help    string
}

// Backend is a build-time plugin that can open a storage.Blockstore.
//
// Backends typically register themselves in init():
//
//	registry.MustRegister(registry.Backend{ ... })
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the store from cfg, which holds every key in Options
	// (defaults filled in). It returns an optional close function.
	Open func(cfg map[string]string) (storage.Blockstore, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
	flagSets = map[string]*pflag.FlagSet{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("registry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags adds one string flag per backend option to fs. Flags the user
// sets on fs override config values passed to Open.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	mu.Lock()
	defer mu.Unlock()
	for _, b := range backends {
		if !b.Usage.allows(usage) {
			continue
		}
		for _, o := range b.Options {
			if fs.Lookup(o.Key) == nil {
				fs.String(o.Key, o.Default, fmt.Sprintf("%s (for --backend=%s)", o.Help, b.Name))
			}
		}
		flagSets[b.Name] = fs
	}
}

// Open opens the named backend if it exists and matches usage.
//
// Option values are resolved as: default, then cfg, then any flag changed on
// a FlagSet passed to RegisterFlags.
func Open(name string, usage Usage, cfg map[string]string) (storage.Blockstore, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	fs := flagSets[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}

	resolved := make(map[string]string, len(b.Options))
	for _, o := range b.Options {
		resolved[o.Key] = o.Default
		if v, ok := cfg[o.Key]; ok {
			resolved[o.Key] = v
		}
		if fs != nil && fs.Changed(o.Key) {
			resolved[o.Key], _ = fs.GetString(o.Key)
		}
	}
	for k := range cfg {
		if _, known := resolved[k]; !known {
			return nil, nil, fmt.Errorf("backend %q: unknown option %q", name, k)
		}
	}
	return b.Open(resolved)
}
