// Package pin tracks which blocks must survive removal.
//
// A block is pinned when it is a direct or recursive pin root, or when it is
// reachable from a recursive root. Reachability is computed on demand from
// the DAG through a DAG view.
package pin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/multiformats/go-multibase"
	"go.uber.org/zap"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/storage"
)

var (
	// ErrPinned is the removal refusal for pinned blocks. Its text is part of
	// the removal result contract.
	ErrPinned    = errors.New("pinned: cannot remove pinned block")
	ErrNotPinned = errors.New("not pinned")
)

type Mode int

const (
	Direct Mode = iota + 1
	Recursive
	Indirect
)

// Any selects every mode in Ls.
const Any Mode = 0

func (m Mode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Recursive:
		return "recursive"
	case Indirect:
		return "indirect"
	case Any:
		return "all"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "direct":
		return Direct, nil
	case "recursive":
		return Recursive, nil
	case "indirect":
		return Indirect, nil
	case "", "all":
		return Any, nil
	default:
		return 0, fmt.Errorf("invalid pin mode %q", s)
	}
}

type Entry struct {
	Cid  cid.Cid
	Mode Mode
}

// Set is the read gate consulted before removal.
type Set interface {
	IsPinned(ctx context.Context, id cid.Cid) (bool, error)
}

// DAG is the block graph pins are checked against.
type DAG interface {
	Has(ctx context.Context, id cid.Cid) bool
	// Links returns the CIDs a block links to.
	Links(ctx context.Context, id cid.Cid) ([]cid.Cid, error)
}

// Snapshotter is a Set that can answer a run of IsPinned calls from one
// reading of its roots.
type Snapshotter interface {
	Set
	Snapshot(ctx context.Context) (Set, error)
}

var (
	directPrefix    = ds.NewKey("/pins/direct")
	recursivePrefix = ds.NewKey("/pins/recursive")
)

// Store keeps pin roots in a datastore.
type Store struct {
	ds    ds.Datastore
	links DAG
	log   *zap.Logger
	mu    sync.Mutex
}

var _ Snapshotter = (*Store)(nil)

func NewStore(d ds.Datastore, links DAG, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{ds: d, links: links, log: logger}
}

func rootKey(prefix ds.Key, id cid.Cid) ds.Key {
	enc, _ := multibase.Encode(multibase.Base32, id.Hash())
	return prefix.ChildString(strings.ToUpper(enc[1:]))
}

// Pin adds id as a root. A recursive pin first walks the whole DAG, so every
// block under it must be present. Pinning recursively replaces a direct pin;
// pinning directly what is already pinned recursively is a no-op.
func (s *Store) Pin(ctx context.Context, id cid.Cid, recursive bool) error {
	if !id.Defined() {
		return cidutil.ErrInvalidCID
	}
	if recursive {
		if _, err := s.reachable(ctx, []cid.Cid{id}, walkOptions{strict: true}); err != nil {
			return err
		}
	} else if !s.links.Has(ctx, id) {
		return fmt.Errorf("%s: %w", id, storage.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if recursive {
		if err := s.ds.Put(ctx, rootKey(recursivePrefix, id), id.Bytes()); err != nil {
			return err
		}
		if err := s.ds.Delete(ctx, rootKey(directPrefix, id)); err != nil {
			return err
		}
		s.log.Debug("pinned", zap.Stringer("cid", id), zap.Stringer("mode", Recursive))
		return nil
	}
	has, err := s.ds.Has(ctx, rootKey(recursivePrefix, id))
	if err != nil || has {
		return err
	}
	if err := s.ds.Put(ctx, rootKey(directPrefix, id), id.Bytes()); err != nil {
		return err
	}
	s.log.Debug("pinned", zap.Stringer("cid", id), zap.Stringer("mode", Direct))
	return nil
}

// Unpin removes id as a root, whatever its mode. Indirectly pinned blocks
// cannot be unpinned on their own.
func (s *Store) Unpin(ctx context.Context, id cid.Cid) error {
	if !id.Defined() {
		return cidutil.ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	for _, p := range []ds.Key{directPrefix, recursivePrefix} {
		k := rootKey(p, id)
		has, err := s.ds.Has(ctx, k)
		if err != nil {
			return err
		}
		if !has {
			continue
		}
		if err := s.ds.Delete(ctx, k); err != nil {
			return err
		}
		removed = true
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotPinned, id)
	}
	s.log.Debug("unpinned", zap.Stringer("cid", id))
	return nil
}

// Mode reports how id is pinned, if at all.
func (s *Store) Mode(ctx context.Context, id cid.Cid) (Mode, bool, error) {
	if !id.Defined() {
		return 0, false, cidutil.ErrInvalidCID
	}
	for _, c := range []struct {
		prefix ds.Key
		mode   Mode
	}{{directPrefix, Direct}, {recursivePrefix, Recursive}} {
		has, err := s.ds.Has(ctx, rootKey(c.prefix, id))
		if err != nil {
			return 0, false, err
		}
		if has {
			return c.mode, true, nil
		}
	}

	roots, err := s.roots(ctx, recursivePrefix)
	if err != nil {
		return 0, false, err
	}
	target := cidutil.Key(id)
	found, err := s.reachable(ctx, roots, walkOptions{
		keep:  func(c cid.Cid) bool { return cidutil.Key(c) == target },
		first: true,
	})
	if err != nil {
		return 0, false, err
	}
	if len(found) > 0 {
		return Indirect, true, nil
	}
	return 0, false, nil
}

func (s *Store) IsPinned(ctx context.Context, id cid.Cid) (bool, error) {
	_, pinned, err := s.Mode(ctx, id)
	return pinned, err
}

// Snapshot reads the pin roots once. The returned Set expands recursive roots
// at most once, on the first lookup that is not itself a root, and does not
// observe pins changed after it was taken.
func (s *Store) Snapshot(ctx context.Context) (Set, error) {
	direct, err := s.roots(ctx, directPrefix)
	if err != nil {
		return nil, err
	}
	recursive, err := s.roots(ctx, recursivePrefix)
	if err != nil {
		return nil, err
	}
	v := &snapshot{s: s, recursive: recursive, roots: make(map[string]struct{}, len(direct)+len(recursive))}
	for _, c := range append(direct, recursive...) {
		v.roots[cidutil.Key(c)] = struct{}{}
	}
	return v, nil
}

type snapshot struct {
	s         *Store
	recursive []cid.Cid
	roots     map[string]struct{}

	mu       sync.Mutex
	indirect map[string]struct{}
}

func (v *snapshot) IsPinned(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, cidutil.ErrInvalidCID
	}
	k := cidutil.Key(id)
	if _, ok := v.roots[k]; ok {
		return true, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indirect == nil {
		reached, err := v.s.reachable(ctx, v.recursive, walkOptions{})
		if err != nil {
			return false, err
		}
		v.indirect = make(map[string]struct{}, len(reached))
		for _, c := range reached {
			v.indirect[cidutil.Key(c)] = struct{}{}
		}
	}
	_, ok := v.indirect[k]
	return ok, nil
}

// Ls lists pins of the given mode (Any for all), ordered by mode then CID.
// Indirect entries exclude blocks that are roots themselves.
func (s *Store) Ls(ctx context.Context, mode Mode) ([]Entry, error) {
	var out []Entry
	direct, err := s.roots(ctx, directPrefix)
	if err != nil {
		return nil, err
	}
	recursive, err := s.roots(ctx, recursivePrefix)
	if err != nil {
		return nil, err
	}
	if mode == Any || mode == Direct {
		out = append(out, entries(direct, Direct)...)
	}
	if mode == Any || mode == Recursive {
		out = append(out, entries(recursive, Recursive)...)
	}
	if mode == Any || mode == Indirect {
		isRoot := make(map[string]bool, len(direct)+len(recursive))
		for _, c := range append(append([]cid.Cid{}, direct...), recursive...) {
			isRoot[cidutil.Key(c)] = true
		}
		reached, err := s.reachable(ctx, recursive, walkOptions{keep: func(c cid.Cid) bool { return !isRoot[cidutil.Key(c)] }})
		if err != nil {
			return nil, err
		}
		out = append(out, entries(reached, Indirect)...)
	}
	return out, nil
}

func entries(ids []cid.Cid, mode Mode) []Entry {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{Cid: id, Mode: mode})
	}
	return out
}

func (s *Store) roots(ctx context.Context, prefix ds.Key) ([]cid.Cid, error) {
	res, err := s.ds.Query(ctx, query.Query{Prefix: prefix.String()})
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var out []cid.Cid
	for r := range res.Next() {
		if r.Error != nil {
			return nil, r.Error
		}
		id, err := cid.Cast(r.Value)
		if err != nil {
			return nil, fmt.Errorf("pin: corrupt entry %s: %w", r.Key, err)
		}
		out = append(out, id)
	}
	return out, nil
}

type walkOptions struct {
	// keep selects returned blocks; nil keeps all.
	keep func(cid.Cid) bool
	// first stops at the first kept block.
	first bool
	// strict fails on missing blocks instead of skipping them.
	strict bool
}

// reachable walks the DAGs below roots, roots excluded, and returns the
// blocks selected by o.keep in walk order.
func (s *Store) reachable(ctx context.Context, roots []cid.Cid, o walkOptions) ([]cid.Cid, error) {
	visited := make(map[string]struct{})
	stack := append([]cid.Cid{}, roots...)
	for _, r := range roots {
		visited[cidutil.Key(r)] = struct{}{}
	}
	var out []cid.Cid
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		links, err := s.links.Links(ctx, id)
		if err != nil {
			if !o.strict && errors.Is(err, storage.ErrNotFound) {
				s.log.Debug("pinned block missing", zap.Stringer("cid", id))
				continue
			}
			return nil, err
		}
		for _, l := range links {
			k := cidutil.Key(l)
			if _, seen := visited[k]; seen {
				continue
			}
			visited[k] = struct{}{}
			if o.keep == nil || o.keep(l) {
				out = append(out, l)
				if o.first {
					return out, nil
				}
			}
			stack = append(stack, l)
		}
	}
	return out, nil
}
