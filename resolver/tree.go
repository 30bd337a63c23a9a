package resolver

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/codec"
)

type TreeOptions struct {
	Recursive bool
}

// Tree returns the entry names below root (optionally descended into by
// subPath), relative to the starting point.
//
// With Recursive, each link's target subtree follows the node's own names in
// entry order, prefixed by the link's name. A block already expanded in this
// call is named but not expanded again.
func (r *Resolver) Tree(ctx context.Context, root any, subPath string, opts TreeOptions) ([]string, error) {
	out := []string{}
	err := r.Walk(ctx, root, subPath, opts, func(p string) error {
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Walk is the streaming form of Tree. It stops at the first error returned
// by fn or when ctx is done.
func (r *Resolver) Walk(ctx context.Context, root any, subPath string, opts TreeOptions, fn func(path string) error) error {
	pos, err := r.descend(ctx, root, cidutil.SplitPath(subPath))
	if err != nil {
		return err
	}
	w := &walker{r: r, fn: fn, recursive: opts.Recursive, visited: map[string]struct{}{cidutil.Key(pos.id): {}}}
	if err := w.walk(ctx, pos, ""); err != nil {
		return err
	}
	r.log.Debug("tree walked", zap.Stringer("root", pos.id), zap.Int("blocks", len(w.visited)))
	return nil
}

type walker struct {
	r         *Resolver
	fn        func(string) error
	recursive bool
	visited   map[string]struct{}
}

type scopedEntry struct {
	rel string
	codec.Entry
}

// scoped returns the entries under pos.prefix with paths made relative.
func scoped(pos position) []scopedEntry {
	var out []scopedEntry
	for _, e := range pos.node.Entries {
		if pos.prefix == "" {
			out = append(out, scopedEntry{rel: e.Path, Entry: e})
			continue
		}
		if rel, ok := strings.CutPrefix(e.Path, pos.prefix+"/"); ok {
			out = append(out, scopedEntry{rel: rel, Entry: e})
		}
	}
	return out
}

func (w *walker) walk(ctx context.Context, pos position, out string) error {
	entries := scoped(pos)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.fn(joinPath(out, e.rel)); err != nil {
			return err
		}
	}
	if !w.recursive {
		return nil
	}

	var links []scopedEntry
	for _, e := range entries {
		if e.IsLink() {
			links = append(links, e)
		}
	}
	if len(links) == 0 {
		return nil
	}
	fetched := w.prefetch(ctx, links)

	for _, l := range links {
		key := cidutil.Key(l.Link)
		if _, seen := w.visited[key]; seen {
			continue
		}
		w.visited[key] = struct{}{}
		f := fetched[key]
		if f.err != nil {
			return f.err
		}
		if err := w.walk(ctx, position{id: l.Link, node: f.node}, joinPath(out, l.rel)); err != nil {
			return err
		}
	}
	return nil
}

type fetchResult struct {
	node *codec.Node
	err  error
}

// prefetch fetches the not yet visited targets of links in parallel, keyed
// by block key. Errors surface only when the walk reaches the link, so output
// and error order match a sequential depth-first walk.
func (w *walker) prefetch(ctx context.Context, links []scopedEntry) map[string]fetchResult {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	out := make(map[string]fetchResult, len(links))
	queued := make(map[string]struct{}, len(links))
	g.SetLimit(w.r.par)
	for _, l := range links {
		key := cidutil.Key(l.Link)
		if _, seen := w.visited[key]; seen {
			continue
		}
		if _, dup := queued[key]; dup {
			continue
		}
		queued[key] = struct{}{}
		g.Go(func() error {
			n, err := w.r.Node(ctx, l.Link)
			mu.Lock()
			out[key] = fetchResult{node: n, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
