// Package bundle moves blocks between stores as deterministic TAR archives.
package bundle

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to CIDs.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a TAR bundle containing the blocks for ids.
//
// The bundle bytes are deterministic: entries are ordered by CID string and
// TAR headers are normalized. Each block is verified as it is read.
func Export(ctx context.Context, w io.Writer, bs storage.Blockstore, ids []cid.Cid, opts ExportOptions) error {
	if bs == nil {
		return fmt.Errorf("bundle: nil block store")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	index := make([]indexBlock, 0, len(names))
	for _, s := range names {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		id := uniq[s]
		b, err := bs.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("bundle: %s: %w", s, err))
		}
		if err := storage.Verify(b); err != nil {
			return fail(err)
		}
		if err := writeFile(tw, "blocks/"+s, b.RawData()); err != nil {
			return fail(err)
		}
		pref := id.Prefix()
		index = append(index, indexBlock{
			CID:       s,
			Codec:     cidutil.CodecName(pref.Codec),
			Multihash: cidutil.HashName(pref.MhType),
			Size:      len(b.RawData()),
		})
	}

	if opts.IncludeIndex {
		idx := indexJSON{Version: FormatVersion, Blocks: index}
		if len(opts.Labels) > 0 {
			keys := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if k == "" {
					return fail(fmt.Errorf("bundle: empty label key"))
				}
				v := opts.Labels[k]
				if !v.Defined() {
					return fail(storage.ErrInvalidCID)
				}
				idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
			}
		}
		// Structs and slices only, so encoding/json output is stable.
		raw, err := json.Marshal(idx)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, "index.json", append(raw, '\n')); err != nil {
			return fail(err)
		}
	}
	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle from r and stores every block into bs. It returns the
// imported CIDs in archive order.
//
// Each block's bytes must hash to the CID in its entry name.
func Import(ctx context.Context, r io.Reader, bs storage.Blockstore, opts ImportOptions) ([]cid.Cid, error) {
	if bs == nil {
		return nil, fmt.Errorf("bundle: nil block store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var imported []cid.Cid
	for {
		if err := ctx.Err(); err != nil {
			return imported, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			return imported, nil
		}
		if err != nil {
			return imported, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return imported, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if name == "index.json" {
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				continue
			}
			return imported, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if err != nil || !id.Defined() {
			return imported, storage.ErrInvalidCID
		}
		key := cidutil.Key(id)
		if _, ok := seen[key]; ok {
			return imported, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[key] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return imported, err
		}
		b, err := storage.NewBlock(payload, id)
		if err != nil {
			return imported, err
		}
		if err := bs.Put(ctx, b); err != nil {
			return imported, err
		}
		imported = append(imported, id)
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID       string `json:"cid"`
	Codec     string `json:"codec"`
	Multihash string `json:"multihash"`
	Size      int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
