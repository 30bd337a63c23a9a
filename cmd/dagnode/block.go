package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/model"
	"xdao.co/dagnode/node"
	"xdao.co/dagnode/remover"
	"xdao.co/dagnode/storage"
	"xdao.co/dagnode/storage/bundle"
	"xdao.co/dagnode/storage/registry"
)

// errPartial reports that some items of a batch failed; details were printed.
var errPartial = errors.New("some items failed")

func (e *env) blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "Raw block operations"}
	cmd.AddCommand(
		e.blockPutCmd(),
		e.blockGetCmd(),
		e.blockStatCmd(),
		e.blockRmCmd(),
		e.blockLsCmd(),
		e.blockExportCmd(),
		e.blockImportCmd(),
	)
	return cmd
}

type sumFlags struct {
	format  string
	mhtype  string
	version int
}

func (s *sumFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.format, "format", "raw", "codec: raw, dag-pb, dag-cbor or dag-json")
	cmd.Flags().StringVar(&s.mhtype, "mhtype", "sha2-256", "multihash algorithm")
	cmd.Flags().IntVar(&s.version, "cid-version", 1, "CID version (0 implies dag-pb and sha2-256)")
}

func (s *sumFlags) sum(data []byte) (cid.Cid, error) {
	if s.version == 0 {
		if s.format != "dag-pb" || s.mhtype != "sha2-256" {
			return cid.Undef, fmt.Errorf("cid version 0 requires --format dag-pb and --mhtype sha2-256")
		}
		return cidutil.SumV0(data)
	}
	if s.version != 1 {
		return cid.Undef, fmt.Errorf("unknown cid version %d", s.version)
	}
	code, err := cidutil.ParseCodec(s.format)
	if err != nil {
		return cid.Undef, err
	}
	mh, err := cidutil.ParseHash(s.mhtype)
	if err != nil {
		return cid.Undef, err
	}
	return cidutil.Sum(data, code, mh)
}

func (e *env) readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(e.in)
	}
	return os.ReadFile(args[0])
}

func (e *env) blockPutCmd() *cobra.Command {
	var (
		sf  sumFlags
		pin bool
	)
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Store one block read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			data, err := e.readInput(args)
			if err != nil {
				return err
			}
			id, err := sf.sum(data)
			if err != nil {
				return err
			}
			if id.Type() != cid.Raw {
				if _, err := n.Codecs.Decode(id.Type(), data); err != nil {
					return err
				}
			}
			b, err := blocks.NewBlockWithCid(data, id)
			if err != nil {
				return err
			}
			if err := n.Blocks.Put(cmd.Context(), b); err != nil {
				return err
			}
			if pin {
				if err := n.Pins.Pin(cmd.Context(), id, false); err != nil {
					return err
				}
			}
			if e.jsonOut {
				return e.printJSON(model.BlockStat{Key: id.String(), Size: len(data)})
			}
			fmt.Fprintln(e.out, id)
			return nil
		}),
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&pin, "pin", false, "pin the block directly")
	return cmd
}

func (e *env) blockGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <cid>",
		Short: "Write a block's bytes to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			id, err := cidutil.Normalize(args[0])
			if err != nil {
				return err
			}
			b, err := n.Blocks.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = e.out.Write(b.RawData())
			return err
		}),
	}
}

func (e *env) blockStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <cid>...",
		Short: "Print key and size of blocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			stats := make([]model.BlockStat, 0, len(args))
			for _, a := range args {
				id, err := cidutil.Normalize(a)
				if err != nil {
					return err
				}
				b, err := n.Blocks.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				stats = append(stats, model.BlockStat{Key: id.String(), Size: len(b.RawData())})
			}
			if e.jsonOut {
				return e.printJSON(stats)
			}
			for _, s := range stats {
				fmt.Fprintf(e.out, "Key: %s\nSize: %d\n", s.Key, s.Size)
			}
			return nil
		}),
	}
}

func (e *env) blockRmCmd() *cobra.Command {
	var opts remover.Options
	cmd := &cobra.Command{
		Use:   "rm <cid>...",
		Short: "Remove unpinned blocks",
		Args:  cobra.MinimumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			refs := make([]any, len(args))
			for i, a := range args {
				refs[i] = a
			}
			results, err := n.Remover.RemoveMany(cmd.Context(), refs, opts)
			if e.jsonOut {
				if jerr := e.printJSON(results); jerr != nil {
					return jerr
				}
			} else {
				for _, r := range results {
					switch {
					case r.Error != "":
						fmt.Fprintf(e.errOut, "cannot remove %s: %s\n", r.Hash, r.Error)
					case r.Removed:
						fmt.Fprintf(e.out, "removed %s\n", r.Hash)
					}
				}
			}
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Error != "" {
					return errPartial
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "ignore pins and missing blocks")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "report failures only")
	return cmd
}

func (e *env) blockLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored blocks as raw CIDv1",
		Args:  cobra.NoArgs,
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			keys, err := storage.ListKeys(cmd.Context(), n.Blocks)
			if err != nil {
				return err
			}
			for _, mh := range keys {
				fmt.Fprintln(e.out, cid.NewCidV1(cid.Raw, mh))
			}
			return nil
		}),
	}
}

func (e *env) blockExportCmd() *cobra.Command {
	var (
		output  string
		noIndex bool
	)
	cmd := &cobra.Command{
		Use:   "export <cid>...",
		Short: "Write blocks into a deterministic tar bundle",
		Args:  cobra.MinimumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) (err error) {
			ids := make([]cid.Cid, 0, len(args))
			for _, a := range args {
				id, err := cidutil.Normalize(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			w := e.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			return bundle.Export(cmd.Context(), w, n.Blocks, ids, bundle.ExportOptions{IncludeIndex: !noIndex})
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle file (default stdout)")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "omit index.json")
	return cmd
}

func (e *env) blockImportCmd() *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import [bundle]",
		Short: "Store every block of a tar bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			r := e.in
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			ids, err := bundle.Import(cmd.Context(), r, n.Blocks, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(e.out, id)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip entries that are not blocks")
	return cmd
}
