package main

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/cobra"

	"xdao.co/dagnode/cidutil"
)

func (e *env) cidCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cid", Short: "Compute and convert content identifiers"}
	cmd.AddCommand(e.cidHashCmd(), e.cidFormatCmd())
	return cmd
}

func (e *env) cidHashCmd() *cobra.Command {
	var sf sumFlags
	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the CID of some bytes without storing them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := e.readInput(args)
			if err != nil {
				return err
			}
			id, err := sf.sum(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, id)
			return nil
		},
	}
	sf.register(cmd)
	return cmd
}

func (e *env) cidFormatCmd() *cobra.Command {
	var (
		version int
		codec   string
	)
	cmd := &cobra.Command{
		Use:   "format <cid>...",
		Short: "Re-encode CIDs with another version or codec",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				id, err := cidutil.Normalize(a)
				if err != nil {
					return err
				}
				code := id.Type()
				if codec != "" {
					if code, err = cidutil.ParseCodec(codec); err != nil {
						return err
					}
				}
				switch version {
				case 0:
					if code != cid.DagProtobuf || id.Prefix().MhType != multihash.SHA2_256 {
						return fmt.Errorf("%s: cid version 0 requires dag-pb and sha2-256", a)
					}
					id = cid.NewCidV0(id.Hash())
				case 1:
					id = cid.NewCidV1(code, id.Hash())
				default:
					return fmt.Errorf("unknown cid version %d", version)
				}
				fmt.Fprintln(e.out, id)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&version, "cid-version", "v", 1, "target CID version")
	cmd.Flags().StringVar(&codec, "codec", "", "target codec (default: keep)")
	return cmd
}
