package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/dagnode/cidutil"
	"xdao.co/dagnode/model"
	"xdao.co/dagnode/node"
	"xdao.co/dagnode/pin"
	"xdao.co/dagnode/storage/registry"
)

func (e *env) pinCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pin", Short: "Protect blocks from removal"}
	cmd.AddCommand(e.pinAddCmd(), e.pinRmCmd(), e.pinLsCmd())
	return cmd
}

func (e *env) pinAddCmd() *cobra.Command {
	var recursive bool
	cmd := &cobra.Command{
		Use:   "add <cid[/path]>...",
		Short: "Pin roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			for _, a := range args {
				id, rest, err := n.Resolver.Resolve(cmd.Context(), a)
				if err != nil {
					return err
				}
				if len(rest) > 0 {
					return fmt.Errorf("%s: path does not end at a block", a)
				}
				if err := n.Pins.Pin(cmd.Context(), id, recursive); err != nil {
					return fmt.Errorf("pin %s: %w", id, err)
				}
				fmt.Fprintf(e.out, "pinned %s %s\n", id, modeOf(recursive))
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "pin everything reachable from the root")
	return cmd
}

func modeOf(recursive bool) pin.Mode {
	if recursive {
		return pin.Recursive
	}
	return pin.Direct
}

func (e *env) pinRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <cid>...",
		Short: "Unpin roots",
		Args:  cobra.MinimumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			for _, a := range args {
				id, err := cidutil.Normalize(a)
				if err != nil {
					return err
				}
				if err := n.Pins.Unpin(cmd.Context(), id); err != nil {
					return fmt.Errorf("unpin %s: %w", id, err)
				}
				fmt.Fprintf(e.out, "unpinned %s\n", id)
			}
			return nil
		}),
	}
}

func (e *env) pinLsCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List pins",
		Args:  cobra.NoArgs,
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			mode, err := pin.ParseMode(typ)
			if err != nil {
				return err
			}
			entries, err := n.Pins.Ls(cmd.Context(), mode)
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.printJSON(model.PinEntries(entries))
			}
			for _, p := range entries {
				fmt.Fprintf(e.out, "%s %s\n", p.Cid, p.Mode)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "all", "direct, recursive, indirect or all")
	return cmd
}
